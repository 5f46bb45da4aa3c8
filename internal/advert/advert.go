// Package advert assembles the legacy advertising payload announcing the
// provisioned service.
package advert

import (
	"errors"
	"fmt"
	"time"

	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// MaxLength is the size limit of a legacy advertising payload.
const MaxLength = 31

// AD types
const (
	TypeFlags               = 0x01
	TypeComplete128BitUUIDs = 0x07
	TypeShortName           = 0x08
	TypeCompleteName        = 0x09
	TypeConnIntervalRange   = 0x12
)

// Flag bits
const (
	FlagGeneralDiscoverable = 1 << 1
	FlagBREDRNotSupported   = 1 << 2
)

// ErrTooLong is returned when the fields do not fit in MaxLength bytes.
var ErrTooLong = errors.New("advertising payload too long")

// Data describes what the peripheral advertises. MinInterval and
// MaxInterval are the preferred connection interval range in 1.25 ms units.
type Data struct {
	Flags       byte
	Name        string
	IncludeName bool
	ServiceUUID uuidgen.UUID
	MinInterval uint16
	MaxInterval uint16
}

// Default returns the advertising data used for a provisioned service:
// general discoverable, LE only, name omitted.
func Default(service uuidgen.UUID, minInterval, maxInterval uint16) Data {
	return Data{
		Flags:       FlagGeneralDiscoverable | FlagBREDRNotSupported,
		ServiceUUID: service,
		MinInterval: minInterval,
		MaxInterval: maxInterval,
	}
}

// IntervalDuration converts an interval in 1.25 ms units.
func IntervalDuration(units uint16) time.Duration {
	return time.Duration(units) * 1250 * time.Microsecond
}

type packet struct {
	data []byte
}

// appendField appends one length-type-value field.
func (p *packet) appendField(typ byte, data []byte) {
	p.data = append(p.data, byte(len(data)+1), typ)
	p.data = append(p.data, data...)
}

// Bytes encodes the payload.
func (d Data) Bytes() ([]byte, error) {
	if d.MinInterval > d.MaxInterval {
		return nil, fmt.Errorf("connection interval min %#04x above max %#04x", d.MinInterval, d.MaxInterval)
	}
	var p packet
	p.appendField(TypeFlags, []byte{d.Flags})
	if d.IncludeName && d.Name != "" {
		p.appendField(TypeCompleteName, []byte(d.Name))
	}
	p.appendField(TypeComplete128BitUUIDs, d.ServiceUUID[:])
	if d.MinInterval != 0 || d.MaxInterval != 0 {
		p.appendField(TypeConnIntervalRange, []byte{
			byte(d.MinInterval), byte(d.MinInterval >> 8),
			byte(d.MaxInterval), byte(d.MaxInterval >> 8),
		})
	}
	if len(p.data) > MaxLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(p.data))
	}
	return p.data, nil
}
