// Package uuidgen produces the deterministic characteristic UUID sequence
// derived from a base service UUID.
package uuidgen

import (
	"fmt"

	"github.com/google/uuid"
)

// UUID is a 128-bit UUID in over-the-air (little-endian) byte order, the
// layout BLE stacks use on the wire. Byte 0 is the last byte of the
// canonical textual form.
type UUID [16]byte

// Counter bytes. The generator treats bytes 12..15 as a little-endian
// 32-bit counter, byte 12 being the least significant.
const (
	counterLow  = 12
	counterHigh = 15
)

// FromCanonical converts a big-endian uuid.UUID to storage order.
func FromCanonical(c uuid.UUID) UUID {
	var u UUID
	for i := range c {
		u[15-i] = c[i]
	}
	return u
}

// Canonical returns the big-endian form used by the textual representation
// and by host Bluetooth APIs.
func (u UUID) Canonical() uuid.UUID {
	var c uuid.UUID
	for i := range u {
		c[15-i] = u[i]
	}
	return c
}

// Parse reads a UUID in canonical textual form.
func Parse(s string) (UUID, error) {
	c, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return FromCanonical(c), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u UUID) String() string {
	return u.Canonical().String()
}

// Counter returns the value of the little-endian counter in bytes 12..15.
func (u UUID) Counter() uint32 {
	return uint32(u[12]) | uint32(u[13])<<8 | uint32(u[14])<<16 | uint32(u[15])<<24
}

// MarshalText encodes the UUID in canonical form.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText decodes a UUID in canonical form.
func (u *UUID) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*u = p
	return nil
}

// Increment adds one to the counter in bytes 12..15, carrying from byte 12
// upward. When the counter is already at its maximum the UUID is left
// unchanged and saturated is true. Bytes 0..11 are never modified.
func Increment(u *UUID) (saturated bool) {
	prev := *u
	for i := counterLow; i <= counterHigh; i++ {
		u[i]++
		if u[i] != 0 {
			return false
		}
	}
	*u = prev
	return true
}
