package ble

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

var propFlags = []struct {
	prop stack.Prop
	flag bluetooth.CharacteristicPermissions
}{
	{stack.PropBroadcast, bluetooth.CharacteristicBroadcastPermission},
	{stack.PropRead, bluetooth.CharacteristicReadPermission},
	{stack.PropWriteNR, bluetooth.CharacteristicWriteWithoutResponsePermission},
	{stack.PropWrite, bluetooth.CharacteristicWritePermission},
	{stack.PropNotify, bluetooth.CharacteristicNotifyPermission},
	{stack.PropIndicate, bluetooth.CharacteristicIndicatePermission},
}

// Flags converts characteristic properties to tinygo permissions.
// tinygo has a single bitmask, so read and write properties are dropped
// when perm does not allow them. Properties tinygo has no flag for are
// dropped too.
func Flags(props stack.Prop, perm stack.Perm) bluetooth.CharacteristicPermissions {
	if !perm.CanRead() {
		props &^= stack.PropRead
	}
	if !perm.CanWrite() {
		props &^= stack.PropWrite | stack.PropWriteNR
	}
	var f bluetooth.CharacteristicPermissions
	for _, pf := range propFlags {
		if props&pf.prop != 0 {
			f |= pf.flag
		}
	}
	return f
}

type pendingService struct {
	id      uuidgen.UUID
	handle  uint16
	budget  int
	used    int
	started bool
	chars   []bluetooth.CharacteristicConfig
	notify  []bool
	cccds   int
}

// Peripheral is a stack.Stack that assembles one service and publishes it
// on a Radio. tinygo registers a service in a single call and creates the
// CCCD of notifying characteristics itself, so handles are synthesized
// here in Bluedroid order and the service goes out when the budget
// declared at creation is used up.
type Peripheral struct {
	pump  *stack.Pump
	radio Radio
	log   logrus.FieldLogger

	// owned by the pump goroutine
	enabled bool
	apps    map[uint16]bool
	svc     *pendingService
	name    string
	adv     *advert.Data

	published atomic.Bool
	writes    atomic.Uint64
}

// NewPeripheral returns a peripheral on radio. The radio is enabled when
// the first app registers.
func NewPeripheral(radio Radio, log logrus.FieldLogger) *Peripheral {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Peripheral{
		pump:  stack.NewPump(16),
		radio: radio,
		log:   log,
		apps:  make(map[uint16]bool),
	}
}

// Published reports whether the service is registered with the radio and
// advertising.
func (p *Peripheral) Published() bool { return p.published.Load() }

// Writes returns the number of writes received from centrals.
func (p *Peripheral) Writes() uint64 { return p.writes.Load() }

func (p *Peripheral) GapEvents() <-chan stack.GapEvent     { return p.pump.GapEvents() }
func (p *Peripheral) GattsEvents() <-chan stack.GattsEvent { return p.pump.GattsEvents() }
func (p *Peripheral) Close() error                         { return p.pump.Close() }

func (p *Peripheral) RegisterApp(appID uint16) error {
	return p.pump.Submit(func() {
		st := stack.StatusOK
		switch {
		case p.apps[appID]:
			st = stack.StatusWrongState
		case !p.enabled:
			if err := p.radio.Enable(); err != nil {
				p.log.WithError(err).Error("radio enable failed")
				st = stack.StatusError
				break
			}
			p.enabled = true
		}
		if st.OK() {
			p.apps[appID] = true
		}
		p.pump.EmitGatts(stack.GattsEvent{Tag: stack.TagRegister, Status: st, AppID: appID})
	})
}

func (p *Peripheral) SetDeviceName(name string) error {
	return p.pump.Submit(func() {
		p.name = name
	})
}

// ConfigureAdvertising keeps data for publish time. tinygo builds the
// payload itself, so only the name and service UUID carry over.
func (p *Peripheral) ConfigureAdvertising(data advert.Data) error {
	if _, err := data.Bytes(); err != nil {
		return err
	}
	return p.pump.Submit(func() {
		p.adv = &data
		p.pump.EmitGap(stack.GapEvent{Tag: stack.TagAdvDataSetComplete})
	})
}

func (p *Peripheral) CreateService(id uuidgen.UUID, numHandles uint16) error {
	return p.pump.Submit(func() {
		ev := stack.GattsEvent{Tag: stack.TagCreate}
		switch {
		case len(p.apps) == 0 || p.svc != nil:
			ev.Status = stack.StatusWrongState
		case numHandles == 0:
			ev.Status = stack.StatusNoResources
		default:
			p.svc = &pendingService{
				id:     id,
				handle: handles.FirstService,
				budget: int(numHandles),
				used:   1,
			}
			ev.ServiceHandle = p.svc.handle
		}
		p.pump.EmitGatts(ev)
	})
}

func (p *Peripheral) StartService(serviceHandle uint16) error {
	return p.pump.Submit(func() {
		st := stack.StatusOK
		if p.svc == nil || p.svc.handle != serviceHandle {
			st = stack.StatusNotFound
		} else {
			p.svc.started = true
		}
		p.pump.EmitGatts(stack.GattsEvent{Tag: stack.TagStart, Status: st, ServiceHandle: serviceHandle})
	})
}

func (p *Peripheral) AddCharacteristic(serviceHandle uint16, id uuidgen.UUID, perm stack.Perm, props stack.Prop) error {
	return p.pump.Submit(func() {
		h, st := p.allocate(serviceHandle, 2)
		if st.OK() {
			index := len(p.svc.chars)
			p.svc.chars = append(p.svc.chars, bluetooth.CharacteristicConfig{
				Handle:     &bluetooth.Characteristic{},
				UUID:       bluetooth.NewUUID(id.Canonical()),
				Flags:      Flags(props, perm),
				WriteEvent: p.onWrite(index),
			})
			p.svc.notify = append(p.svc.notify, props&stack.PropNotify != 0)
			p.log.WithFields(logrus.Fields{
				"uuid":   id.String(),
				"handle": fmt.Sprintf("%#04x", h),
				"perm":   perm.String(),
			}).Debug("characteristic queued")
		}
		p.finish(stack.GattsEvent{Tag: stack.TagAddChar, Status: st, AttrHandle: h, ServiceHandle: serviceHandle})
	})
}

// AddDescriptor accepts only the CCCD of the last notifying
// characteristic; tinygo has no API for other descriptors.
func (p *Peripheral) AddDescriptor(serviceHandle uint16, id uint16, perm stack.Perm) error {
	return p.pump.Submit(func() {
		var h uint16
		st := stack.StatusOK
		switch {
		case id != stack.CCCD:
			st = stack.StatusNotSupported
		case p.svc != nil && p.svc.handle == serviceHandle &&
			(p.svc.cccds >= len(p.svc.chars) || !p.svc.notify[len(p.svc.chars)-1]):
			st = stack.StatusWrongState
		}
		if st.OK() {
			h, st = p.allocate(serviceHandle, 1)
		}
		if st.OK() {
			p.svc.cccds++
		}
		p.finish(stack.GattsEvent{Tag: stack.TagAddCharDescr, Status: st, AttrHandle: h, ServiceHandle: serviceHandle})
	})
}

func (p *Peripheral) allocate(serviceHandle uint16, n int) (uint16, stack.Status) {
	if p.svc == nil || p.svc.handle != serviceHandle {
		return 0, stack.StatusNotFound
	}
	if !p.svc.started || p.published.Load() {
		return 0, stack.StatusWrongState
	}
	if p.svc.used+n > p.svc.budget {
		return 0, stack.StatusNoResources
	}
	p.svc.used += n
	return p.svc.handle + uint16(p.svc.used) - 1, stack.StatusOK
}

// finish publishes the service when ev used the last handle of the
// budget, then delivers ev. A publish failure is reported on ev.
func (p *Peripheral) finish(ev stack.GattsEvent) {
	if ev.Status.OK() && p.svc.used == p.svc.budget {
		if err := p.publish(); err != nil {
			p.log.WithError(err).Error("publishing service failed")
			ev.Status = stack.StatusError
		}
	}
	p.pump.EmitGatts(ev)
}

func (p *Peripheral) publish() error {
	svc := &bluetooth.Service{
		UUID:            bluetooth.NewUUID(p.svc.id.Canonical()),
		Characteristics: p.svc.chars,
	}
	if err := p.radio.AddService(svc); err != nil {
		return err
	}

	opts := bluetooth.AdvertisementOptions{
		LocalName:    p.name,
		ServiceUUIDs: []bluetooth.UUID{svc.UUID},
	}
	if p.adv != nil {
		if p.adv.IncludeName && p.adv.Name != "" {
			opts.LocalName = p.adv.Name
		}
		opts.ServiceUUIDs = []bluetooth.UUID{bluetooth.NewUUID(p.adv.ServiceUUID.Canonical())}
	}
	if err := p.radio.Advertise(opts); err != nil {
		return err
	}
	p.published.Store(true)
	p.log.WithFields(logrus.Fields{
		"name":    opts.LocalName,
		"service": p.svc.id.String(),
		"chars":   len(p.svc.chars),
	}).Info("advertising")
	return nil
}

func (p *Peripheral) onWrite(index int) func(bluetooth.Connection, int, []byte) {
	return func(client bluetooth.Connection, offset int, value []byte) {
		p.writes.Add(1)
		p.log.WithFields(logrus.Fields{
			"index":  index,
			"client": client,
			"offset": offset,
			"len":    len(value),
		}).Debug("characteristic written")
	}
}
