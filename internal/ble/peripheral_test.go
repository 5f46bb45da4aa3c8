package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"tinygo.org/x/bluetooth"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/dispatch"
	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

type fakeRadio struct {
	mu         sync.Mutex
	enableErr  error
	serviceErr error
	enabled    int
	services   []*bluetooth.Service
	adverts    []bluetooth.AdvertisementOptions
}

func (r *fakeRadio) Enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled++
	return r.enableErr
}

func (r *fakeRadio) AddService(svc *bluetooth.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.serviceErr != nil {
		return r.serviceErr
	}
	r.services = append(r.services, svc)
	return nil
}

func (r *fakeRadio) Advertise(opts bluetooth.AdvertisementOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adverts = append(r.adverts, opts)
	return nil
}

var base = uuidgen.MustParse("367ec074-9a6c-11ea-8ad0-377f1627427f")

func provisionOn(t *testing.T, radio *fakeRadio, n int) (*Peripheral, provision.Result, error) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p := NewPeripheral(radio, logger)
	t.Cleanup(func() { p.Close() })

	m, err := provision.New(provision.Config{
		Chars:       n,
		DeviceName:  "TESTER",
		BaseUUID:    base,
		Advertising: advert.Default(base, 0x0006, 0x0010),
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := dispatch.New(p, m, logger, dispatch.Options{}).Run(ctx)
	return p, res, err
}

func TestPeripheralPublishesFullTable(t *testing.T) {
	radio := &fakeRadio{}
	p, res, err := provisionOn(t, radio, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Published() {
		t.Fatal("service not published")
	}
	if radio.enabled != 1 {
		t.Errorf("Enable called %d times", radio.enabled)
	}
	if len(radio.services) != 1 {
		t.Fatalf("AddService called %d times", len(radio.services))
	}

	svc := radio.services[0]
	if svc.UUID != bluetooth.NewUUID(base.Canonical()) {
		t.Errorf("service uuid = %s", svc.UUID)
	}
	want := uuidgen.Sequence(base, 3)
	for i, c := range svc.Characteristics {
		if c.UUID != bluetooth.NewUUID(want[i].Canonical()) {
			t.Errorf("char %d uuid = %s, want %s", i, c.UUID, want[i])
		}
		if c.Flags != bluetooth.CharacteristicReadPermission|bluetooth.CharacteristicWritePermission|
			bluetooth.CharacteristicWriteWithoutResponsePermission|bluetooth.CharacteristicNotifyPermission {
			t.Errorf("char %d flags = %#x", i, c.Flags)
		}
		if c.Handle == nil || c.WriteEvent == nil {
			t.Errorf("char %d missing handle or write callback", i)
		}
	}

	for i, c := range res.Characteristics {
		if c.Mismatched() || c.Failed() {
			t.Errorf("char %d = %+v", i, c)
		}
	}

	if len(radio.adverts) != 1 {
		t.Fatalf("Advertise called %d times", len(radio.adverts))
	}
	adv := radio.adverts[0]
	if adv.LocalName != "TESTER" || len(adv.ServiceUUIDs) != 1 || adv.ServiceUUIDs[0] != svc.UUID {
		t.Errorf("advertisement = %+v", adv)
	}

	var client bluetooth.Connection
	svc.Characteristics[1].WriteEvent(client, 0, []byte{1})
	if p.Writes() != 1 {
		t.Errorf("Writes() = %d", p.Writes())
	}
}

func TestPeripheralEnableFailureIsFatal(t *testing.T) {
	radio := &fakeRadio{enableErr: errors.New("no adapter")}
	p, _, err := provisionOn(t, radio, 1)
	var fie *provision.FatalInitError
	if !errors.As(err, &fie) || fie.Step != "register app" {
		t.Fatalf("err = %v", err)
	}
	if p.Published() {
		t.Error("published after failed enable")
	}
}

func TestPeripheralPublishFailureOnLastDescriptor(t *testing.T) {
	radio := &fakeRadio{serviceErr: errors.New("bluez said no")}
	p, res, err := provisionOn(t, radio, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Published() {
		t.Error("published despite AddService error")
	}
	last := res.Characteristics[1]
	if last.DescriptorStatus != stack.StatusError {
		t.Errorf("last descriptor status = %s", last.DescriptorStatus)
	}
	if res.Stats.SoftFailures != 1 {
		t.Errorf("Stats = %+v", res.Stats)
	}
}

func TestPeripheralHandles(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPeripheral(&fakeRadio{}, logger)
	t.Cleanup(func() { p.Close() })

	next := func() stack.GattsEvent {
		t.Helper()
		select {
		case ev := <-p.GattsEvents():
			return ev
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
		return stack.GattsEvent{}
	}

	if err := p.RegisterApp(0); err != nil {
		t.Fatal(err)
	}
	next()
	if err := p.CreateService(base, uint16(handles.Budget(1))); err != nil {
		t.Fatal(err)
	}
	if ev := next(); ev.ServiceHandle != handles.FirstService {
		t.Fatalf("create = %+v", ev)
	}

	// adding before start is refused
	p.AddCharacteristic(handles.FirstService, base, stack.PermRead, stack.PropRead|stack.PropNotify)
	if ev := next(); ev.Status != stack.StatusWrongState {
		t.Errorf("add before start = %+v", ev)
	}

	p.StartService(handles.FirstService)
	next()

	p.AddDescriptor(handles.FirstService, 0x2901, stack.PermRead)
	if ev := next(); ev.Status != stack.StatusNotSupported {
		t.Errorf("non-CCCD descriptor = %+v", ev)
	}
	p.AddCharacteristic(handles.FirstService, base, stack.PermRead, stack.PropRead|stack.PropNotify)
	if ev := next(); ev.AttrHandle != handles.ValueHandle(0) {
		t.Errorf("value handle = %#x", ev.AttrHandle)
	}
	p.AddDescriptor(handles.FirstService, stack.CCCD, stack.PermRead)
	if ev := next(); ev.AttrHandle != handles.DescriptorHandle(0) || !ev.Status.OK() {
		t.Errorf("descriptor = %+v", ev)
	}
	if !p.Published() {
		t.Error("not published after budget filled")
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name  string
		props stack.Prop
		perm  stack.Perm
		want  bluetooth.CharacteristicPermissions
	}{
		{
			"unsupported bits dropped",
			stack.PropRead | stack.PropNotify | stack.PropAuth,
			stack.PermRead | stack.PermWrite,
			bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
		},
		{
			"read only perm",
			stack.PropRead | stack.PropWrite | stack.PropWriteNR | stack.PropNotify,
			stack.PermRead,
			bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
		},
		{
			"encrypted write counts as write",
			stack.PropRead | stack.PropWrite,
			stack.PermWriteEncrypted,
			bluetooth.CharacteristicWritePermission,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Flags(tt.props, tt.perm); got != tt.want {
				t.Errorf("Flags = %#x, want %#x", got, tt.want)
			}
		})
	}
}
