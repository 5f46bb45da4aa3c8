package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

func newStack(t *testing.T, opts ...Option) *Stack {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := New(append([]Option{WithLogger(logger)}, opts...)...)
	t.Cleanup(func() { s.Close() })
	return s
}

func next(t *testing.T, s *Stack) stack.GattsEvent {
	t.Helper()
	select {
	case ev := <-s.GattsEvents():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for gatts event")
	}
	return stack.GattsEvent{}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestHandleAllocation(t *testing.T) {
	s := newStack(t)
	id := uuidgen.MustParse("367ec074-9a6c-11ea-8ad0-377f1627427f")

	must(t, s.RegisterApp(0))
	if ev := next(t, s); ev.Tag != stack.TagRegister || !ev.Status.OK() {
		t.Fatalf("register = %+v", ev)
	}
	must(t, s.CreateService(id, 7))
	created := next(t, s)
	if created.ServiceHandle != 0x28 {
		t.Fatalf("service handle = %#x, want 0x28", created.ServiceHandle)
	}
	must(t, s.StartService(0x28))
	next(t, s)

	want := []uint16{0x2a, 0x2b, 0x2d, 0x2e}
	for i := range 2 {
		must(t, s.AddCharacteristic(0x28, id, stack.PermRead, stack.PropRead))
		must(t, s.AddDescriptor(0x28, stack.CCCD, stack.PermRead))
		c, d := next(t, s), next(t, s)
		if c.AttrHandle != want[2*i] || d.AttrHandle != want[2*i+1] {
			t.Errorf("pair %d handles = %#x/%#x, want %#x/%#x", i, c.AttrHandle, d.AttrHandle, want[2*i], want[2*i+1])
		}
	}

	// the budget of 7 is exhausted
	must(t, s.AddCharacteristic(0x28, id, stack.PermRead, stack.PropRead))
	if ev := next(t, s); ev.Status != stack.StatusNoResources || ev.AttrHandle != 0 {
		t.Errorf("over-budget add = %+v", ev)
	}
}

func TestFaultInjection(t *testing.T) {
	s := newStack(t,
		WithFailure(stack.TagRegister, 0, stack.StatusError),
		WithHandle(stack.TagRegister, 1, 0xbeef),
		WithDrop(stack.TagRegister, 2),
	)

	must(t, s.RegisterApp(0))
	if ev := next(t, s); ev.Status != stack.StatusError {
		t.Errorf("first register status = %s", ev.Status)
	}
	must(t, s.RegisterApp(0))
	if ev := next(t, s); !ev.Status.OK() || ev.AttrHandle != 0xbeef {
		t.Errorf("second register = %+v", ev)
	}
	must(t, s.RegisterApp(1))
	must(t, s.RegisterApp(0))
	// the third completion was dropped; the fourth is a duplicate app id
	if ev := next(t, s); ev.Status != stack.StatusWrongState || ev.AppID != 0 {
		t.Errorf("fourth register = %+v", ev)
	}
}

func TestRejectAndCalls(t *testing.T) {
	boom := errors.New("boom")
	s := newStack(t, WithReject(OpStartService, boom))

	must(t, s.SetDeviceName("TESTER"))
	if err := s.StartService(0x28); !errors.Is(err, boom) {
		t.Fatalf("StartService = %v, want boom", err)
	}
	calls := s.Calls()
	if len(calls) != 1 || calls[0].Op != OpSetDeviceName || calls[0].String() != `set-device-name("TESTER")` {
		t.Errorf("Calls() = %v", calls)
	}
}

func TestAdvertisingCompletesOnGap(t *testing.T) {
	s := newStack(t)
	must(t, s.ConfigureAdvertising(advert.Default(uuidgen.UUID{}, 6, 16)))
	select {
	case ev := <-s.GapEvents():
		if ev.Tag != stack.TagAdvDataSetComplete {
			t.Errorf("gap tag = %s", ev.Tag)
		}
	case <-time.After(time.Second):
		t.Fatal("no gap event")
	}
	if _, adv := s.Advertised(); len(adv) != 27 {
		t.Errorf("payload length = %d, want 27", len(adv))
	}

	bad := advert.Default(uuidgen.UUID{}, 16, 6)
	if err := s.ConfigureAdvertising(bad); err == nil {
		t.Error("invalid advertising data accepted")
	}
}

func TestCreateBeforeRegister(t *testing.T) {
	s := newStack(t)
	must(t, s.CreateService(uuidgen.UUID{}, 4))
	if ev := next(t, s); ev.Status != stack.StatusWrongState {
		t.Errorf("create without app = %+v", ev)
	}
}

func TestClosedStackRejects(t *testing.T) {
	s := newStack(t)
	s.Close()
	if err := s.RegisterApp(0); !errors.Is(err, stack.ErrClosed) {
		t.Errorf("RegisterApp after Close = %v", err)
	}
}
