package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/stack/sim"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

var base = uuidgen.MustParse("367ec074-9a6c-11ea-8ad0-377f1627427f")

type fixture struct {
	sim  *sim.Stack
	m    *provision.Machine
	hook *test.Hook
	log  *logrus.Logger
}

func setup(t *testing.T, n int, opts ...sim.Option) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := sim.New(append([]sim.Option{sim.WithLogger(logger)}, opts...)...)
	t.Cleanup(func() { s.Close() })
	m, err := provision.New(provision.Config{
		Chars:       n,
		DeviceName:  "TESTER",
		BaseUUID:    base,
		Advertising: advert.Default(base, 0x0006, 0x0010),
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{sim: s, m: m, hook: hook, log: logger}
}

func (f *fixture) run(t *testing.T, opts Options) (*Dispatcher, provision.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d := New(f.sim, f.m, f.log, opts)
	res, err := d.Run(ctx)
	return d, res, err
}

func TestRunAgainstSimulatedStack(t *testing.T) {
	f := setup(t, 4)

	var seen []provision.Progress
	d, res, err := f.run(t, Options{Observer: func(p provision.Progress) { seen = append(seen, p) }})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Characteristics) != 4 {
		t.Fatalf("got %d characteristics", len(res.Characteristics))
	}
	for i, c := range res.Characteristics {
		if c.ReportedValueHandle != handles.ValueHandle(i) || c.ReportedDescriptorHandle != handles.DescriptorHandle(i) {
			t.Errorf("characteristic %d handles %#x/%#x", i, c.ReportedValueHandle, c.ReportedDescriptorHandle)
		}
	}
	// the adv-data-set event may still be queued when the table completes
	if n := d.GapEvents(); n > 1 || res.Stats.GapEvents != n {
		t.Errorf("GapEvents() = %d, Stats.GapEvents = %d", n, res.Stats.GapEvents)
	}
	if st := res.Stats; st.Ignored != 0 || st.Mismatches != 0 || st.SoftFailures != 0 || st.Saturations != 0 {
		t.Errorf("Stats = %+v", st)
	}

	// requests interleave strictly: each characteristic is followed by
	// its descriptor before the next characteristic
	var ops []sim.Op
	for _, c := range f.sim.Calls() {
		ops = append(ops, c.Op)
	}
	want := []sim.Op{
		sim.OpRegisterApp, sim.OpSetDeviceName, sim.OpConfigureAdvertising,
		sim.OpCreateService, sim.OpStartService,
	}
	for range 4 {
		want = append(want, sim.OpAddCharacteristic, sim.OpAddDescriptor)
	}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v", ops)
	}
	for i := range ops {
		if ops[i] != want[i] {
			t.Fatalf("op %d = %s, want %s (all: %v)", i, ops[i], want[i], ops)
		}
	}

	name, adv := f.sim.Advertised()
	if name != "TESTER" || len(adv) == 0 {
		t.Errorf("Advertised() = %q, % x", name, adv)
	}

	last := seen[len(seen)-1]
	if last.State != provision.StateComplete || last.Fraction() != 1 {
		t.Errorf("last progress = %+v", last)
	}

	var done bool
	for _, e := range f.hook.AllEntries() {
		if e.Message == "registered 4 characteristics" {
			done = true
		}
	}
	if !done {
		t.Error("missing completion log")
	}
}

func TestCreateFailureIsFatal(t *testing.T) {
	f := setup(t, 3, sim.WithFailure(stack.TagCreate, 0, stack.StatusError))

	_, _, err := f.run(t, Options{})
	var fie *provision.FatalInitError
	if !errors.As(err, &fie) || fie.Step != "create service" {
		t.Fatalf("Run error = %v, want create service FatalInitError", err)
	}
	for _, c := range f.sim.Calls() {
		if c.Op == sim.OpAddCharacteristic || c.Op == sim.OpStartService {
			t.Errorf("issued %s after fatal create", c)
		}
	}
}

func TestSoftFailureContinues(t *testing.T) {
	f := setup(t, 2,
		sim.WithFailure(stack.TagAddCharDescr, 0, stack.StatusError),
		sim.WithHandle(stack.TagAddCharDescr, 0, 0x99),
	)

	_, res, err := f.run(t, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Characteristics) != 2 {
		t.Fatalf("got %d characteristics", len(res.Characteristics))
	}
	first := res.Characteristics[0]
	if first.ReportedDescriptorHandle != 0x99 || first.DescriptorStatus != stack.StatusError {
		t.Errorf("first = %+v", first)
	}
	// the failed descriptor consumed no handle, so the stack hands out
	// its slot to the next characteristic's declaration
	second := res.Characteristics[1]
	if second.ReportedValueHandle == handles.ValueHandle(1) {
		t.Errorf("second value handle unexpectedly matches layout: %+v", second)
	}
	if res.Stats.SoftFailures != 1 || res.Stats.Mismatches < 2 {
		t.Errorf("Stats = %+v", res.Stats)
	}
}

func TestRejectedRequestIsFatal(t *testing.T) {
	boom := errors.New("controller busy")
	f := setup(t, 1, sim.WithReject(sim.OpConfigureAdvertising, boom))

	_, _, err := f.run(t, Options{})
	var re *provision.RequestError
	if !errors.As(err, &re) || !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want RequestError wrapping boom", err)
	}
	if _, ok := re.Request.(provision.ConfigureAdvertising); !ok {
		t.Errorf("rejected request = %v", re.Request)
	}
	if !provision.IsFatal(err) {
		t.Error("IsFatal = false")
	}
}

func TestStepTimeout(t *testing.T) {
	f := setup(t, 2, sim.WithDrop(stack.TagAddChar, 1))

	_, res, err := f.run(t, Options{StepTimeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrStepTimeout) {
		t.Fatalf("Run error = %v, want ErrStepTimeout", err)
	}
	if len(res.Characteristics) != 2 || f.m.Cursor() != 1 {
		t.Errorf("partial result = %+v, cursor %d", res, f.m.Cursor())
	}
}

func TestGapEventsInStats(t *testing.T) {
	// the stalled descriptor leaves the loop waiting long enough to drain
	// the adv-data-set event
	f := setup(t, 1, sim.WithDrop(stack.TagAddCharDescr, 0))

	var last provision.Progress
	d, res, err := f.run(t, Options{
		StepTimeout: 200 * time.Millisecond,
		Observer:    func(p provision.Progress) { last = p },
	})
	if !errors.Is(err, ErrStepTimeout) {
		t.Fatalf("Run error = %v, want ErrStepTimeout", err)
	}
	if d.GapEvents() != 1 || res.Stats.GapEvents != 1 || last.Stats.GapEvents != 1 {
		t.Errorf("GapEvents() = %d, result %d, progress %d", d.GapEvents(), res.Stats.GapEvents, last.Stats.GapEvents)
	}
	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Message == "unhandled event" && e.Data["source"] == "gap" {
			warned = e.Level == logrus.WarnLevel
		}
	}
	if !warned {
		t.Error("gap event not logged")
	}
}

func TestContextCancel(t *testing.T) {
	f := setup(t, 1, sim.WithDrop(stack.TagRegister, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(f.sim, f.m, f.log, Options{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}

func TestStackClosed(t *testing.T) {
	f := setup(t, 1, sim.WithDrop(stack.TagRegister, 0))

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.sim.Close()
	}()
	_, _, err := f.run(t, Options{})
	if !errors.Is(err, ErrStackClosed) {
		t.Fatalf("Run error = %v, want ErrStackClosed", err)
	}
}
