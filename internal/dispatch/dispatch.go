// Package dispatch feeds stack events to the provisioning state machine and
// issues the requests it produces.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/stack"
)

var (
	// ErrStepTimeout is returned when a completion does not arrive within
	// the configured step timeout.
	ErrStepTimeout = errors.New("timed out waiting for completion")
	// ErrStackClosed is returned when the stack stops delivering events
	// before provisioning finished.
	ErrStackClosed = errors.New("stack closed its event stream")
)

// Observer is called on the dispatcher goroutine after every processed
// event.
type Observer func(provision.Progress)

// Options tunes a Dispatcher.
type Options struct {
	// StepTimeout bounds the wait for each completion. Zero waits forever.
	StepTimeout time.Duration
	Observer    Observer
}

// Dispatcher is the single consumer of a stack's event streams.
type Dispatcher struct {
	st   stack.Stack
	m    *provision.Machine
	log  logrus.FieldLogger
	opts Options

	gapEvents atomic.Uint64
}

// New returns a dispatcher for m over st.
func New(st stack.Stack, m *provision.Machine, log logrus.FieldLogger, opts Options) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{st: st, m: m, log: log, opts: opts}
}

// GapEvents returns how many connection/advertising events were seen.
func (d *Dispatcher) GapEvents() uint64 { return d.gapEvents.Load() }

// Run registers the app and processes events until the table is complete,
// a fatal error occurs or ctx is done. The partial table is returned
// alongside any error.
func (d *Dispatcher) Run(ctx context.Context) (provision.Result, error) {
	tr, err := d.m.Start()
	if err != nil {
		return d.result(), err
	}
	if err := d.issue(tr.Requests); err != nil {
		return d.result(), err
	}
	d.notify()

	gap := d.st.GapEvents()
	gatts := d.st.GattsEvents()
	timeout := d.deadline()

	for d.m.State() != provision.StateComplete {
		select {
		case <-ctx.Done():
			return d.result(), ctx.Err()

		case ev, ok := <-gap:
			if !ok {
				return d.result(), ErrStackClosed
			}
			d.handleGap(ev)
			d.notify()

		case ev, ok := <-gatts:
			if !ok {
				return d.result(), ErrStackClosed
			}
			tr, err := d.m.Step(provision.FromGatts(ev))
			if err != nil {
				d.notify()
				return d.result(), err
			}
			if err := d.issue(tr.Requests); err != nil {
				return d.result(), err
			}
			if len(tr.Requests) > 0 {
				timeout = d.deadline()
			}
			d.notify()

		case <-timeout:
			tag, _ := d.m.Awaiting()
			return d.result(), fmt.Errorf("%w: %s after %s", ErrStepTimeout, tag, d.opts.StepTimeout)
		}
	}
	return d.result(), nil
}

// result is the machine's table with the GAP count folded into its stats.
func (d *Dispatcher) result() provision.Result {
	res := d.m.Result()
	res.Stats.GapEvents = d.gapEvents.Load()
	return res
}

// handleGap logs connection/advertising events. None of them drive
// provisioning.
func (d *Dispatcher) handleGap(ev stack.GapEvent) {
	d.gapEvents.Add(1)
	d.log.WithFields(logrus.Fields{
		"source": "gap",
		"tag":    ev.Tag.String(),
		"status": ev.Status.String(),
	}).Warn("unhandled event")
}

// issue submits requests in order. A rejected submission is fatal.
func (d *Dispatcher) issue(reqs []provision.Request) error {
	for _, r := range reqs {
		d.log.WithField("request", r.String()).Debug("issuing request")
		if err := r.Issue(d.st); err != nil {
			return &provision.RequestError{Request: r, Err: err}
		}
	}
	return nil
}

func (d *Dispatcher) deadline() <-chan time.Time {
	if d.opts.StepTimeout <= 0 {
		return nil
	}
	return time.After(d.opts.StepTimeout)
}

func (d *Dispatcher) notify() {
	if d.opts.Observer != nil {
		p := d.m.Progress()
		p.Stats.GapEvents = d.gapEvents.Load()
		d.opts.Observer(p)
	}
}
