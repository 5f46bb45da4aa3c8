package stack

import "sync"

// Pump runs submitted stack work on a single goroutine, in submission
// order, and delivers the resulting events. Backends use it to give their
// completions the ordering guarantees of a real controller task.
type Pump struct {
	work   chan func()
	gap    chan GapEvent
	gatts  chan GattsEvent
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// NewPump starts a pump. buffer sizes the request queue and both event
// channels.
func NewPump(buffer int) *Pump {
	p := &Pump{
		work:   make(chan func(), buffer),
		gap:    make(chan GapEvent, buffer),
		gatts:  make(chan GattsEvent, buffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pump) run() {
	defer close(p.exited)
	defer close(p.gatts)
	defer close(p.gap)
	for {
		select {
		case fn := <-p.work:
			fn()
		case <-p.done:
			return
		}
	}
}

// Submit queues fn. It fails with ErrClosed once the pump is closed.
func (p *Pump) Submit(fn func()) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.work <- fn:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// EmitGap delivers a GAP event. It must only be called from submitted work.
func (p *Pump) EmitGap(ev GapEvent) {
	select {
	case p.gap <- ev:
	case <-p.done:
	}
}

// EmitGatts delivers a GATT server event. It must only be called from
// submitted work.
func (p *Pump) EmitGatts(ev GattsEvent) {
	select {
	case p.gatts <- ev:
	case <-p.done:
	}
}

func (p *Pump) GapEvents() <-chan GapEvent     { return p.gap }
func (p *Pump) GattsEvents() <-chan GattsEvent { return p.gatts }

// Close stops the pump and waits for the worker to exit. Work still queued
// is discarded.
func (p *Pump) Close() error {
	p.once.Do(func() { close(p.done) })
	<-p.exited
	return nil
}
