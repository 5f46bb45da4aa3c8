// Package sim is an in-process BLE stack. It allocates attribute handles the
// way an embedded Bluedroid stack does and delivers completions
// asynchronously, in request order, from its own goroutine.
package sim

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// Op names a request kind.
type Op string

const (
	OpRegisterApp          Op = "register-app"
	OpSetDeviceName        Op = "set-device-name"
	OpConfigureAdvertising Op = "configure-advertising"
	OpCreateService        Op = "create-service"
	OpStartService         Op = "start-service"
	OpAddCharacteristic    Op = "add-characteristic"
	OpAddDescriptor        Op = "add-descriptor"
)

// Call is one request as the stack received it.
type Call struct {
	Op     Op
	Detail string
}

func (c Call) String() string { return string(c.Op) + "(" + c.Detail + ")" }

type key struct {
	tag stack.GattsTag
	n   int
}

type service struct {
	id      uuidgen.UUID
	handle  uint16
	budget  int
	used    int
	started bool
	chars   int
}

// Stack is a simulated stack. The zero value is not usable; call New.
type Stack struct {
	pump *stack.Pump
	log  logrus.FieldLogger

	firstHandle uint16
	failures    map[key]stack.Status
	overrides   map[key]uint16
	drops       map[key]bool
	rejects     map[Op]error

	// owned by the pump goroutine
	seen     map[stack.GattsTag]int
	next     uint16
	services map[uint16]*service
	apps     map[uint16]bool

	mu    sync.Mutex
	calls []Call
	name  string
	adv   []byte
}

// Option configures a Stack.
type Option func(*Stack)

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Stack) { s.log = log }
}

// WithServiceHandle sets the handle of the first service declaration.
func WithServiceHandle(h uint16) Option {
	return func(s *Stack) { s.firstHandle = h }
}

// WithFailure makes the n-th (zero-based) completion with tag carry status.
// Failed attribute additions report handle 0 and consume no handles.
func WithFailure(tag stack.GattsTag, n int, status stack.Status) Option {
	return func(s *Stack) { s.failures[key{tag, n}] = status }
}

// WithHandle overrides the handle reported by the n-th completion with tag.
// For TagCreate and TagStart it overrides the service handle.
func WithHandle(tag stack.GattsTag, n int, handle uint16) Option {
	return func(s *Stack) { s.overrides[key{tag, n}] = handle }
}

// WithDrop suppresses the n-th completion with tag.
func WithDrop(tag stack.GattsTag, n int) Option {
	return func(s *Stack) { s.drops[key{tag, n}] = true }
}

// WithReject makes every request of kind op fail synchronously with err.
func WithReject(op Op, err error) Option {
	return func(s *Stack) { s.rejects[op] = err }
}

// New starts a simulated stack.
func New(opts ...Option) *Stack {
	s := &Stack{
		log:         logrus.StandardLogger(),
		firstHandle: 0x28,
		failures:    make(map[key]stack.Status),
		overrides:   make(map[key]uint16),
		drops:       make(map[key]bool),
		rejects:     make(map[Op]error),
		seen:        make(map[stack.GattsTag]int),
		services:    make(map[uint16]*service),
		apps:        make(map[uint16]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.next = s.firstHandle
	s.pump = stack.NewPump(16)
	return s
}

// Calls returns the requests received so far, in order.
func (s *Stack) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Advertised returns the device name and advertising payload applied so far.
func (s *Stack) Advertised() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.adv
}

func (s *Stack) GapEvents() <-chan stack.GapEvent     { return s.pump.GapEvents() }
func (s *Stack) GattsEvents() <-chan stack.GattsEvent { return s.pump.GattsEvents() }
func (s *Stack) Close() error                         { return s.pump.Close() }

// request records the call and queues fn unless op is rejected.
func (s *Stack) request(op Op, detail string, fn func()) error {
	if err := s.rejects[op]; err != nil {
		return err
	}
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, Detail: detail})
	s.mu.Unlock()
	s.log.WithField("call", Call{Op: op, Detail: detail}.String()).Debug("sim request")
	return s.pump.Submit(fn)
}

// complete applies fault injection and delivers ev.
func (s *Stack) complete(ev stack.GattsEvent) {
	k := key{ev.Tag, s.seen[ev.Tag]}
	s.seen[ev.Tag]++
	if s.drops[k] {
		s.log.WithField("tag", ev.Tag.String()).Debug("sim dropping completion")
		return
	}
	if h, ok := s.overrides[k]; ok {
		switch ev.Tag {
		case stack.TagCreate, stack.TagStart:
			ev.ServiceHandle = h
		default:
			ev.AttrHandle = h
		}
	}
	s.pump.EmitGatts(ev)
}

// failure reports the injected status for the next completion with tag.
func (s *Stack) failure(tag stack.GattsTag) stack.Status {
	if st, ok := s.failures[key{tag, s.seen[tag]}]; ok {
		return st
	}
	return stack.StatusOK
}

func (s *Stack) RegisterApp(appID uint16) error {
	return s.request(OpRegisterApp, fmt.Sprintf("%d", appID), func() {
		st := s.failure(stack.TagRegister)
		if st.OK() && s.apps[appID] {
			st = stack.StatusWrongState
		}
		if st.OK() {
			s.apps[appID] = true
		}
		s.complete(stack.GattsEvent{Tag: stack.TagRegister, Status: st, AppID: appID})
	})
}

func (s *Stack) SetDeviceName(name string) error {
	return s.request(OpSetDeviceName, fmt.Sprintf("%q", name), func() {
		s.mu.Lock()
		s.name = name
		s.mu.Unlock()
	})
}

func (s *Stack) ConfigureAdvertising(data advert.Data) error {
	payload, err := data.Bytes()
	if err != nil {
		return err
	}
	return s.request(OpConfigureAdvertising, fmt.Sprintf("% x", payload), func() {
		s.mu.Lock()
		s.adv = payload
		s.mu.Unlock()
		s.pump.EmitGap(stack.GapEvent{Tag: stack.TagAdvDataSetComplete})
	})
}

func (s *Stack) CreateService(id uuidgen.UUID, numHandles uint16) error {
	return s.request(OpCreateService, fmt.Sprintf("%s, %d", id, numHandles), func() {
		st := s.failure(stack.TagCreate)
		var h uint16
		switch {
		case !st.OK():
		case len(s.apps) == 0:
			st = stack.StatusWrongState
		case numHandles == 0 || int(s.next)+int(numHandles) > 0x10000:
			st = stack.StatusNoResources
		default:
			h = s.next
			s.next += numHandles
			s.services[h] = &service{id: id, handle: h, budget: int(numHandles), used: 1}
		}
		s.complete(stack.GattsEvent{Tag: stack.TagCreate, Status: st, ServiceHandle: h})
	})
}

func (s *Stack) StartService(serviceHandle uint16) error {
	return s.request(OpStartService, fmt.Sprintf("%#04x", serviceHandle), func() {
		st := s.failure(stack.TagStart)
		if st.OK() {
			if svc, ok := s.services[serviceHandle]; !ok {
				st = stack.StatusNotFound
			} else {
				svc.started = true
			}
		}
		s.complete(stack.GattsEvent{Tag: stack.TagStart, Status: st, ServiceHandle: serviceHandle})
	})
}

func (s *Stack) AddCharacteristic(serviceHandle uint16, id uuidgen.UUID, perm stack.Perm, props stack.Prop) error {
	detail := fmt.Sprintf("%#04x, %s, %s, %s", serviceHandle, id, perm, props)
	return s.request(OpAddCharacteristic, detail, func() {
		h, st := s.allocate(stack.TagAddChar, serviceHandle, 2)
		if st.OK() {
			s.services[serviceHandle].chars++
		}
		s.complete(stack.GattsEvent{Tag: stack.TagAddChar, Status: st, AttrHandle: h, ServiceHandle: serviceHandle})
	})
}

func (s *Stack) AddDescriptor(serviceHandle uint16, id uint16, perm stack.Perm) error {
	detail := fmt.Sprintf("%#04x, %#04x, %s", serviceHandle, id, perm)
	return s.request(OpAddDescriptor, detail, func() {
		var h uint16
		st := stack.StatusOK
		if svc, ok := s.services[serviceHandle]; ok && svc.chars == 0 {
			st = stack.StatusWrongState
		}
		if st.OK() {
			h, st = s.allocate(stack.TagAddCharDescr, serviceHandle, 1)
		}
		s.complete(stack.GattsEvent{Tag: stack.TagAddCharDescr, Status: st, AttrHandle: h, ServiceHandle: serviceHandle})
	})
}

// allocate reserves n handles in the service and returns the last one,
// which is the value handle for a characteristic (declaration first) and
// the descriptor handle for a descriptor.
func (s *Stack) allocate(tag stack.GattsTag, serviceHandle uint16, n int) (uint16, stack.Status) {
	if st := s.failure(tag); !st.OK() {
		return 0, st
	}
	svc, ok := s.services[serviceHandle]
	if !ok {
		return 0, stack.StatusNotFound
	}
	if !svc.started {
		return 0, stack.StatusWrongState
	}
	if svc.used+n > svc.budget {
		return 0, stack.StatusNoResources
	}
	svc.used += n
	return svc.handle + uint16(svc.used) - 1, stack.StatusOK
}
