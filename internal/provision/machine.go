// Package provision implements the registration sequence that builds the
// attribute table: app registration, service creation and start, then one
// characteristic and one CCCD per index.
//
// The Machine is driven by completion events. Each Step returns the
// requests to issue next; at most one of them produces a completion, so
// there is never more than one outstanding operation.
package provision

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// Config fixes the shape of the table for the life of a Machine.
type Config struct {
	Chars       int
	DeviceName  string
	BaseUUID    uuidgen.UUID
	AppID       uint16
	Advertising advert.Data
	Policy      HandlePolicy
}

// Validate checks that the table fits the handle space.
func (c Config) Validate() error {
	if c.Chars < 1 {
		return fmt.Errorf("characteristic count must be at least 1, got %d", c.Chars)
	}
	if limit := handles.MaxCharacteristics(); c.Chars > limit {
		return fmt.Errorf("characteristic count %d exceeds the handle space (max %d)", c.Chars, limit)
	}
	if _, err := ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	return nil
}

// Transition is the outcome of one Step.
type Transition struct {
	From     State
	To       State
	Requests []Request
}

// Machine is the registration state machine. It is not safe for concurrent
// use except for Stats, which may be read from any goroutine.
type Machine struct {
	cfg Config
	log logrus.FieldLogger
	gen *uuidgen.Generator

	state         State
	started       bool
	cursor        int
	serviceHandle uint16
	awaiting      stack.GattsTag
	waiting       bool
	chars         []Characteristic
	mismatchLog   []HandleMismatch

	ignored      atomic.Uint64
	mismatches   atomic.Uint64
	softFailures atomic.Uint64
}

// New returns a machine in StateUnregistered.
func New(cfg Config, log logrus.FieldLogger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyFormula
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Machine{
		cfg:   cfg,
		log:   log,
		gen:   uuidgen.NewGenerator(cfg.BaseUUID, log),
		chars: make([]Characteristic, 0, cfg.Chars),
	}, nil
}

func (m *Machine) State() State { return m.state }

// Cursor returns the number of fully registered characteristics.
func (m *Machine) Cursor() int { return m.cursor }

// Awaiting returns the completion the machine is waiting for, if any.
func (m *Machine) Awaiting() (stack.GattsTag, bool) {
	return m.awaiting, m.waiting
}

// Stats returns the diagnostic counters.
func (m *Machine) Stats() Stats {
	return Stats{
		Ignored:      m.ignored.Load(),
		Mismatches:   m.mismatches.Load(),
		SoftFailures: m.softFailures.Load(),
		Saturations:  m.gen.Saturations(),
	}
}

// Progress returns a snapshot for observers.
func (m *Machine) Progress() Progress {
	p := Progress{
		State:  m.state,
		Cursor: m.cursor,
		Total:  m.cfg.Chars,
		UUID:   m.gen.Current(),
		Stats:  m.Stats(),
	}
	if m.waiting {
		p.Awaiting = m.awaiting.String()
	}
	return p
}

// Result returns the table built so far.
func (m *Machine) Result() Result {
	chars := make([]Characteristic, len(m.chars))
	copy(chars, m.chars)
	var mismatches []HandleMismatch
	if len(m.mismatchLog) > 0 {
		mismatches = make([]HandleMismatch, len(m.mismatchLog))
		copy(mismatches, m.mismatchLog)
	}
	return Result{
		Name:            m.cfg.DeviceName,
		ServiceUUID:     m.cfg.BaseUUID,
		ServiceHandle:   m.serviceHandle,
		Policy:          m.cfg.Policy,
		Characteristics: chars,
		Mismatches:      mismatches,
		Stats:           m.Stats(),
	}
}

// Start returns the app registration request.
func (m *Machine) Start() (Transition, error) {
	if m.started {
		return Transition{From: m.state, To: m.state}, ErrAlreadyStarted
	}
	m.started = true
	m.log.WithFields(logrus.Fields{
		"chars":   m.cfg.Chars,
		"service": m.cfg.BaseUUID.String(),
		"app_id":  m.cfg.AppID,
	}).Info("registering app")
	return m.emit(m.state, RegisterApp{AppID: m.cfg.AppID}), nil
}

// Step applies one event. Events the machine is not waiting for are
// logged, counted and ignored. A non-nil error is fatal and leaves the
// machine in StateFailed.
func (m *Machine) Step(ev Event) (Transition, error) {
	if m.state.Terminal() {
		return Transition{From: m.state, To: m.state}, ErrFinished
	}
	if !m.started {
		return Transition{From: m.state, To: m.state}, ErrNotStarted
	}

	switch e := ev.(type) {
	case AppRegistered:
		if m.expecting(stack.TagRegister) {
			return m.onAppRegistered(e)
		}
	case ServiceCreated:
		if m.expecting(stack.TagCreate) {
			return m.onServiceCreated(e)
		}
	case ServiceStarted:
		if m.expecting(stack.TagStart) {
			return m.onServiceStarted(e)
		}
	case CharacteristicAdded:
		if m.expecting(stack.TagAddChar) {
			return m.onCharacteristicAdded(e)
		}
	case DescriptorAdded:
		if m.expecting(stack.TagAddCharDescr) {
			return m.onDescriptorAdded(e)
		}
	}
	return m.ignore(ev), nil
}

func (m *Machine) expecting(tag stack.GattsTag) bool {
	return m.waiting && m.awaiting == tag
}

func (m *Machine) onAppRegistered(e AppRegistered) (Transition, error) {
	from := m.state
	if !e.Status.OK() {
		return m.fail(from, &FatalInitError{Step: "register app", Status: e.Status})
	}
	m.setState(StateAppRegistered)
	m.log.WithField("app_id", e.AppID).Debug("app registered")

	adv := m.cfg.Advertising
	adv.ServiceUUID = m.cfg.BaseUUID
	adv.Name = m.cfg.DeviceName

	m.setState(StateServiceCreating)
	return m.emit(from,
		SetDeviceName{Name: m.cfg.DeviceName},
		ConfigureAdvertising{Data: adv},
		CreateService{UUID: m.cfg.BaseUUID, NumHandles: uint16(handles.Budget(m.cfg.Chars))},
	), nil
}

func (m *Machine) onServiceCreated(e ServiceCreated) (Transition, error) {
	from := m.state
	if !e.Status.OK() {
		return m.fail(from, &FatalInitError{Step: "create service", Status: e.Status})
	}
	m.serviceHandle = e.ServiceHandle
	m.log.WithField("service_handle", fmt.Sprintf("%#04x", e.ServiceHandle)).Debug("service created")
	m.setState(StateServiceStarting)
	return m.emit(from, StartService{ServiceHandle: e.ServiceHandle}), nil
}

func (m *Machine) onServiceStarted(e ServiceStarted) (Transition, error) {
	from := m.state
	if !e.Status.OK() {
		return m.fail(from, &FatalInitError{Step: "start service", Status: e.Status})
	}
	if e.ServiceHandle != m.serviceHandle {
		m.log.WithFields(logrus.Fields{
			"got":  fmt.Sprintf("%#04x", e.ServiceHandle),
			"want": fmt.Sprintf("%#04x", m.serviceHandle),
		}).Warn("start event for a different service")
	}
	m.log.Debug("service started")

	m.gen.Reset()
	m.cursor = 0
	return m.emit(from, m.nextCharacteristic()), nil
}

func (m *Machine) onCharacteristicAdded(e CharacteristicAdded) (Transition, error) {
	from := m.state
	i := m.cursor
	c := &m.chars[i]
	c.ReportedValueHandle = e.AttrHandle
	c.ValueStatus = e.Status
	if !e.Status.OK() {
		m.softFailures.Add(1)
		m.log.WithFields(logrus.Fields{"index": i, "status": e.Status.String()}).Warn("add characteristic failed")
	}
	c.ValueHandle = m.pick(i, "char", handles.ValueHandle(i), e.AttrHandle, e.Status)

	m.setState(StateAddingDescriptor)
	return m.emit(from, AddDescriptor{
		ServiceHandle: m.serviceHandle,
		Index:         i,
		UUID:          stack.CCCD,
		Perm:          DescPerm,
	}), nil
}

func (m *Machine) onDescriptorAdded(e DescriptorAdded) (Transition, error) {
	from := m.state
	i := m.cursor
	c := &m.chars[i]
	c.ReportedDescriptorHandle = e.AttrHandle
	c.DescriptorStatus = e.Status
	if !e.Status.OK() {
		m.softFailures.Add(1)
		m.log.WithFields(logrus.Fields{"index": i, "status": e.Status.String()}).Warn("add descriptor failed")
	}
	c.DescriptorHandle = m.pick(i, "desc", handles.DescriptorHandle(i), e.AttrHandle, e.Status)

	m.cursor++
	if m.cursor < m.cfg.Chars {
		return m.emit(from, m.nextCharacteristic()), nil
	}
	m.setState(StateComplete)
	m.log.Infof("registered %d characteristics", m.cfg.Chars)
	return m.emit(from), nil
}

// nextCharacteristic advances the UUID and builds the request for the
// characteristic at the cursor.
func (m *Machine) nextCharacteristic() Request {
	id := m.gen.Next()
	m.chars = append(m.chars, Characteristic{Index: m.cursor, UUID: id})
	m.setState(StateAddingCharacteristic)
	return AddCharacteristic{
		ServiceHandle: m.serviceHandle,
		Index:         m.cursor,
		UUID:          id,
		Perm:          CharPerm,
		Props:         CharProps,
	}
}

// pick compares a reported handle with the computed one and returns the
// handle to record.
func (m *Machine) pick(i int, kind string, want, got uint16, status stack.Status) uint16 {
	if got == want {
		return want
	}
	m.mismatchLog = append(m.mismatchLog, HandleMismatch{Index: i, Kind: kind, Got: got, Want: want})
	m.mismatches.Add(1)
	m.log.WithFields(logrus.Fields{
		"index": i,
		"got":   fmt.Sprintf("%#04x", got),
		"want":  fmt.Sprintf("%#04x", want),
	}).Errorf("wrong %s handle", kind)
	if m.cfg.Policy == PolicyStack && status.OK() {
		return got
	}
	return want
}

func (m *Machine) ignore(ev Event) Transition {
	m.ignored.Add(1)
	m.log.WithFields(logrus.Fields{
		"event": ev.Name(),
		"state": m.state.String(),
	}).Warn("unhandled event")
	return Transition{From: m.state, To: m.state}
}

func (m *Machine) fail(from State, err error) (Transition, error) {
	m.setState(StateFailed)
	m.waiting = false
	m.log.WithError(err).Error("provisioning failed")
	return Transition{From: from, To: m.state}, err
}

func (m *Machine) setState(s State) {
	if s == m.state {
		return
	}
	m.log.WithFields(logrus.Fields{"from": m.state.String(), "to": s.String()}).Debug("state transition")
	m.state = s
}

// emit records which completion the batch awaits and builds the
// transition. A batch carries at most one completion-bearing request.
func (m *Machine) emit(from State, reqs ...Request) Transition {
	m.waiting = false
	for _, r := range reqs {
		if tag, ok := r.Awaits(); ok {
			if m.waiting {
				panic(fmt.Sprintf("provision: second outstanding request %s", r))
			}
			m.awaiting, m.waiting = tag, true
		}
	}
	return Transition{From: from, To: m.state, Requests: reqs}
}
