package provision

import "github.com/vitaminmoo/gattprov/internal/stack"

// Event is an input to the state machine.
type Event interface {
	// Name identifies the event in diagnostics.
	Name() string
}

type AppRegistered struct {
	Status stack.Status
	AppID  uint16
}

type ServiceCreated struct {
	Status        stack.Status
	ServiceHandle uint16
}

type ServiceStarted struct {
	Status        stack.Status
	ServiceHandle uint16
}

type CharacteristicAdded struct {
	Status        stack.Status
	AttrHandle    uint16
	ServiceHandle uint16
}

type DescriptorAdded struct {
	Status        stack.Status
	AttrHandle    uint16
	ServiceHandle uint16
}

// Unknown is any event the machine has no transition for.
type Unknown struct {
	Source string
	Tag    string
}

func (AppRegistered) Name() string       { return stack.TagRegister.String() }
func (ServiceCreated) Name() string      { return stack.TagCreate.String() }
func (ServiceStarted) Name() string      { return stack.TagStart.String() }
func (CharacteristicAdded) Name() string { return stack.TagAddChar.String() }
func (DescriptorAdded) Name() string     { return stack.TagAddCharDescr.String() }
func (u Unknown) Name() string           { return u.Source + "/" + u.Tag }

// FromGatts translates a raw GATT server event.
func FromGatts(ev stack.GattsEvent) Event {
	switch ev.Tag {
	case stack.TagRegister:
		return AppRegistered{Status: ev.Status, AppID: ev.AppID}
	case stack.TagCreate:
		return ServiceCreated{Status: ev.Status, ServiceHandle: ev.ServiceHandle}
	case stack.TagStart:
		return ServiceStarted{Status: ev.Status, ServiceHandle: ev.ServiceHandle}
	case stack.TagAddChar:
		return CharacteristicAdded{Status: ev.Status, AttrHandle: ev.AttrHandle, ServiceHandle: ev.ServiceHandle}
	case stack.TagAddCharDescr:
		return DescriptorAdded{Status: ev.Status, AttrHandle: ev.AttrHandle, ServiceHandle: ev.ServiceHandle}
	}
	return Unknown{Source: "gatts", Tag: ev.Tag.String()}
}
