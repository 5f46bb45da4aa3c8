package provision

import "fmt"

// State is a registration phase. Progress through the states is
// forward-only; StateAddingCharacteristic and StateAddingDescriptor repeat
// once per characteristic.
type State int

const (
	StateUnregistered State = iota
	StateAppRegistered
	StateServiceCreating
	StateServiceStarting
	StateAddingCharacteristic
	StateAddingDescriptor
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateUnregistered:         "unregistered",
	StateAppRegistered:        "app-registered",
	StateServiceCreating:      "service-creating",
	StateServiceStarting:      "service-starting",
	StateAddingCharacteristic: "adding-characteristic",
	StateAddingDescriptor:     "adding-descriptor",
	StateComplete:             "complete",
	StateFailed:               "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state-%d", int(s))
}

// Terminal reports whether no further events will be processed.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// HandlePolicy decides which handle is recorded when the stack reports a
// handle different from the expected one.
type HandlePolicy string

const (
	// PolicyFormula keeps the computed handle.
	PolicyFormula HandlePolicy = "formula"
	// PolicyStack adopts the handle the stack reported.
	PolicyStack HandlePolicy = "stack"
)

// ParsePolicy validates a policy name. The empty string selects
// PolicyFormula.
func ParsePolicy(s string) (HandlePolicy, error) {
	switch HandlePolicy(s) {
	case "", PolicyFormula:
		return PolicyFormula, nil
	case PolicyStack:
		return PolicyStack, nil
	}
	return "", fmt.Errorf("unknown handle policy %q (want %q or %q)", s, PolicyFormula, PolicyStack)
}
