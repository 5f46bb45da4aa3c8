package provision

import (
	"errors"
	"fmt"

	"github.com/vitaminmoo/gattprov/internal/stack"
)

var (
	ErrAlreadyStarted = errors.New("provisioning already started")
	ErrNotStarted     = errors.New("provisioning not started")
	ErrFinished       = errors.New("provisioning already finished")
)

// FatalInitError reports a non-OK status during app registration, service
// creation or service start. Provisioning cannot continue.
type FatalInitError struct {
	Step   string
	Status stack.Status
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Status.String())
}

func (e *FatalInitError) Unwrap() error { return e.Status }

// RequestError reports a request the stack refused to accept.
type RequestError struct {
	Request Request
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Request, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborts provisioning.
func IsFatal(err error) bool {
	var fie *FatalInitError
	var re *RequestError
	return errors.As(err, &fie) || errors.As(err, &re)
}

// HandleMismatch describes a stack-reported handle that differs from the
// computed one. It is a diagnostic, not an error.
type HandleMismatch struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Got   uint16 `json:"got"`
	Want  uint16 `json:"want"`
}

func (m HandleMismatch) String() string {
	return fmt.Sprintf("wrong %s handle for characteristic %d: got %#04x, want %#04x", m.Kind, m.Index, m.Got, m.Want)
}
