package provision

import (
	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// Characteristic is one provisioned characteristic and its CCCD.
// ValueHandle and DescriptorHandle hold the handles chosen by the handle
// policy; the Reported fields hold what the stack returned.
type Characteristic struct {
	Index                    int          `json:"index"`
	UUID                     uuidgen.UUID `json:"uuid"`
	ValueHandle              uint16       `json:"value_handle"`
	DescriptorHandle         uint16       `json:"descriptor_handle"`
	ReportedValueHandle      uint16       `json:"reported_value_handle"`
	ReportedDescriptorHandle uint16       `json:"reported_descriptor_handle"`
	ValueStatus              stack.Status `json:"value_status"`
	DescriptorStatus         stack.Status `json:"descriptor_status"`
}

// Mismatched reports whether either reported handle differs from the
// computed layout.
func (c Characteristic) Mismatched() bool {
	return c.ReportedValueHandle != handles.ValueHandle(c.Index) ||
		c.ReportedDescriptorHandle != handles.DescriptorHandle(c.Index)
}

// Failed reports whether the stack returned a non-OK status for the
// characteristic or its descriptor.
func (c Characteristic) Failed() bool {
	return !c.ValueStatus.OK() || !c.DescriptorStatus.OK()
}

// Stats counts the non-fatal diagnostics of a run.
type Stats struct {
	Ignored      uint64 `json:"ignored"`
	Mismatches   uint64 `json:"mismatches"`
	SoftFailures uint64 `json:"soft_failures"`
	Saturations  uint64 `json:"saturations"`
	// GapEvents counts connection and advertising events, none of which
	// drive provisioning. Filled in by the dispatcher.
	GapEvents uint64 `json:"gap_events"`
}

// Result is the provisioned attribute table.
type Result struct {
	Name            string           `json:"name"`
	ServiceUUID     uuidgen.UUID     `json:"service_uuid"`
	ServiceHandle   uint16           `json:"service_handle"`
	Policy          HandlePolicy     `json:"policy"`
	Characteristics []Characteristic `json:"characteristics"`
	Mismatches      []HandleMismatch `json:"mismatches,omitempty"`
	Stats           Stats            `json:"stats"`
}

// Progress is a snapshot of the machine for observers.
type Progress struct {
	State    State
	Cursor   int
	Total    int
	UUID     uuidgen.UUID
	Awaiting string
	Stats    Stats
}

// Fraction returns completed characteristics over the total.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	if p.State == StateComplete {
		return 1
	}
	return float64(p.Cursor) / float64(p.Total)
}
