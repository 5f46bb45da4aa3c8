// Package stack defines the boundary to the BLE stack that hosts the
// provisioned attribute table.
//
// Requests return as soon as the stack has accepted them. Their outcome
// arrives later as an event on one of the two event streams, in request
// order. A non-nil error from a request method means the stack rejected it
// outright and no completion will follow.
package stack

import (
	"errors"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("stack closed")

// Stack is a BLE stack able to host one GATT server application.
type Stack interface {
	// RegisterApp completes with TagRegister.
	RegisterApp(appID uint16) error
	// SetDeviceName has no completion.
	SetDeviceName(name string) error
	// ConfigureAdvertising completes with TagAdvDataSetComplete on the
	// GAP stream.
	ConfigureAdvertising(data advert.Data) error
	// CreateService completes with TagCreate carrying the service handle.
	CreateService(service uuidgen.UUID, numHandles uint16) error
	// StartService completes with TagStart.
	StartService(serviceHandle uint16) error
	// AddCharacteristic completes with TagAddChar carrying the value handle.
	AddCharacteristic(serviceHandle uint16, id uuidgen.UUID, perm Perm, props Prop) error
	// AddDescriptor completes with TagAddCharDescr carrying the
	// descriptor handle. The descriptor attaches to the most recently
	// added characteristic.
	AddDescriptor(serviceHandle uint16, id uint16, perm Perm) error

	GapEvents() <-chan GapEvent
	GattsEvents() <-chan GattsEvent

	// Close stops event delivery. Both event channels are closed once
	// the stack has shut down.
	Close() error
}
