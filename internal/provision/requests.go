package provision

import (
	"fmt"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/stack"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// Request is an operation the machine asks the stack to perform.
type Request interface {
	// Issue submits the request.
	Issue(s stack.Stack) error
	// Awaits returns the tag of the completion this request produces, if
	// any.
	Awaits() (stack.GattsTag, bool)
	String() string
}

// Permissions and properties given to every provisioned characteristic.
const (
	CharPerm  = stack.PermRead | stack.PermWrite
	CharProps = stack.PropRead | stack.PropWrite | stack.PropWriteNR | stack.PropNotify
	DescPerm  = stack.PermRead | stack.PermWrite
)

type RegisterApp struct {
	AppID uint16
}

type SetDeviceName struct {
	Name string
}

type ConfigureAdvertising struct {
	Data advert.Data
}

type CreateService struct {
	UUID       uuidgen.UUID
	NumHandles uint16
}

type StartService struct {
	ServiceHandle uint16
}

type AddCharacteristic struct {
	ServiceHandle uint16
	Index         int
	UUID          uuidgen.UUID
	Perm          stack.Perm
	Props         stack.Prop
}

type AddDescriptor struct {
	ServiceHandle uint16
	Index         int
	UUID          uint16
	Perm          stack.Perm
}

func (r RegisterApp) Issue(s stack.Stack) error {
	return s.RegisterApp(r.AppID)
}

func (r SetDeviceName) Issue(s stack.Stack) error {
	return s.SetDeviceName(r.Name)
}

func (r ConfigureAdvertising) Issue(s stack.Stack) error {
	return s.ConfigureAdvertising(r.Data)
}

func (r CreateService) Issue(s stack.Stack) error {
	return s.CreateService(r.UUID, r.NumHandles)
}

func (r StartService) Issue(s stack.Stack) error {
	return s.StartService(r.ServiceHandle)
}

func (r AddCharacteristic) Issue(s stack.Stack) error {
	return s.AddCharacteristic(r.ServiceHandle, r.UUID, r.Perm, r.Props)
}

func (r AddDescriptor) Issue(s stack.Stack) error {
	return s.AddDescriptor(r.ServiceHandle, r.UUID, r.Perm)
}

func (RegisterApp) Awaits() (stack.GattsTag, bool)          { return stack.TagRegister, true }
func (SetDeviceName) Awaits() (stack.GattsTag, bool)        { return 0, false }
func (ConfigureAdvertising) Awaits() (stack.GattsTag, bool) { return 0, false }
func (CreateService) Awaits() (stack.GattsTag, bool)        { return stack.TagCreate, true }
func (StartService) Awaits() (stack.GattsTag, bool)         { return stack.TagStart, true }
func (AddCharacteristic) Awaits() (stack.GattsTag, bool)    { return stack.TagAddChar, true }
func (AddDescriptor) Awaits() (stack.GattsTag, bool)        { return stack.TagAddCharDescr, true }

func (r RegisterApp) String() string {
	return fmt.Sprintf("register-app(%d)", r.AppID)
}

func (r SetDeviceName) String() string {
	return fmt.Sprintf("set-device-name(%q)", r.Name)
}

func (r ConfigureAdvertising) String() string {
	return fmt.Sprintf("configure-advertising(%s)", r.Data.ServiceUUID)
}

func (r CreateService) String() string {
	return fmt.Sprintf("create-service(%s, %d)", r.UUID, r.NumHandles)
}

func (r StartService) String() string {
	return fmt.Sprintf("start-service(%#04x)", r.ServiceHandle)
}

func (r AddCharacteristic) String() string {
	return fmt.Sprintf("add-characteristic(%d, %s)", r.Index, r.UUID)
}

func (r AddDescriptor) String() string {
	return fmt.Sprintf("add-descriptor(%d, %#04x)", r.Index, r.UUID)
}
