package stack

import "strings"

// Perm is an attribute access permission bitmask.
type Perm uint16

const (
	PermRead            Perm = 1 << 0
	PermReadEncrypted   Perm = 1 << 1
	PermReadEncMITM     Perm = 1 << 2
	PermWrite           Perm = 1 << 4
	PermWriteEncrypted  Perm = 1 << 5
	PermWriteEncMITM    Perm = 1 << 6
	PermWriteSigned     Perm = 1 << 7
	PermWriteSignedMITM Perm = 1 << 8
)

func (p Perm) CanRead() bool  { return p&(PermRead|PermReadEncrypted|PermReadEncMITM) != 0 }
func (p Perm) CanWrite() bool { return p&(PermWrite|PermWriteEncrypted|PermWriteEncMITM) != 0 }

func (p Perm) String() string {
	var parts []string
	if p&PermRead != 0 {
		parts = append(parts, "read")
	}
	if p&PermWrite != 0 {
		parts = append(parts, "write")
	}
	if p&^(PermRead|PermWrite) != 0 {
		parts = append(parts, "secure")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Prop is a characteristic properties bitmask as it appears in the
// characteristic declaration.
type Prop uint8

const (
	PropBroadcast Prop = 1 << 0
	PropRead      Prop = 1 << 1
	PropWriteNR   Prop = 1 << 2
	PropWrite     Prop = 1 << 3
	PropNotify    Prop = 1 << 4
	PropIndicate  Prop = 1 << 5
	PropAuth      Prop = 1 << 6
	PropExtProp   Prop = 1 << 7
)

var propNames = []struct {
	bit  Prop
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteNR, "write-nr"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropAuth, "auth"},
	{PropExtProp, "ext"},
}

func (p Prop) String() string {
	var parts []string
	for _, n := range propNames {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CCCD is the 16-bit UUID of the Client Characteristic Configuration
// Descriptor.
const CCCD uint16 = 0x2902
