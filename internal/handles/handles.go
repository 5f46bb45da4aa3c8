// Package handles computes the attribute handles a provisioned service is
// expected to receive.
//
// The layout assumes the stack places the service declaration at 0x28 and
// allocates sequentially: each characteristic takes a declaration handle
// and a value handle, and its CCCD takes the next one.
//
//	0x28        service declaration
//	0x29+3i     characteristic i declaration
//	0x2a+3i     characteristic i value
//	0x2b+3i     characteristic i CCCD
package handles

// FirstService is the handle the service declaration is expected at.
const FirstService uint16 = 0x28

// PerCharacteristic is the number of handles one characteristic and its
// descriptor consume.
const PerCharacteristic = 3

// ValueHandle returns the expected value handle of characteristic i.
func ValueHandle(i int) uint16 {
	return uint16(PerCharacteristic*i + 0x2a)
}

// DescriptorHandle returns the expected CCCD handle of characteristic i.
func DescriptorHandle(i int) uint16 {
	return uint16(PerCharacteristic*i + 0x2b)
}

// Budget returns the number of handles a service with n characteristics
// must reserve: one for the service declaration plus three per
// characteristic.
func Budget(n int) int {
	return PerCharacteristic*n + 1
}

// Entry is the expected handle triple for one characteristic.
type Entry struct {
	Index       int
	Declaration uint16
	Value       uint16
	Descriptor  uint16
}

// Layout returns the expected entries for n characteristics.
func Layout(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			Index:       i,
			Declaration: ValueHandle(i) - 1,
			Value:       ValueHandle(i),
			Descriptor:  DescriptorHandle(i),
		}
	}
	return entries
}

// MaxCharacteristics is the largest n whose handles still fit in 16 bits.
func MaxCharacteristics() int {
	return (0xffff - 0x2b) / PerCharacteristic
}
