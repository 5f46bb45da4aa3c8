package stack

import "fmt"

// Status is a GATT status code carried by completion events. A non-OK
// Status satisfies the error interface.
type Status uint8

const (
	StatusOK                Status = 0x00
	StatusInvalidHandle     Status = 0x01
	StatusReadNotPermitted  Status = 0x02
	StatusWriteNotPermitted Status = 0x03
	StatusInvalidPDU        Status = 0x04
	StatusNotSupported      Status = 0x06
	StatusNotFound          Status = 0x0a
	StatusInsufResource     Status = 0x11
	StatusNoResources       Status = 0x80
	StatusInternalError     Status = 0x81
	StatusWrongState        Status = 0x82
	StatusDBFull            Status = 0x83
	StatusBusy              Status = 0x84
	StatusError             Status = 0x85
	StatusIllegalParameter  Status = 0x87
)

var statusNames = map[Status]string{
	StatusOK:                "ok",
	StatusInvalidHandle:     "invalid handle",
	StatusReadNotPermitted:  "read not permitted",
	StatusWriteNotPermitted: "write not permitted",
	StatusInvalidPDU:        "invalid pdu",
	StatusNotSupported:      "request not supported",
	StatusNotFound:          "not found",
	StatusInsufResource:     "insufficient resources",
	StatusNoResources:       "no resources",
	StatusInternalError:     "internal error",
	StatusWrongState:        "wrong state",
	StatusDBFull:            "database full",
	StatusBusy:              "busy",
	StatusError:             "error",
	StatusIllegalParameter:  "illegal parameter",
}

// OK reports whether s is StatusOK.
func (s Status) OK() bool { return s == StatusOK }

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s (%#02x)", name, uint8(s))
	}
	return fmt.Sprintf("status %#02x", uint8(s))
}

func (s Status) Error() string {
	return "gatt: " + s.String()
}
