package stack

import "fmt"

// GattsTag identifies an attribute-management (GATT server) event.
type GattsTag uint8

// GATT server events, numbered as the ESP-IDF Bluedroid stack numbers them.
const (
	TagRegister GattsTag = iota
	TagRead
	TagWrite
	TagExecWrite
	TagMTU
	TagConfirm
	TagUnregister
	TagCreate
	TagAddIncludedService
	TagAddChar
	TagAddCharDescr
	TagDelete
	TagStart
	TagStop
	TagConnect
	TagDisconnect
	TagOpen
	TagCancelOpen
	TagClose
	TagListen
	TagCongest
	TagResponse
	TagCreateAttrTable
	TagSetAttrValue
	TagSendServiceChange
)

var gattsTagNames = [...]string{
	TagRegister:           "register",
	TagRead:               "read",
	TagWrite:              "write",
	TagExecWrite:          "exec-write",
	TagMTU:                "mtu",
	TagConfirm:            "confirm",
	TagUnregister:         "unregister",
	TagCreate:             "create",
	TagAddIncludedService: "add-included-service",
	TagAddChar:            "add-char",
	TagAddCharDescr:       "add-char-descr",
	TagDelete:             "delete",
	TagStart:              "start",
	TagStop:               "stop",
	TagConnect:            "connect",
	TagDisconnect:         "disconnect",
	TagOpen:               "open",
	TagCancelOpen:         "cancel-open",
	TagClose:              "close",
	TagListen:             "listen",
	TagCongest:            "congest",
	TagResponse:           "response",
	TagCreateAttrTable:    "create-attr-table",
	TagSetAttrValue:       "set-attr-value",
	TagSendServiceChange:  "send-service-change",
}

func (t GattsTag) String() string {
	if int(t) < len(gattsTagNames) {
		return gattsTagNames[t]
	}
	return fmt.Sprintf("gatts-%d", uint8(t))
}

// GapTag identifies a connection/advertising (GAP) event.
type GapTag uint8

const (
	TagAdvDataSetComplete GapTag = iota
	TagScanRspDataSetComplete
	TagScanParamSetComplete
	TagScanResult
	TagAdvDataRawSetComplete
	TagScanRspDataRawSetComplete
	TagAdvStartComplete
	TagScanStartComplete
	TagAuthComplete
	TagKey
	TagSecurityRequest
	TagPasskeyNotify
	TagPasskeyRequest
	TagOOBRequest
	TagLocalIR
	TagLocalER
	TagNumericComparison
	TagAdvStopComplete
	TagScanStopComplete
	TagSetStaticRandAddr
	TagUpdateConnParams
)

var gapTagNames = [...]string{
	TagAdvDataSetComplete:        "adv-data-set-complete",
	TagScanRspDataSetComplete:    "scan-rsp-data-set-complete",
	TagScanParamSetComplete:      "scan-param-set-complete",
	TagScanResult:                "scan-result",
	TagAdvDataRawSetComplete:     "adv-data-raw-set-complete",
	TagScanRspDataRawSetComplete: "scan-rsp-data-raw-set-complete",
	TagAdvStartComplete:          "adv-start-complete",
	TagScanStartComplete:         "scan-start-complete",
	TagAuthComplete:              "auth-complete",
	TagKey:                       "key",
	TagSecurityRequest:           "security-request",
	TagPasskeyNotify:             "passkey-notify",
	TagPasskeyRequest:            "passkey-request",
	TagOOBRequest:                "oob-request",
	TagLocalIR:                   "local-ir",
	TagLocalER:                   "local-er",
	TagNumericComparison:         "numeric-comparison",
	TagAdvStopComplete:           "adv-stop-complete",
	TagScanStopComplete:          "scan-stop-complete",
	TagSetStaticRandAddr:         "set-static-rand-addr",
	TagUpdateConnParams:          "update-conn-params",
}

func (t GapTag) String() string {
	if int(t) < len(gapTagNames) {
		return gapTagNames[t]
	}
	return fmt.Sprintf("gap-%d", uint8(t))
}

// GattsEvent is a completion or notification from the GATT server side of
// the stack. Which fields are meaningful depends on Tag.
type GattsEvent struct {
	Tag           GattsTag
	Status        Status
	AppID         uint16
	ServiceHandle uint16
	AttrHandle    uint16
}

// GapEvent is a connection/advertising event.
type GapEvent struct {
	Tag    GapTag
	Status Status
}
