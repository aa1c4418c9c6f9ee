package scpi

import (
	"fmt"
	"strings"
)

// Bit is a single bit mask in the Status Byte or the Standard Event Status
// Register.
type Bit uint8

// Status Byte bits. Bits 0 and 1 are device defined.
const (
	StatusErrorQueue       Bit = 1 << 2 // EAV: error/event queue not empty
	StatusQuestionable     Bit = 1 << 3 // QUES summary
	StatusMessageAvailable Bit = 1 << 4 // MAV
	StatusEventStatus      Bit = 1 << 5 // ESB
	StatusRequestService   Bit = 1 << 6 // RQS on serial poll, MSS on *STB?
	StatusOperation        Bit = 1 << 7 // OPER summary
)

// Standard Event Status Register bits.
const (
	EventOperationComplete Bit = 1 << 0
	EventRequestControl    Bit = 1 << 1
	EventQueryError        Bit = 1 << 2
	EventDeviceError       Bit = 1 << 3
	EventExecutionError    Bit = 1 << 4
	EventCommandError      Bit = 1 << 5
	EventUserRequest       Bit = 1 << 6
	EventPowerOn           Bit = 1 << 7
)

// EventErrors is the set of event bits that report an instrument error.
const EventErrors = EventQueryError | EventDeviceError | EventExecutionError | EventCommandError

// ComposeEnableMask ORs bits into an enable register value for *SRE or *ESE.
func ComposeEnableMask(bits ...Bit) byte {
	var m byte
	for _, b := range bits {
		m |= byte(b)
	}
	return m
}

// StatusByte is a decoded IEEE 488.2 Status Byte.
type StatusByte struct {
	ErrorQueue       bool
	Questionable     bool
	MessageAvailable bool
	EventStatus      bool
	RequestService   bool
	Operation        bool

	raw byte
}

func DecodeStatusByte(b byte) StatusByte {
	return StatusByte{
		ErrorQueue:       b&byte(StatusErrorQueue) != 0,
		Questionable:     b&byte(StatusQuestionable) != 0,
		MessageAvailable: b&byte(StatusMessageAvailable) != 0,
		EventStatus:      b&byte(StatusEventStatus) != 0,
		RequestService:   b&byte(StatusRequestService) != 0,
		Operation:        b&byte(StatusOperation) != 0,
		raw:              b,
	}
}

// Raw returns the register value, including device defined bits.
func (s StatusByte) Raw() byte {
	return s.raw
}

// DeviceBits returns the two device defined low bits.
func (s StatusByte) DeviceBits() byte {
	return s.raw & 0x03
}

func (s StatusByte) Has(b Bit) bool {
	return s.raw&byte(b) != 0
}

// NeedsErrorCheck reports whether the instrument has latched an event or
// queued an error.
func (s StatusByte) NeedsErrorCheck() bool {
	return s.EventStatus || s.ErrorQueue
}

func (s StatusByte) String() string {
	return formatBits(s.raw, []string{"", "", "EAV", "QUES", "MAV", "ESB", "RQS", "OPER"})
}

// EventStatus is a decoded Standard Event Status Register.
type EventStatus struct {
	OperationComplete bool
	RequestControl    bool
	QueryError        bool
	DeviceError       bool
	ExecutionError    bool
	CommandError      bool
	UserRequest       bool
	PowerOn           bool

	raw byte
}

func DecodeEventStatus(b byte) EventStatus {
	return EventStatus{
		OperationComplete: b&byte(EventOperationComplete) != 0,
		RequestControl:    b&byte(EventRequestControl) != 0,
		QueryError:        b&byte(EventQueryError) != 0,
		DeviceError:       b&byte(EventDeviceError) != 0,
		ExecutionError:    b&byte(EventExecutionError) != 0,
		CommandError:      b&byte(EventCommandError) != 0,
		UserRequest:       b&byte(EventUserRequest) != 0,
		PowerOn:           b&byte(EventPowerOn) != 0,
		raw:               b,
	}
}

func (e EventStatus) Raw() byte {
	return e.raw
}

func (e EventStatus) Has(b Bit) bool {
	return e.raw&byte(b) != 0
}

// HasError reports whether any of the query, device, execution or command
// error bits is set.
func (e EventStatus) HasError() bool {
	return e.raw&byte(EventErrors) != 0
}

func (e EventStatus) String() string {
	return formatBits(e.raw, []string{"OPC", "RQC", "QYE", "DDE", "EXE", "CME", "URQ", "PON"})
}

func formatBits(raw byte, names []string) string {
	var set []string
	for i, name := range names {
		if raw&(1<<i) == 0 {
			continue
		}
		if name == "" {
			name = fmt.Sprintf("bit%d", i)
		}
		set = append(set, name)
	}
	return fmt.Sprintf("0x%02X [%s]", raw, strings.Join(set, " "))
}
