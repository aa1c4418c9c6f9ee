package scpi

import (
	"fmt"
	"strconv"
)

// ErrorEntry is one entry of the SCPI error/event queue.
type ErrorEntry struct {
	Code    int
	Message string
}

// NoError is the entry an empty queue reports.
var NoError = ErrorEntry{Code: 0, Message: "No error"}

// IsNoError reports whether e is the empty queue sentinel.
func (e ErrorEntry) IsNoError() bool {
	return e.Code == 0
}

func (e ErrorEntry) Class() ErrorClass {
	return ClassOf(e.Code)
}

// String formats e the way instruments report it, e.g. -113,"Undefined header".
func (e ErrorEntry) String() string {
	b := strconv.AppendInt(nil, int64(e.Code), 10)
	b = append(b, DataSeparator)
	b, err := appendString(b, e.Message)
	if err != nil {
		return fmt.Sprintf("%d,%q", e.Code, e.Message)
	}
	return string(b)
}

// ParseErrorEntry decodes a :SYSTem:ERRor? response. The message may carry
// device dependent information after a ';', which is kept verbatim.
func ParseErrorEntry(raw []byte) (ErrorEntry, error) {
	resp, err := Parser{}.Parse(raw, ShapeList, KindAuto)
	if err != nil {
		return ErrorEntry{}, err
	}
	if len(resp.Values) != 2 {
		return ErrorEntry{}, decodeErr(ErrMalformedValue, raw, 0)
	}
	code, err := resp.Values[0].Int64()
	if err != nil {
		return ErrorEntry{}, decodeErr(ErrMalformedValue, raw, 0)
	}
	msg := resp.Values[1]
	if msg.Kind != KindString {
		return ErrorEntry{}, decodeErr(ErrMalformedValue, raw, 0)
	}
	return ErrorEntry{Code: int(code), Message: msg.Text}, nil
}

// ErrorClass groups error codes by the event bit they set.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassCommand
	ClassExecution
	ClassDevice
	ClassQuery
	ClassPowerOn
	ClassUserRequest
	ClassRequestControl
	ClassOperationComplete
	// ClassDeviceSpecific covers positive, instrument defined codes.
	ClassDeviceSpecific
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassCommand:
		return "command error"
	case ClassExecution:
		return "execution error"
	case ClassDevice:
		return "device-specific error"
	case ClassQuery:
		return "query error"
	case ClassPowerOn:
		return "power on"
	case ClassUserRequest:
		return "user request"
	case ClassRequestControl:
		return "request control"
	case ClassOperationComplete:
		return "operation complete"
	case ClassDeviceSpecific:
		return "instrument error"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ClassOf returns the class of an error code.
func ClassOf(code int) ErrorClass {
	switch {
	case code == 0:
		return ClassNone
	case code > 0:
		return ClassDeviceSpecific
	case code >= -199 && code <= -100:
		return ClassCommand
	case code >= -299 && code <= -200:
		return ClassExecution
	case code >= -399 && code <= -300:
		return ClassDevice
	case code >= -499 && code <= -400:
		return ClassQuery
	case code >= -599 && code <= -500:
		return ClassPowerOn
	case code >= -699 && code <= -600:
		return ClassUserRequest
	case code >= -799 && code <= -700:
		return ClassRequestControl
	case code >= -899 && code <= -800:
		return ClassOperationComplete
	}
	return ClassDeviceSpecific
}

// Event returns the event status bit the class sets, or 0.
func (c ErrorClass) Event() Bit {
	switch c {
	case ClassCommand:
		return EventCommandError
	case ClassExecution:
		return EventExecutionError
	case ClassDevice, ClassDeviceSpecific:
		return EventDeviceError
	case ClassQuery:
		return EventQueryError
	case ClassPowerOn:
		return EventPowerOn
	case ClassUserRequest:
		return EventUserRequest
	case ClassRequestControl:
		return EventRequestControl
	case ClassOperationComplete:
		return EventOperationComplete
	}
	return 0
}

// Standard error and event codes.
const (
	CodeCommandError                 = -100
	CodeInvalidCharacter             = -101
	CodeSyntaxError                  = -102
	CodeInvalidSeparator             = -103
	CodeDataTypeError                = -104
	CodeGETNotAllowed                = -105
	CodeParameterNotAllowed          = -108
	CodeMissingParameter             = -109
	CodeCommandHeaderError           = -110
	CodeHeaderSeparatorError         = -111
	CodeProgramMnemonicTooLong       = -112
	CodeUndefinedHeader              = -113
	CodeHeaderSuffixOutOfRange       = -114
	CodeUnexpectedNumberOfParameters = -115
	CodeNumericDataError             = -120
	CodeInvalidCharacterInNumber     = -121
	CodeExponentTooLarge             = -123
	CodeTooManyDigits                = -124
	CodeNumericDataNotAllowed        = -128
	CodeSuffixError                  = -130
	CodeInvalidSuffix                = -131
	CodeSuffixTooLong                = -134
	CodeSuffixNotAllowed             = -138
	CodeCharacterDataError           = -140
	CodeInvalidCharacterData         = -141
	CodeCharacterDataTooLong         = -144
	CodeCharacterDataNotAllowed      = -148
	CodeStringDataError              = -150
	CodeInvalidStringData            = -151
	CodeStringDataNotAllowed         = -158
	CodeBlockDataError               = -160
	CodeInvalidBlockData             = -161
	CodeBlockDataNotAllowed          = -168
	CodeExpressionError              = -170
	CodeInvalidExpression            = -171
	CodeExpressionDataNotAllowed     = -178
	CodeMacroError                   = -180
	CodeExecutionError               = -200
	CodeInvalidWhileInLocal          = -201
	CodeSettingsLostDueToRTL         = -202
	CodeCommandProtected             = -203
	CodeTriggerError                 = -210
	CodeTriggerIgnored               = -211
	CodeArmIgnored                   = -212
	CodeInitIgnored                  = -213
	CodeTriggerDeadlock              = -214
	CodeArmDeadlock                  = -215
	CodeParameterError               = -220
	CodeSettingsConflict             = -221
	CodeDataOutOfRange               = -222
	CodeTooMuchData                  = -223
	CodeIllegalParameterValue        = -224
	CodeOutOfMemoryForOperation      = -225
	CodeListsNotSameLength           = -226
	CodeDataCorruptOrStale           = -230
	CodeDataQuestionable             = -231
	CodeInvalidFormat                = -232
	CodeInvalidVersion               = -233
	CodeHardwareError                = -240
	CodeHardwareMissing              = -241
	CodeMassStorageError             = -250
	CodeExpressionExecutionError     = -260
	CodeMacroExecutionError          = -270
	CodeProgramError                 = -280
	CodeMemoryUseError               = -290
	CodeDeviceSpecificError          = -300
	CodeSystemError                  = -310
	CodeMemoryError                  = -311
	CodeStorageFault                 = -320
	CodeOutOfMemory                  = -321
	CodeSelfTestFailed               = -330
	CodeCalibrationFailed            = -340
	CodeQueueOverflow                = -350
	CodeCommunicationError           = -360
	CodeParityError                  = -361
	CodeFramingError                 = -362
	CodeInputBufferOverrun           = -363
	CodeTimeOutError                 = -365
	CodeQueryError                   = -400
	CodeQueryInterrupted             = -410
	CodeQueryUnterminated            = -420
	CodeQueryDeadlocked              = -430
	CodeQueryUnterminatedIndefinite  = -440
	CodePowerOn                      = -500
	CodeUserRequest                  = -600
	CodeRequestControl               = -700
	CodeOperationComplete            = -800
)

var standardMessages = map[int]string{
	0:                                "No error",
	CodeCommandError:                 "Command error",
	CodeInvalidCharacter:             "Invalid character",
	CodeSyntaxError:                  "Syntax error",
	CodeInvalidSeparator:             "Invalid separator",
	CodeDataTypeError:                "Data type error",
	CodeGETNotAllowed:                "GET not allowed",
	CodeParameterNotAllowed:          "Parameter not allowed",
	CodeMissingParameter:             "Missing parameter",
	CodeCommandHeaderError:           "Command header error",
	CodeHeaderSeparatorError:         "Header separator error",
	CodeProgramMnemonicTooLong:       "Program mnemonic too long",
	CodeUndefinedHeader:              "Undefined header",
	CodeHeaderSuffixOutOfRange:       "Header suffix out of range",
	CodeUnexpectedNumberOfParameters: "Unexpected number of parameters",
	CodeNumericDataError:             "Numeric data error",
	CodeInvalidCharacterInNumber:     "Invalid character in number",
	CodeExponentTooLarge:             "Exponent too large",
	CodeTooManyDigits:                "Too many digits",
	CodeNumericDataNotAllowed:        "Numeric data not allowed",
	CodeSuffixError:                  "Suffix error",
	CodeInvalidSuffix:                "Invalid suffix",
	CodeSuffixTooLong:                "Suffix too long",
	CodeSuffixNotAllowed:             "Suffix not allowed",
	CodeCharacterDataError:           "Character data error",
	CodeInvalidCharacterData:         "Invalid character data",
	CodeCharacterDataTooLong:         "Character data too long",
	CodeCharacterDataNotAllowed:      "Character data not allowed",
	CodeStringDataError:              "String data error",
	CodeInvalidStringData:            "Invalid string data",
	CodeStringDataNotAllowed:         "String data not allowed",
	CodeBlockDataError:               "Block data error",
	CodeInvalidBlockData:             "Invalid block data",
	CodeBlockDataNotAllowed:          "Block data not allowed",
	CodeExpressionError:              "Expression error",
	CodeInvalidExpression:            "Invalid expression",
	CodeExpressionDataNotAllowed:     "Expression data not allowed",
	CodeMacroError:                   "Macro error",
	CodeExecutionError:               "Execution error",
	CodeInvalidWhileInLocal:          "Invalid while in local",
	CodeSettingsLostDueToRTL:         "Settings lost due to rtl",
	CodeCommandProtected:             "Command protected",
	CodeTriggerError:                 "Trigger error",
	CodeTriggerIgnored:               "Trigger ignored",
	CodeArmIgnored:                   "Arm ignored",
	CodeInitIgnored:                  "Init ignored",
	CodeTriggerDeadlock:              "Trigger deadlock",
	CodeArmDeadlock:                  "Arm deadlock",
	CodeParameterError:               "Parameter error",
	CodeSettingsConflict:             "Settings conflict",
	CodeDataOutOfRange:               "Data out of range",
	CodeTooMuchData:                  "Too much data",
	CodeIllegalParameterValue:        "Illegal parameter value",
	CodeOutOfMemoryForOperation:      "Out of memory",
	CodeListsNotSameLength:           "Lists not same length",
	CodeDataCorruptOrStale:           "Data corrupt or stale",
	CodeDataQuestionable:             "Data questionable",
	CodeInvalidFormat:                "Invalid format",
	CodeInvalidVersion:               "Invalid version",
	CodeHardwareError:                "Hardware error",
	CodeHardwareMissing:              "Hardware missing",
	CodeMassStorageError:             "Mass storage error",
	CodeExpressionExecutionError:     "Expression error",
	CodeMacroExecutionError:          "Macro error",
	CodeProgramError:                 "Program error",
	CodeMemoryUseError:               "Memory use error",
	CodeDeviceSpecificError:          "Device-specific error",
	CodeSystemError:                  "System error",
	CodeMemoryError:                  "Memory error",
	CodeStorageFault:                 "Storage fault",
	CodeOutOfMemory:                  "Out of memory",
	CodeSelfTestFailed:               "Self-test failed",
	CodeCalibrationFailed:            "Calibration failed",
	CodeQueueOverflow:                "Queue overflow",
	CodeCommunicationError:           "Communication error",
	CodeParityError:                  "Parity error in program message",
	CodeFramingError:                 "Framing error in program message",
	CodeInputBufferOverrun:           "Input buffer overrun",
	CodeTimeOutError:                 "Time out error",
	CodeQueryError:                   "Query error",
	CodeQueryInterrupted:             "Query INTERRUPTED",
	CodeQueryUnterminated:            "Query UNTERMINATED",
	CodeQueryDeadlocked:              "Query DEADLOCKED",
	CodeQueryUnterminatedIndefinite:  "Query UNTERMINATED after indefinite response",
	CodePowerOn:                      "Power on",
	CodeUserRequest:                  "User request",
	CodeRequestControl:               "Request control",
	CodeOperationComplete:            "Operation complete",
}

// StandardMessage returns the SCPI 1999.0 message for a standard code.
func StandardMessage(code int) (string, bool) {
	m, ok := standardMessages[code]
	return m, ok
}

// NewErrorEntry returns the entry for a standard code with its standard
// message. Unknown codes get an empty message.
func NewErrorEntry(code int) ErrorEntry {
	m, _ := StandardMessage(code)
	return ErrorEntry{Code: code, Message: m}
}
