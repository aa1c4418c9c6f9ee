// Package scpi implements the wire layer of IEEE 488.2 and SCPI 1999.0:
// program data encoding and decoding, program message building, response
// parsing and framing, status register bit semantics and the standard
// error code table.
//
// Everything in this package is pure. It never touches a transport; the
// instrument package sequences bus activity on top of it.
package scpi

const (
	// Message framing
	Terminator = "\n"
	CRLF       = "\r\n"

	HeaderSeparator = ' '
	DataSeparator   = ','
	UnitSeparator   = ';'
	PathSeparator   = ':'
	QueryMarker     = '?'
	CommonPrefix    = '*'
	BlockPrefix     = '#'

	// IEEE 488.2 mandatory common commands
	CmdClearStatus           = "*CLS"
	CmdEventStatusEnable     = "*ESE"
	CmdEventStatusEnableQ    = "*ESE?"
	CmdEventStatusRegisterQ  = "*ESR?"
	CmdIdentifyQ             = "*IDN?"
	CmdOperationComplete     = "*OPC"
	CmdOperationCompleteQ    = "*OPC?"
	CmdReset                 = "*RST"
	CmdServiceRequestEnable  = "*SRE"
	CmdServiceRequestEnableQ = "*SRE?"
	CmdStatusByteQ           = "*STB?"
	CmdSelfTestQ             = "*TST?"
	CmdWait                  = "*WAI"

	// IEEE 488.2 optional common commands
	CmdCalibrateQ                = "*CAL?"
	CmdIndividualStatusQ         = "*IST?"
	CmdOptionsQ                  = "*OPT?"
	CmdParallelPollEnable        = "*PRE"
	CmdParallelPollEnableQ       = "*PRE?"
	CmdPowerOnStatusClear        = "*PSC"
	CmdPowerOnStatusClearQ       = "*PSC?"
	CmdRecall                    = "*RCL"
	CmdSave                      = "*SAV"
	CmdSaveDefaultDeviceSettings = "*SDS"
	CmdTrigger                   = "*TRG"

	// SCPI 1999.0 mandatory commands
	CmdSystemErrorQ          = ":SYSTem:ERRor?"
	CmdSystemErrorNextQ      = ":SYSTem:ERRor:NEXT?"
	CmdSystemVersionQ        = ":SYSTem:VERSion?"
	CmdStatusOperationQ      = ":STATus:OPERation?"
	CmdStatusOperationCondQ  = ":STATus:OPERation:CONDition?"
	CmdStatusOperationEnable = ":STATus:OPERation:ENABle"
	CmdStatusQuestionableQ   = ":STATus:QUEStionable?"
	CmdStatusQuestCondQ      = ":STATus:QUEStionable:CONDition?"
	CmdStatusQuestEnable     = ":STATus:QUEStionable:ENABle"
	CmdStatusPreset          = ":STATus:PRESet"

	// Special numeric tokens
	TokenNaN     = "NAN"
	TokenInf     = "INF"
	TokenNegInf  = "NINF"
	TokenMin     = "MIN"
	TokenMax     = "MAX"
	TokenDefault = "DEF"
	TokenUp      = "UP"
	TokenDown    = "DOWN"

	// Boolean program data
	TokenOn  = "ON"
	TokenOff = "OFF"
)

// IEEE 488.2 response sentinels for non-finite numeric results.
const (
	ResponseInf    = 9.9e37
	ResponseNegInf = -9.9e37
	ResponseNaN    = 9.91e37
)
