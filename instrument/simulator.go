package instrument

import (
	"context"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"sync"

	"i4.energy/across/scpictl/scpi"
)

// HandlerFunc answers one command on the Simulator. The response is sent
// for queries only. A nonzero code is queued as an instrument error with
// its standard message.
type HandlerFunc func(cmd scpi.Command) (response string, code int)

// simRegister is one SCPI status structure, without transition filters.
type simRegister struct {
	condition, event, enable uint16
}

type simHandler struct {
	pattern string
	query   bool
	fn      HandlerFunc
}

// DefaultSimulatorIdentity is the *IDN? answer of a new Simulator.
const DefaultSimulatorIdentity = "ACME,Model1,SN123,1.0"

// Simulator is an in-memory IEEE 488.2 instrument. It implements Transport
// and Dialer, so a Session can be opened on it without hardware.
//
// It models the Status Byte, the Standard Event Status Register with its
// enable mask, the service request enable mask, the SCPI operation and
// questionable status structures and the SCPI error queue, including the
// -350 overflow entry. Settings can be saved to and recalled from ten
// registers. Pending operations complete after a configurable number of
// *ESR? polls. Unknown headers raise -113.
//
// Reads block until a response is queued, like a real port.
type Simulator struct {
	mu sync.Mutex
	// readable is signalled when output is queued or the simulator closes.
	readable *sync.Cond
	output   [][]byte
	rest     []byte
	closed   bool
	input    []byte
	mav      bool

	identity      string
	version       string
	selfTest      int
	esr, ese, sre byte
	summary       byte
	pre           uint16
	psc           bool
	options       string
	saved         map[int]map[string]string
	regs          [2]simRegister
	errors        []scpi.ErrorEntry
	queueDepth    int
	stuckQueue    bool
	opcDelay      int
	opcArmed      bool
	opcPolls      int
	neverComplete bool
	handlers      []simHandler
	settings      map[string]string
	received      []string
	counts        map[string]int
}

// NewSimulator returns an idle instrument with an empty error queue of
// depth 10.
func NewSimulator() *Simulator {
	s := &Simulator{
		identity:   DefaultSimulatorIdentity,
		version:    "1999.0",
		queueDepth: 10,
		options:    "0",
		settings:   make(map[string]string),
		saved:      make(map[int]map[string]string),
		counts:     make(map[string]int),
	}
	s.readable = sync.NewCond(&s.mu)
	return s
}

// Dial returns the simulator itself.
func (s *Simulator) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	return s, nil
}

// SetIdentity changes the *IDN? answer.
func (s *Simulator) SetIdentity(idn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = idn
}

// SetOptions changes the *OPT? answer. No options answer "0".
func (s *Simulator) SetOptions(opts ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = "0"
	if len(opts) > 0 {
		s.options = strings.Join(opts, string(scpi.DataSeparator))
	}
}

func (s *Simulator) SetSelfTestResult(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfTest = code
}

// SetQueueDepth sets how many entries the error queue holds before the
// newest is replaced by -350.
func (s *Simulator) SetQueueDepth(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueDepth = n
}

// StickErrorQueue makes :SYSTem:ERRor? answer with an error forever, as a
// faulty instrument might.
func (s *Simulator) StickErrorQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuckQueue = true
}

// CompleteAfter makes pending operations finish on the n-th *ESR? poll
// after *OPC. Zero completes them at once.
func (s *Simulator) CompleteAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opcDelay = n
	s.neverComplete = false
}

// NeverComplete keeps the pending operation running forever: *OPC never
// sets the OPC bit and *OPC? is never answered.
func (s *Simulator) NeverComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neverComplete = true
}

// SetSummary sets the questionable (bit 3) and operation (bit 7) summary
// bits and the device defined bits 0 and 1 of the Status Byte.
func (s *Simulator) SetSummary(bits byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = bits & (byte(scpi.StatusQuestionable) | byte(scpi.StatusOperation) | 0x03)
}

// SetCondition sets the condition register of reg. Bits going from 0 to 1
// are latched into the event register.
func (s *Simulator) SetCondition(reg StatusRegister, bits uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &s.regs[reg]
	r.event |= bits &^ r.condition
	r.condition = bits
}

// PushError queues an instrument error and sets its event bit.
func (s *Simulator) PushError(code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushError(scpi.ErrorEntry{Code: code, Message: message})
}

// Handle registers fn for commands matching pattern, written in SCPI
// notation such as "MEASure:VOLTage[:DC]?". A trailing '?' selects the
// query form. Handlers take precedence over the built-in commands.
func (s *Simulator) Handle(pattern string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, simHandler{
		pattern: pattern,
		query:   strings.HasSuffix(pattern, string(scpi.QueryMarker)),
		fn:      fn,
	})
}

// SendData queues raw bytes to be read from the transport, unrelated to
// any command. It simulates garbage or unsolicited output.
func (s *Simulator) SendData(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond([]byte(data))
}

// Received returns the program messages written so far, terminators
// removed.
func (s *Simulator) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Count returns how often a command was executed. Subsystem headers are
// keyed by their short form, so "SYSTem:ERRor?" and ":SYST:ERR?" count
// together.
func (s *Simulator) Count(header string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, err := scpi.ParseCommand(header)
	if err != nil {
		return 0
	}
	return s.counts[countKey(cmd)]
}

// Setting returns the last value written by a set command without a
// handler, e.g. Setting("SOUR:VOLT") after "SOURce:VOLTage 5". Headers
// written all in upper case are keyed as given.
func (s *Simulator) Setting(header string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, err := scpi.ParseCommand(header)
	if err != nil {
		return "", false
	}
	v, ok := s.settings[settingKey(cmd.Path)]
	return v, ok
}

// Read returns queued output. After Close it drains what is left and then
// reports io.EOF.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.rest) == 0 && len(s.output) == 0 && !s.closed {
		s.readable.Wait()
	}
	if len(s.rest) == 0 {
		if len(s.output) == 0 {
			return 0, io.EOF
		}
		s.rest, s.output = s.output[0], s.output[1:]
	}
	n := copy(p, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}

// Write accepts program message bytes. Complete messages are executed in
// order; a partial message waits for the rest.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}

	s.input = append(s.input, p...)
	for {
		advance, msg, err := scpi.Splitter(s.input, false)
		if err != nil || advance == 0 {
			break
		}
		s.input = s.input[advance:]
		s.execute(msg)
	}
	return len(p), nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.readable.Broadcast()
	return nil
}

func (s *Simulator) respond(data []byte) {
	if s.closed {
		return
	}
	s.mav = true
	s.output = append(s.output, data)
	s.readable.Signal()
}

func (s *Simulator) execute(msg []byte) {
	s.mav = false
	s.received = append(s.received, strings.TrimRight(string(msg), "\r\n"))

	cmds, err := scpi.ParseMessage(msg)
	if err != nil {
		s.pushError(scpi.NewErrorEntry(scpi.CodeSyntaxError))
		return
	}

	var answers []string
	for _, cmd := range cmds {
		s.counts[countKey(cmd)]++
		answer, ok := s.dispatch(cmd)
		if !ok {
			// Once a query goes unanswered the rest of the message is not
			// answered either, as with an instrument stuck executing.
			answers = nil
			break
		}
		if cmd.Query {
			answers = append(answers, answer)
		}
	}
	if len(answers) > 0 {
		s.respond([]byte(strings.Join(answers, string(scpi.UnitSeparator)) + scpi.Terminator))
	}
}

// dispatch executes cmd. ok is false when a query gets no answer.
func (s *Simulator) dispatch(cmd scpi.Command) (string, bool) {
	for _, h := range s.handlers {
		if h.query == cmd.Query && cmd.Path.Matches(h.pattern) {
			resp, code := h.fn(cmd)
			if code != 0 {
				s.pushError(scpi.NewErrorEntry(code))
			}
			return resp, true
		}
	}

	p := cmd.Path
	if reg, node, ok := statusNode(p); ok {
		return s.dispatchStatus(cmd, &s.regs[reg], node)
	}

	switch {
	case p.Matches("*IDN") && cmd.Query:
		return s.identity, true

	case p.Matches("*RST") && !cmd.Query:
		clear(s.settings)
		s.opcArmed = false

	case p.Matches("*CLS") && !cmd.Query:
		s.esr = 0
		s.errors = nil
		s.opcArmed = false
		for i := range s.regs {
			s.regs[i].event = 0
		}

	case p.Matches("*ESE"):
		if cmd.Query {
			return strconv.Itoa(int(s.ese)), true
		}
		s.ese = s.register(cmd)

	case p.Matches("*SRE"):
		if cmd.Query {
			return strconv.Itoa(int(s.sre)), true
		}
		s.sre = s.register(cmd) &^ byte(scpi.StatusRequestService)

	case p.Matches("*ESR") && cmd.Query:
		if s.opcArmed {
			s.opcPolls++
			if !s.neverComplete && s.opcPolls >= s.opcDelay {
				s.esr |= byte(scpi.EventOperationComplete)
				s.opcArmed = false
			}
		}
		v := s.esr
		s.esr = 0
		return strconv.Itoa(int(v)), true

	case p.Matches("*OPC"):
		if cmd.Query {
			return "1", !s.neverComplete
		}
		s.opcArmed, s.opcPolls = true, 0
		if !s.neverComplete && s.opcDelay <= 0 {
			s.esr |= byte(scpi.EventOperationComplete)
			s.opcArmed = false
		}

	case p.Matches("*STB") && cmd.Query:
		return strconv.Itoa(int(s.statusByte(false))), true

	case p.Matches("*TST") && cmd.Query:
		return strconv.Itoa(s.selfTest), true

	case p.Matches("*WAI") && !cmd.Query:

	case p.Matches("*TRG") && !cmd.Query:

	case p.Matches("*OPT") && cmd.Query:
		return s.options, true

	case p.Matches("*CAL") && cmd.Query:
		return "0", true

	case p.Matches("*PSC"):
		if cmd.Query {
			return boolResponse(s.psc), true
		}
		if n, ok := s.intParam(cmd, 0xFFFF); ok {
			s.psc = n != 0
		}

	case p.Matches("*PRE"):
		if cmd.Query {
			return strconv.Itoa(int(s.pre)), true
		}
		if n, ok := s.intParam(cmd, 0xFFFF); ok {
			s.pre = uint16(n)
		}

	case p.Matches("*IST") && cmd.Query:
		return boolResponse(uint16(s.statusByte(false))&s.pre != 0), true

	case p.Matches("*SAV") && !cmd.Query:
		if n, ok := s.intParam(cmd, simRegisters-1); ok {
			s.saved[n] = maps.Clone(s.settings)
		}

	case p.Matches("*RCL") && !cmd.Query:
		if n, ok := s.intParam(cmd, simRegisters-1); ok {
			saved, found := s.saved[n]
			if !found {
				s.pushError(scpi.NewErrorEntry(scpi.CodeSettingsConflict))
				break
			}
			s.settings = maps.Clone(saved)
		}

	case p.Matches("*SDS") && !cmd.Query:
		if n, ok := s.intParam(cmd, simRegisters-1); ok {
			s.saved[n] = make(map[string]string)
		}

	case p.Matches("SYSTem:ERRor[:NEXT]") && cmd.Query:
		return s.popError().String(), true

	case p.Matches("SYSTem:VERSion") && cmd.Query:
		return s.version, true

	case p.Matches("STATus:PRESet") && !cmd.Query:
		for i := range s.regs {
			s.regs[i].enable = 0
		}

	case !cmd.Query && len(cmd.Params) > 0 && !p.IsCommon():
		parts := make([]string, len(cmd.Params))
		for i, v := range cmd.Params {
			b, _ := scpi.Encode(v)
			parts[i] = string(b)
		}
		s.settings[settingKey(p)] = strings.Join(parts, string(scpi.DataSeparator))

	case cmd.Query && !p.IsCommon():
		if v, ok := s.settings[settingKey(p)]; ok {
			return v, true
		}
		s.pushError(scpi.NewErrorEntry(scpi.CodeUndefinedHeader))
		return "", false

	default:
		s.pushError(scpi.NewErrorEntry(scpi.CodeUndefinedHeader))
		return "", !cmd.Query
	}
	return "", true
}

func (s *Simulator) register(cmd scpi.Command) byte {
	n, _ := s.intParam(cmd, 255)
	return byte(n)
}

// simRegisters is the number of *SAV/*RCL setting registers.
const simRegisters = 10

// intParam returns the single integer parameter of cmd, which must lie in
// 0..limit. Anything else queues an error.
func (s *Simulator) intParam(cmd scpi.Command, limit int) (int, bool) {
	if len(cmd.Params) != 1 {
		s.pushError(scpi.NewErrorEntry(scpi.CodeMissingParameter))
		return 0, false
	}
	n, err := cmd.Params[0].Int64()
	if err != nil || n < 0 || n > int64(limit) {
		s.pushError(scpi.NewErrorEntry(scpi.CodeDataOutOfRange))
		return 0, false
	}
	return int(n), true
}

func boolResponse(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// statusNode maps STATus:OPERation and STATus:QUEStionable headers to the
// register and the node addressed.
func statusNode(p scpi.Path) (StatusRegister, string, bool) {
	roots := map[StatusRegister]string{
		OperationStatus:    "STATus:OPERation",
		QuestionableStatus: "STATus:QUEStionable",
	}
	for reg, root := range roots {
		for _, node := range []string{"[:EVENt]", ":CONDition", ":ENABle"} {
			if p.Matches(root + node) {
				return reg, node, true
			}
		}
	}
	return 0, "", false
}

func (s *Simulator) dispatchStatus(cmd scpi.Command, r *simRegister, node string) (string, bool) {
	switch {
	case node == "[:EVENt]" && cmd.Query:
		v := r.event
		r.event = 0
		return strconv.Itoa(int(v)), true
	case node == ":CONDition" && cmd.Query:
		return strconv.Itoa(int(r.condition)), true
	case node == ":ENABle" && cmd.Query:
		return strconv.Itoa(int(r.enable)), true
	case node == ":ENABle" && len(cmd.Params) == 1:
		n, err := cmd.Params[0].Int64()
		if err != nil || n < 0 || n > 0xFFFF {
			s.pushError(scpi.NewErrorEntry(scpi.CodeDataOutOfRange))
			return "", true
		}
		r.enable = uint16(n)
		return "", true
	case node == ":ENABle":
		s.pushError(scpi.NewErrorEntry(scpi.CodeMissingParameter))
		return "", true
	}
	s.pushError(scpi.NewErrorEntry(scpi.CodeUndefinedHeader))
	return "", !cmd.Query
}

// statusByte computes the Status Byte. A serial poll reports RQS, *STB?
// reports MSS; both are the same summary here.
func (s *Simulator) statusByte(mav bool) byte {
	b := s.summary
	if r := s.regs[QuestionableStatus]; r.event&r.enable != 0 {
		b |= byte(scpi.StatusQuestionable)
	}
	if r := s.regs[OperationStatus]; r.event&r.enable != 0 {
		b |= byte(scpi.StatusOperation)
	}
	if len(s.errors) > 0 {
		b |= byte(scpi.StatusErrorQueue)
	}
	if mav {
		b |= byte(scpi.StatusMessageAvailable)
	}
	if s.esr&s.ese != 0 {
		b |= byte(scpi.StatusEventStatus)
	}
	if b&s.sre != 0 {
		b |= byte(scpi.StatusRequestService)
	}
	return b
}

func (s *Simulator) pushError(e scpi.ErrorEntry) {
	s.esr |= byte(e.Class().Event())
	if s.queueDepth > 0 && len(s.errors) >= s.queueDepth {
		s.errors[len(s.errors)-1] = scpi.NewErrorEntry(scpi.CodeQueueOverflow)
		return
	}
	s.errors = append(s.errors, e)
}

func (s *Simulator) popError() scpi.ErrorEntry {
	if s.stuckQueue {
		return scpi.NewErrorEntry(scpi.CodeSystemError)
	}
	if len(s.errors) == 0 {
		return scpi.NoError
	}
	e := s.errors[0]
	s.errors = s.errors[1:]
	return e
}

func settingKey(p scpi.Path) string {
	segs := p.Segments()
	parts := make([]string, len(segs))
	for i, seg := range segs {
		parts[i] = seg.Short()
		if seg.HasSuffix && seg.Suffix != 1 {
			parts[i] += strconv.Itoa(seg.Suffix)
		}
	}
	return strings.Join(parts, string(scpi.PathSeparator))
}

func countKey(cmd scpi.Command) string {
	key := cmd.Path.Render(scpi.FormAsGiven)
	if !cmd.Path.IsCommon() {
		key = string(scpi.PathSeparator) + settingKey(cmd.Path)
	}
	if cmd.Query {
		key += string(scpi.QueryMarker)
	}
	return key
}

// PollingSimulator is a Simulator whose transport also supports serial
// poll and device clear, like a GPIB or HiSLIP connection.
type PollingSimulator struct {
	*Simulator
}

var (
	_ SerialPoller  = PollingSimulator{}
	_ DeviceClearer = PollingSimulator{}
)

// Dial returns the wrapper so the Session sees the extra capabilities.
func (p PollingSimulator) Dial(ctx context.Context) (Transport, error) {
	if _, err := p.Simulator.Dial(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// SerialPoll returns the Status Byte. MAV is set from the moment a
// response is queued until the next program message arrives.
func (p PollingSimulator) SerialPoll(ctx context.Context) (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.statusByte(p.mav), nil
}

// DeviceClear drops unread output and aborts the pending operation.
func (p PollingSimulator) DeviceClear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	p.output, p.rest = nil, nil
	p.input = nil
	p.mav = false
	p.opcArmed = false
	return nil
}

// String describes the simulator for logs.
func (s *Simulator) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("simulator %q", s.identity)
}
