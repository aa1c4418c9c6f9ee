// Package instrument sequences all bus activity with an IEEE 488.2 / SCPI
// instrument: program messages, responses, status polling, error queue
// draining and operation complete synchronization.
package instrument

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"i4.energy/across/scpictl/scpi"
)

// State is the position of a Session in its lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateIdle
	StateAwaitingResponse
	StateAwaitingCompletion
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateAwaitingCompletion:
		return "awaiting-completion"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	cmdClearStatus    = scpi.MustCommand(scpi.CmdClearStatus)
	cmdEventStatus    = scpi.MustCommand(scpi.CmdEventStatusRegisterQ)
	cmdIdentify       = scpi.MustCommand(scpi.CmdIdentifyQ)
	cmdOperationDone  = scpi.MustCommand(scpi.CmdOperationComplete)
	cmdOperationDoneQ = scpi.MustCommand(scpi.CmdOperationCompleteQ)
	cmdReset          = scpi.MustCommand(scpi.CmdReset)
	cmdStatusByte     = scpi.MustCommand(scpi.CmdStatusByteQ)
	cmdSelfTest       = scpi.MustCommand(scpi.CmdSelfTestQ)
	cmdWait           = scpi.MustCommand(scpi.CmdWait)
	cmdSystemVersion  = scpi.MustCommand(scpi.CmdSystemVersionQ)
	pathEventEnable   = scpi.MustPath(scpi.CmdEventStatusEnable)
	pathServiceEnable = scpi.MustPath(scpi.CmdServiceRequestEnable)
)

// statusSnapshotValid marks Session.status as holding a Status Byte.
const statusSnapshotValid = 1 << 8

// Session is an exclusive connection to one instrument.
//
// All operations are serialized: a Session is safe for use by multiple
// goroutines, but only one exchange with the instrument is in flight at a
// time. A single read loop goroutine, started by Open, is the only reader
// of the transport. It hands the input to the operation waiting for a
// response, which frames it into response messages.
type Session struct {
	// mu serializes operations and guards the fields below it.
	mu            sync.Mutex
	unreliable    bool
	eventEnable   byte
	serviceEnable byte

	transport Transport
	config    Config
	builder   scpi.Builder
	parser    scpi.Parser
	logger    *slog.Logger

	// chunks carries transport input from the read loop. Framing happens
	// in await, under mu, on pending.
	chunks  chan []byte
	pending []byte
	split   bufio.SplitFunc
	// done is closed by Close.
	done chan struct{}
	// loopDone is closed when the read loop exits; loopErr says why.
	loopDone chan struct{}
	loopErr  error

	closed atomic.Bool
	state  atomic.Int32
	seq    atomic.Uint64
	status atomic.Uint32
}

// Open dials the instrument and starts the read loop. Unless disabled in
// the config, it then sends *CLS followed by the configured *ESE and *SRE
// masks so that errors raised later are reported in the Status Byte.
func Open(ctx context.Context, config Config) (*Session, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	s := &Session{
		transport: transport,
		config:    config,
		builder: scpi.Builder{
			Terminator:    config.terminator,
			Form:          config.form,
			MaxParameters: config.maxParameters,
		},
		parser:   scpi.Parser{RequireTerminator: true},
		logger:   config.logger,
		chunks:   make(chan []byte, 16),
		split:    scpi.NewSplitter(config.terminator),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	if config.terminator != scpi.Terminator {
		s.parser.Terminator = config.terminator
	}
	s.state.Store(int32(StateIdle))

	go s.readLoop()

	if config.clearOnOpen {
		s.mu.Lock()
		err := s.init(ctx)
		s.mu.Unlock()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("initialize session: %w", err)
		}
	}
	return s, nil
}

func (s *Session) init(ctx context.Context) error {
	err := s.send(ctx,
		cmdClearStatus,
		scpi.NewCommand(pathEventEnable, scpi.Int(int64(s.config.eventEnable))),
		scpi.NewCommand(pathServiceEnable, scpi.Int(int64(s.config.serviceEnable))),
	)
	if err != nil {
		return err
	}
	s.eventEnable, s.serviceEnable = s.config.eventEnable, s.config.serviceEnable
	return nil
}

// readLoop copies transport input to chunks until the transport fails or
// the session is closed.
func (s *Session) readLoop() {
	defer close(s.loopDone)

	buf := make([]byte, 4096)
	for {
		n, err := s.transport.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- bytes.Clone(buf[:n]):
			case <-s.done:
				s.loopErr = ErrSessionClosed
				return
			}
		}
		if err != nil {
			if !s.closed.Load() {
				s.logger.Warn("transport lost", "error", err)
			}
			s.loopErr = err
			return
		}
	}
}

// Close shuts the session down. An operation in flight fails with
// ErrSessionClosed, as does every later one.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	close(s.done)
	err := s.transport.Close()
	<-s.loopDone
	s.state.Store(int32(StateDisconnected))
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Sequence returns the number of program messages written so far.
func (s *Session) Sequence() uint64 {
	return s.seq.Load()
}

// LastStatus returns the Status Byte read most recently and whether one has
// been read at all.
func (s *Session) LastStatus() (scpi.StatusByte, bool) {
	v := s.status.Load()
	return scpi.DecodeStatusByte(byte(v)), v&statusSnapshotValid != 0
}

// usable fails once the session is closed or its transport is gone.
func (s *Session) usable() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case <-s.loopDone:
		return s.lostErr()
	default:
	}
	return nil
}

// ready is usable plus the unreliable check every operation but Clear makes.
func (s *Session) ready() error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.unreliable {
		return ErrUnreliable
	}
	return nil
}

func (s *Session) lostErr() error {
	s.state.Store(int32(StateDisconnected))
	if s.closed.Load() || errors.Is(s.loopErr, ErrSessionClosed) {
		return ErrSessionClosed
	}
	return fmt.Errorf("%w: %w", ErrSessionClosed, s.loopErr)
}

// withTimeout applies the configured timeout when ctx carries no deadline.
func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.timeout)
}

func contextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrOperationTimeout
	}
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

// write sends one complete program message. A cancelled context stops it
// before any byte is written, never in the middle.
func (s *Session) write(ctx context.Context, msg []byte) error {
	if ctx.Err() != nil {
		return contextErr(ctx)
	}
	seq := s.seq.Add(1)
	s.logger.Debug("write", "seq", seq, "bytes", len(msg), "message", strings.TrimRight(string(msg), "\r\n"))

	if _, err := s.transport.Write(msg); err != nil {
		if s.closed.Load() {
			return ErrSessionClosed
		}
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// await returns the next response message.
func (s *Session) await(ctx context.Context) ([]byte, error) {
	for {
		if msg, err := s.frame(false); msg != nil || err != nil {
			return msg, err
		}

		select {
		case chunk := <-s.chunks:
			s.pending = append(s.pending, chunk...)
		case <-s.done:
			return nil, ErrSessionClosed
		case <-s.loopDone:
			// Input received before the loss is still framed. What is left
			// without a terminator is returned for the parser to reject.
			s.drain(true)
			if msg, err := s.frame(true); msg != nil || err != nil {
				return msg, err
			}
			return nil, s.lostErr()
		case <-ctx.Done():
			s.unreliable = true
			err := contextErr(ctx)
			s.logger.Warn("response not received", "seq", s.seq.Load(), "error", err)
			return nil, err
		}
	}
}

// frame cuts the next response message off pending. It returns nil and no
// error when more input is needed.
func (s *Session) frame(atEOF bool) ([]byte, error) {
	advance, token, err := s.split(s.pending, atEOF)
	if err != nil {
		s.pending = nil
		return nil, err
	}
	if advance == 0 || token == nil {
		if len(s.pending) > s.config.maxResponseSize {
			s.logger.Warn("response too long", "seq", s.seq.Load(), "bytes", len(s.pending))
			s.pending = nil
			s.unreliable = true
			return nil, ErrResponseTooLong
		}
		return nil, nil
	}

	msg := bytes.Clone(token)
	s.pending = s.pending[advance:]
	s.logger.Debug("read", "seq", s.seq.Load(), "bytes", len(msg))
	if len(msg) > s.config.maxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLong, len(msg))
	}
	return msg, nil
}

// drain moves input already received into pending, or drops it when keep
// is false. It returns the number of bytes dropped.
func (s *Session) drain(keep bool) int {
	n := 0
	if !keep {
		n, s.pending = len(s.pending), nil
	}
	for {
		select {
		case chunk := <-s.chunks:
			if keep {
				s.pending = append(s.pending, chunk...)
			} else {
				n += len(chunk)
			}
		default:
			return n
		}
	}
}

// send writes cmds as one program message that expects no response.
func (s *Session) send(ctx context.Context, cmds ...scpi.Command) error {
	msg, err := s.builder.Build(cmds...)
	if err != nil {
		return err
	}
	return s.write(ctx, msg)
}

// roundTrip writes msg and waits for its response message.
func (s *Session) roundTrip(ctx context.Context, msg []byte) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.state.CompareAndSwap(int32(StateIdle), int32(StateAwaitingResponse)) {
		defer s.state.CompareAndSwap(int32(StateAwaitingResponse), int32(StateIdle))
	}
	if err := s.write(ctx, msg); err != nil {
		return nil, err
	}
	return s.await(ctx)
}

func (s *Session) queryRaw(ctx context.Context, cmds ...scpi.Command) ([]byte, error) {
	msg, err := s.builder.Build(cmds...)
	if err != nil {
		return nil, err
	}
	return s.roundTrip(ctx, msg)
}

// queryRegister reads an 8-bit register such as *STB? or *ESR?.
func (s *Session) queryRegister(ctx context.Context, cmd scpi.Command) (byte, error) {
	raw, err := s.queryRaw(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return s.parseRegister(raw)
}

func (s *Session) parseRegister(raw []byte) (byte, error) {
	resp, err := s.parser.Parse(raw, scpi.ShapeScalar, scpi.KindNumeric)
	if err != nil {
		return 0, err
	}
	n, err := resp.Value().Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("%w: register value %d out of range", scpi.ErrMalformedValue, n)
	}
	return byte(n), nil
}

// finish runs the automatic error check after a successful operation.
func (s *Session) finish(ctx context.Context, err error) error {
	if err != nil || !s.config.autoCheckErrors {
		return err
	}
	stb, err := s.readStatusByte(ctx)
	if err != nil {
		return fmt.Errorf("status check: %w", err)
	}
	if !stb.NeedsErrorCheck() {
		return nil
	}
	return s.collectErrors(ctx, 0)
}

// collectErrors reads and clears the event status register, drains the
// error queue and reports both as an *InstrumentError. Event bits observed
// earlier by the caller are passed in seen.
func (s *Session) collectErrors(ctx context.Context, seen byte) error {
	esr, err := s.queryRegister(ctx, cmdEventStatus)
	if err != nil {
		return fmt.Errorf("status check: %w", err)
	}
	event := scpi.DecodeEventStatus(esr | seen)

	entries, err := s.errorQueue().Drain(ctx)
	if len(entries) == 0 && !event.HasError() {
		return err
	}

	ie := &InstrumentError{Event: event, Entries: entries}
	s.logger.Warn("instrument reported errors", "event", event.String(), "entries", len(entries))
	if err != nil {
		return errors.Join(ie, err)
	}
	return ie
}

func (s *Session) errorQueue() ErrorQueue {
	return ErrorQueue{
		Querier: lockedQuerier{s},
		Query:   s.config.errorQuery,
		Limit:   s.config.errorQueueLimit,
	}
}

// lockedQuerier queries on behalf of an operation that already holds mu.
type lockedQuerier struct {
	s *Session
}

func (q lockedQuerier) QueryRaw(ctx context.Context, cmd scpi.Command) ([]byte, error) {
	return q.s.queryRaw(ctx, cmd)
}

// SendCommand writes cmds as one program message. Queries are rejected; use
// SendQuery or Exec for them.
func (s *Session) SendCommand(ctx context.Context, cmds ...scpi.Command) error {
	for _, c := range cmds {
		if c.Query {
			return fmt.Errorf("%s is a query", c)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	return s.finish(ctx, s.send(ctx, cmds...))
}

// SendQuery writes cmd and parses the response with the given shape and
// element kind. When the automatic error check finds instrument errors the
// parsed response is returned together with an *InstrumentError.
func (s *Session) SendQuery(ctx context.Context, cmd scpi.Command, shape scpi.Shape, hint scpi.Kind) (scpi.Response, error) {
	if !cmd.Query {
		return scpi.Response{}, fmt.Errorf("%s is not a query", cmd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return scpi.Response{}, err
	}

	raw, err := s.queryRaw(ctx, cmd)
	if err != nil {
		return scpi.Response{}, err
	}
	resp, err := s.parser.Parse(raw, shape, hint)
	if err != nil {
		return scpi.Response{}, err
	}
	return resp, s.finish(ctx, nil)
}

// QueryRaw writes cmd and returns the response message as received,
// terminator included. It skips the automatic error check, which makes it
// suitable as the Querier of an ErrorQueue.
func (s *Session) QueryRaw(ctx context.Context, cmd scpi.Command) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.queryRaw(ctx, cmd)
}

// Exec sends a program message given as text, e.g. from an interactive
// shell. If the message holds a query the raw response is returned.
func (s *Session) Exec(ctx context.Context, message string) ([]byte, error) {
	cmds, err := scpi.ParseMessage([]byte(message))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	query := false
	for _, c := range cmds {
		query = query || c.Query
	}
	if !query {
		return nil, s.finish(ctx, s.send(ctx, cmds...))
	}
	raw, err := s.queryRaw(ctx, cmds...)
	if err != nil {
		return nil, err
	}
	return raw, s.finish(ctx, nil)
}

func (s *Session) QueryString(ctx context.Context, cmd scpi.Command) (string, error) {
	resp, err := s.SendQuery(ctx, cmd, scpi.ShapeScalar, scpi.KindString)
	return resp.Value().Text, err
}

func (s *Session) QueryFloat(ctx context.Context, cmd scpi.Command) (float64, error) {
	resp, err := s.SendQuery(ctx, cmd, scpi.ShapeScalar, scpi.KindNumeric)
	if len(resp.Values) == 0 {
		return 0, err
	}
	f, convErr := resp.Value().Float64()
	if convErr != nil {
		return 0, convErr
	}
	return f, err
}

func (s *Session) QueryInt(ctx context.Context, cmd scpi.Command) (int64, error) {
	resp, err := s.SendQuery(ctx, cmd, scpi.ShapeScalar, scpi.KindNumeric)
	if len(resp.Values) == 0 {
		return 0, err
	}
	n, convErr := resp.Value().Int64()
	if convErr != nil {
		return 0, convErr
	}
	return n, err
}

func (s *Session) QueryBool(ctx context.Context, cmd scpi.Command) (bool, error) {
	resp, err := s.SendQuery(ctx, cmd, scpi.ShapeScalar, scpi.KindBoolean)
	return resp.Value().Bool, err
}

// QueryBlock returns the payload of a definite or indefinite block
// response.
func (s *Session) QueryBlock(ctx context.Context, cmd scpi.Command) ([]byte, error) {
	resp, err := s.SendQuery(ctx, cmd, scpi.ShapeBlock, scpi.KindBlock)
	return resp.Block(), err
}

// Identify sends *IDN? and returns the response text without terminator.
func (s *Session) Identify(ctx context.Context) (string, error) {
	return s.queryText(ctx, cmdIdentify)
}

// queryText sends cmd and decodes the response as arbitrary ASCII.
func (s *Session) queryText(ctx context.Context, cmd scpi.Command) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return "", err
	}
	raw, err := s.queryRaw(ctx, cmd)
	if err != nil {
		return "", err
	}
	text, err := s.parser.ParseText(raw)
	if err != nil {
		return "", err
	}
	return text, s.finish(ctx, nil)
}

// Identity is Identify decoded into its four fields.
func (s *Session) Identity(ctx context.Context) (scpi.Identity, error) {
	idn, err := s.Identify(ctx)
	if idn == "" {
		return scpi.Identity{}, err
	}
	id, parseErr := scpi.ParseIdentity([]byte(idn))
	if parseErr != nil {
		return scpi.Identity{}, parseErr
	}
	return id, err
}

// Version returns the SCPI version the instrument complies with, e.g.
// "1999.0".
func (s *Session) Version(ctx context.Context) (string, error) {
	return s.queryText(ctx, cmdSystemVersion)
}

// Reset sends *RST.
func (s *Session) Reset(ctx context.Context) error {
	return s.SendCommand(ctx, cmdReset)
}

// Wait sends *WAI. The instrument holds later commands until pending
// operations are complete; the controller does not block.
func (s *Session) Wait(ctx context.Context) error {
	return s.SendCommand(ctx, cmdWait)
}

// SelfTest runs *TST? and returns the result code. Zero means passed.
func (s *Session) SelfTest(ctx context.Context) (int, error) {
	n, err := s.QueryInt(ctx, cmdSelfTest)
	return int(n), err
}

// Clear brings the session back to a known state after a timeout or an
// interrupted exchange. It sends a device clear when the transport can,
// drops responses already received and sends *CLS. It is the only
// operation allowed on an unreliable session.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	switch t := s.transport.(type) {
	case DeviceClearer:
		if err := t.DeviceClear(ctx); err != nil {
			return &TransportError{Op: "device clear", Err: err}
		}
	case InBandController:
		if err := t.RequestDeviceClear(ctx); err != nil {
			return &TransportError{Op: "device clear", Err: err}
		}
	}

	// Partial messages go too, so the next response is framed from its
	// first byte.
	if n := s.drain(false); n > 0 {
		s.logger.Debug("discarded stale input", "bytes", n)
	}
	if err := s.send(ctx, cmdClearStatus); err != nil {
		return err
	}
	s.unreliable = false
	return nil
}

// CheckErrors drains the error queue.
func (s *Session) CheckErrors(ctx context.Context) ([]scpi.ErrorEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.errorQueue().Drain(ctx)
}
