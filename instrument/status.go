package instrument

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/scpictl/scpi"
)

// ReadStatusByte reads the Status Byte and records it as the session's
// snapshot. A transport serial poll is preferred, then an adapter serial
// poll, then the *STB? query.
//
// A serial poll reports RQS in bit 6 and clears it; *STB? reports MSS
// instead and leaves it set.
func (s *Session) ReadStatusByte(ctx context.Context) (scpi.StatusByte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return scpi.StatusByte{}, err
	}
	return s.readStatusByte(ctx)
}

func (s *Session) readStatusByte(ctx context.Context) (scpi.StatusByte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		b   byte
		err error
	)
	switch t := s.transport.(type) {
	case SerialPoller:
		if b, err = t.SerialPoll(ctx); err != nil {
			return scpi.StatusByte{}, &TransportError{Op: "serial poll", Err: err}
		}

	case InBandController:
		if err := t.RequestSerialPoll(ctx); err != nil {
			return scpi.StatusByte{}, &TransportError{Op: "serial poll", Err: err}
		}
		raw, err := s.await(ctx)
		if err != nil {
			return scpi.StatusByte{}, err
		}
		if b, err = s.parseRegister(raw); err != nil {
			return scpi.StatusByte{}, err
		}

	default:
		if b, err = s.queryRegister(ctx, cmdStatusByte); err != nil {
			return scpi.StatusByte{}, err
		}
	}

	s.status.Store(uint32(b) | statusSnapshotValid)
	return scpi.DecodeStatusByte(b), nil
}

// EventStatus reads and thereby clears the Standard Event Status Register.
func (s *Session) EventStatus(ctx context.Context) (scpi.EventStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return scpi.EventStatus{}, err
	}
	b, err := s.queryRegister(ctx, cmdEventStatus)
	if err != nil {
		return scpi.EventStatus{}, err
	}
	return scpi.DecodeEventStatus(b), nil
}

// SetEventStatusEnable writes the *ESE mask. Only enabled events set ESB
// in the Status Byte.
func (s *Session) SetEventStatusEnable(ctx context.Context, mask byte) error {
	return s.setEnable(ctx, pathEventEnable, mask, &s.eventEnable)
}

// SetServiceRequestEnable writes the *SRE mask. Only enabled summary bits
// raise a service request.
func (s *Session) SetServiceRequestEnable(ctx context.Context, mask byte) error {
	return s.setEnable(ctx, pathServiceEnable, mask, &s.serviceEnable)
}

func (s *Session) setEnable(ctx context.Context, path scpi.Path, mask byte, dst *byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.send(ctx, scpi.NewCommand(path, scpi.Int(int64(mask)))); err != nil {
		return err
	}
	*dst = mask
	return s.finish(ctx, nil)
}

// EnableMasks returns the *ESE and *SRE values last written or read by
// this session. QueryEnableMasks asks the instrument instead.
func (s *Session) EnableMasks() (event, service byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventEnable, s.serviceEnable
}

// WaitServiceRequest polls the Status Byte until the instrument requests
// service or timeout elapses on the session clock.
func (s *Session) WaitServiceRequest(ctx context.Context, timeout time.Duration) (scpi.StatusByte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return scpi.StatusByte{}, err
	}
	if timeout <= 0 {
		timeout = s.config.timeout
	}

	var stb scpi.StatusByte
	err := s.pollUntil(ctx, timeout, func(ctx context.Context) (bool, error) {
		var err error
		stb, err = s.readStatusByte(ctx)
		return stb.RequestService, err
	})
	if err != nil {
		return stb, fmt.Errorf("wait for service request: %w", err)
	}
	return stb, nil
}

// StatusRegister selects one of the SCPI status structures summarized in the
// Status Byte.
type StatusRegister int

const (
	// OperationStatus is summarized in bit 7 (OPER).
	OperationStatus StatusRegister = iota
	// QuestionableStatus is summarized in bit 3 (QUES).
	QuestionableStatus
)

func (r StatusRegister) String() string {
	switch r {
	case OperationStatus:
		return "operation"
	case QuestionableStatus:
		return "questionable"
	default:
		return fmt.Sprintf("StatusRegister(%d)", int(r))
	}
}

type statusCommands struct {
	event     scpi.Command
	condition scpi.Command
	enable    scpi.Path
}

var statusRegisters = map[StatusRegister]statusCommands{
	OperationStatus: {
		event:     scpi.MustCommand(scpi.CmdStatusOperationQ),
		condition: scpi.MustCommand(scpi.CmdStatusOperationCondQ),
		enable:    scpi.MustPath(scpi.CmdStatusOperationEnable),
	},
	QuestionableStatus: {
		event:     scpi.MustCommand(scpi.CmdStatusQuestionableQ),
		condition: scpi.MustCommand(scpi.CmdStatusQuestCondQ),
		enable:    scpi.MustPath(scpi.CmdStatusQuestEnable),
	},
}

var cmdStatusPreset = scpi.MustCommand(scpi.CmdStatusPreset)

func (r StatusRegister) commands() (statusCommands, error) {
	c, ok := statusRegisters[r]
	if !ok {
		return statusCommands{}, fmt.Errorf("unknown status register %s", r)
	}
	return c, nil
}

// StatusEvent reads and thereby clears the event register of reg.
func (s *Session) StatusEvent(ctx context.Context, reg StatusRegister) (uint16, error) {
	c, err := reg.commands()
	if err != nil {
		return 0, err
	}
	return s.queryStatusRegister(ctx, c.event)
}

// StatusCondition reads the condition register of reg. Reading does not
// change it.
func (s *Session) StatusCondition(ctx context.Context, reg StatusRegister) (uint16, error) {
	c, err := reg.commands()
	if err != nil {
		return 0, err
	}
	return s.queryStatusRegister(ctx, c.condition)
}

// SetStatusEnable writes the enable mask of reg. Enabled event bits set the
// register's summary bit in the Status Byte.
func (s *Session) SetStatusEnable(ctx context.Context, reg StatusRegister, mask uint16) error {
	c, err := reg.commands()
	if err != nil {
		return err
	}
	return s.SendCommand(ctx, scpi.NewCommand(c.enable, scpi.Int(int64(mask))))
}

// PresetStatus sends :STATus:PRESet, which restores the SCPI enable masks to
// their defaults. The IEEE 488.2 *ESE and *SRE masks are not affected.
func (s *Session) PresetStatus(ctx context.Context) error {
	return s.SendCommand(ctx, cmdStatusPreset)
}

func (s *Session) queryStatusRegister(ctx context.Context, cmd scpi.Command) (uint16, error) {
	n, err := s.QueryInt(ctx, cmd)
	if n < 0 || n > 0xFFFF {
		return 0, fmt.Errorf("%w: register value %d out of range", scpi.ErrMalformedValue, n)
	}
	return uint16(n), err
}
