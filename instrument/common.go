package instrument

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/scpictl/scpi"
)

// IEEE 488.2 optional common commands. Instruments that lack one answer
// with -113, which surfaces as an *InstrumentError.
var (
	cmdCalibrate          = scpi.MustCommand(scpi.CmdCalibrateQ)
	cmdIndividualStatus   = scpi.MustCommand(scpi.CmdIndividualStatusQ)
	cmdOptions            = scpi.MustCommand(scpi.CmdOptionsQ)
	cmdParallelPollQ      = scpi.MustCommand(scpi.CmdParallelPollEnableQ)
	cmdPowerOnClearQ      = scpi.MustCommand(scpi.CmdPowerOnStatusClearQ)
	cmdTrigger            = scpi.MustCommand(scpi.CmdTrigger)
	cmdEventEnableQ       = scpi.MustCommand(scpi.CmdEventStatusEnableQ)
	cmdServiceEnableQ     = scpi.MustCommand(scpi.CmdServiceRequestEnableQ)
	pathParallelPoll      = scpi.MustPath(scpi.CmdParallelPollEnable)
	pathPowerOnClear      = scpi.MustPath(scpi.CmdPowerOnStatusClear)
	pathRecall            = scpi.MustPath(scpi.CmdRecall)
	pathSave              = scpi.MustPath(scpi.CmdSave)
	pathSaveDefaultDevice = scpi.MustPath(scpi.CmdSaveDefaultDeviceSettings)
)

// Options returns the installed options reported by *OPT?. Positions the
// instrument reports as "0" are left out, so an instrument without options
// yields an empty slice.
func (s *Session) Options(ctx context.Context) ([]string, error) {
	text, err := s.queryText(ctx, cmdOptions)
	if text == "" {
		return nil, err
	}
	var opts []string
	for _, f := range strings.Split(text, string(scpi.DataSeparator)) {
		if f = strings.TrimSpace(f); f != "" && f != "0" {
			opts = append(opts, f)
		}
	}
	return opts, err
}

// Trigger sends *TRG, the in-band equivalent of a group execute trigger.
func (s *Session) Trigger(ctx context.Context) error {
	return s.SendCommand(ctx, cmdTrigger)
}

// Save stores the current settings in register n with *SAV.
func (s *Session) Save(ctx context.Context, n int) error {
	return s.sendRegister(ctx, pathSave, n)
}

// Recall restores the settings saved in register n with *RCL.
func (s *Session) Recall(ctx context.Context, n int) error {
	return s.sendRegister(ctx, pathRecall, n)
}

// SaveDefaults restores register n to its factory contents with *SDS.
func (s *Session) SaveDefaults(ctx context.Context, n int) error {
	return s.sendRegister(ctx, pathSaveDefaultDevice, n)
}

func (s *Session) sendRegister(ctx context.Context, path scpi.Path, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: register %d", scpi.ErrMalformedValue, n)
	}
	return s.SendCommand(ctx, scpi.NewCommand(path, scpi.Int(int64(n))))
}

// Calibrate runs *CAL? and returns the result code. Zero means the
// calibration completed without error. Calibration can take far longer
// than other queries; pass a ctx with a suitable deadline.
func (s *Session) Calibrate(ctx context.Context) (int, error) {
	n, err := s.QueryInt(ctx, cmdCalibrate)
	return int(n), err
}

// SetPowerOnStatusClear writes the *PSC flag. When set, the instrument
// clears its enable registers at power on.
func (s *Session) SetPowerOnStatusClear(ctx context.Context, on bool) error {
	flag := int64(0)
	if on {
		flag = 1
	}
	return s.SendCommand(ctx, scpi.NewCommand(pathPowerOnClear, scpi.Int(flag)))
}

func (s *Session) PowerOnStatusClear(ctx context.Context) (bool, error) {
	return s.QueryBool(ctx, cmdPowerOnClearQ)
}

// IndividualStatus reads the ist message with *IST?: the bit the
// instrument would answer in a parallel poll.
func (s *Session) IndividualStatus(ctx context.Context) (bool, error) {
	return s.QueryBool(ctx, cmdIndividualStatus)
}

// SetParallelPollEnable writes the *PRE mask. Its low byte selects the
// Status Byte bits that set ist.
func (s *Session) SetParallelPollEnable(ctx context.Context, mask uint16) error {
	return s.SendCommand(ctx, scpi.NewCommand(pathParallelPoll, scpi.Int(int64(mask))))
}

func (s *Session) ParallelPollEnable(ctx context.Context) (uint16, error) {
	return s.queryStatusRegister(ctx, cmdParallelPollQ)
}

// QueryEnableMasks reads *ESE? and *SRE? from the instrument, refreshing
// the values EnableMasks reports.
func (s *Session) QueryEnableMasks(ctx context.Context) (event, service byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return 0, 0, err
	}
	if event, err = s.queryRegister(ctx, cmdEventEnableQ); err != nil {
		return 0, 0, err
	}
	if service, err = s.queryRegister(ctx, cmdServiceEnableQ); err != nil {
		return 0, 0, err
	}
	s.eventEnable, s.serviceEnable = event, service
	return event, service, s.finish(ctx, nil)
}
