package instrument

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/scpictl/scpi"
)

// WaitOperationComplete blocks until the instrument has finished every
// pending operation, or fails with ErrOperationTimeout once timeout has
// elapsed. A zero timeout means the session timeout.
//
// In SyncOPCQuery mode it sends *OPC? and waits for the "1" the instrument
// answers once idle. Transports that can serial poll are polled for MAV
// first, so the bus is not held by an outstanding read. In SyncESRPoll mode
// it sends *OPC and reads *ESR? every poll interval until the OPC bit is
// set. Polling runs on the session clock: the completion wait ends on the
// poll that observes the condition, and the timeout fires exactly at the
// deadline.
//
// Cancelling ctx stops the wait between polls with ErrCancelled. Neither
// outcome changes instrument state beyond what already executed.
func (s *Session) WaitOperationComplete(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = s.config.timeout
	}

	s.state.Store(int32(StateAwaitingCompletion))
	defer s.state.CompareAndSwap(int32(StateAwaitingCompletion), int32(StateIdle))

	if s.config.syncMode == SyncESRPoll {
		return s.pollOperationComplete(ctx, timeout)
	}
	return s.finish(ctx, s.queryOperationComplete(ctx, timeout))
}

func (s *Session) queryOperationComplete(ctx context.Context, timeout time.Duration) error {
	msg, err := s.builder.Build(cmdOperationDoneQ)
	if err != nil {
		return err
	}

	if poller, ok := s.transport.(SerialPoller); ok {
		if err := s.write(ctx, msg); err != nil {
			return err
		}
		err := s.pollUntil(ctx, timeout, func(ctx context.Context) (bool, error) {
			b, err := poller.SerialPoll(ctx)
			if err != nil {
				return false, &TransportError{Op: "serial poll", Err: err}
			}
			return scpi.DecodeStatusByte(b).MessageAvailable, nil
		})
		if err != nil {
			// The *OPC? response is still pending.
			s.unreliable = true
			return err
		}
		ctx, cancel := s.withTimeout(ctx)
		defer cancel()
		return s.checkComplete(s.await(ctx))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.write(ctx, msg); err != nil {
		return err
	}
	return s.checkComplete(s.await(ctx))
}

func (s *Session) checkComplete(raw []byte, err error) error {
	if err != nil {
		return err
	}
	v, err := s.parser.ParseText(raw)
	if err != nil {
		return err
	}
	if v != "1" {
		return fmt.Errorf("%w: *OPC? answered %q", scpi.ErrMalformedValue, v)
	}
	return nil
}

func (s *Session) pollOperationComplete(ctx context.Context, timeout time.Duration) error {
	if err := s.send(ctx, cmdOperationDone); err != nil {
		return err
	}

	// *ESR? clears the register, so error bits seen while waiting are
	// accumulated for the report below.
	var seen byte
	err := s.pollUntil(ctx, timeout, func(ctx context.Context) (bool, error) {
		b, err := s.queryRegister(ctx, cmdEventStatus)
		if err != nil {
			return false, err
		}
		seen |= b
		return scpi.DecodeEventStatus(b).OperationComplete, nil
	})
	if err != nil {
		return err
	}

	if scpi.DecodeEventStatus(seen).HasError() {
		return s.collectErrors(ctx, seen)
	}
	return s.finish(ctx, nil)
}

// pollUntil calls poll until it reports true. Between polls it sleeps the
// poll interval on the session clock, never past the deadline; the last
// poll happens at the deadline itself.
func (s *Session) pollUntil(ctx context.Context, timeout time.Duration, poll func(context.Context) (bool, error)) error {
	clock := s.config.clock
	deadline := clock.Now().Add(timeout)

	for n := 1; ; n++ {
		ok, err := poll(ctx)
		if err != nil {
			return err
		}
		if ok {
			s.logger.Debug("poll condition met", "polls", n)
			return nil
		}

		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			s.logger.Warn("poll timed out", "polls", n, "timeout", timeout)
			return fmt.Errorf("%w after %s and %d polls", ErrOperationTimeout, timeout, n)
		}

		select {
		case <-ctx.Done():
			return contextErr(ctx)
		case <-clock.After(min(s.config.pollInterval, remaining)):
		}
	}
}
