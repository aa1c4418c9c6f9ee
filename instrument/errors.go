package instrument

import (
	"errors"
	"fmt"
	"strings"

	"i4.energy/across/scpictl/scpi"
)

var (
	// ErrNoDialer is returned when a Session is opened without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the instrument.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer produced no transport.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Session that has
	// already been closed.
	ErrAlreadyClosed = errors.New("session already closed")

	// ErrSessionClosed is returned by an operation on a Session whose
	// transport was closed or lost, including an operation that was in
	// flight at that moment.
	//
	// The state is terminal. Every later operation fails the same way.
	ErrSessionClosed = errors.New("session closed")

	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport error")

	// ErrOperationTimeout is returned when a response or the operation
	// complete condition did not arrive before the deadline.
	//
	// The instrument may still be executing. Call Clear before reusing the
	// session.
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrCancelled is returned when the caller's context was cancelled while
	// an operation waited on the instrument.
	ErrCancelled = errors.New("operation cancelled")

	// ErrUnreliable is returned by every operation once an interrupted
	// exchange, such as a timeout, left the input out of step. Clear resets
	// it.
	ErrUnreliable = errors.New("session unreliable, clear required")

	// ErrErrorQueueOverflow is returned when the instrument kept reporting
	// errors beyond the configured drain limit without ever answering with
	// the "No error" entry.
	//
	// This typically indicates a misbehaving instrument. It is never retried.
	ErrErrorQueueOverflow = errors.New("error queue did not drain")

	// ErrResponseTooLong is returned when a response message exceeds the
	// maximum response size.
	//
	// This typically indicates a missing terminator or a block larger than
	// the caller expected. When no terminator arrived within the limit the
	// session is unreliable until Clear.
	ErrResponseTooLong = errors.New("response too long")

	// ErrInvalidAddress is returned for GPIB primary addresses outside 0-30
	// and secondary addresses outside 96-126.
	ErrInvalidAddress = errors.New("invalid GPIB address")

	// ErrWebSocketClosed is returned when reading from a WebSocket transport
	// whose connection already failed.
	ErrWebSocketClosed = errors.New("websocket connection closed")
)

// TransportError is an I/O failure at the byte channel boundary.
type TransportError struct {
	// Op is the failing operation, e.g. "write" or "serial poll".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// InstrumentError carries the errors the instrument reported through its
// status registers and error queue after an operation. The operation itself
// completed; its result is returned alongside.
type InstrumentError struct {
	// Event is the Standard Event Status Register read when the error was
	// detected.
	Event   scpi.EventStatus
	Entries []scpi.ErrorEntry
}

func (e *InstrumentError) Error() string {
	if len(e.Entries) == 0 {
		return fmt.Sprintf("instrument error: event status %s", e.Event)
	}
	parts := make([]string, len(e.Entries))
	for i, entry := range e.Entries {
		parts[i] = entry.String()
	}
	return "instrument error: " + strings.Join(parts, "; ")
}

// Has reports whether the instrument reported code.
func (e *InstrumentError) Has(code int) bool {
	for _, entry := range e.Entries {
		if entry.Code == code {
			return true
		}
	}
	return false
}
