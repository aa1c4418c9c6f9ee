package scpi

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedValue is returned when program or response data does not
	// match the grammar of the expected data kind.
	ErrMalformedValue = errors.New("malformed value")

	// ErrUnterminatedString is returned when a quoted string has no closing
	// quote character.
	ErrUnterminatedString = errors.New("unterminated string")

	// ErrTruncatedBlock is returned when a definite length arbitrary block
	// declares more payload bytes than are available.
	//
	// This usually means a read stopped early or the stream lost framing.
	ErrTruncatedBlock = errors.New("truncated block")

	// ErrMissingTerminator is returned when a response was required to end in
	// the message terminator and did not.
	ErrMissingTerminator = errors.New("missing terminator")

	// ErrInvalidMnemonic is returned when a header segment is empty or contains
	// a character outside the program mnemonic grammar.
	//
	// It is always detected before any bytes are written.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrTooManyParameters is returned when a command carries more parameters
	// than the configured limit.
	ErrTooManyParameters = errors.New("too many parameters")

	// ErrEmptyMessage is returned when a program message would contain no
	// commands.
	ErrEmptyMessage = errors.New("empty program message")
)

// DecodeError reports a decode failure together with the bytes that caused it.
type DecodeError struct {
	// Err is one of the package sentinel errors.
	Err error
	// Raw holds the offending input.
	Raw []byte
	// Offset is the position in Raw where decoding stopped.
	Offset int
}

func (e *DecodeError) Error() string {
	raw := e.Raw
	if len(raw) > 64 {
		raw = raw[:64]
	}
	return fmt.Sprintf("scpi: %v at offset %d in %q", e.Err, e.Offset, raw)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(err error, raw []byte, offset int) error {
	return &DecodeError{Err: err, Raw: raw, Offset: offset}
}
