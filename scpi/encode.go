package scpi

import (
	"fmt"
	"math"
	"strconv"
)

const maxBlockLen = 999_999_999

// Encode returns the program data form of v.
func Encode(v Value) ([]byte, error) {
	return AppendValue(nil, v)
}

// AppendValue appends the program data form of v to dst.
func AppendValue(dst []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case KindNumeric:
		return appendNumeric(dst, v.Number), nil

	case KindBoolean:
		if v.Bool {
			return append(dst, '1'), nil
		}
		return append(dst, '0'), nil

	case KindString:
		return appendString(dst, v.Text)

	case KindCharacter:
		if !isMnemonic(v.Text) {
			return dst, fmt.Errorf("%w: character data %q", ErrMalformedValue, v.Text)
		}
		return append(dst, v.Text...), nil

	case KindExpression:
		if end, ok := expressionEnd([]byte(v.Text)); !ok || end != len(v.Text) {
			return dst, fmt.Errorf("%w: expression %q", ErrMalformedValue, v.Text)
		}
		return append(dst, v.Text...), nil

	case KindBlock:
		if len(v.Block) > maxBlockLen {
			return dst, fmt.Errorf("%w: block of %d bytes exceeds definite length limit", ErrMalformedValue, len(v.Block))
		}
		n := strconv.Itoa(len(v.Block))
		dst = append(dst, BlockPrefix, byte('0'+len(n)))
		dst = append(dst, n...)
		return append(dst, v.Block...), nil
	}
	return dst, fmt.Errorf("%w: cannot encode %s data", ErrMalformedValue, v.Kind)
}

func appendNumeric(dst []byte, n Numeric) []byte {
	if n.Special != SpecialNone {
		return append(dst, n.Special.String()...)
	}
	switch {
	case math.IsNaN(n.Value):
		return append(dst, TokenNaN...)
	case math.IsInf(n.Value, 1):
		return append(dst, TokenInf...)
	case math.IsInf(n.Value, -1):
		return append(dst, TokenNegInf...)
	}

	if n.Digits > 0 {
		dst = strconv.AppendFloat(dst, n.Value, 'f', n.Digits, 64)
	} else {
		dst = strconv.AppendFloat(dst, n.Value, 'G', -1, 64)
	}
	if n.Unit != "" {
		dst = append(dst, HeaderSeparator)
		dst = append(dst, n.Unit...)
	}
	return dst
}

func appendString(dst []byte, s string) ([]byte, error) {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7e {
			return dst, fmt.Errorf("%w: string data must be ASCII, found 0x%02x", ErrMalformedValue, c)
		}
		if c == '"' {
			dst = append(dst, '"')
		}
		dst = append(dst, c)
	}
	return append(dst, '"'), nil
}
