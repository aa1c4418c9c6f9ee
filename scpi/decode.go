package scpi

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Decode parses one data element. Surrounding whitespace is ignored.
//
// With KindAuto the kind is inferred: quotes select string data, '(' an
// expression, '#' followed by a digit a block, NAN/INF/NINF and anything
// starting with a sign, digit or '.' numeric data, and any other mnemonic
// character data. Booleans and the MIN/MAX/DEF/UP/DOWN keywords are only
// recognised when hinted, since on the wire they are indistinguishable from
// numbers and character data.
func Decode(raw []byte, hint Kind) (Value, error) {
	start := skipSpace(raw, 0)
	if start == len(raw) {
		return Value{}, decodeErr(ErrMalformedValue, raw, start)
	}
	if hint == KindAuto {
		hint = inferKind(raw[start:])
	}

	if hint == KindBlock {
		payload, end, err := decodeBlock(raw, start)
		if err != nil {
			return Value{}, err
		}
		if rest := bytes.TrimRight(raw[end:], " \t\r\n"); len(rest) != 0 {
			return Value{}, decodeErr(ErrMalformedValue, raw, end)
		}
		return Block(payload), nil
	}

	end := len(bytes.TrimRight(raw, " \t\r\n"))
	switch hint {
	case KindNumeric:
		n, err := decodeNumeric(raw, start, end)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindNumeric, Number: n}, nil

	case KindBoolean:
		return decodeBoolean(raw, start, end)

	case KindString:
		s, err := decodeString(raw, start, end)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil

	case KindCharacter:
		f := string(raw[start:end])
		if !isMnemonic(f) {
			return Value{}, decodeErr(ErrMalformedValue, raw, start)
		}
		return Char(f), nil

	case KindExpression:
		n, ok := expressionEnd(raw[start:end])
		if !ok || start+n != end {
			return Value{}, decodeErr(ErrMalformedValue, raw, start)
		}
		return Value{Kind: KindExpression, Text: string(raw[start:end])}, nil
	}
	return Value{}, decodeErr(ErrMalformedValue, raw, start)
}

func inferKind(f []byte) Kind {
	switch c := f[0]; {
	case c == BlockPrefix:
		if len(f) > 1 && strings.IndexByte("HhQqBb", f[1]) >= 0 {
			return KindNumeric
		}
		return KindBlock
	case c == '"' || c == '\'':
		return KindString
	case c == '(':
		return KindExpression
	case isLetter(c):
		switch strings.ToUpper(string(f)) {
		case TokenNaN, TokenInf, TokenNegInf:
			return KindNumeric
		}
		return KindCharacter
	}
	return KindNumeric
}

var numericKeywords = map[string]Special{
	TokenNaN:     SpecialNaN,
	TokenInf:     SpecialInf,
	"+INF":       SpecialInf,
	TokenNegInf:  SpecialNegInf,
	"-INF":       SpecialNegInf,
	TokenMin:     SpecialMin,
	"MINIMUM":    SpecialMin,
	TokenMax:     SpecialMax,
	"MAXIMUM":    SpecialMax,
	TokenDefault: SpecialDefault,
	"DEFAULT":    SpecialDefault,
	TokenUp:      SpecialUp,
	TokenDown:    SpecialDown,
}

func decodeNumeric(raw []byte, start, end int) (Numeric, error) {
	f := raw[start:end]
	if sp, ok := numericKeywords[strings.ToUpper(string(f))]; ok {
		return Numeric{Special: sp}, nil
	}

	if f[0] == BlockPrefix {
		return decodeNonDecimal(raw, start, end)
	}

	i := 0
	if f[i] == '+' || f[i] == '-' {
		i++
	}
	mantissa := countDigits(f, i)
	i += mantissa
	point, fraction := false, 0
	if i < len(f) && f[i] == '.' {
		point = true
		i++
		fraction = countDigits(f, i)
		i += fraction
	}
	if mantissa+fraction == 0 {
		return Numeric{}, decodeErr(ErrMalformedValue, raw, start+i)
	}

	exponent := false
	if i < len(f) && (f[i] == 'e' || f[i] == 'E') {
		j := i + 1
		if j < len(f) && (f[j] == '+' || f[j] == '-') {
			j++
		}
		if n := countDigits(f, j); n > 0 {
			i = j + n
			exponent = true
		}
	}

	value, err := strconv.ParseFloat(string(f[:i]), 64)
	if err != nil {
		return Numeric{}, decodeErr(ErrMalformedValue, raw, start)
	}

	n := Numeric{Value: value}
	if point && !exponent {
		n.Digits = fraction
	}

	unitStart := skipSpace(f, i)
	if unitStart < len(f) {
		if !isUnit(f[unitStart:]) {
			return Numeric{}, decodeErr(ErrMalformedValue, raw, start+unitStart)
		}
		n.Unit = string(f[unitStart:])
	}
	return n, nil
}

// decodeNonDecimal handles the #H, #Q and #B forms.
func decodeNonDecimal(raw []byte, start, end int) (Numeric, error) {
	f := raw[start:end]
	if len(f) < 3 {
		return Numeric{}, decodeErr(ErrMalformedValue, raw, start)
	}
	base := 0
	switch f[1] {
	case 'H', 'h':
		base = 16
	case 'Q', 'q':
		base = 8
	case 'B', 'b':
		base = 2
	default:
		return Numeric{}, decodeErr(ErrMalformedValue, raw, start+1)
	}
	u, err := strconv.ParseUint(string(f[2:]), base, 64)
	if err != nil {
		return Numeric{}, decodeErr(ErrMalformedValue, raw, start+2)
	}
	return Numeric{Value: float64(u)}, nil
}

func decodeBoolean(raw []byte, start, end int) (Value, error) {
	switch strings.ToUpper(string(raw[start:end])) {
	case TokenOn:
		return Bool(true), nil
	case TokenOff:
		return Bool(false), nil
	}
	n, err := decodeNumeric(raw, start, end)
	if err != nil {
		return Value{}, err
	}
	if n.Special != SpecialNone || n.Unit != "" || math.IsNaN(n.Value) {
		return Value{}, decodeErr(ErrMalformedValue, raw, start)
	}
	return Bool(math.Round(n.Value) != 0), nil
}

func decodeString(raw []byte, start, end int) (string, error) {
	q := raw[start]
	if q != '"' && q != '\'' {
		return "", decodeErr(ErrMalformedValue, raw, start)
	}
	var sb strings.Builder
	for i := start + 1; i < end; i++ {
		c := raw[i]
		if c != q {
			sb.WriteByte(c)
			continue
		}
		if i+1 < end && raw[i+1] == q {
			sb.WriteByte(q)
			i++
			continue
		}
		if i+1 != end {
			return "", decodeErr(ErrMalformedValue, raw, i+1)
		}
		return sb.String(), nil
	}
	return "", decodeErr(ErrUnterminatedString, raw, start)
}

// decodeBlock reads an arbitrary block whose header starts at raw[start]
// and reports the offset just past the payload.
func decodeBlock(raw []byte, start int) ([]byte, int, error) {
	if raw[start] != BlockPrefix {
		return nil, 0, decodeErr(ErrMalformedValue, raw, start)
	}
	if start+1 >= len(raw) {
		return nil, 0, decodeErr(ErrTruncatedBlock, raw, len(raw))
	}

	d := raw[start+1]
	if d == '0' {
		// Indefinite form runs up to the terminating newline.
		payload := bytes.TrimSuffix(raw[start+2:], []byte(Terminator))
		return bytes.Clone(payload), len(raw), nil
	}
	if d < '1' || d > '9' {
		return nil, 0, decodeErr(ErrMalformedValue, raw, start+1)
	}

	header := start + 2 + int(d-'0')
	if header > len(raw) {
		return nil, 0, decodeErr(ErrTruncatedBlock, raw, len(raw))
	}
	digits := raw[start+2 : header]
	if countDigits(digits, 0) != len(digits) {
		return nil, 0, decodeErr(ErrMalformedValue, raw, start+2)
	}
	length, err := strconv.Atoi(string(digits))
	if err != nil {
		return nil, 0, decodeErr(ErrMalformedValue, raw, start+2)
	}
	if header+length > len(raw) {
		return nil, 0, decodeErr(ErrTruncatedBlock, raw, len(raw))
	}
	return bytes.Clone(raw[header : header+length]), header + length, nil
}

// splitTop splits raw on sep, ignoring separators inside quoted strings,
// expressions and block payloads.
func splitTop(raw []byte, sep byte) ([][]byte, error) {
	var fields [][]byte
	start := 0
	elementStart := true

	for i := 0; i < len(raw); {
		c := raw[i]
		switch {
		case c == sep:
			fields = append(fields, raw[start:i])
			i++
			start = i
			elementStart = true
			continue

		case c == ' ' || c == '\t' || c == DataSeparator || c == UnitSeparator:
			i++
			elementStart = true
			continue

		case elementStart && (c == '"' || c == '\''):
			end, ok := quotedEnd(raw, i)
			if !ok {
				return nil, decodeErr(ErrUnterminatedString, raw, i)
			}
			i = end

		case elementStart && c == BlockPrefix && i+1 < len(raw) && isDigit(raw[i+1]):
			_, end, err := decodeBlock(raw, i)
			if err != nil {
				return nil, err
			}
			i = end

		case c == '(':
			n, ok := expressionEnd(raw[i:])
			if !ok {
				return nil, decodeErr(ErrMalformedValue, raw, i)
			}
			i += n

		default:
			i++
		}
		elementStart = false
	}
	return append(fields, raw[start:]), nil
}

// quotedEnd returns the offset just past the string starting at raw[i].
func quotedEnd(raw []byte, i int) (int, bool) {
	q := raw[i]
	for j := i + 1; j < len(raw); j++ {
		if raw[j] != q {
			continue
		}
		if j+1 < len(raw) && raw[j+1] == q {
			j++
			continue
		}
		return j + 1, true
	}
	return 0, false
}

// expressionEnd returns the length of the parenthesised expression at the
// start of b.
func expressionEnd(b []byte) (int, bool) {
	if len(b) == 0 || b[0] != '(' {
		return 0, false
	}
	depth := 0
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case '"', '\'':
			end, ok := quotedEnd(b, i)
			if !ok {
				return 0, false
			}
			i = end - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func isMnemonic(s string) bool {
	if s == "" || !isLetter(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if c := s[i]; !isLetter(c) && !isDigit(c) && c != '_' {
			return false
		}
	}
	return true
}

func isUnit(b []byte) bool {
	if !isLetter(b[0]) && b[0] != '%' {
		return false
	}
	for _, c := range b[1:] {
		if !isLetter(c) && !isDigit(c) && c != '/' && c != '.' && c != '%' {
			return false
		}
	}
	return true
}

func countDigits(b []byte, i int) int {
	n := 0
	for i+n < len(b) && isDigit(b[i+n]) {
		n++
	}
	return n
}

func skipSpace(b []byte, i int) int {
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\r' || b[i] == '\n') {
		i++
	}
	return i
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
