package scpi

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// Kind identifies the program data type of a Value.
type Kind int

const (
	// KindAuto asks Decode to infer the kind from the input.
	KindAuto Kind = iota
	KindNumeric
	KindBoolean
	KindString
	KindCharacter
	KindExpression
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindAuto:
		return "auto"
	case KindNumeric:
		return "numeric"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindCharacter:
		return "character"
	case KindExpression:
		return "expression"
	case KindBlock:
		return "block"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps the names returned by Kind.String to a Kind.
func ParseKind(s string) (Kind, error) {
	for k := KindAuto; k <= KindBlock; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	if s == "" {
		return KindAuto, nil
	}
	return 0, fmt.Errorf("unknown data kind %q", s)
}

// Special marks a numeric value that is sent as a keyword instead of digits.
type Special int

const (
	SpecialNone Special = iota
	SpecialNaN
	SpecialInf
	SpecialNegInf
	SpecialMin
	SpecialMax
	SpecialDefault
	SpecialUp
	SpecialDown
)

var specialTokens = map[Special]string{
	SpecialNaN:     TokenNaN,
	SpecialInf:     TokenInf,
	SpecialNegInf:  TokenNegInf,
	SpecialMin:     TokenMin,
	SpecialMax:     TokenMax,
	SpecialDefault: TokenDefault,
	SpecialUp:      TokenUp,
	SpecialDown:    TokenDown,
}

func (s Special) String() string {
	if tok, ok := specialTokens[s]; ok {
		return tok
	}
	return ""
}

// Numeric is decimal numeric program data with an optional suffix unit.
type Numeric struct {
	Value   float64
	Special Special
	// Unit is the suffix unit, e.g. "V" or "MHZ". Empty means none.
	Unit string
	// Digits is the number of fractional digits written by Encode. Zero
	// selects the shortest representation that decodes to the same float64.
	Digits int
}

// canonical folds NAN, INF and NINF keywords into the float they denote.
func (n Numeric) canonical() Numeric {
	switch n.Special {
	case SpecialNaN:
		n.Value, n.Special = math.NaN(), SpecialNone
	case SpecialInf:
		n.Value, n.Special = math.Inf(1), SpecialNone
	case SpecialNegInf:
		n.Value, n.Special = math.Inf(-1), SpecialNone
	}
	return n
}

// Value is a single piece of program or response data.
//
// Only the field matching Kind is meaningful: Number for KindNumeric, Bool
// for KindBoolean, Text for KindString, KindCharacter and KindExpression
// (expressions keep their enclosing parentheses), Block for KindBlock.
type Value struct {
	Kind   Kind
	Number Numeric
	Bool   bool
	Text   string
	Block  []byte
}

// Float returns numeric data for f.
func Float(f float64) Value {
	return Value{Kind: KindNumeric, Number: Numeric{Value: f}}
}

// Fixed returns numeric data written with exactly digits fractional digits.
func Fixed(f float64, digits int) Value {
	return Value{Kind: KindNumeric, Number: Numeric{Value: f, Digits: max(digits, 0)}}
}

// Int returns numeric data for i. Magnitudes above 2^53 lose precision.
func Int(i int64) Value {
	return Float(float64(i))
}

// Quantity returns numeric data carrying a suffix unit.
func Quantity(f float64, unit string) Value {
	return Value{Kind: KindNumeric, Number: Numeric{Value: f, Unit: unit}}
}

// Keyword returns numeric data for one of the special numeric tokens.
func Keyword(s Special) Value {
	return Value{Kind: KindNumeric, Number: Numeric{Special: s}}
}

func Bool(b bool) Value {
	return Value{Kind: KindBoolean, Bool: b}
}

func String(s string) Value {
	return Value{Kind: KindString, Text: s}
}

// Char returns character program data such as "NORM" or "IMMediate".
func Char(s string) Value {
	return Value{Kind: KindCharacter, Text: s}
}

// Expr returns expression data. The parentheses are added when missing.
func Expr(s string) Value {
	if !strings.HasPrefix(s, "(") {
		s = "(" + s + ")"
	}
	return Value{Kind: KindExpression, Text: s}
}

func Block(b []byte) Value {
	return Value{Kind: KindBlock, Block: b}
}

// Float64 converts numeric or boolean data to a float64. The IEEE 488.2
// response sentinels 9.9E37, -9.9E37 and 9.91E37 map to +Inf, -Inf and NaN.
func (v Value) Float64() (float64, error) {
	switch v.Kind {
	case KindBoolean:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	case KindNumeric:
		switch v.Number.Special {
		case SpecialNone:
		case SpecialNaN:
			return math.NaN(), nil
		case SpecialInf:
			return math.Inf(1), nil
		case SpecialNegInf:
			return math.Inf(-1), nil
		default:
			return 0, fmt.Errorf("%w: %s has no numeric value", ErrMalformedValue, v.Number.Special)
		}
		switch v.Number.Value {
		case ResponseInf:
			return math.Inf(1), nil
		case ResponseNegInf:
			return math.Inf(-1), nil
		case ResponseNaN:
			return math.NaN(), nil
		}
		return v.Number.Value, nil
	}
	return 0, fmt.Errorf("%w: %s data is not numeric", ErrMalformedValue, v.Kind)
}

// Int64 converts numeric or boolean data to an integer, rounding half away
// from zero.
func (v Value) Int64() (int64, error) {
	f, err := v.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v does not fit an integer", ErrMalformedValue, f)
	}
	return int64(math.Round(f)), nil
}

// Equal reports whether v and o hold the same data. Numeric Digits only
// affects formatting and is ignored; NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumeric:
		a, b := v.Number.canonical(), o.Number.canonical()
		if a.Special != b.Special || a.Unit != b.Unit {
			return false
		}
		if a.Special != SpecialNone {
			return true
		}
		if math.IsNaN(a.Value) && math.IsNaN(b.Value) {
			return true
		}
		return a.Value == b.Value
	case KindBoolean:
		return v.Bool == o.Bool
	case KindBlock:
		return bytes.Equal(v.Block, o.Block)
	default:
		return v.Text == o.Text
	}
}

// String formats v for display. String data is unquoted, blocks are
// summarized and everything else uses its wire form.
func (v Value) String() string {
	switch v.Kind {
	case KindBlock:
		return fmt.Sprintf("<block %d bytes>", len(v.Block))
	case KindString:
		return v.Text
	}
	b, err := AppendValue(nil, v)
	if err != nil {
		return fmt.Sprintf("<invalid %s>", v.Kind)
	}
	return string(b)
}
