package scpi_test

import (
	"errors"
	"math"
	"testing"

	"i4.energy/across/scpictl/scpi"
)

func TestValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value scpi.Value
		wire  string
	}{
		{name: "Integer", value: scpi.Int(5), wire: "5"},
		{name: "Negative fraction", value: scpi.Float(-0.25), wire: "-0.25"},
		{name: "Small exponent", value: scpi.Float(-1.5e-9), wire: "-1.5E-09"},
		{name: "Large exponent", value: scpi.Float(1e21), wire: "1E+21"},
		{name: "Fixed digits", value: scpi.Fixed(5, 1), wire: "5.0"},
		{name: "Unit suffix", value: scpi.Quantity(2.5, "MHZ"), wire: "2.5 MHZ"},
		{name: "NaN", value: scpi.Float(math.NaN()), wire: "NAN"},
		{name: "Positive infinity", value: scpi.Float(math.Inf(1)), wire: "INF"},
		{name: "Negative infinity", value: scpi.Float(math.Inf(-1)), wire: "NINF"},
		{name: "MAX keyword", value: scpi.Keyword(scpi.SpecialMax), wire: "MAX"},
		{name: "DEF keyword", value: scpi.Keyword(scpi.SpecialDefault), wire: "DEF"},
		{name: "Boolean on", value: scpi.Bool(true), wire: "1"},
		{name: "Boolean off", value: scpi.Bool(false), wire: "0"},
		{name: "Plain string", value: scpi.String("hello"), wire: `"hello"`},
		{name: "Embedded quotes", value: scpi.String(`say "hi"`), wire: `"say ""hi"""`},
		{name: "Empty string", value: scpi.String(""), wire: `""`},
		{name: "Character data", value: scpi.Char("NORMal"), wire: "NORMal"},
		{name: "Expression", value: scpi.Expr("@1:3"), wire: "(@1:3)"},
		{name: "Block", value: scpi.Block([]byte("a\nb,c")), wire: "#15a\nb,c"},
		{name: "Empty block", value: scpi.Block(nil), wire: "#10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := scpi.Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if string(wire) != tt.wire {
				t.Errorf("Encode() = %q, want %q", wire, tt.wire)
			}

			got, err := scpi.Decode(wire, tt.value.Kind)
			if err != nil {
				t.Fatalf("Decode(%q) error: %v", wire, err)
			}
			if !got.Equal(tt.value) {
				t.Errorf("Decode(%q) = %+v, want %+v", wire, got, tt.value)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		hint  scpi.Kind
		want  scpi.Value
	}{
		{name: "NR1 with sign", input: "+42", hint: scpi.KindNumeric, want: scpi.Int(42)},
		{name: "NR2 leading point", input: ".5", hint: scpi.KindNumeric, want: scpi.Float(0.5)},
		{name: "NR3 lower case", input: "1.5e3", hint: scpi.KindNumeric, want: scpi.Float(1500)},
		{name: "Surrounding whitespace", input: "  3.25 \n", hint: scpi.KindNumeric, want: scpi.Float(3.25)},
		{name: "Unit without space", input: "10mV", hint: scpi.KindNumeric, want: scpi.Quantity(10, "mV")},
		{name: "Hexadecimal", input: "#HFF", hint: scpi.KindNumeric, want: scpi.Int(255)},
		{name: "Octal", input: "#q17", hint: scpi.KindNumeric, want: scpi.Int(15)},
		{name: "Binary", input: "#B101", hint: scpi.KindNumeric, want: scpi.Int(5)},
		{name: "Minus INF", input: "-INF", hint: scpi.KindNumeric, want: scpi.Float(math.Inf(-1))},
		{name: "Lower case ninf", input: "ninf", hint: scpi.KindNumeric, want: scpi.Float(math.Inf(-1))},
		{name: "MAXimum long form", input: "MAXimum", hint: scpi.KindNumeric, want: scpi.Keyword(scpi.SpecialMax)},
		{name: "Boolean ON", input: "on", hint: scpi.KindBoolean, want: scpi.Bool(true)},
		{name: "Boolean OFF", input: "OFF", hint: scpi.KindBoolean, want: scpi.Bool(false)},
		{name: "Boolean rounds up", input: "0.6", hint: scpi.KindBoolean, want: scpi.Bool(true)},
		{name: "Boolean rounds down", input: "0.4", hint: scpi.KindBoolean, want: scpi.Bool(false)},
		{name: "Single quoted string", input: `'it''s'`, hint: scpi.KindString, want: scpi.String("it's")},
		{name: "Mixed quotes", input: `'say "hi"'`, hint: scpi.KindString, want: scpi.String(`say "hi"`)},
		{name: "Definite block", input: "#15hello", hint: scpi.KindBlock, want: scpi.Block([]byte("hello"))},
		{name: "Block with trailing terminator", input: "#15hello\n", hint: scpi.KindBlock, want: scpi.Block([]byte("hello"))},
		{name: "Indefinite block", input: "#0raw\x00data\n", hint: scpi.KindBlock, want: scpi.Block([]byte("raw\x00data"))},
		{name: "Auto numeric", input: "-7", hint: scpi.KindAuto, want: scpi.Int(-7)},
		{name: "Auto character", input: "MEAS", hint: scpi.KindAuto, want: scpi.Char("MEAS")},
		{name: "Auto string", input: `"x"`, hint: scpi.KindAuto, want: scpi.String("x")},
		{name: "Auto expression", input: "(1,2)", hint: scpi.KindAuto, want: scpi.Expr("(1,2)")},
		{name: "Auto block", input: "#13abc", hint: scpi.KindAuto, want: scpi.Block([]byte("abc"))},
		{name: "Auto hexadecimal", input: "#H1f", hint: scpi.KindAuto, want: scpi.Int(31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scpi.Decode([]byte(tt.input), tt.hint)
			if err != nil {
				t.Fatalf("Decode(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		hint  scpi.Kind
		want  error
	}{
		{name: "Empty input", input: "", hint: scpi.KindAuto, want: scpi.ErrMalformedValue},
		{name: "Garbage numeric", input: "12abc!", hint: scpi.KindNumeric, want: scpi.ErrMalformedValue},
		{name: "Sign only", input: "-", hint: scpi.KindNumeric, want: scpi.ErrMalformedValue},
		{name: "Bad hexadecimal", input: "#HXY", hint: scpi.KindNumeric, want: scpi.ErrMalformedValue},
		{name: "Unterminated string", input: `"abc`, hint: scpi.KindString, want: scpi.ErrUnterminatedString},
		{name: "Unquoted string", input: "abc", hint: scpi.KindString, want: scpi.ErrMalformedValue},
		{name: "Text after string", input: `"a"b`, hint: scpi.KindString, want: scpi.ErrMalformedValue},
		{name: "Truncated block", input: "#15hell", hint: scpi.KindBlock, want: scpi.ErrTruncatedBlock},
		{name: "Truncated block header", input: "#3", hint: scpi.KindBlock, want: scpi.ErrTruncatedBlock},
		{name: "Non-digit block length", input: "#2x5hello", hint: scpi.KindBlock, want: scpi.ErrMalformedValue},
		{name: "Data after block", input: "#12hiX", hint: scpi.KindBlock, want: scpi.ErrMalformedValue},
		{name: "Invalid character data", input: "9LIVES", hint: scpi.KindCharacter, want: scpi.ErrMalformedValue},
		{name: "Unbalanced expression", input: "(1,2", hint: scpi.KindExpression, want: scpi.ErrMalformedValue},
		{name: "Boolean keyword", input: "MAX", hint: scpi.KindBoolean, want: scpi.ErrMalformedValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scpi.Decode([]byte(tt.input), tt.hint)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode(%q) error = %v, want %v", tt.input, err, tt.want)
			}
			var decodeErr *scpi.DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if string(decodeErr.Raw) != tt.input {
				t.Errorf("DecodeError.Raw = %q, want %q", decodeErr.Raw, tt.input)
			}
		})
	}
}

func TestEncodeFixedRounds(t *testing.T) {
	wire, err := scpi.Encode(scpi.Fixed(2.456, 2))
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if string(wire) != "2.46" {
		t.Errorf("Encode() = %q, want %q", wire, "2.46")
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		value scpi.Value
	}{
		{name: "Non-ASCII string", value: scpi.String("µV")},
		{name: "Invalid character data", value: scpi.Char("two words")},
		{name: "Unbalanced expression", value: scpi.Value{Kind: scpi.KindExpression, Text: "(1"}},
		{name: "Auto kind", value: scpi.Value{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := scpi.Encode(tt.value); !errors.Is(err, scpi.ErrMalformedValue) {
				t.Errorf("Encode() error = %v, want ErrMalformedValue", err)
			}
		})
	}
}

func TestValueFloat64(t *testing.T) {
	tests := []struct {
		name  string
		value scpi.Value
		check func(float64) bool
	}{
		{name: "Plain number", value: scpi.Float(1.25), check: func(f float64) bool { return f == 1.25 }},
		{name: "Overflow sentinel", value: scpi.Float(9.9e37), check: func(f float64) bool { return math.IsInf(f, 1) }},
		{name: "Negative overflow sentinel", value: scpi.Float(-9.9e37), check: func(f float64) bool { return math.IsInf(f, -1) }},
		{name: "NaN sentinel", value: scpi.Float(9.91e37), check: math.IsNaN},
		{name: "Boolean", value: scpi.Bool(true), check: func(f float64) bool { return f == 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tt.value.Float64()
			if err != nil {
				t.Fatalf("Float64() error: %v", err)
			}
			if !tt.check(f) {
				t.Errorf("Float64() = %v", f)
			}
		})
	}

	if _, err := scpi.String("1").Float64(); !errors.Is(err, scpi.ErrMalformedValue) {
		t.Errorf("Float64() on string data error = %v, want ErrMalformedValue", err)
	}
	if _, err := scpi.Keyword(scpi.SpecialMin).Float64(); err == nil {
		t.Error("Float64() on MIN should fail")
	}
}
