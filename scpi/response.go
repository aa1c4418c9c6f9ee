package scpi

import (
	"bytes"
	"fmt"
	"strings"
)

// Shape is the expected structure of a response message.
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeList
	ShapeBlock
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeList:
		return "list"
	case ShapeBlock:
		return "block"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseShape maps "scalar", "list" and "block" to a Shape.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(s) {
	case "", "scalar":
		return ShapeScalar, nil
	case "list":
		return ShapeList, nil
	case "block":
		return ShapeBlock, nil
	}
	return 0, fmt.Errorf("unknown response shape %q", s)
}

// Response is a decoded response message.
type Response struct {
	Shape  Shape
	Values []Value
	// Raw is the message without its terminator.
	Raw []byte
}

// Value returns the first decoded value.
func (r Response) Value() Value {
	if len(r.Values) == 0 {
		return Value{}
	}
	return r.Values[0]
}

// Block returns the payload of a block response.
func (r Response) Block() []byte {
	return r.Value().Block
}

// Text returns the raw message as a string with surrounding whitespace
// removed. It suits arbitrary ASCII responses such as *IDN?.
func (r Response) Text() string {
	return strings.TrimSpace(string(r.Raw))
}

// Parser decodes response messages.
type Parser struct {
	// Terminator that ends a response. When empty both "\n" and "\r\n" are
	// accepted.
	Terminator string
	// RequireTerminator rejects responses that do not end in the terminator.
	RequireTerminator bool
}

// Parse decodes raw according to shape. Every element is decoded with hint.
func (p Parser) Parse(raw []byte, shape Shape, hint Kind) (Response, error) {
	if shape == ShapeBlock {
		return p.parseBlock(raw)
	}

	body, ok := p.strip(raw)
	if !ok && p.RequireTerminator {
		return Response{}, decodeErr(ErrMissingTerminator, raw, len(raw))
	}
	resp := Response{Shape: shape, Raw: body}

	switch shape {
	case ShapeScalar:
		v, err := Decode(body, hint)
		if err != nil {
			return Response{}, err
		}
		resp.Values = []Value{v}

	case ShapeList:
		fields, err := splitTop(body, DataSeparator)
		if err != nil {
			return Response{}, err
		}
		resp.Values = make([]Value, 0, len(fields))
		for _, f := range fields {
			v, err := Decode(f, hint)
			if err != nil {
				return Response{}, err
			}
			resp.Values = append(resp.Values, v)
		}

	default:
		return Response{}, fmt.Errorf("scpi: unsupported %s", shape)
	}
	return resp, nil
}

// parseBlock takes the payload length from the block header instead of
// looking for a terminator, since the payload may contain terminator bytes.
func (p Parser) parseBlock(raw []byte) (Response, error) {
	start := skipSpace(raw, 0)
	if start == len(raw) {
		return Response{}, decodeErr(ErrTruncatedBlock, raw, start)
	}
	payload, end, err := decodeBlock(raw, start)
	if err != nil {
		return Response{}, err
	}

	// Indefinite blocks consume the terminator themselves.
	if raw[start+1] == '0' {
		if p.RequireTerminator && !bytes.HasSuffix(raw, []byte(Terminator)) {
			return Response{}, decodeErr(ErrMissingTerminator, raw, len(raw))
		}
	} else {
		rest := raw[end:]
		if len(bytes.TrimSpace(rest)) != 0 {
			return Response{}, decodeErr(ErrMalformedValue, raw, end)
		}
		if _, ok := p.strip(rest); !ok && p.RequireTerminator {
			return Response{}, decodeErr(ErrMissingTerminator, raw, end)
		}
	}
	return Response{Shape: ShapeBlock, Values: []Value{Block(payload)}, Raw: raw[:end]}, nil
}

// ParseText decodes arbitrary ASCII response data, as answered to *IDN? or
// *OPT?: everything before the terminator, surrounding whitespace removed.
func (p Parser) ParseText(raw []byte) (string, error) {
	body, ok := p.strip(raw)
	if !ok && p.RequireTerminator {
		return "", decodeErr(ErrMissingTerminator, raw, len(raw))
	}
	return strings.TrimSpace(string(body)), nil
}

func (p Parser) strip(raw []byte) ([]byte, bool) {
	if p.Terminator != "" {
		if body, ok := bytes.CutSuffix(raw, []byte(p.Terminator)); ok {
			return body, true
		}
		return raw, false
	}
	if body, ok := bytes.CutSuffix(raw, []byte(CRLF)); ok {
		return body, true
	}
	if body, ok := bytes.CutSuffix(raw, []byte(Terminator)); ok {
		return body, true
	}
	return raw, false
}

// Identity is the decoded *IDN? response.
type Identity struct {
	Manufacturer string
	Model        string
	SerialNumber string
	Firmware     string
}

// ParseIdentity decodes the four comma separated *IDN? fields. A field
// reported as "0" means the instrument does not provide it and is returned
// empty.
func ParseIdentity(raw []byte) (Identity, error) {
	body := bytes.TrimSpace(raw)
	fields := strings.Split(string(body), string(DataSeparator))
	if len(fields) != 4 {
		return Identity{}, decodeErr(ErrMalformedValue, raw, 0)
	}
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "0" {
			f = ""
		}
		fields[i] = f
	}
	return Identity{
		Manufacturer: fields[0],
		Model:        fields[1],
		SerialNumber: fields[2],
		Firmware:     fields[3],
	}, nil
}

func (id Identity) String() string {
	field := func(s string) string {
		if s == "" {
			return "0"
		}
		return s
	}
	return strings.Join([]string{
		field(id.Manufacturer), field(id.Model), field(id.SerialNumber), field(id.Firmware),
	}, string(DataSeparator))
}
