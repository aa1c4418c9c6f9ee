package scpi

import (
	"bytes"
	"fmt"
	"strings"
)

// Command is one program message unit: a header, whether it is a query, and
// its parameters in order.
type Command struct {
	Path   Path
	Query  bool
	Params []Value
}

// NewCommand returns a set command.
func NewCommand(path Path, params ...Value) Command {
	return Command{Path: path, Params: params}
}

// NewQuery returns a query command.
func NewQuery(path Path, params ...Value) Command {
	return Command{Path: path, Query: true, Params: params}
}

// ParseCommand parses a single program message unit such as "VOLT 5.0" or
// "*IDN?". It is a convenience over ParseMessage for callers that hold
// commands as text.
func ParseCommand(s string) (Command, error) {
	cmds, err := ParseMessage([]byte(s))
	if err != nil {
		return Command{}, err
	}
	if len(cmds) != 1 {
		return Command{}, fmt.Errorf("scpi: %q holds %d commands, want 1", s, len(cmds))
	}
	return cmds[0], nil
}

// MustCommand is like ParseCommand but panics on error.
func MustCommand(s string) Command {
	c, err := ParseCommand(s)
	if err != nil {
		panic(err)
	}
	return c
}

// With returns a copy of c with params appended.
func (c Command) With(params ...Value) Command {
	c.Params = append(append([]Value(nil), c.Params...), params...)
	return c
}

// Equal reports whether c and o are equivalent: same node, same query flag
// and parameters that are equal or encode identically.
func (c Command) Equal(o Command) bool {
	if c.Query != o.Query || len(c.Params) != len(o.Params) || !c.Path.Equal(o.Path) {
		return false
	}
	for i, p := range c.Params {
		if p.Equal(o.Params[i]) {
			continue
		}
		a, errA := Encode(p)
		b, errB := Encode(o.Params[i])
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

func (c Command) String() string {
	b, err := appendUnit(nil, c, c.Path, FormAsGiven)
	if err != nil {
		return c.Path.String()
	}
	return string(b)
}

// Builder renders commands into program messages.
type Builder struct {
	// Terminator ends every program message. Defaults to "\n".
	Terminator string
	// Form selects how mnemonics are written.
	Form Form
	// MaxParameters limits the parameters of a single command when positive.
	MaxParameters int
}

// Build renders cmds as one program message. Commands are joined with ';'
// and every subsystem command after the first is rooted so it does not
// depend on the header of its predecessor.
func (b Builder) Build(cmds ...Command) ([]byte, error) {
	return b.Append(nil, cmds...)
}

// Append is like Build but appends to dst.
func (b Builder) Append(dst []byte, cmds ...Command) ([]byte, error) {
	if len(cmds) == 0 {
		return dst, ErrEmptyMessage
	}
	for i, c := range cmds {
		if c.Path.Len() == 0 {
			return dst, fmt.Errorf("%w: command %d has no header", ErrInvalidMnemonic, i)
		}
		if b.MaxParameters > 0 && len(c.Params) > b.MaxParameters {
			return dst, fmt.Errorf("%w: %s has %d, limit %d", ErrTooManyParameters, c.Path, len(c.Params), b.MaxParameters)
		}
	}

	for i, c := range cmds {
		path := c.Path
		if i > 0 {
			dst = append(dst, UnitSeparator)
			path = path.Rooted()
		}
		var err error
		if dst, err = appendUnit(dst, c, path, b.Form); err != nil {
			return dst, err
		}
	}

	term := b.Terminator
	if term == "" {
		term = Terminator
	}
	return append(dst, term...), nil
}

func appendUnit(dst []byte, c Command, path Path, form Form) ([]byte, error) {
	dst = append(dst, path.Render(form)...)
	if c.Query {
		dst = append(dst, QueryMarker)
	}
	for j, p := range c.Params {
		if j == 0 {
			dst = append(dst, HeaderSeparator)
		} else {
			dst = append(dst, DataSeparator)
		}
		var err error
		if dst, err = AppendValue(dst, p); err != nil {
			return dst, fmt.Errorf("%s parameter %d: %w", c.Path, j+1, err)
		}
	}
	return dst, nil
}

// ParseMessage splits a program message into its commands. Parameter kinds
// are inferred as described for Decode. Relative headers are returned as
// written; the previous header is not applied to them.
func ParseMessage(msg []byte) ([]Command, error) {
	msg = bytes.TrimSuffix(bytes.TrimSuffix(msg, []byte(Terminator)), []byte("\r"))
	units, err := splitTop(msg, UnitSeparator)
	if err != nil {
		return nil, err
	}

	cmds := make([]Command, 0, len(units))
	for _, unit := range units {
		// Trailing bytes may belong to a block payload, so only the left side
		// is trimmed here.
		unit = bytes.TrimLeft(unit, " \t\r\n")
		if len(unit) == 0 {
			return nil, fmt.Errorf("%w: empty message unit", ErrInvalidMnemonic)
		}

		header, data := unit, []byte(nil)
		if i := bytes.IndexAny(unit, " \t"); i >= 0 {
			header, data = unit[:i], bytes.TrimLeft(unit[i+1:], " \t")
		}

		var c Command
		h := string(header)
		if strings.HasSuffix(h, string(QueryMarker)) {
			c.Query = true
			h = h[:len(h)-1]
		}
		if c.Path, err = ParsePath(h); err != nil {
			return nil, err
		}

		if len(data) > 0 {
			fields, err := splitTop(data, DataSeparator)
			if err != nil {
				return nil, err
			}
			for _, f := range fields {
				v, err := Decode(f, KindAuto)
				if err != nil {
					return nil, err
				}
				c.Params = append(c.Params, v)
			}
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}
