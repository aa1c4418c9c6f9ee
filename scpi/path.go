package scpi

import (
	"fmt"
	"strconv"
	"strings"
)

// Form selects how Builder renders mnemonics.
type Form int

const (
	// FormAsGiven keeps mnemonics exactly as they were supplied.
	FormAsGiven Form = iota
	// FormLong renders the upper case long form, e.g. CHANNEL.
	FormLong
	// FormShort renders the short form, e.g. CHAN.
	FormShort
)

// Segment is one node of a command tree header such as "CHANnel2".
type Segment struct {
	// Mnemonic in SCPI mixed case notation. The upper case prefix is the
	// short form.
	Mnemonic string
	// Suffix is the numeric suffix. Only meaningful when HasSuffix is set.
	Suffix    int
	HasSuffix bool
}

// NewSegment validates mnemonic and returns a segment. A negative suffix
// means none.
func NewSegment(mnemonic string, suffix int) (Segment, error) {
	// A trailing digit would be read back as a suffix.
	if !isMnemonic(mnemonic) || isDigit(mnemonic[len(mnemonic)-1]) {
		return Segment{}, fmt.Errorf("%w: %q", ErrInvalidMnemonic, mnemonic)
	}
	seg := Segment{Mnemonic: mnemonic}
	if suffix >= 0 {
		seg.Suffix, seg.HasSuffix = suffix, true
	}
	return seg, nil
}

// Long returns the upper case long form without suffix.
func (s Segment) Long() string {
	return strings.ToUpper(s.Mnemonic)
}

// Short returns the short form without suffix. Mnemonics written entirely
// in one case have no distinguishable short form and return Long.
func (s Segment) Short() string {
	upper, lower := 0, 0
	for i := 0; i < len(s.Mnemonic); i++ {
		switch c := s.Mnemonic[i]; {
		case c >= 'A' && c <= 'Z':
			upper++
		case c >= 'a' && c <= 'z':
			lower++
		}
	}
	if upper == 0 || lower == 0 {
		return s.Long()
	}
	var sb strings.Builder
	for i := 0; i < len(s.Mnemonic); i++ {
		if c := s.Mnemonic[i]; c < 'a' || c > 'z' {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// suffix returns the effective suffix; an absent suffix addresses node 1.
func (s Segment) suffix() int {
	if !s.HasSuffix {
		return 1
	}
	return s.Suffix
}

func (s Segment) render(form Form) string {
	var m string
	switch form {
	case FormLong:
		m = s.Long()
	case FormShort:
		m = s.Short()
	default:
		m = s.Mnemonic
	}
	if s.HasSuffix {
		m += strconv.Itoa(s.Suffix)
	}
	return m
}

// Path is an immutable command header: either a common command such as
// *IDN or a sequence of subsystem segments.
type Path struct {
	segments []Segment
	common   bool
	rooted   bool
}

// NewPath returns a relative path made of segs.
func NewPath(segs ...Segment) (Path, error) {
	if len(segs) == 0 {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidMnemonic)
	}
	for _, s := range segs {
		if _, err := NewSegment(s.Mnemonic, -1); err != nil {
			return Path{}, err
		}
		if s.HasSuffix && s.Suffix < 0 {
			return Path{}, fmt.Errorf("%w: negative suffix on %q", ErrInvalidMnemonic, s.Mnemonic)
		}
	}
	return Path{segments: append([]Segment(nil), segs...)}, nil
}

// Common returns the path of a common command. The leading '*' is optional.
func Common(name string) (Path, error) {
	name = strings.TrimPrefix(name, string(CommonPrefix))
	if name == "" {
		return Path{}, fmt.Errorf("%w: empty common command", ErrInvalidMnemonic)
	}
	for i := 0; i < len(name); i++ {
		if !isLetter(name[i]) {
			return Path{}, fmt.Errorf("%w: common command %q", ErrInvalidMnemonic, name)
		}
	}
	return Path{segments: []Segment{{Mnemonic: name}}, common: true}, nil
}

// ParsePath parses a header such as ":SOURce1:VOLTage" or "*RST". The query
// marker is not part of a path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, string(CommonPrefix)) {
		return Common(s)
	}

	var p Path
	if strings.HasPrefix(s, string(PathSeparator)) {
		p.rooted = true
		s = s[1:]
	}
	for part := range strings.SplitSeq(s, string(PathSeparator)) {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, err
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

// MustPath is like ParsePath but panics on error. It is meant for headers
// fixed at compile time.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(part string) (Segment, error) {
	end := len(part)
	for end > 0 && isDigit(part[end-1]) {
		end--
	}
	suffix := -1
	if end < len(part) {
		n, err := strconv.Atoi(part[end:])
		if err != nil {
			return Segment{}, fmt.Errorf("%w: suffix in %q", ErrInvalidMnemonic, part)
		}
		suffix = n
	}
	return NewSegment(part[:end], suffix)
}

// Segments returns a copy of the path's segments.
func (p Path) Segments() []Segment {
	return append([]Segment(nil), p.segments...)
}

func (p Path) Len() int {
	return len(p.segments)
}

// IsCommon reports whether p names an IEEE 488.2 common command.
func (p Path) IsCommon() bool {
	return p.common
}

// IsRooted reports whether p starts at the root of the command tree.
func (p Path) IsRooted() bool {
	return p.rooted
}

// Rooted returns a copy of p anchored at the tree root.
func (p Path) Rooted() Path {
	if !p.common {
		p.rooted = true
	}
	return p
}

// Render formats p in the given form.
func (p Path) Render(form Form) string {
	var sb strings.Builder
	if p.common {
		sb.WriteByte(CommonPrefix)
		sb.WriteString(strings.ToUpper(p.segments[0].Mnemonic))
		return sb.String()
	}
	for i, s := range p.segments {
		if i > 0 || p.rooted {
			sb.WriteByte(PathSeparator)
		}
		sb.WriteString(s.render(form))
	}
	return sb.String()
}

func (p Path) String() string {
	return p.Render(FormAsGiven)
}

// Equal reports whether p and o address the same node. Case, short versus
// long form and rooting are ignored, and an absent suffix equals suffix 1.
func (p Path) Equal(o Path) bool {
	if p.common != o.common || len(p.segments) != len(o.segments) {
		return false
	}
	for i, s := range p.segments {
		t := o.segments[i]
		if s.suffix() != t.suffix() {
			return false
		}
		if s.Long() == t.Long() {
			continue
		}
		// One side may be written in short form only.
		sl, tl := s.Long(), t.Long()
		if sl != t.Short() && tl != s.Short() {
			return false
		}
	}
	return true
}

// Matches reports whether p is accepted by a header pattern in SCPI
// notation, e.g. "SYSTem:ERRor[:NEXT]" or "[SOURce#]:VOLTage[:LEVel]". Each
// segment must use exactly the long or the short form of its node. A
// trailing query marker in the pattern is ignored.
func (p Path) Matches(pattern string) bool {
	pattern = strings.TrimSuffix(strings.TrimSpace(pattern), string(QueryMarker))
	if strings.HasPrefix(pattern, string(CommonPrefix)) {
		return p.common && strings.EqualFold(pattern[1:], p.segments[0].Mnemonic)
	}
	if p.common {
		return false
	}
	nodes, ok := parsePattern(pattern)
	if !ok {
		return false
	}
	return matchNodes(nodes, p.segments)
}

type patternNode struct {
	seg      Segment
	optional bool
	suffixed bool
}

func (n patternNode) match(s Segment) bool {
	m := s.Long()
	if m != n.seg.Long() && m != n.seg.Short() {
		return false
	}
	return n.suffixed || s.suffix() == 1
}

func parsePattern(pattern string) ([]patternNode, bool) {
	var nodes []patternNode
	for i := 0; i < len(pattern); {
		switch pattern[i] {
		case PathSeparator:
			i++
			continue
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				return nil, false
			}
			inner := strings.TrimPrefix(pattern[i+1:i+end], string(PathSeparator))
			for part := range strings.SplitSeq(inner, string(PathSeparator)) {
				node, ok := parseNode(part)
				if !ok {
					return nil, false
				}
				node.optional = true
				nodes = append(nodes, node)
			}
			i += end + 1
		default:
			end := strings.IndexAny(pattern[i:], ":[")
			if end < 0 {
				end = len(pattern) - i
			}
			node, ok := parseNode(pattern[i : i+end])
			if !ok {
				return nil, false
			}
			nodes = append(nodes, node)
			i += end
		}
	}
	return nodes, len(nodes) > 0
}

func parseNode(s string) (patternNode, bool) {
	n := patternNode{}
	if strings.HasSuffix(s, "#") {
		n.suffixed = true
		s = s[:len(s)-1]
	}
	if !isMnemonic(s) {
		return n, false
	}
	n.seg = Segment{Mnemonic: s}
	return n, true
}

func matchNodes(nodes []patternNode, segs []Segment) bool {
	if len(nodes) == 0 {
		return len(segs) == 0
	}
	n := nodes[0]
	if len(segs) > 0 && n.match(segs[0]) && matchNodes(nodes[1:], segs[1:]) {
		return true
	}
	return n.optional && matchNodes(nodes[1:], segs)
}
