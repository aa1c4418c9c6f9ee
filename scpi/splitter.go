package scpi

import (
	"bufio"
	"bytes"
	"strconv"
)

// Splitter frames response messages ending in Terminator. See NewSplitter.
var Splitter = NewSplitter(Terminator)

var _ bufio.SplitFunc = Splitter

// NewSplitter returns a split function for bufio.Scanner that yields one
// response message per token, terminator included.
//
// A terminator only ends a message outside string data and outside definite
// length block payloads. Block payloads are skipped by their declared length,
// so binary data that happens to contain the terminator is never cut. A
// string may contain the terminator only if its closing quote has arrived
// by the time the terminator has.
//
// When atEOF is set any remaining data is returned as the final token, which
// lets the parser report it as unterminated.
func NewSplitter(term string) bufio.SplitFunc {
	if term == "" {
		term = Terminator
	}
	t := []byte(term)

	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		elementStart := true
		for i := 0; i < len(data); {
			c := data[i]
			switch {
			case bytes.HasPrefix(data[i:], t):
				end := i + len(t)
				return end, data[:end], nil

			case c == DataSeparator || c == UnitSeparator || c == ' ':
				elementStart = true
				i++
				continue

			case elementStart && (c == '"' || c == '\''):
				end, ok := quotedEnd(data, i)
				if ok {
					i = end
					break
				}
				// A string still open when a terminator arrives ends the
				// message there. The parser reports it as unterminated.
				if j := bytes.Index(data[i:], t); j >= 0 {
					end := i + j + len(t)
					return end, data[:end], nil
				}
				return more(data, atEOF)

			case elementStart && c == BlockPrefix:
				end, ok := blockEnd(data, i)
				if !ok {
					return more(data, atEOF)
				}
				i = end

			default:
				i++
			}
			elementStart = false
		}
		return more(data, atEOF)
	}
}

func more(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// blockEnd returns the offset past a definite length block starting at
// data[i]. Anything that is not a definite block header is stepped over
// by one byte. ok is false when more data is needed.
func blockEnd(data []byte, i int) (int, bool) {
	if i+1 >= len(data) {
		return 0, false
	}
	d := data[i+1]
	if d < '1' || d > '9' {
		return i + 1, true
	}
	header := i + 2 + int(d-'0')
	if header > len(data) {
		return 0, false
	}
	length, err := strconv.Atoi(string(data[i+2 : header]))
	if err != nil || length < 0 {
		return i + 1, true
	}
	if header+length > len(data) {
		return 0, false
	}
	return header + length, true
}
