package instrument

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/scpictl/scpi"
)

const (
	prologixPrefix = "++"
	prologixEscape = 0x1B

	// DefaultPrologixReadTimeout is the adapter's inter-character timeout.
	DefaultPrologixReadTimeout = 500 * time.Millisecond
)

// PrologixDialer opens a GPIB instrument through a Prologix GPIB-USB
// controller, or an AR488 clone, on its virtual COM port.
//
// The adapter is put in controller mode with read-after-write disabled, so
// the transport asks for a response with "++read eoi" after every program
// message containing a query. Serial poll and device clear are offered in
// band, as "++spoll" and "++clr".
type PrologixDialer struct {
	PortName string
	// Address is the primary GPIB address, 0-30.
	Address int
	// SecondaryAddress is 96-126, or zero for none.
	SecondaryAddress int
	// ReadTimeout defaults to DefaultPrologixReadTimeout.
	ReadTimeout time.Duration
	// Mode is ignored by most adapters, which are USB devices.
	Mode *serial.Mode
}

func (d PrologixDialer) Dial(ctx context.Context) (Transport, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	port, err := SerialDialer{PortName: d.PortName, Mode: d.Mode}.Dial(ctx)
	if err != nil {
		return nil, err
	}

	t, err := newPrologixTransport(port, d)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("configure prologix adapter: %w", err)
	}
	return t, nil
}

func (d PrologixDialer) validate() error {
	if d.Address < 0 || d.Address > 30 {
		return fmt.Errorf("%w: %d (must be 0-30)", ErrInvalidAddress, d.Address)
	}
	if d.SecondaryAddress != 0 && (d.SecondaryAddress < 96 || d.SecondaryAddress > 126) {
		return fmt.Errorf("%w: secondary %d (must be 96-126)", ErrInvalidAddress, d.SecondaryAddress)
	}
	return nil
}

func (d PrologixDialer) setup() []string {
	addr := fmt.Sprintf("addr %d", d.Address)
	if d.SecondaryAddress != 0 {
		addr = fmt.Sprintf("addr %d %d", d.Address, d.SecondaryAddress)
	}
	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultPrologixReadTimeout
	}
	return []string{
		"mode 1",
		addr,
		"auto 0",
		"eoi 1",
		"eos 2", // LF
		fmt.Sprintf("read_tmo_ms %d", min(max(timeout.Milliseconds(), 1), 3000)),
		"eot_enable 0",
	}
}

type prologixTransport struct {
	io.ReadWriteCloser
}

var _ InBandController = (*prologixTransport)(nil)

func newPrologixTransport(rwc io.ReadWriteCloser, d PrologixDialer) (*prologixTransport, error) {
	t := &prologixTransport{ReadWriteCloser: rwc}
	for _, cmd := range d.setup() {
		if err := t.command(cmd); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Write sends one program message to the instrument. The SCPI terminator is
// replaced by the adapter's own, which appends LF with EOI on the bus.
func (t *prologixTransport) Write(p []byte) (int, error) {
	body := bytes.TrimSuffix(p, []byte(scpi.Terminator))
	body = bytes.TrimSuffix(body, []byte("\r"))
	msg := append(escapePrologix(body), '\n')
	if expectsResponse(body) {
		msg = append(msg, prologixPrefix+"read eoi\n"...)
	}
	if _, err := t.ReadWriteCloser.Write(msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *prologixTransport) RequestSerialPoll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.command("spoll")
}

func (t *prologixTransport) RequestDeviceClear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.command("clr")
}

func (t *prologixTransport) command(cmd string) error {
	_, err := t.ReadWriteCloser.Write([]byte(prologixPrefix + cmd + "\n"))
	return err
}

// escapePrologix protects bytes the adapter would otherwise interpret.
func escapePrologix(p []byte) []byte {
	out := make([]byte, 0, len(p)+8)
	for _, c := range p {
		switch c {
		case '\r', '\n', prologixEscape, '+':
			out = append(out, prologixEscape)
		}
		out = append(out, c)
	}
	return out
}

func expectsResponse(msg []byte) bool {
	cmds, err := scpi.ParseMessage(msg)
	if err != nil {
		return strings.ContainsRune(string(msg), scpi.QueryMarker)
	}
	for _, c := range cmds {
		if c.Query {
			return true
		}
	}
	return false
}
