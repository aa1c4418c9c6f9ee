package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_transport_test.go -package=instrument . Transport,Dialer,SerialPoller,DeviceClearer,Querier

// Transport represents an established, bidirectional byte stream to an
// instrument.
//
// A Transport is assumed to be already connected and ready for use. The
// Session is its only user: one goroutine reads, and writes are serialized
// by the Session. Typical implementations include serial ports, raw SCPI
// sockets, GPIB adapters or the in-memory Simulator.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to an instrument.
//
// Dialer abstracts how the connection is created and is used during Open
// only. Once a Transport is obtained, the Dialer is no longer needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may block and
	// should respect cancellation and deadlines provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// SerialPoller is implemented by transports that can read the Status Byte
// out of band, as a GPIB serial poll or a HiSLIP/VXI-11 status query does.
type SerialPoller interface {
	SerialPoll(ctx context.Context) (byte, error)
}

// DeviceClearer is implemented by transports that can send a device clear
// message out of band.
type DeviceClearer interface {
	DeviceClear(ctx context.Context) error
}

// InBandController is implemented by adapters that accept controller
// commands inside the data stream, like the Prologix GPIB-USB controller.
type InBandController interface {
	// RequestSerialPoll writes the adapter's serial poll command. The
	// adapter answers with the Status Byte as a decimal response message.
	RequestSerialPoll(ctx context.Context) error
	// RequestDeviceClear writes the adapter's selected device clear command.
	RequestDeviceClear(ctx context.Context) error
}

var (
	errSerialPortRequired = errors.New("scpictl: serial port name is required")
	errNilContext         = errors.New("scpictl: context is nil")
)

// SerialDialer opens an instrument over an RS-232 port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	// Mode defaults to 9600 8N1, the usual factory setting of bench
	// instruments.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errSerialPortRequired
	}
	if ctx == nil {
		return nil, errNilContext
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(d.PortName, d.mode())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}

func (d SerialDialer) mode() *serial.Mode {
	if d.Mode != nil {
		return d.Mode
	}
	return &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// DefaultSCPIPort is the IANA registered port for raw SCPI sockets.
const DefaultSCPIPort = "5025"

// TCPDialer opens a raw SCPI socket, as LXI instruments expose on port 5025.
type TCPDialer struct {
	// Address is host or host:port. The port defaults to DefaultSCPIPort.
	Address string
	// Timeout bounds the connect. Zero means the context alone decides.
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context) (Transport, error) {
	if d.Address == "" {
		return nil, errors.New("scpictl: address is required")
	}
	if ctx == nil {
		return nil, errNilContext
	}

	addr := d.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultSCPIPort)
	}

	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: 30 * time.Second}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return conn, nil
}
