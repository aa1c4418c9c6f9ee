package instrument

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "scpictl: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "scpictl: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_WithMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
		Mode: &serial.Mode{
			BaudRate: 115200,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
	}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
	if err != nil && !strings.Contains(err.Error(), "/dev/nonexistent") {
		t.Errorf("expected error to name the port, got: %v", err)
	}
}

func TestSerialDialer_DefaultMode(t *testing.T) {
	mode := SerialDialer{PortName: "/dev/ttyS0"}.mode()

	if mode.BaudRate != 9600 || mode.DataBits != 8 || mode.Parity != serial.NoParity || mode.StopBits != serial.OneStopBit {
		t.Errorf("expected 9600 8N1, got %+v", *mode)
	}
}

func TestTCPDialer(t *testing.T) {
	t.Run("Address required", func(t *testing.T) {
		_, err := TCPDialer{}.Dial(context.Background())
		if err == nil {
			t.Error("expected error for empty address")
		}
	})

	t.Run("Raw socket round trip", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer ln.Close()

		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err == nil && line == "*IDN?\n" {
				_, _ = conn.Write([]byte("ACME,Model1,SN123,1.0\n"))
			}
		}()

		transport, err := TCPDialer{Address: ln.Addr().String()}.Dial(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer transport.Close()

		if _, err := transport.Write([]byte("*IDN?\n")); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
		got, err := bufio.NewReader(transport).ReadString('\n')
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		if got != "ACME,Model1,SN123,1.0\n" {
			t.Errorf("unexpected response: %q", got)
		}
	})
}

func TestPrologixDialer_InvalidAddress(t *testing.T) {
	tests := []struct {
		name      string
		primary   int
		secondary int
	}{
		{"primary too high", 31, 0},
		{"primary negative", -1, 0},
		{"secondary too low", 5, 95},
		{"secondary too high", 5, 127},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := PrologixDialer{PortName: "/dev/ttyUSB0", Address: tt.primary, SecondaryAddress: tt.secondary}
			transport, err := d.Dial(context.Background())
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("expected ErrInvalidAddress, got: %v", err)
			}
			if transport != nil {
				t.Error("expected nil transport for invalid address")
			}
		})
	}
}

func expectPrologixSetup(m *MockTransport, addr string) {
	var calls []any
	for _, cmd := range []string{"mode 1", addr, "auto 0", "eoi 1", "eos 2", "read_tmo_ms 500", "eot_enable 0"} {
		line := "++" + cmd + "\n"
		calls = append(calls, m.EXPECT().Write([]byte(line)).Return(len(line), nil))
	}
	gomock.InOrder(calls...)
}

func TestPrologixTransport(t *testing.T) {
	t.Run("Setup and query", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := NewMockTransport(ctrl)
		expectPrologixSetup(mockTransport, "addr 5")

		p, err := newPrologixTransport(mockTransport, PrologixDialer{Address: 5})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		mockTransport.EXPECT().Write([]byte("*IDN?\n++read eoi\n")).Return(17, nil)
		n, err := p.Write([]byte("*IDN?\n"))
		if err != nil {
			t.Errorf("unexpected write error: %v", err)
		}
		if n != 6 {
			t.Errorf("expected 6 bytes written, got %d", n)
		}
	})

	t.Run("Command without read", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := NewMockTransport(ctrl)
		expectPrologixSetup(mockTransport, "addr 22 96")

		p, err := newPrologixTransport(mockTransport, PrologixDialer{Address: 22, SecondaryAddress: 96})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte("*RST\n")).Return(5, nil),
			mockTransport.EXPECT().Write([]byte("++spoll\n")).Return(8, nil),
			mockTransport.EXPECT().Write([]byte("++clr\n")).Return(6, nil),
		)
		if _, err := p.Write([]byte("*RST\r\n")); err != nil {
			t.Errorf("unexpected write error: %v", err)
		}
		if err := p.RequestSerialPoll(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := p.RequestDeviceClear(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Setup failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := NewMockTransport(ctrl)
		mockTransport.EXPECT().Write([]byte("++mode 1\n")).Return(0, io.ErrClosedPipe)

		if _, err := newPrologixTransport(mockTransport, PrologixDialer{}); !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("expected io.ErrClosedPipe, got: %v", err)
		}
	})
}

func TestEscapePrologix(t *testing.T) {
	got := escapePrologix([]byte("a+b\r\n\x1b"))
	want := "a\x1b+b\x1b\r\x1b\n\x1b\x1b"
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestWebSocketDialer(t *testing.T) {
	t.Run("Unsupported scheme", func(t *testing.T) {
		_, err := WebSocketDialer{URL: "http://localhost/"}.Dial(context.Background())
		if err == nil {
			t.Error("expected error for http scheme")
		}
	})

	t.Run("Binary frames carry the byte stream", func(t *testing.T) {
		auth := make(chan string, 1)
		upgrader := websocket.Upgrader{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth <- r.Header.Get("Authorization")
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_, msg, err := conn.ReadMessage()
			if err != nil || string(msg) != "*IDN?\n" {
				return
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte("ignored"))
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte("ACME,Model1,"))
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte("SN123,1.0\n"))
			_, _, _ = conn.ReadMessage()
		}))
		defer srv.Close()

		d := WebSocketDialer{
			URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
			Username: "admin",
			Password: "secret",
		}
		transport, err := d.Dial(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer transport.Close()

		if _, err := transport.Write([]byte("*IDN?\n")); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
		got, err := bufio.NewReader(transport).ReadString('\n')
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		if got != "ACME,Model1,SN123,1.0\n" {
			t.Errorf("unexpected response: %q", got)
		}
		if got := <-auth; got != "Basic YWRtaW46c2VjcmV0" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
	})
}
