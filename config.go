package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.bug.st/serial"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"i4.energy/across/scpictl/instrument"
	"i4.energy/across/scpictl/scpi"
)

// Transports selectable with --transport.
const (
	TransportSerial    = "serial"
	TransportPrologix  = "prologix"
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
	TransportSimulator = "sim"
)

// Config holds the application configuration
type Config struct {
	// Transport is one of serial, prologix, tcp, ws or sim. When empty it is
	// inferred from URL, Address and SerialPort in that order.
	Transport string `yaml:"transport"`
	// SerialPort is the instrument's or adapter's serial device (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the serial baud rate (e.g. 9600)
	BaudRate int `yaml:"baud_rate"`
	// GPIBAddress is the primary address behind a Prologix adapter
	GPIBAddress int `yaml:"gpib_address"`
	// Address is host or host:port of a raw SCPI socket
	Address string `yaml:"address"`
	// URL of a serial-to-WebSocket bridge (ws:// or wss://)
	URL string `yaml:"url"`
	// Username for HTTP Basic auth on the WebSocket bridge
	Username string `yaml:"username"`
	// Password is only read from SCPICTL_PASSWORD or a prompt
	Password    string `yaml:"-"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`

	// Timeout is the per-operation response timeout
	Timeout time.Duration `yaml:"timeout"`
	// PollInterval is the pause between status polls
	PollInterval time.Duration `yaml:"poll_interval"`
	// SyncMode is "opc-query" or "esr-poll"
	SyncMode        string `yaml:"sync_mode"`
	ErrorQueueLimit int    `yaml:"error_queue_limit"`
	// Terminator is "lf" or "crlf"
	Terminator string `yaml:"terminator"`
	// AutoCheck enables the status check after every operation
	AutoCheck bool `yaml:"auto_check"`

	// BindAddress is the address the gateway listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 9600
		c.Timeout = instrument.DefaultTimeout
		c.PollInterval = instrument.DefaultPollInterval
		c.SyncMode = instrument.SyncOPCQuery.String()
		c.ErrorQueueLimit = instrument.DefaultErrorQueueLimit
		c.Terminator = "lf"
		c.AutoCheck = true
		c.BindAddress = "0.0.0.0:8080"
		c.LogLevel = "info"
		return nil
	}
}

// WithFile loads configuration from a YAML file. Keys missing from the file
// keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from SCPICTL_* environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		var errs []error
		str := func(name string, dst *string) {
			if v := os.Getenv(name); v != "" {
				*dst = v
			}
		}
		num := func(name string, dst *int) {
			if v := os.Getenv(name); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
					return
				}
				*dst = n
			}
		}
		dur := func(name string, dst *time.Duration) {
			if v := os.Getenv(name); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", name, err))
					return
				}
				*dst = d
			}
		}

		str("SCPICTL_TRANSPORT", &c.Transport)
		str("SCPICTL_SERIAL_PORT", &c.SerialPort)
		num("SCPICTL_BAUD_RATE", &c.BaudRate)
		num("SCPICTL_GPIB_ADDRESS", &c.GPIBAddress)
		str("SCPICTL_ADDRESS", &c.Address)
		str("SCPICTL_URL", &c.URL)
		str("SCPICTL_USERNAME", &c.Username)
		str("SCPICTL_PASSWORD", &c.Password)
		dur("SCPICTL_TIMEOUT", &c.Timeout)
		dur("SCPICTL_POLL_INTERVAL", &c.PollInterval)
		str("SCPICTL_SYNC_MODE", &c.SyncMode)
		num("SCPICTL_ERROR_QUEUE_LIMIT", &c.ErrorQueueLimit)
		str("SCPICTL_TERMINATOR", &c.Terminator)
		str("SCPICTL_BIND_ADDRESS", &c.BindAddress)
		str("SCPICTL_LOG_LEVEL", &c.LogLevel)

		return errors.Join(errs...)
	}
}

// WithFlags loads configuration from the command-line flags the user set
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var errs []error
		fSet.Visit(func(f *pflag.Flag) {
			v := f.Value.String()
			var err error
			switch f.Name {
			case "transport":
				c.Transport = v
			case "port":
				c.SerialPort = v
			case "baud":
				c.BaudRate, err = strconv.Atoi(v)
			case "gpib":
				c.GPIBAddress, err = strconv.Atoi(v)
			case "address":
				c.Address = v
			case "url":
				c.URL = v
			case "username":
				c.Username = v
			case "no-ssl-verify":
				c.NoSSLVerify, err = strconv.ParseBool(v)
			case "timeout":
				c.Timeout, err = time.ParseDuration(v)
			case "poll-interval":
				c.PollInterval, err = time.ParseDuration(v)
			case "sync":
				c.SyncMode = v
			case "error-limit":
				c.ErrorQueueLimit, err = strconv.Atoi(v)
			case "terminator":
				c.Terminator = v
			case "auto-check":
				c.AutoCheck, err = strconv.ParseBool(v)
			case "bind":
				c.BindAddress = v
			case "log-level":
				c.LogLevel = v
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
			}
		})
		return errors.Join(errs...)
	}
}

func (c *Config) transport() string {
	switch {
	case c.Transport != "":
		return c.Transport
	case c.URL != "":
		return TransportWebSocket
	case c.Address != "":
		return TransportTCP
	default:
		return TransportSerial
	}
}

// Dialer returns the dialer for the configured transport and a description
// of it for logs.
func (c *Config) Dialer() (instrument.Dialer, string, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	switch t := c.transport(); t {
	case TransportSerial:
		return instrument.SerialDialer{PortName: c.SerialPort, Mode: mode},
			fmt.Sprintf("serial: %s @ %d baud", c.SerialPort, c.BaudRate), nil

	case TransportPrologix:
		return instrument.PrologixDialer{PortName: c.SerialPort, Address: c.GPIBAddress, Mode: mode},
			fmt.Sprintf("prologix: %s GPIB %d", c.SerialPort, c.GPIBAddress), nil

	case TransportTCP:
		return instrument.TCPDialer{Address: c.Address, Timeout: c.Timeout},
			fmt.Sprintf("tcp: %s", c.Address), nil

	case TransportWebSocket:
		password := c.Password
		if c.Username != "" && password == "" {
			var err error
			if password, err = readPassword(); err != nil {
				return nil, "", err
			}
		}
		return instrument.WebSocketDialer{
			URL:                c.URL,
			Username:           c.Username,
			Password:           password,
			InsecureSkipVerify: c.NoSSLVerify,
		}, fmt.Sprintf("websocket: %s", c.URL), nil

	case TransportSimulator:
		return instrument.NewSimulator(), "simulator", nil

	default:
		return nil, "", fmt.Errorf("unknown transport %q", t)
	}
}

// SessionConfig builds the instrument session configuration.
func (c *Config) SessionConfig(dialer instrument.Dialer, logger *slog.Logger) (instrument.Config, error) {
	syncMode, err := instrument.ParseSyncMode(c.SyncMode)
	if err != nil {
		return instrument.Config{}, err
	}

	var terminator string
	switch strings.ToLower(c.Terminator) {
	case "lf", "":
		terminator = scpi.Terminator
	case "crlf":
		terminator = scpi.CRLF
	default:
		return instrument.Config{}, fmt.Errorf("unknown terminator %q (use lf or crlf)", c.Terminator)
	}

	return instrument.NewConfigBuilder().
		WithDialer(dialer).
		WithTimeout(c.Timeout).
		WithPollInterval(c.PollInterval).
		WithSyncMode(syncMode).
		WithErrorQueueLimit(c.ErrorQueueLimit).
		WithTerminator(terminator).
		WithAutoCheckErrors(c.AutoCheck).
		WithLogger(logger).
		Build()
}

// readPassword prompts for the bridge password without echo.
func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, e.g. piped input.
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
