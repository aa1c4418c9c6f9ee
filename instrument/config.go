package instrument

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"i4.energy/across/scpictl/scpi"
)

// SyncMode selects how WaitOperationComplete detects completion.
type SyncMode int

const (
	// SyncOPCQuery sends *OPC? and waits for the instrument to answer "1".
	SyncOPCQuery SyncMode = iota
	// SyncESRPoll sends *OPC and polls *ESR? until the OPC bit is set.
	SyncESRPoll
)

func (m SyncMode) String() string {
	switch m {
	case SyncOPCQuery:
		return "opc-query"
	case SyncESRPoll:
		return "esr-poll"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// ParseSyncMode parses the names returned by SyncMode.String.
func ParseSyncMode(s string) (SyncMode, error) {
	switch s {
	case "opc-query", "":
		return SyncOPCQuery, nil
	case "esr-poll":
		return SyncESRPoll, nil
	}
	return 0, fmt.Errorf("unknown sync mode %q", s)
}

// Clock is the time source of polling loops. Tests replace it to make poll
// counts and deadlines deterministic.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Defaults follow IEEE 488.2 and SCPI 1999.0 as commonly implemented.
// Instruments that deviate are handled by overriding them.
const (
	DefaultTimeout         = 5 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultErrorQueueLimit = 100
	DefaultMaxResponseSize = 1 << 20
)

// Config holds the settings of a Session. Build it with NewConfigBuilder.
type Config struct {
	dialer          Dialer
	timeout         time.Duration
	pollInterval    time.Duration
	syncMode        SyncMode
	errorQueueLimit int
	errorQuery      scpi.Command
	terminator      string
	form            scpi.Form
	maxParameters   int
	maxResponseSize int
	autoCheckErrors bool
	clearOnOpen     bool
	eventEnable     byte
	serviceEnable   byte
	clock           Clock
	logger          *slog.Logger
}

func (c *Config) setDefaults() {
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.errorQueueLimit <= 0 {
		c.errorQueueLimit = DefaultErrorQueueLimit
	}
	if c.errorQuery.Path.Len() == 0 {
		c.errorQuery = scpi.MustCommand(scpi.CmdSystemErrorQ)
	}
	if c.terminator == "" {
		c.terminator = scpi.Terminator
	}
	if c.maxResponseSize <= 0 {
		c.maxResponseSize = DefaultMaxResponseSize
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if !c.errorQuery.Query {
		return fmt.Errorf("error query %s is not a query", c.errorQuery)
	}
	return nil
}

// Timeout returns the per-operation response timeout.
func (c Config) Timeout() time.Duration {
	return c.timeout
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
	err    error
}

// NewConfigBuilder returns a builder preloaded with the defaults: automatic
// error checks and a *CLS plus *ESE on open enabled, *OPC? synchronization.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: Config{
		autoCheckErrors: true,
		clearOnOpen:     true,
		eventEnable:     byte(scpi.EventErrors),
	}}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithTimeout sets how long an operation waits for a response when the
// caller's context has no deadline.
func (b *ConfigBuilder) WithTimeout(d time.Duration) *ConfigBuilder {
	b.config.timeout = d
	return b
}

// WithPollInterval sets the pause between status polls.
func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.pollInterval = d
	return b
}

func (b *ConfigBuilder) WithSyncMode(m SyncMode) *ConfigBuilder {
	b.config.syncMode = m
	return b
}

// WithErrorQueueLimit caps how many entries one drain may read.
func (b *ConfigBuilder) WithErrorQueueLimit(n int) *ConfigBuilder {
	b.config.errorQueueLimit = n
	return b
}

// WithErrorQuery replaces :SYSTem:ERRor? for instruments that only know
// another form, e.g. "SYST:ERR:NEXT?".
func (b *ConfigBuilder) WithErrorQuery(query string) *ConfigBuilder {
	cmd, err := scpi.ParseCommand(query)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("error query: %w", err))
		return b
	}
	b.config.errorQuery = cmd
	return b
}

// WithTerminator sets the program and response message terminator.
func (b *ConfigBuilder) WithTerminator(term string) *ConfigBuilder {
	b.config.terminator = term
	return b
}

// WithForm selects long, short or as-given mnemonics on the wire.
func (b *ConfigBuilder) WithForm(f scpi.Form) *ConfigBuilder {
	b.config.form = f
	return b
}

func (b *ConfigBuilder) WithMaxParameters(n int) *ConfigBuilder {
	b.config.maxParameters = n
	return b
}

func (b *ConfigBuilder) WithMaxResponseSize(n int) *ConfigBuilder {
	b.config.maxResponseSize = n
	return b
}

// WithAutoCheckErrors toggles the status check after every operation.
func (b *ConfigBuilder) WithAutoCheckErrors(on bool) *ConfigBuilder {
	b.config.autoCheckErrors = on
	return b
}

// WithClearOnOpen toggles the *CLS, *ESE and *SRE sequence sent by Open.
func (b *ConfigBuilder) WithClearOnOpen(on bool) *ConfigBuilder {
	b.config.clearOnOpen = on
	return b
}

// WithEnableMasks sets the *ESE and *SRE values sent by Open.
func (b *ConfigBuilder) WithEnableMasks(event, service byte) *ConfigBuilder {
	b.config.eventEnable = event
	b.config.serviceEnable = service
	return b
}

func (b *ConfigBuilder) WithClock(c Clock) *ConfigBuilder {
	b.config.clock = c
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	if b.err != nil {
		return Config{}, b.err
	}
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
