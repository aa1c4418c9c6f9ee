package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/scpictl/instrument"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "scpictl",
	Short: "IEEE 488.2 / SCPI instrument controller",
	Long: `scpictl talks to SCPI instruments over serial, a Prologix GPIB-USB
adapter, a raw TCP socket (port 5025) or a serial-to-WebSocket bridge.

Every operation is followed by a status byte check; errors the instrument
reports are read from its error queue and returned.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  Prologix:  --transport prologix --port /dev/ttyUSB0 --gpib 5
  TCP:       --address 192.168.1.20[:5025]
  WebSocket: --url ws://host/path [--username user]
  Simulator: --transport sim

For WebSocket authentication, the password is read from the SCPICTL_PASSWORD
environment variable, or prompted interactively if not set.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "YAML configuration file")

	flags.String("transport", "", "Transport: serial, prologix, tcp, ws or sim (inferred when empty)")
	flags.StringP("port", "p", "/dev/ttyUSB0", "Serial port device")
	flags.IntP("baud", "b", 9600, "Baud rate (serial and prologix)")
	flags.Int("gpib", 0, "GPIB primary address (prologix only)")
	flags.StringP("address", "a", "", "Instrument host[:port] for raw SCPI over TCP")
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.Duration("timeout", instrument.DefaultTimeout, "Response timeout per operation")
	flags.Duration("poll-interval", instrument.DefaultPollInterval, "Interval between status polls")
	flags.String("sync", instrument.SyncOPCQuery.String(), "Completion wait: opc-query or esr-poll")
	flags.Int("error-limit", instrument.DefaultErrorQueueLimit, "Maximum error queue entries read per check")
	flags.String("terminator", "lf", "Message terminator: lf or crlf")
	flags.Bool("auto-check", true, "Check the status byte after every operation")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges defaults, the config file, the environment and the
// flags the user set, in that order.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	return LoadConfig(WithDefaults(), WithFile(configFile), WithEnv(), WithFlags(cmd.Flags()))
}

// connection is an open session together with the settings it was opened
// with. Its context is cancelled on SIGINT or SIGTERM.
type connection struct {
	*instrument.Session
	ctx    context.Context
	config *Config
	logger *slog.Logger
	info   string
	stop   context.CancelFunc
}

// openSession loads the configuration and opens a session to the
// instrument.
func openSession(cmd *cobra.Command) (*connection, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := newLogger(config.LogLevel)

	dialer, connInfo, err := config.Dialer()
	if err != nil {
		return nil, err
	}
	sessionConfig, err := config.SessionConfig(dialer, logger.With("component", "session"))
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger.Debug("Opening session", "connection", connInfo)
	session, err := instrument.Open(ctx, sessionConfig)
	if err != nil {
		stop()
		return nil, fmt.Errorf("open %s: %w", connInfo, err)
	}

	return &connection{
		Session: session,
		ctx:     ctx,
		config:  config,
		logger:  logger,
		info:    connInfo,
		stop:    stop,
	}, nil
}

func (c *connection) Close() error {
	defer c.stop()
	if err := c.Session.Close(); err != nil && !errors.Is(err, instrument.ErrAlreadyClosed) {
		c.logger.Error("Failed to close session", "error", err)
		return err
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the instrument over HTTP",
	Long: `Hold one session to the instrument and serve it over HTTP.

Endpoints:
  POST /command  {"command": "VOLT 5.0"}
  POST /query    {"query": "MEAS:VOLT?", "shape": "scalar|list|block", "kind": "numeric"}
  GET  /idn, /status, /errors, /metrics
  POST /reset, /clear, /wait {"timeout": "2s"}`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("bind", "0.0.0.0:8080", "Bind address for the HTTP server")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	conn, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger := conn.logger

	logger.Info("Starting SCPI gateway", "connection", conn.info)

	metrics := NewMetrics()
	metrics.SetState(conn.State())

	httpServer := &http.Server{
		Addr: conn.config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Session: conn.Session,
			Metrics: metrics,
		},
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		logger.Error("HTTP server failed", "error", err)
		return err
	case <-conn.ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		return err
	}
	return nil
}
