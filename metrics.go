package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"i4.energy/across/scpictl/instrument"
)

// Metrics collects gateway statistics on its own registry so that tests can
// create as many servers as they need.
type Metrics struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	instrumentErrors *prometheus.CounterVec
	sessionState     prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scpictl_operations_total",
				Help: "Instrument operations by kind and result.",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scpictl_operation_duration_seconds",
				Help:    "Time spent on an instrument operation, including the status check.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		instrumentErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scpictl_instrument_errors_total",
				Help: "Error queue entries reported by the instrument, by code.",
			},
			[]string{"code"},
		),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scpictl_session_state",
			Help: "Session state (0 disconnected, 1 idle, 2 awaiting response, 3 awaiting completion).",
		}),
	}

	m.registry.MustRegister(m.operations, m.duration, m.instrumentErrors, m.sessionState)
	return m
}

// Observe records one finished operation.
func (m *Metrics) Observe(op string, started time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()

	var ie *instrument.InstrumentError
	if errors.As(err, &ie) {
		for _, e := range ie.Entries {
			m.instrumentErrors.WithLabelValues(strconv.Itoa(e.Code)).Inc()
		}
	}
}

func (m *Metrics) SetState(state instrument.State) {
	m.sessionState.Set(float64(state))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	var ie *instrument.InstrumentError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ie):
		return "instrument_error"
	case errors.Is(err, instrument.ErrOperationTimeout):
		return "timeout"
	default:
		return "error"
	}
}
