package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"i4.energy/across/scpictl/instrument"
	"i4.energy/across/scpictl/scpi"
)

func newTestServer(t *testing.T, sim *instrument.Simulator) *Server {
	t.Helper()

	config, err := instrument.NewConfigBuilder().
		WithDialer(sim).
		WithTimeout(100 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session, err := instrument.Open(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return &Server{
		Logger:  slog.New(slog.DiscardHandler),
		Session: session,
		Metrics: NewMetrics(),
	}
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestServer(t *testing.T) {
	t.Run("Identity", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		w := do(s, http.MethodGet, "/idn", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
		}
		var resp struct {
			Manufacturer string `json:"manufacturer"`
			Model        string `json:"model"`
			SerialNumber string `json:"serial_number"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Manufacturer != "ACME" || resp.Model != "Model1" || resp.SerialNumber != "SN123" {
			t.Errorf("unexpected identity: %+v", resp)
		}
	})

	t.Run("Command then query", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		w := do(s, http.MethodPost, "/command", `{"command": "VOLT 5.0"}`)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d: %s", w.Code, w.Body)
		}

		w = do(s, http.MethodPost, "/query", `{"query": "VOLT?", "kind": "numeric"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
		}
		var resp queryResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Shape != "scalar" || len(resp.Values) != 1 || resp.Values[0] != 5.0 {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("List query", func(t *testing.T) {
		sim := instrument.NewSimulator()
		sim.Handle("MEASure:ARRay?", func(scpi.Command) (string, int) { return "1.5,2,-3E-1", 0 })
		s := newTestServer(t, sim)

		w := do(s, http.MethodPost, "/query", `{"query": "MEAS:ARR?", "shape": "list"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
		}
		var resp queryResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Values) != 3 || resp.Values[0] != 1.5 || resp.Values[2] != -0.3 {
			t.Errorf("unexpected values: %v", resp.Values)
		}
	})

	t.Run("Validation errors", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		tests := []struct {
			name   string
			method string
			path   string
			body   string
		}{
			{"Invalid JSON", http.MethodPost, "/command", `{`},
			{"Missing command", http.MethodPost, "/command", `{}`},
			{"Query sent as command", http.MethodPost, "/command", `{"command": "*IDN?"}`},
			{"Not a query", http.MethodPost, "/query", `{"query": "VOLT 5"}`},
			{"Unknown shape", http.MethodPost, "/query", `{"query": "VOLT?", "shape": "matrix"}`},
			{"Unknown kind", http.MethodPost, "/query", `{"query": "VOLT?", "kind": "complex"}`},
			{"Invalid wait timeout", http.MethodPost, "/wait", `{"timeout": "soon"}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := do(s, tt.method, tt.path, tt.body)
				if w.Code != http.StatusBadRequest {
					t.Errorf("expected 400, got %d: %s", w.Code, w.Body)
				}
			})
		}
	})

	t.Run("Instrument error", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		w := do(s, http.MethodPost, "/command", `{"command": "FOO:BAR"}`)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", w.Code, w.Body)
		}
		var resp struct {
			Errors []errorEntry `json:"errors"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Errors) != 1 || resp.Errors[0].Code != -113 {
			t.Errorf("unexpected errors: %+v", resp.Errors)
		}
	})

	t.Run("Error queue", func(t *testing.T) {
		sim := instrument.NewSimulator()
		s := newTestServer(t, sim)
		sim.PushError(-222, "Data out of range")

		w := do(s, http.MethodGet, "/errors", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
		}
		if !strings.Contains(w.Body.String(), `"code":-222`) {
			t.Errorf("unexpected body: %s", w.Body)
		}
	})

	t.Run("Status", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		w := do(s, http.MethodGet, "/status", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
		}
		var resp struct {
			Raw   int    `json:"raw"`
			State string `json:"state"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Raw != 0 || resp.State != "idle" {
			t.Errorf("unexpected status: %+v", resp)
		}
	})

	t.Run("Reset and wait", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		if w := do(s, http.MethodPost, "/reset", ""); w.Code != http.StatusNoContent {
			t.Errorf("reset: expected 204, got %d: %s", w.Code, w.Body)
		}
		if w := do(s, http.MethodPost, "/wait", ""); w.Code != http.StatusNoContent {
			t.Errorf("wait: expected 204, got %d: %s", w.Code, w.Body)
		}
		if w := do(s, http.MethodPost, "/wait", `{"timeout": "50ms"}`); w.Code != http.StatusNoContent {
			t.Errorf("wait with timeout: expected 204, got %d: %s", w.Code, w.Body)
		}
	})

	t.Run("Timeout then clear", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		// An unknown query is never answered.
		w := do(s, http.MethodPost, "/query", `{"query": "MEAS:VOLT?"}`)
		if w.Code != http.StatusGatewayTimeout {
			t.Fatalf("expected 504, got %d: %s", w.Code, w.Body)
		}

		w = do(s, http.MethodGet, "/idn", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503 while unreliable, got %d: %s", w.Code, w.Body)
		}

		if w = do(s, http.MethodPost, "/clear", ""); w.Code != http.StatusNoContent {
			t.Fatalf("clear: expected 204, got %d: %s", w.Code, w.Body)
		}
		if w = do(s, http.MethodGet, "/idn", ""); w.Code != http.StatusOK {
			t.Errorf("expected 200 after clear, got %d: %s", w.Code, w.Body)
		}
	})

	t.Run("Closed session", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())
		s.Session.Close()

		w := do(s, http.MethodGet, "/idn", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d: %s", w.Code, w.Body)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())
		do(s, http.MethodGet, "/idn", "")
		do(s, http.MethodPost, "/command", `{"command": "FOO:BAR"}`)

		w := do(s, http.MethodGet, "/metrics", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		body := w.Body.String()
		for _, want := range []string{
			`scpictl_operations_total{op="identify",result="ok"} 1`,
			`scpictl_operations_total{op="command",result="instrument_error"} 1`,
			`scpictl_instrument_errors_total{code="-113"} 1`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("metrics missing %q", want)
			}
		}
	})

	t.Run("Unknown route", func(t *testing.T) {
		s := newTestServer(t, instrument.NewSimulator())

		if w := do(s, http.MethodGet, "/command", ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", w.Code)
		}
	})
}

func TestToJSONValue(t *testing.T) {
	tests := []struct {
		name  string
		value scpi.Value
		want  any
	}{
		{"Number", scpi.Float(1.25), 1.25},
		{"Infinity", scpi.Float(math.Inf(1)), "+Inf"},
		{"Not a number", scpi.Float(math.NaN()), "NaN"},
		{"Keyword", scpi.Keyword(scpi.SpecialMax), "MAX"},
		{"Boolean", scpi.Bool(true), true},
		{"String", scpi.String("hello"), "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toJSONValue(tt.value); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
