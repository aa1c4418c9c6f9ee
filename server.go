package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"i4.energy/across/scpictl/instrument"
	"i4.energy/across/scpictl/scpi"
)

// Server handles incoming HTTP requests for interacting with the
// configured instrument session
type Server struct {
	Logger  *slog.Logger
	Session *instrument.Session
	Metrics *Metrics
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /command", s.handleCommand)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /idn", s.handleIdentity)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /errors", s.handleErrors)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("POST /wait", s.handleWait)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	s.sendJSON(w, resp, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// sendSessionError maps an error returned by the session to a status code.
// Instrument errors carry the drained error queue.
func (s *Server) sendSessionError(w http.ResponseWriter, err error, extra any) {
	var ie *instrument.InstrumentError
	switch {
	case errors.As(err, &ie):
		type InstrumentErrorResponse struct {
			Message string       `json:"message"`
			Event   string       `json:"event_status"`
			Entries []errorEntry `json:"errors"`
			Result  any          `json:"result,omitempty"`
		}
		s.sendJSON(w, InstrumentErrorResponse{
			Message: ie.Error(),
			Event:   ie.Event.String(),
			Entries: toErrorEntries(ie.Entries),
			Result:  extra,
		}, http.StatusUnprocessableEntity)
	case errors.Is(err, instrument.ErrOperationTimeout):
		s.sendError(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, instrument.ErrSessionClosed),
		errors.Is(err, instrument.ErrAlreadyClosed),
		errors.Is(err, instrument.ErrUnreliable):
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.sendError(w, err.Error(), http.StatusInternalServerError)
	}
}

// observe records the operation and keeps the state gauge current.
func (s *Server) observe(op string, started time.Time, err error) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.Observe(op, started, err)
	s.Metrics.SetState(s.Session.State())
}

type errorEntry struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func toErrorEntries(entries []scpi.ErrorEntry) []errorEntry {
	out := make([]errorEntry, len(entries))
	for i, e := range entries {
		out[i] = errorEntry{Code: e.Code, Message: e.Message}
	}
	return out
}

// handleCommand sends a program message that holds no query
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	type CommandRequest struct {
		Command string `json:"command"`
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		s.sendError(w, "'command' field is required", http.StatusBadRequest)
		return
	}

	cmds, err := scpi.ParseMessage([]byte(req.Command))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, c := range cmds {
		if c.Query {
			s.sendError(w, "queries must be sent to /query", http.StatusBadRequest)
			return
		}
	}

	started := time.Now()
	err = s.Session.SendCommand(r.Context(), cmds...)
	s.observe("command", started, err)
	if err != nil {
		s.Logger.Error("Failed to send command", "error", err, "command", req.Command)
		s.sendSessionError(w, err, nil)
		return
	}

	s.Logger.Info("Command sent", "command", req.Command)
	w.WriteHeader(http.StatusNoContent)
}

type queryResponse struct {
	Shape  string `json:"shape"`
	Values []any  `json:"values"`
	Raw    string `json:"raw"`
}

// handleQuery sends a single query and returns the decoded response
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	type QueryRequest struct {
		Query string `json:"query"`
		Shape string `json:"shape"`
		Kind  string `json:"kind"`
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		s.sendError(w, "'query' field is required", http.StatusBadRequest)
		return
	}

	cmd, err := scpi.ParseCommand(req.Query)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !cmd.Query {
		s.sendError(w, "not a query: "+req.Query, http.StatusBadRequest)
		return
	}
	shape, err := scpi.ParseShape(req.Shape)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := scpi.ParseKind(req.Kind)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	started := time.Now()
	resp, err := s.Session.SendQuery(r.Context(), cmd, shape, kind)
	s.observe("query", started, err)

	var result *queryResponse
	if resp.Raw != nil {
		result = &queryResponse{
			Shape:  resp.Shape.String(),
			Values: toJSONValues(resp.Values),
			Raw:    string(resp.Raw),
		}
	}
	if err != nil {
		s.Logger.Error("Query failed", "error", err, "query", req.Query)
		if result != nil {
			s.sendSessionError(w, err, result)
		} else {
			s.sendSessionError(w, err, nil)
		}
		return
	}

	s.sendJSON(w, result, http.StatusOK)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id, err := s.Session.Identity(r.Context())
	s.observe("identify", started, err)
	if err != nil {
		s.sendSessionError(w, err, nil)
		return
	}

	type IdentityResponse struct {
		Manufacturer string `json:"manufacturer"`
		Model        string `json:"model"`
		SerialNumber string `json:"serial_number"`
		Firmware     string `json:"firmware"`
	}
	s.sendJSON(w, IdentityResponse{
		Manufacturer: id.Manufacturer,
		Model:        id.Model,
		SerialNumber: id.SerialNumber,
		Firmware:     id.Firmware,
	}, http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	stb, err := s.Session.ReadStatusByte(r.Context())
	s.observe("status", started, err)
	if err != nil {
		s.sendSessionError(w, err, nil)
		return
	}

	type StatusResponse struct {
		Raw              byte   `json:"raw"`
		Bits             string `json:"bits"`
		ErrorQueue       bool   `json:"error_queue"`
		Questionable     bool   `json:"questionable"`
		MessageAvailable bool   `json:"message_available"`
		EventStatus      bool   `json:"event_status"`
		RequestService   bool   `json:"request_service"`
		Operation        bool   `json:"operation"`
		State            string `json:"state"`
	}
	s.sendJSON(w, StatusResponse{
		Raw:              stb.Raw(),
		Bits:             stb.String(),
		ErrorQueue:       stb.ErrorQueue,
		Questionable:     stb.Questionable,
		MessageAvailable: stb.MessageAvailable,
		EventStatus:      stb.EventStatus,
		RequestService:   stb.RequestService,
		Operation:        stb.Operation,
		State:            s.Session.State().String(),
	}, http.StatusOK)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	entries, err := s.Session.CheckErrors(r.Context())
	s.observe("errors", started, err)
	if err != nil {
		s.sendSessionError(w, err, nil)
		return
	}

	type ErrorsResponse struct {
		Errors []errorEntry `json:"errors"`
	}
	s.sendJSON(w, ErrorsResponse{Errors: toErrorEntries(entries)}, http.StatusOK)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	err := s.Session.Reset(r.Context())
	s.observe("reset", started, err)
	if err != nil {
		s.sendSessionError(w, err, nil)
		return
	}
	s.Logger.Info("Instrument reset")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	err := s.Session.Clear(r.Context())
	s.observe("clear", started, err)
	if err != nil {
		s.sendSessionError(w, err, nil)
		return
	}
	s.Logger.Info("Session cleared")
	w.WriteHeader(http.StatusNoContent)
}

// handleWait blocks until the instrument reports operation complete. The
// body is optional; without a timeout the session timeout applies.
func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	type WaitRequest struct {
		Timeout string `json:"timeout"`
	}

	var req WaitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d < 0 {
			s.sendError(w, "invalid timeout: "+req.Timeout, http.StatusBadRequest)
			return
		}
		timeout = d
	}

	started := time.Now()
	err := s.Session.WaitOperationComplete(r.Context(), timeout)
	s.observe("wait", started, err)
	if err != nil {
		s.sendSessionError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toJSONValues(values []scpi.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = toJSONValue(v)
	}
	return out
}

// toJSONValue renders numbers as JSON numbers where possible. NaN, the
// infinities and the MIN/MAX style keywords become strings; blocks are
// base64 encoded by encoding/json.
func toJSONValue(v scpi.Value) any {
	switch v.Kind {
	case scpi.KindNumeric:
		if v.Number.Special != scpi.SpecialNone {
			return v.Number.Special.String()
		}
		f := v.Number.Value
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	case scpi.KindBoolean:
		return v.Bool
	case scpi.KindBlock:
		return v.Block
	default:
		return v.Text
	}
}
