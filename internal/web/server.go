// Package web provides the HTTP API for the heater controller: a JSON
// status endpoint, a setpoint write endpoint, and the recent log history.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/abreis/heater-control/internal/command"
	"github.com/abreis/heater-control/internal/memlog"
	"github.com/abreis/heater-control/internal/state"
	"github.com/abreis/heater-control/internal/status"
)

// Requests larger than this are rejected before decoding.
const maxBodyBytes = 4096

// Server serves the controller HTTP API.
type Server struct {
	httpServer *http.Server
	store      *state.Store
	log        *memlog.Log
}

// New creates a Server backed by the given store and log.
func New(addr string, store *state.Store, log *memlog.Log) *Server {
	s := &Server{store: store, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/setpoint", s.handleSetpoint)
	mux.HandleFunc("/log", s.handleLog)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "heater-control")
	fmt.Fprintln(w, "GET  /status    controller state as JSON")
	fmt.Fprintln(w, "POST /setpoint  set target and mode, e.g. {\"target\": 22.0, \"mode\": \"auto\"}")
	fmt.Fprintln(w, "GET  /log       recent log records, newest first")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.store.Snapshot()))
}

func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}

	req, err := command.DecodeSetpoint(body)
	if err != nil {
		s.log.Warnf("setpoint rejected: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Apply(s.store); err != nil {
		// Validation failures are client errors; anything else is not.
		if errors.Is(err, state.ErrOutOfRange) || errors.Is(err, state.ErrInvalidMode) {
			s.log.Warnf("setpoint rejected: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.Infof("setpoint accepted: target %.2f mode %s", req.Target, req.Mode)
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.store.Snapshot()))
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.log.Dump())
}
