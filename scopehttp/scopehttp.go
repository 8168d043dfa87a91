// Package scopehttp exposes a microscope over HTTP with JSON bodies.
package scopehttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"goji.io"
	"goji.io/pat"

	"github.com/lightsheet-lab/gosols/scope"
	"github.com/lightsheet-lab/gosols/waveform"
)

// Server wires a microscope's operations into a route table.  Settings
// application and acquisition run as custody tasks; the handlers block until
// the task completes so the client sees the task's result as the response.
type Server struct {
	m    *scope.Microscope
	lock *Locker
	log  zerolog.Logger
}

// New returns a server around m.
func New(m *scope.Microscope, log zerolog.Logger) *Server {
	return &Server{m: m, lock: NewLocker(), log: log}
}

// Mux builds the route table.
func (s *Server) Mux() *goji.Mux {
	mux := goji.NewMux()
	mux.Use(s.lock.Check)
	mux.HandleFunc(pat.Get("/settings"), s.GetSettings)
	mux.HandleFunc(pat.Get("/derived"), s.GetDerived)
	mux.HandleFunc(pat.Post("/apply"), s.Apply)
	mux.HandleFunc(pat.Post("/acquire"), s.Acquire)
	mux.HandleFunc(pat.Get("/lock"), s.lock.HTTPGet)
	mux.HandleFunc(pat.Post("/lock"), s.lock.HTTPSet)
	return mux
}

// GetSettings replies with the currently applied settings.
func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	replyJSON(w, s.m.Settings())
}

// GetDerived replies with the quantities computed from the applied settings.
func (s *Server) GetDerived(w http.ResponseWriter, r *http.Request) {
	replyJSON(w, s.m.Derived())
}

// Apply decodes a sparse settings update, applies it, and replies with the
// achieved settings.
func (s *Server) Apply(w http.ResponseWriter, r *http.Request) {
	var u scope.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.m.ApplySettings(u).GetResult(); err != nil {
		s.replyError(w, err)
		return
	}
	replyJSON(w, s.m.Settings())
}

// Acquire runs one acquisition to completion.
func (s *Server) Acquire(w http.ResponseWriter, r *http.Request) {
	var opts scope.AcquireOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.m.Acquire(opts).GetResult(); err != nil {
		s.replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// replyError maps rejections to 400 and faults to 500.
func (s *Server) replyError(w http.ResponseWriter, err error) {
	var cfg scope.ConfigurationError
	var res scope.ResourceExceededError
	status := http.StatusInternalServerError
	if errors.As(err, &cfg) || errors.As(err, &res) ||
		errors.Is(err, waveform.ErrTimingInfeasible) {
		status = http.StatusBadRequest
	}
	s.log.Warn().Err(err).Int("status", status).Msg("request failed")
	http.Error(w, err.Error(), status)
}

func replyJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
