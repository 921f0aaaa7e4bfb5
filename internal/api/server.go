// Package api exposes the session controller to the user-facing control
// application over HTTP. Pure adapter: request decoding, auth, and error
// mapping live here, session semantics stay in the application package.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dspbridge/internal/application"
	"dspbridge/internal/domain"
	"dspbridge/internal/engineconf"
)

// SessionController is the slice of the application layer this surface needs.
type SessionController interface {
	Start(ctx context.Context, chain domain.ChainSpec, sampleRate, bitDepth int) error
	StartBypass(ctx context.Context, sampleRate int) error
	RestartWithSampleRate(ctx context.Context, sampleRate int) error
	Stop(ctx context.Context) error
	Status() domain.Status
	HealthReport() domain.HealthReport
}

type Server struct {
	addr      string
	authToken string
	ctrl      SessionController
	logger    *slog.Logger
	mux       *http.ServeMux

	mu      sync.Mutex
	server  *http.Server
	running bool
}

func NewServer(addr, authToken string, ctrl SessionController, logger *slog.Logger) *Server {
	s := &Server{
		addr:      addr,
		authToken: authToken,
		ctrl:      ctrl,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/start", s.requireAuth(s.handleStart))
	s.mux.HandleFunc("POST /api/stop", s.requireAuth(s.handleStop))
	s.mux.HandleFunc("POST /api/bypass", s.requireAuth(s.handleBypass))
	s.mux.HandleFunc("POST /api/samplerate", s.requireAuth(s.handleSampleRate))
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("control API listening", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control API server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	s.running = false
	return nil
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type filterPayload struct {
	Kind        string  `json:"kind"`
	FrequencyHz float64 `json:"frequency_hz"`
	GainDB      float64 `json:"gain_db"`
	Q           float64 `json:"q"`
}

type startPayload struct {
	PreampDB   float64         `json:"preamp_db"`
	Filters    []filterPayload `json:"filters"`
	SampleRate int             `json:"sample_rate"`
	BitDepth   int             `json:"bit_depth"`
}

type ratePayload struct {
	SampleRate int `json:"sample_rate"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.HealthReport())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload startPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !domain.ValidSampleRate(payload.SampleRate) {
		http.Error(w, fmt.Sprintf("unsupported sample rate %d", payload.SampleRate), http.StatusBadRequest)
		return
	}
	if !domain.ValidBitDepth(payload.BitDepth) {
		http.Error(w, fmt.Sprintf("unsupported bit depth %d", payload.BitDepth), http.StatusBadRequest)
		return
	}

	chain := domain.ChainSpec{PreampDB: payload.PreampDB}
	for _, f := range payload.Filters {
		chain.Filters = append(chain.Filters, domain.FilterSpec{
			Kind:        domain.FilterKind(f.Kind),
			FrequencyHz: f.FrequencyHz,
			GainDB:      f.GainDB,
			Q:           f.Q,
		})
	}

	if err := s.ctrl.Start(r.Context(), chain, payload.SampleRate, payload.BitDepth); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(r.Context()); err != nil {
		// Stop never fails by contract; belt and braces.
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleBypass(w http.ResponseWriter, r *http.Request) {
	var payload ratePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !domain.ValidSampleRate(payload.SampleRate) {
		http.Error(w, fmt.Sprintf("unsupported sample rate %d", payload.SampleRate), http.StatusBadRequest)
		return
	}
	if err := s.ctrl.StartBypass(r.Context(), payload.SampleRate); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSampleRate(w http.ResponseWriter, r *http.Request) {
	var payload ratePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !domain.ValidSampleRate(payload.SampleRate) {
		http.Error(w, fmt.Sprintf("unsupported sample rate %d", payload.SampleRate), http.StatusBadRequest)
		return
	}
	if err := s.ctrl.RestartWithSampleRate(r.Context(), payload.SampleRate); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var genErr *engineconf.GenerationError
	switch {
	case errors.Is(err, application.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &genErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("session operation failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}
