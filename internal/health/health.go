// Package health serves the liveness endpoint used by container
// orchestration and uptime monitors.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Checker reports the status of one component.
type Checker interface {
	Healthy(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Healthy(ctx context.Context) error { return f(ctx) }

// Server serves GET /health with a JSON status document.
type Server struct {
	log      *slog.Logger
	addr     string
	started  time.Time
	checkers map[string]Checker
}

// NewServer creates a health server. Checkers are probed on every request;
// any failure flips the overall status and the response code to 503.
func NewServer(addr string, checkers map[string]Checker, logger *slog.Logger) *Server {
	return &Server{
		log:      logger.With("component", "health"),
		addr:     addr,
		started:  time.Now(),
		checkers: checkers,
	}
}

type statusResponse struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Components: make(map[string]string, len(s.checkers)),
	}

	code := http.StatusOK
	for name, checker := range s.checkers {
		if err := checker.Healthy(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp.Components[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("Failed to write health response", "error", err)
	}
}

// Run serves the health endpoint until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Health endpoint listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("Health server shutdown failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
