// Package http serves the ops endpoints of a single batch run. The server is
// started before the run begins and shut down once it returns, so every
// response describes that one run.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readinessTimeout = 2 * time.Second
	requestTimeout   = 10 * time.Second
)

// Run is the view of a pipeline run the ops endpoints need.
type Run interface {
	sharedobs.ReadinessChecker
	Status() domain.RunStatus
}

// Server exposes liveness, readiness, progress and metrics for the run it was
// created for.
type Server struct {
	httpServer *http.Server
	run        Run
	logger     *slog.Logger
}

// NewServer creates the ops server for run.
//
//	GET /healthz  process is up, with the run id and current stage
//	GET /readyz   200 once the run has a grid and no stage has failed
//	GET /status   full RunStatus snapshot
//	GET /metrics  Prometheus exposition
func NewServer(addr string, run Run, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  requestTimeout,
			WriteTimeout: requestTimeout,
			IdleTimeout:  6 * requestTimeout,
		},
		run:    run,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Start listens until Shutdown, then returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("ops server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests after the run has returned.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP routes r without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type healthBody struct {
	Status string       `json:"status"`
	RunID  string       `json:"run_id"`
	Stage  domain.Stage `json:"stage,omitempty"`
	Done   bool         `json:"done"`
	Error  string       `json:"error,omitempty"`
}

func (s *Server) body(status string) healthBody {
	st := s.run.Status()
	return healthBody{Status: status, RunID: st.RunID, Stage: st.Stage, Done: st.Done()}
}

// handleHealth stays 200 even after a failed run; the failure shows on /readyz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.body("healthy"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := s.run.CheckReadiness(ctx); err != nil {
		b := s.body("not ready")
		b.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, b)
		return
	}
	writeJSON(w, http.StatusOK, s.body("ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.run.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write ops response", "error", err)
	}
}
