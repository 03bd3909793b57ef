package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Imputer fills partial records. Implemented by artifact.Provider.
type Imputer interface {
	Impute(ctx context.Context, input domain.Record, opts imputer.Options) (domain.Record, error)
	Schema(ctx context.Context) (domain.Schema, error)
}

// Server exposes the imputation API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	imputer    Imputer
	ready      sharedobs.ReadinessChecker
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /impute, /features, /healthz,
// /readyz, and /metrics routes.
func NewServer(addr string, imp Imputer, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		imputer: imp,
		ready:   ready,
		logger:  logger,
	}

	mux.HandleFunc("POST /impute", s.handleImpute)
	mux.HandleFunc("POST /features", s.handleFeatures)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type imputeResponse struct {
	Input   domain.Record `json:"input"`
	Imputed domain.Record `json:"imputed"`
}

func (s *Server) handleImpute(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	imputed, ok := s.impute(w, r, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, imputeResponse{Input: req.Features, Imputed: imputed})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	imputed, ok := s.impute(w, r, req)
	if !ok {
		return
	}
	schema, err := s.imputer.Schema(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewImputedEvent(req.ID, schema, req.Features, imputed))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (domain.ImputeRequest, bool) {
	var req domain.ImputeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return req, false
	}
	if req.Features == nil {
		req.Features = domain.Record{}
	}
	if req.K < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("k must not be negative"))
		return req, false
	}
	return req, true
}

func (s *Server) impute(w http.ResponseWriter, r *http.Request, req domain.ImputeRequest) (domain.Record, bool) {
	out, err := s.imputer.Impute(r.Context(), req.Features, imputer.Options{K: req.K, RoundRisk: req.RoundRisk})
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return out, true
}

// writeError maps schema errors to 400 and everything else to 503 while the
// imputer is not ready, 500 once it is.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, imputer.ErrSchema):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case s.ready.CheckReadiness(r.Context()) != nil:
		s.logger.Warn("imputation unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody("imputer not ready: "+err.Error()))
	default:
		s.logger.Error("imputation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("imputation failed"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
