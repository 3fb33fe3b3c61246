// Package httpapi exposes the deploy, context, and history operations over
// HTTP, plus health probes and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/agent"
	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/manifest"
	"github.com/nopea/nopea/pkg/memory"
	"github.com/nopea/nopea/pkg/store"
)

// Server serves the HTTP API. Deploys route through the agent supervisor,
// so the per-service serialization guarantee holds for HTTP callers too.
type Server struct {
	supervisor *agent.Supervisor
	memory     *memory.Service
	history    *store.Store
	log        zerolog.Logger

	httpServer *http.Server
}

func NewServer(port int, supervisor *agent.Supervisor, mem *memory.Service, history *store.Store) *Server {
	s := &Server{
		supervisor: supervisor,
		memory:     mem,
		history:    history,
		log:        logger.Component("httpapi"),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed separately so tests can drive
// the API through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("POST /api/deploy", s.handleDeploy)
	mux.HandleFunc("GET /api/context/{service}", s.handleContext)
	mux.HandleFunc("GET /api/history/{service}", s.handleHistory)
	mux.HandleFunc("GET /api/status/{service}", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	return s.logRequests(mux)
}

// ListenAndServe blocks until the context is canceled, then drains
// in-flight requests before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("http api listening")
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(started)).
			Msg("request handled")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	states, liveAgents := s.supervisor.Health()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ready",
		"services":    len(states),
		"live_agents": liveAgents,
	})
}

// deployRequest is the POST /api/deploy body. Manifests may arrive as
// structured JSON objects, as a raw YAML document string, or both.
type deployRequest struct {
	Service      string              `json:"service"`
	Namespace    string              `json:"namespace"`
	Manifests    []manifest.Manifest `json:"manifests"`
	ManifestYAML string              `json:"manifest_yaml"`
	Strategy     string              `json:"strategy"`
	Options      deployment.Options  `json:"options"`
	TimeoutMS    int64               `json:"timeout_ms"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json"})
		return
	}
	if req.Service == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_service"})
		return
	}

	manifests := req.Manifests
	if req.ManifestYAML != "" {
		parsed, err := manifest.Parse([]byte(req.ManifestYAML))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "manifest_invalid", "detail": err.Error(),
			})
			return
		}
		manifests = append(manifests, parsed...)
	}

	result := s.supervisor.Deploy(r.Context(), deployment.Spec{
		Service:   req.Service,
		Namespace: req.Namespace,
		Manifests: manifests,
		Strategy:  deployment.Strategy(req.Strategy),
		Options:   req.Options,
		TimeoutMS: req.TimeoutMS,
	})

	status := http.StatusOK
	if result.Error != nil {
		status = statusForCode(result.Error.Code)
	}
	writeJSON(w, status, result)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = deployment.DefaultNamespace
	}
	writeJSON(w, http.StatusOK, s.memory.GetDeployContext(service, namespace))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	results, err := s.history.List(service)
	if err != nil {
		s.log.Error().Err(err).Str("service", service).Msg("history read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": service,
		"deploys": results,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	state, ok := s.supervisor.Status(service)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// statusForCode maps deploy failure codes to HTTP statuses. The result
// body still carries the full coded error either way.
func statusForCode(code errors.Code) int {
	switch code {
	case errors.CodeMissingParameter, errors.CodeInvalidParameter, errors.CodeManifestInvalid,
		errors.CodeNoDeploymentFound:
		return http.StatusBadRequest
	case errors.CodeQueueFull:
		return http.StatusTooManyRequests
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
