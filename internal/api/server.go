// Package api exposes the task runtime over HTTP: run execution, run
// listing, event dumps, and a live websocket tail.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clawinfra/taskclaw/internal/llm"
	"github.com/clawinfra/taskclaw/internal/runlog"
	"github.com/clawinfra/taskclaw/internal/task"
	"github.com/clawinfra/taskclaw/internal/types"
)

// Server is the HTTP API server.
type Server struct {
	port       int
	runner     *task.Runner
	repo       *runlog.Repository
	logger     *slog.Logger
	httpServer *http.Server
	auth       *authenticator
	limiter    *rateLimiter
}

// NewServer wires the API over a task runner and run repository.
// rateLimitRPM <= 0 disables rate limiting; an empty secret plus empty
// apiKeyHash runs unauthenticated (dev mode, loudly logged).
func NewServer(port int, runner *task.Runner, repo *runlog.Repository, jwtSecret []byte, apiKeyHash string, rateLimitRPM int, logger *slog.Logger) *Server {
	s := &Server{
		port:   port,
		runner: runner,
		repo:   repo,
		logger: logger.With("component", "api"),
		auth:   newAuthenticator(jwtSecret, apiKeyHash),
	}
	if rateLimitRPM > 0 {
		s.limiter = newRateLimiter(rateLimitRPM, time.Minute)
	}
	if s.auth.devMode() {
		s.logger.Warn("no JWT secret or API key hash configured — running in dev mode (unauthenticated API access)")
	}
	return s
}

// Start begins serving. Blocks until the listener fails or Stop runs.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /run", s.protect(s.handleRun))
	mux.HandleFunc("GET /runs", s.protect(s.handleListRuns))
	mux.HandleFunc("GET /runs/{id}/events", s.protect(s.handleRunEvents))
	mux.HandleFunc("GET /runs/{id}/tail", s.handleTail)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api server listening", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// protect layers rate limiting then authentication onto a handler.
// /health stays exempt from both so liveness probes never 429.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			if retryAfter, ok := s.limiter.allow(clientKey(r)); !ok {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		if err := s.auth.authenticate(r); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// RunRequest is the POST /run body.
type RunRequest struct {
	Prompt         string `json:"prompt"`
	Pack           string `json:"pack,omitempty"`
	ModelKey       string `json:"model_key,omitempty"`
	NetworkAllowed *bool  `json:"network_allowed,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	networkAllowed := true
	if req.NetworkAllowed != nil {
		networkAllowed = *req.NetworkAllowed
	}

	t := types.BuildTask(req.Prompt, req.Pack, req.ModelKey, networkAllowed)
	s.logger.Info("POST /run", "prompt_len", len(t.Prompt), "pack", t.SpecialistID, "model_key", t.ModelKey)

	result, err := s.runner.Execute(r.Context(), t)
	if err != nil {
		status := http.StatusInternalServerError
		var unreachable *llm.UnreachableError
		var badStatus *llm.BadStatusError
		var timeout *llm.TimeoutError
		switch {
		case errors.As(err, &unreachable), errors.As(err, &timeout), errors.As(err, &badStatus):
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	out := map[string]any{}
	for k, v := range result.Payload {
		out[k] = v
	}
	out["_meta"] = map[string]any{
		"run_id":    result.RunID.String(),
		"pack":      result.SpecialistID,
		"run_dir":   result.RunDir,
		"workspace": result.WorkspacePath,
		"model":     result.ModelName,
		"steps":     result.Steps,
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	summaries, err := s.repo.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	events, err := s.repo.ReadRunEvents(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "events": events})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// clientKey identifies a client for rate limiting: the remote IP, or the
// forwarded-for header when a proxy fronts the server.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
