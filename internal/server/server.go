// Package server exposes the portal over HTTP: page requests, record
// CRUD, podcast sessions and their WebSocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/playback"
	"github.com/raphaelgruber/portal-go/internal/podcast"
	"github.com/raphaelgruber/portal-go/internal/service"
	"github.com/raphaelgruber/portal-go/internal/store"
)

// ScopeHeader names the page scope of a request. Requests sharing a scope
// supersede each other per page.
const ScopeHeader = "X-Portal-Scope"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Services are the handlers' dependencies.
type Services struct {
	Runner   *service.Runner
	Markets  *service.MarketsService
	Stocks   *service.StocksService
	Learning *service.LearningService
	Chat     *service.ChatService
	Comms    *service.CommsService
	Records  *service.RecordsService
	Podcast  *podcast.Service
}

// Server wraps the HTTP API with dependencies and lifecycle management.
type Server struct {
	version  string
	svc      Services
	metrics  *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader
	started  time.Time

	// pingInterval is the WebSocket keep-alive period.
	pingInterval time.Duration
}

// New creates a server for svc.
func New(version string, svc Services, mc *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		version: version,
		svc:     svc,
		metrics: mc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		started:      time.Now(),
		pingInterval: 10 * time.Second,
	}
}

// Handler returns the routed API wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("POST /api/markets/forecast", s.handleForecast)
	mux.HandleFunc("POST /api/stocks/analyze", s.handleStocksAnalyze)
	mux.HandleFunc("POST /api/stocks/filter", s.handleStocksFilter)
	mux.HandleFunc("GET /api/stocks/presets", s.handleStocksPresets)
	mux.HandleFunc("POST /api/learning/path", s.handleLearningPath)
	mux.HandleFunc("POST /api/learning/ideas", s.handleLearningIdeas)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/chat/conversations/{id}", s.handleConversation)
	mux.HandleFunc("POST /api/comms/draft", s.handleDraft)
	mux.HandleFunc("POST /api/retry/{key...}", s.handleRetry)
	mux.HandleFunc("DELETE /api/scopes/{scope}", s.handleCloseScope)

	mux.HandleFunc("GET /api/records", s.handleKinds)
	mux.HandleFunc("GET /api/records/{kind}", s.handleListRecords)
	mux.HandleFunc("POST /api/records/{kind}", s.handleCreateRecord)
	mux.HandleFunc("DELETE /api/records/{kind}/{id}", s.handleDeleteRecord)

	mux.HandleFunc("POST /api/podcast/sessions", s.handleOpenSession)
	mux.HandleFunc("GET /api/podcast/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/podcast/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /api/podcast/sessions/{id}/{action}", s.handleSessionAction)
	mux.HandleFunc("GET /api/podcast/sessions/{id}/audio", s.handleAudio)
	mux.HandleFunc("GET /api/podcast/sessions/{id}/events", s.handleEvents)

	return LoggingMiddleware(s.logger)(mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long for LLM responses
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting portal server", "addr", addr, "version", s.version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type statsResponse struct {
	Version       string           `json:"version"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Sessions      int              `json:"sessions"`
	Metrics       metrics.Snapshot `json:"metrics"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Version:       s.version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Metrics:       s.metrics.Snapshot(),
	}
	if s.svc.Podcast != nil {
		resp.Sessions = s.svc.Podcast.Len()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// scope returns the request's page scope.
func scope(r *http.Request) string {
	if sc := strings.TrimSpace(r.Header.Get(ScopeHeader)); sc != "" {
		return sc
	}
	if sc := strings.TrimSpace(r.URL.Query().Get("scope")); sc != "" {
		return sc
	}
	return service.DefaultScope
}

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// writeError maps err onto a status code. Unexpected errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, models.ErrInvalidRecord),
		errors.Is(err, store.ErrInvalidSort),
		errors.Is(err, service.ErrUnknownPreset),
		errors.Is(err, playback.ErrInvalidPosition):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, service.ErrUnknownKind),
		errors.Is(err, service.ErrNothingToRetry),
		errors.Is(err, podcast.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, service.ErrSuperseded),
		errors.Is(err, podcast.ErrSuperseded),
		errors.Is(err, podcast.ErrExtendInProgress),
		errors.Is(err, playback.ErrInvalidTransition),
		errors.Is(err, playback.ErrNoAudio),
		errors.Is(err, playback.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
