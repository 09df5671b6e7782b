// Package http exposes the notification API plus health, readiness, and
// metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/traffic-notify/internal/city"
	"github.com/couchcryptid/traffic-notify/internal/store"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the notification REST API, an SSE change stream, and the
// operational endpoints.
type Server struct {
	httpServer    *http.Server
	notifications *store.NotificationStore
	cities        *city.Provider
	logger        *slog.Logger
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(addr string, notifications *store.NotificationStore, cities *city.Provider,
	ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		notifications: notifications,
		cities:        cities,
		logger:        logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/notifications", s.handleList)
	mux.HandleFunc("GET /api/notifications/stream", s.handleStream)
	mux.HandleFunc("POST /api/notifications/read-all", s.handleReadAll)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.handleMarkRead)
	mux.HandleFunc("POST /api/notifications/{id}/toggle", s.handleToggleRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.handleDelete)

	mux.HandleFunc("GET /api/city", s.handleGetCity)
	mux.HandleFunc("PUT /api/city", s.handleSetCity)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
// Open SSE streams are cut when the deadline expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.notifications.SnapshotNow())
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	s.notifications.MarkAsRead(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRead(w http.ResponseWriter, r *http.Request) {
	s.notifications.ToggleRead(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.notifications.DeleteOne(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	s.notifications.MarkAllAsRead(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"city": s.cities.Current()})
}

func (s *Server) handleSetCity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		City string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	body.City = strings.TrimSpace(body.City)
	if body.City == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "city must not be empty"})
		return
	}
	s.cities.Set(body.City)
	s.logger.Info("city switched", "city", body.City)
	writeJSON(w, http.StatusOK, map[string]string{"city": body.City})
}

// handleStream serves snapshots over Server-Sent Events. The first event is
// the current snapshot; one more follows after every store mutation. Events
// the client is too slow to read are dropped, newest wins.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The store calls subscribers synchronously under its mutation path, so
	// the callback must never block on the network.
	updates := make(chan store.Snapshot, 8)
	unsubscribe := s.notifications.Subscribe(func(snap store.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer unsubscribe()

	if !writeSSE(w, flusher, s.notifications.SnapshotNow()) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if !writeSSE(w, flusher, snap) {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, snap store.Snapshot) bool {
	data, err := json.Marshal(snap)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
