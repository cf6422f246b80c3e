// Package target is the contacts application load tests are rehearsed
// against: a small frontend page, a health endpoint and an in-memory
// contacts API.
package target

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const frontendPage = `<!DOCTYPE html>
<html>
<head><title>Contacts</title></head>
<body><div id="root">Contacts</div></body>
</html>
`

// Config configures the target server.
type Config struct {
	// Environment is reported by /health (default: development)
	Environment string

	// Latency is added to every API request
	Latency time.Duration

	// Seed replaces SeedContacts
	Seed []Contact
}

// Server is the contacts application.
type Server struct {
	config  Config
	store   *Store
	metrics *Metrics
	logger  *zap.Logger
	router  chi.Router
}

// NewServer creates a server. A nil logger discards everything.
func NewServer(config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Environment == "" {
		config.Environment = "development"
	}
	seed := config.Seed
	if seed == nil {
		seed = SeedContacts
	}

	store := NewStore(seed)
	s := &Server{
		config:  config,
		store:   store,
		metrics: NewMetrics(store),
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

// Store returns the contact store.
func (s *Server) Store() *Store {
	return s.store
}

// Metrics returns the server instrumentation.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(s.loggingMiddleware)

	r.Get("/", s.handleFrontend)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/contacts", func(r chi.Router) {
		r.Use(s.latencyMiddleware)
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Post("/reset", s.handleReset)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func (s *Server) latencyMiddleware(next http.Handler) http.Handler {
	if s.config.Latency <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(s.config.Latency):
		case <-r.Context().Done():
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleFrontend(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(frontendPage))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":      "healthy",
		"environment": s.config.Environment,
		"dataSource":  "In-Memory",
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Contact not found")
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decodeContact(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusCreated, s.store.Create(c))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.decodeContact(w, r)
	if !ok {
		return
	}
	updated, err := s.store.Update(chi.URLParam(r, "id"), c)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Contact not found")
		return
	}
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.Delete(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Contact not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Contact deleted",
		"contact": deleted,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	count := s.store.Reset()
	s.logger.Info("contacts reset", zap.Int("count", count))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Contacts reset to initial state",
		"count":   count,
	})
}

// decodeContact reads a contact body; it answers 400 itself when the body
// is not usable.
func (s *Server) decodeContact(w http.ResponseWriter, r *http.Request) (Contact, bool) {
	var c Contact
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return Contact{}, false
	}
	if c.Name == "" {
		s.respondError(w, http.StatusBadRequest, "Name is required")
		return Contact{}, false
	}
	return c, true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("target server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.logger.Info("target server stopped")
	return nil
}
