package metric

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	semerr "github.com/c360/semflow/errors"
)

// Handler returns an http.Handler serving the registry in Prometheus format
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Server exposes a registry over HTTP with a /health probe
type Server struct {
	addr     string
	path     string
	registry *MetricsRegistry
	extra    map[string]http.Handler
	server   *http.Server
	mu       sync.Mutex
}

// NewServer creates a metrics server listening on addr
func NewServer(addr, path string, registry *MetricsRegistry) *Server {
	if path == "" {
		path = "/metrics"
	}
	if addr == "" {
		addr = ":9090"
	}
	return &Server{addr: addr, path: path, registry: registry}
}

// Mux returns the server's routes, useful for mounting next to other handlers
func (s *Server) Mux() *http.ServeMux {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routes()
}

// routes builds the mux; s.mu must be held
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(s.path, s.registry.Handler())
	for pattern, h := range s.extra {
		mux.Handle(pattern, h)
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Handle mounts h at pattern next to the metrics endpoint. Routes added
// after Start are served from the next Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extra == nil {
		s.extra = make(map[string]http.Handler)
	}
	s.extra[pattern] = h
}

// Addr returns the listen address
func (s *Server) Addr() string { return s.addr }

// Start serves until Stop is called. It returns nil after a clean Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return semerr.WrapInvalid(semerr.ErrAlreadyStarted, "Server", "Start", "start check")
	}
	if s.registry == nil {
		s.mu.Unlock()
		return semerr.WrapFatal(fmt.Errorf("nil registry"), "Server", "Start", "registry check")
	}
	srv := &http.Server{Addr: s.addr, Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}
	s.server = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return semerr.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on %s", s.addr))
	}
	return nil
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return semerr.WrapTransient(err, "Server", "Stop", "http shutdown")
	}
	return nil
}
