// Package chassis hosts vedit services behind one HTTP listener: the chi
// router with the shield middleware, the /health and /metrics endpoints and
// the MCP streamable handler.
package chassis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/vedit/kit"
	"github.com/hazyhaar/vedit/shield"
)

// Service is a component that exposes HTTP routes and MCP tools.
type Service interface {
	RegisterHTTP(r chi.Router)
	RegisterMCP(srv *mcp.Server)
}

// Config configures a Server.
type Config struct {
	Addr            string
	Name            string
	Version         string
	EnableMCP       bool
	ShutdownTimeout time.Duration
	// MaxBody caps request bodies. Default: 8 MiB.
	MaxBody int64
	// Static, when set, is served at "/".
	Static fs.FS
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Name == "" {
		c.Name = "vedit"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.MaxBody <= 0 {
		c.MaxBody = 8 << 20
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server is the unified HTTP/MCP chassis.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	router    *chi.Mux
	mcpServer *mcp.Server
	started   time.Time

	mu       sync.RWMutex
	services map[string]Service
}

// New builds a Server. Services are added with Register before Start.
func New(cfg Config, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestIDContext)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	for _, mw := range shield.Stack(shield.DefaultHeaders(), cfg.MaxBody) {
		r.Use(mw)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		router:   r,
		started:  time.Now(),
		services: make(map[string]Service),
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.EnableMCP {
		s.mcpServer = mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil)
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return s.mcpServer
		}, nil)
		r.Handle("/mcp", h)
		r.Handle("/mcp/*", h)
	}
	if cfg.Static != nil {
		r.Handle("/*", http.FileServer(http.FS(cfg.Static)))
	}
	return s
}

// Router returns the underlying router.
func (s *Server) Router() chi.Router { return s.router }

// MCP returns the MCP server, or nil when MCP is disabled.
func (s *Server) MCP() *mcp.Server { return s.mcpServer }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Register mounts svc under name. Names are unique.
func (s *Server) Register(name string, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[name]; exists {
		return fmt.Errorf("chassis: service %s already registered", name)
	}
	svc.RegisterHTTP(s.router)
	if s.mcpServer != nil {
		svc.RegisterMCP(s.mcpServer)
	}
	s.services[name] = svc
	s.logger.Info("chassis: service registered", "name", name, "mcp", s.mcpServer != nil)
	return nil
}

// Services lists registered service names in order.
func (s *Server) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.services))
	for n := range s.services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("chassis: listening", "addr", s.cfg.Addr, "services", len(s.Services()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("chassis: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("chassis: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("chassis: shutdown: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status   string   `json:"status"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Uptime   string   `json:"uptime"`
	Services []string `json:"services"`
	MCP      bool     `json:"mcp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Name:     s.cfg.Name,
		Version:  s.cfg.Version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Services: s.Services(),
		MCP:      s.mcpServer != nil,
	})
}

// requestIDContext exposes chi's request id through kit, where services and
// endpoint middleware read it.
func requestIDContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(kit.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("chassis: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
