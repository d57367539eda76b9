// Package editor is the document synchronization core of vedit.
//
// A Hub owns editing sessions. Each Session holds one canonical HTML document
// with its linear undo/redo history, its selection and the tagger that keeps
// element identities stable. Every view (canvas, inventory, inspector,
// preview) is derived from the canonical string on demand.
//
// Usage:
//
//	hub, err := editor.New(cfg, logger, editor.WithRecorder(j))
//	defer hub.Close()
//	hub.RegisterMCP(mcpServer)
//	hub.RegisterHTTP(router)
package editor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/vedit/idgen"
	"github.com/hazyhaar/vedit/journal"
	"github.com/hazyhaar/vedit/surface"
)

// PreviewRenderer renders a document in a real browser. *preview.Renderer
// implements it.
type PreviewRenderer interface {
	Screenshot(ctx context.Context, doc string, vp surface.Viewport) ([]byte, error)
	Locate(ctx context.Context, doc, identity string, vp surface.Viewport) (surface.Box, error)
	DOM(ctx context.Context, doc string) (string, error)
}

// Hub is the registry of open sessions.
type Hub struct {
	config   *Config
	logger   *slog.Logger
	recorder Recorder
	renderer PreviewRenderer
	newID    idgen.Generator

	mu       sync.RWMutex
	sessions map[string]*Session

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithRecorder sends session events to rec.
func WithRecorder(rec Recorder) Option {
	return func(h *Hub) { h.recorder = rec }
}

// WithPreview enables screenshots and element lookups in a headless browser.
func WithPreview(r PreviewRenderer) Option {
	return func(h *Hub) { h.renderer = r }
}

// WithIDGenerator sets the session ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(h *Hub) { h.newID = gen }
}

// New creates a Hub and starts its idle-session sweeper.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Hub, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		config:   cfg,
		logger:   logger,
		recorder: nopRecorder{},
		newID:    idgen.Default,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.sweepLoop(ctx)
	return h, nil
}

// Config returns the effective configuration.
func (h *Hub) Config() *Config { return h.config }

// Close closes every session and stops the sweeper.
func (h *Hub) Close() error {
	h.cancel()
	<-h.done

	h.mu.Lock()
	n := len(h.sessions)
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()
	sessionsActive.Sub(float64(n))
	return nil
}

// Open creates a session holding the default document.
func (h *Hub) Open(ctx context.Context) (*Session, error) {
	h.mu.Lock()
	if len(h.sessions) >= h.config.Session.MaxSessions {
		h.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s, err := newSession(h.newID(), h.config, h.logger, h.recorder)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	h.sessions[s.id] = s
	h.mu.Unlock()

	sessionsActive.Inc()
	h.logger.InfoContext(ctx, "editor: session opened", "session_id", s.id)
	s.record(ctx, "open", journal.Event{}, 0, nil)
	return s, nil
}

// Get returns an open session.
func (h *Hub) Get(id string) (*Session, error) {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// CloseSession discards a session and its history.
func (h *Hub) CloseSession(ctx context.Context, id string) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sessionsActive.Dec()
	h.logger.InfoContext(ctx, "editor: session closed", "session_id", id)
	s.record(ctx, "close", journal.Event{}, s.State().Position, nil)
	return nil
}

// SessionInfo describes an open session.
type SessionInfo struct {
	State
	Created  time.Time `json:"created"`
	LastUsed time.Time `json:"last_used"`
}

// Sessions lists open sessions, oldest first.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	list := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.RUnlock()

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, SessionInfo{State: s.State(), Created: s.created, LastUsed: s.LastUsed()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Sweep closes sessions idle since before now minus idle_timeout and returns
// how many it closed.
func (h *Hub) Sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-h.config.Session.IdleTimeout)
	h.mu.RLock()
	var idle []string
	for id, s := range h.sessions {
		if s.LastUsed().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	h.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if h.CloseSession(ctx, id) == nil {
			closed++
		}
	}
	if closed > 0 {
		h.logger.InfoContext(ctx, "editor: swept idle sessions", "count", closed)
	}
	return closed
}

func (h *Hub) sweepLoop(ctx context.Context) {
	defer close(h.done)
	t := time.NewTicker(h.config.Session.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			h.Sweep(ctx, now)
		}
	}
}
