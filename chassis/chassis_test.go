package chassis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vedit/kit"
)

type stubService struct {
	httpCalls int
	mcpCalls  int
}

func (s *stubService) RegisterHTTP(r chi.Router) {
	s.httpCalls++
	r.Get("/api/stub", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("stub"))
	})
}

func (s *stubService) RegisterMCP(*mcp.Server) { s.mcpCalls++ }

func TestHealth(t *testing.T) {
	s := New(Config{Version: "1.2.3"}, nil)
	if err := s.Register("stub", &stubService{}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "ok" || got.Version != "1.2.3" || got.Name != "vedit" {
		t.Fatalf("health: %+v", got)
	}
	if len(got.Services) != 1 || got.Services[0] != "stub" {
		t.Fatalf("services: %v", got.Services)
	}
	if got.MCP {
		t.Fatal("MCP should be disabled by default")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	s := New(Config{}, nil)
	if err := s.Register("a", &stubService{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("a", &stubService{}); err == nil {
		t.Fatal("expected error on duplicate name")
	}
}

func TestRegister_MountsRoutesAndTools(t *testing.T) {
	svc := &stubService{}
	s := New(Config{EnableMCP: true}, nil)
	if s.MCP() == nil {
		t.Fatal("MCP server should exist")
	}
	if err := s.Register("stub", svc); err != nil {
		t.Fatal(err)
	}
	if svc.httpCalls != 1 || svc.mcpCalls != 1 {
		t.Fatalf("calls: http=%d mcp=%d", svc.httpCalls, svc.mcpCalls)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stub", nil))
	if rec.Body.String() != "stub" {
		t.Fatalf("body: %q", rec.Body.String())
	}
}

func TestRegister_NoMCP(t *testing.T) {
	svc := &stubService{}
	s := New(Config{}, nil)
	if err := s.Register("stub", svc); err != nil {
		t.Fatal(err)
	}
	if svc.mcpCalls != 0 {
		t.Fatal("RegisterMCP should not be called without MCP")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Config{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("expected default Go collectors in /metrics")
	}
}

func TestStatic(t *testing.T) {
	static := fstest.MapFS{
		"index.html": {Data: []byte("<!DOCTYPE html><title>x</title>")},
	}
	s := New(Config{Static: static}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<title>x</title>") {
		t.Fatalf("static body: %q", body)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := New(Config{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD /health: %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Fatal("shield headers missing")
	}
}

type requestIDService struct{}

func (requestIDService) RegisterHTTP(r chi.Router) {
	r.Get("/api/rid", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(kit.GetRequestID(r.Context())))
	})
}

func (requestIDService) RegisterMCP(*mcp.Server) {}

func TestRequestID_ReachesServices(t *testing.T) {
	s := New(Config{}, nil)
	if err := s.Register("rid", requestIDService{}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rid", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Body.String(); got != "req-42" {
		t.Fatalf("request id: got %q", got)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rid", nil))
	if rec.Body.Len() == 0 {
		t.Fatal("generated request id not propagated")
	}
}
