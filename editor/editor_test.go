package editor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/journal"
)

type memRecorder struct {
	mu     sync.Mutex
	events []journal.Event
}

func (m *memRecorder) Record(_ context.Context, e journal.Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func (m *memRecorder) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Kind
	}
	return out
}

func testHub(t *testing.T, cfg *Config) (*Hub, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	h, err := New(cfg, nil, WithRecorder(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h, rec
}

func testSession(t *testing.T) (*Session, *memRecorder) {
	t.Helper()
	h, rec := testHub(t, nil)
	s, err := h.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, rec
}

func bodyOf(t *testing.T, s *Session) string {
	t.Helper()
	body, err := htmldoc.BodyHTML(s.Document())
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestSession_StartsOnDefaultDocument(t *testing.T) {
	s, _ := testSession(t)
	if s.Document() != htmldoc.DefaultDocument {
		t.Fatalf("initial document: %s", s.Document())
	}
	st := s.State()
	if st.Position != 0 || st.Length != 1 || st.CanUndo || st.CanRedo || st.Title != "Visual HTML Editor" {
		t.Fatalf("initial state: %+v", st)
	}
}

func TestSession_InsertUndoRedo(t *testing.T) {
	s, rec := testSession(t)
	ctx := context.Background()

	id, st, err := s.InsertElement(ctx, InsertSpec{Tag: "p", Identity: "p-1", Text: "Hello"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "p-1" || st.Position != 1 {
		t.Fatalf("insert: id=%s state=%+v", id, st)
	}
	want := `<p data-element-id="p-1">Hello</p>`
	if bodyOf(t, s) != want {
		t.Fatalf("body: %s", bodyOf(t, s))
	}

	if _, moved := s.Undo(ctx); !moved {
		t.Fatal("undo did not move")
	}
	if bodyOf(t, s) != "" {
		t.Fatalf("after undo body: %s", bodyOf(t, s))
	}

	st, moved := s.Redo(ctx)
	if !moved || st.CanRedo {
		t.Fatalf("redo: moved=%v state=%+v", moved, st)
	}
	if bodyOf(t, s) != want {
		t.Fatalf("after redo body: %s", bodyOf(t, s))
	}

	got := strings.Join(rec.kinds(), ",")
	if got != "open,insert,undo,redo" {
		t.Fatalf("journal kinds: %s", got)
	}
}

func TestSession_HistoryLinearity(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	s.SetHTML(ctx, "<p>A</p>")
	s.SetHTML(ctx, "<p>B</p>")
	s.Undo(ctx)
	s.SetHTML(ctx, "<p>C</p>")

	if _, moved := s.Redo(ctx); moved {
		t.Fatal("redo after commit must be a no-op")
	}
	if !strings.Contains(bodyOf(t, s), ">C</p>") {
		t.Fatalf("body: %s", bodyOf(t, s))
	}
	s.Undo(ctx)
	if !strings.Contains(bodyOf(t, s), ">A</p>") {
		t.Fatalf("B should be unreachable, body: %s", bodyOf(t, s))
	}
}

func TestSession_UndoBoundary(t *testing.T) {
	s, _ := testSession(t)
	st, moved := s.Undo(context.Background())
	if moved || st.Position != 0 || s.Document() != htmldoc.DefaultDocument {
		t.Fatalf("undo at start changed state: %+v", st)
	}
}

func TestSession_ApplyEditMissingIdentityIsAtomic(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	s.InsertElement(ctx, InsertSpec{Tag: "p", Identity: "p-1", Text: "Hello"})
	before, beforeState := s.Document(), s.State()

	_, err := s.ApplyEdit(ctx, Edit{Identity: "ghost", Kind: EditText, Value: "x"})
	var nf *htmldoc.ElementNotFoundError
	if !errors.As(err, &nf) || nf.Identity != "ghost" {
		t.Fatalf("expected ElementNotFoundError, got %v", err)
	}
	if s.Document() != before || s.State() != beforeState {
		t.Fatal("failed edit changed the session")
	}
}

func TestSession_ApplyEditKinds(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	s.InsertElement(ctx, InsertSpec{Tag: "a", Identity: "a-1", Text: "link"})

	steps := []Edit{
		{Identity: "a-1", Kind: EditText, Value: "docs"},
		{Identity: "a-1", Kind: EditAttribute, Key: "href", Value: "/docs"},
		{Identity: "a-1", Kind: EditStyle, Key: "font-size", Value: "14px"},
	}
	for _, e := range steps {
		if _, err := s.ApplyEdit(ctx, e); err != nil {
			t.Fatalf("%s: %v", e.Kind, err)
		}
	}
	if got := bodyOf(t, s); got != `<a data-element-id="a-1" href="/docs" style="font-size: 14px">docs</a>` {
		t.Fatalf("body: %s", got)
	}
	if s.State().Position != 4 {
		t.Fatalf("one entry per edit expected, position %d", s.State().Position)
	}

	if _, err := s.ApplyEdit(ctx, Edit{Identity: "a-1", Kind: EditAttribute, Key: "href", Remove: true}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(bodyOf(t, s), "href") {
		t.Fatalf("attribute not removed: %s", bodyOf(t, s))
	}

	var ie *htmldoc.InvalidEditError
	if _, err := s.ApplyEdit(ctx, Edit{Identity: "a-1", Kind: "bogus"}); !errors.As(err, &ie) {
		t.Fatalf("unknown kind: %v", err)
	}
	if _, err := s.ApplyEdit(ctx, Edit{Identity: "a-1", Kind: EditAttribute, Key: htmldoc.IdentityAttr, Value: "x"}); !errors.As(err, &ie) {
		t.Fatalf("identity attribute: %v", err)
	}
}

func TestSession_SelectStyleExport(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	id, _, err := s.InsertElement(ctx, InsertSpec{Tag: "p", Text: "Hello"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Select(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyEdit(ctx, Edit{Identity: id, Kind: EditStyle, Key: "color", Value: "#ff0000"}); err != nil {
		t.Fatal(err)
	}
	sel, ok := s.Selected()
	if !ok {
		t.Fatal("selection lost")
	}
	if v, _ := sel.Style.Get("color"); v != "#ff0000" {
		t.Fatalf("inspector style: %q", v)
	}

	exp, err := s.Export(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	out := string(exp.Body)
	if !strings.Contains(out, "color: #ff0000") || strings.Contains(out, htmldoc.IdentityAttr) {
		t.Fatalf("export: %s", out)
	}
	if exp.Filename != "index.html" || !strings.HasPrefix(exp.ContentType, "text/html") {
		t.Fatalf("export metadata: %+v", exp)
	}
}

func TestSession_SelectionClearedWhenElementVanishes(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	s.InsertElement(ctx, InsertSpec{Tag: "p", Identity: "p-1", Text: "Hello"})
	s.Select(ctx, "p-1")

	s.Undo(ctx)
	if s.Selection() != "" {
		t.Fatal("selection survived undo that removed the element")
	}

	s.Redo(ctx)
	s.Select(ctx, "p-1")
	if _, err := s.RemoveElement(ctx, "p-1"); err != nil {
		t.Fatal(err)
	}
	if s.Selection() != "" {
		t.Fatal("selection survived removal")
	}

	if _, err := s.Select(ctx, "ghost"); err == nil {
		t.Fatal("selecting a missing element must fail")
	}
}

func TestSession_ImportQuery(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	st, err := s.Import(ctx, "page.html", []byte(`<html><body><h1>Title</h1><p>Body</p></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	for tag, text := range map[string]string{"h1": "Title", "p": "Body"} {
		hs := s.ByTag(tag)
		if len(hs) != 1 || hs[0].Text != text || hs[0].Identity == "" {
			t.Fatalf("%s: %+v", tag, hs)
		}
	}

	before := s.Document()
	n, st2, err := s.EnsureIdentities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || s.Document() != before || st2.Length != st.Length {
		t.Fatalf("second tagging pass committed: n=%d", n)
	}
}

func TestSession_ImportRejects(t *testing.T) {
	h, _ := testHub(t, &Config{Import: ImportConfig{MaxBytes: 64}})
	s, _ := h.Open(context.Background())
	ctx := context.Background()

	cases := map[string][]byte{
		"empty":    []byte("  \n"),
		"binary":   []byte("<p>\x00\x01</p>"),
		"not utf8": []byte("<p>\xff\xfe</p>"),
		"too big":  []byte("<p>" + strings.Repeat("x", 100) + "</p>"),
	}
	for name, data := range cases {
		_, err := s.Import(ctx, name, data)
		var ife *ImportFormatError
		if !errors.As(err, &ife) {
			t.Errorf("%s: expected ImportFormatError, got %v", name, err)
		}
	}
	if s.State().Length != 1 {
		t.Fatal("rejected imports committed")
	}
}

func TestSession_ImportSanitize(t *testing.T) {
	h, _ := testHub(t, &Config{Import: ImportConfig{Sanitize: true}})
	s, _ := h.Open(context.Background())

	if _, err := s.Import(context.Background(), "x.html", []byte(`<p onclick="x()">hi</p><script>alert(1)</script>`)); err != nil {
		t.Fatal(err)
	}
	doc := s.Document()
	if strings.Contains(doc, "alert") || strings.Contains(doc, "onclick") {
		t.Fatalf("sanitize not applied: %s", doc)
	}
	if len(s.ByTag("p")) != 1 || s.ByTag("p")[0].Identity == "" {
		t.Fatalf("imported paragraph not tagged: %s", doc)
	}
}

func TestSession_ExportFormats(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	s.SetHTML(ctx, `<h1>Title</h1><p>Body</p>`)

	md, err := s.Export(ctx, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md.Body), "# Title") || md.Filename != "index.md" {
		t.Fatalf("markdown: %+v %s", md, md.Body)
	}

	min, err := s.Export(ctx, FormatMinified)
	if err != nil {
		t.Fatal(err)
	}
	full, _ := s.Export(ctx, FormatHTML)
	if len(min.Body) > len(full.Body) || strings.Contains(string(min.Body), htmldoc.IdentityAttr) {
		t.Fatalf("minified: %s", min.Body)
	}

	if _, err := s.Export(ctx, "pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("unknown format: %v", err)
	}
}

func TestSession_SetHTMLRejectsEmpty(t *testing.T) {
	s, _ := testSession(t)
	_, err := s.SetHTML(context.Background(), "   ")
	var ide *htmldoc.InvalidDocumentError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InvalidDocumentError, got %v", err)
	}
}

func TestSession_ReplaceImageAndDrop(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	spec, err := Drop("img", 10, 20.5)
	if err != nil {
		t.Fatal(err)
	}
	id, _, err := s.InsertElement(ctx, spec)
	if err != nil {
		t.Fatal(err)
	}
	el, _ := s.Element(id)
	if v, _ := el.Style.Get("left"); v != "10px" {
		t.Fatalf("left: %q", v)
	}
	if v, _ := el.Style.Get("top"); v != "20.5px" {
		t.Fatalf("top: %q", v)
	}

	if _, err := s.ReplaceImage(ctx, id, "/new.png"); err != nil {
		t.Fatal(err)
	}
	el, _ = s.Element(id)
	if src, _ := el.Attr("src"); src != "/new.png" {
		t.Fatalf("src: %q", src)
	}

	if _, err := Drop("marquee", 0, 0); err == nil {
		t.Fatal("unknown palette item accepted")
	}
}

func TestSession_StyleEditsAccumulate(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	spec, err := Drop("p", 10, 20)
	if err != nil {
		t.Fatal(err)
	}
	id, _, err := s.InsertElement(ctx, spec)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []Edit{
		{Identity: id, Kind: EditStyle, Key: "color", Value: "red"},
		{Identity: id, Kind: EditStyle, Key: "font-size", Value: "12px"},
	} {
		if _, err := s.ApplyEdit(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	el, _ := s.Element(id)
	want := map[string]string{"position": "absolute", "left": "10px", "top": "20px", "color": "red", "font-size": "12px"}
	for prop, v := range want {
		if got, ok := el.Style.Get(prop); !ok || got != v {
			t.Fatalf("%s: got %q (%v), style %+v", prop, got, ok, el.Style)
		}
	}

	var iee *htmldoc.InvalidEditError
	if _, err := s.ApplyEdit(ctx, Edit{Identity: id, Kind: EditStyle, Key: "color", Value: "red; position: fixed"}); !errors.As(err, &iee) {
		t.Fatalf("smuggled declaration: %v", err)
	}
	if _, err := s.ApplyEdit(ctx, Edit{Identity: id, Kind: EditStyle, Key: "color", Value: ""}); err != nil {
		t.Fatal(err)
	}
	el, _ = s.Element(id)
	if _, ok := el.Style.Get("color"); ok {
		t.Fatalf("empty value kept color: %+v", el.Style)
	}
}

func TestSession_RemovedIdentityNotReused(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	if _, _, err := s.InsertElement(ctx, InsertSpec{Tag: "p", Identity: "p-1", Text: "old"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RemoveElement(ctx, "p-1"); err != nil {
		t.Fatal(err)
	}
	var iee *htmldoc.InvalidEditError
	if _, _, err := s.InsertElement(ctx, InsertSpec{Tag: "h1", Identity: "p-1", Text: "new"}); !errors.As(err, &iee) {
		t.Fatalf("expected InvalidEditError, got %v", err)
	}
	if _, ok := s.Element("p-1"); ok {
		t.Fatal("p-1 resolves after a rejected reuse")
	}

	// Undo brings the original element back under its own identity.
	if _, ok := s.Undo(ctx); !ok {
		t.Fatal("undo refused")
	}
	if el, ok := s.Element("p-1"); !ok || el.Tag != "p" {
		t.Fatalf("undo: %+v %v", el, ok)
	}
}

func TestSession_ExportRecordsPosition(t *testing.T) {
	s, rec := testSession(t)
	ctx := context.Background()
	s.InsertElement(ctx, InsertSpec{Tag: "p", Text: "a"})
	s.InsertElement(ctx, InsertSpec{Tag: "p", Text: "b"})

	if _, err := s.Export(ctx, FormatHTML); err != nil {
		t.Fatal(err)
	}
	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	if last.Kind != "export" || last.Position != s.State().Position {
		t.Fatalf("export event: %+v, position %d", last, s.State().Position)
	}
}

func TestSession_ConcurrentEditsSerialize(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	s.InsertElement(ctx, InsertSpec{Tag: "div", Identity: "box"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.InsertElement(ctx, InsertSpec{Parent: "box", Tag: "p", Text: "x"})
		}()
	}
	wg.Wait()

	if n := len(s.ByTag("p")); n != 20 {
		t.Fatalf("lost updates: %d paragraphs", n)
	}
	if st := s.State(); st.Position != 21 || st.Length != 22 {
		t.Fatalf("state: %+v", st)
	}
}

func TestHub_Lifecycle(t *testing.T) {
	h, _ := testHub(t, &Config{Session: SessionConfig{MaxSessions: 2, IdleTimeout: time.Minute}})
	ctx := context.Background()

	a, err := h.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Open(ctx); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}
	if got, err := h.Get(a.ID()); err != nil || got != a {
		t.Fatalf("Get: %v", err)
	}
	if len(h.Sessions()) != 2 {
		t.Fatalf("Sessions: %d", len(h.Sessions()))
	}

	if err := h.CloseSession(ctx, a.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Get(a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("closed session still reachable: %v", err)
	}
	if err := h.CloseSession(ctx, a.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("double close: %v", err)
	}

	if n := h.Sweep(ctx, time.Now().Add(2*time.Minute)); n != 1 {
		t.Fatalf("Sweep closed %d sessions", n)
	}
	if len(h.Sessions()) != 0 {
		t.Fatal("idle session survived sweep")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vedit.yaml")
	data := "addr: \":9999\"\nsession:\n  idle_timeout: 10m\nimport:\n  max_bytes: 1024\n  sanitize: true\nmcp:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9999" || cfg.Session.IdleTimeout != 10*time.Minute || cfg.Import.MaxBytes != 1024 || !cfg.Import.Sanitize {
		t.Fatalf("parsed: %+v", cfg)
	}
	if cfg.MCP.Enabled {
		t.Fatal("mcp.enabled: false ignored")
	}
	if cfg.Session.SweepInterval != time.Minute || cfg.Session.MaxSessions != 256 {
		t.Fatalf("defaults not applied: %+v", cfg.Session)
	}
	if !DefaultConfig().MCP.Enabled {
		t.Fatal("mcp should default to enabled")
	}
}
