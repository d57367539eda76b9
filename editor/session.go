package editor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/vedit/editor/internal/history"
	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/journal"
	"github.com/hazyhaar/vedit/kit"
)

// Recorder receives editing events. *journal.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, e journal.Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, journal.Event) {}

// State summarizes a session after an operation.
type State struct {
	SessionID string `json:"session_id"`
	Position  int    `json:"position"`
	Length    int    `json:"length"`
	CanUndo   bool   `json:"can_undo"`
	CanRedo   bool   `json:"can_redo"`
	Selection string `json:"selection,omitempty"`
	Title     string `json:"title"`
}

// Session is one document being edited: its history, its selection and the
// tagger that names its elements. Every operation runs under one lock, so
// parse, mutate, render and commit never interleave between callers.
type Session struct {
	id       string
	created  time.Time
	lastUsed atomic.Int64

	mu        sync.Mutex
	hist      *history.History
	tagger    *htmldoc.Tagger
	selection string
	// issued holds every identity any committed entry has carried.
	issued map[string]struct{}

	importCfg ImportConfig
	logger    *slog.Logger
	recorder  Recorder
}

func newSession(id string, cfg *Config, logger *slog.Logger, rec Recorder) (*Session, error) {
	h, err := history.New(htmldoc.DefaultDocument, htmldoc.Validate)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	s := &Session{
		id:        id,
		created:   time.Now(),
		hist:      h,
		tagger:    htmldoc.NewTagger(),
		issued:    make(map[string]struct{}),
		importCfg: cfg.Import,
		logger:    logger.With("session_id", id),
		recorder:  rec,
	}
	s.touch()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// LastUsed returns the time of the latest operation.
func (s *Session) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) stateLocked() State {
	doc := s.hist.Current()
	return State{
		SessionID: s.id,
		Position:  s.hist.Position(),
		Length:    s.hist.Len(),
		CanUndo:   s.hist.CanUndo(),
		CanRedo:   s.hist.CanRedo(),
		Selection: s.selection,
		Title:     htmldoc.Title(doc),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// snapshot returns the current document with its history position.
func (s *Session) snapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.hist.Current(), s.hist.Position()
}

// Document returns the canonical document.
func (s *Session) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.hist.Current()
}

// commitLocked normalizes doc, tags its untagged elements and appends it to
// history. On error nothing changes.
func (s *Session) commitLocked(ctx context.Context, op string, doc string, ev journal.Event) (State, error) {
	norm, err := htmldoc.Normalize(doc)
	if err != nil {
		return s.rejectLocked(ctx, op, err, ev)
	}
	tagged, _, err := s.tagger.EnsureIdentities(norm)
	if err != nil {
		return s.rejectLocked(ctx, op, err, ev)
	}
	if err := s.hist.Commit(tagged); err != nil {
		return s.rejectLocked(ctx, op, err, ev)
	}
	s.reconcileSelectionLocked()
	for _, id := range htmldoc.Identities(tagged) {
		s.issued[id] = struct{}{}
	}

	commitsTotal.WithLabelValues(op).Inc()
	documentBytes.Observe(float64(len(tagged)))
	st := s.stateLocked()
	s.logger.DebugContext(ctx, "editor: committed", "op", op, "identity", ev.Identity, "position", st.Position)
	s.record(ctx, op, ev, st.Position, nil)
	return st, nil
}

// rejectLocked reports a failed operation and returns the unchanged state.
func (s *Session) rejectLocked(ctx context.Context, op string, err error, ev journal.Event) (State, error) {
	var nf *htmldoc.ElementNotFoundError
	if errors.As(err, &nf) && nf.Identity == s.selection {
		s.selection = ""
	}
	rejectedTotal.WithLabelValues(op, reason(err)).Inc()
	s.logger.InfoContext(ctx, "editor: rejected", "op", op, "identity", ev.Identity, "error", err)
	s.record(ctx, op, ev, s.hist.Position(), err)
	return s.stateLocked(), err
}

func (s *Session) record(ctx context.Context, op string, ev journal.Event, pos int, err error) {
	ev.SessionID = s.id
	ev.Kind = op
	ev.Position = pos
	ev.Surface = kit.GetSurface(ctx)
	ev.Transport = kit.GetTransport(ctx)
	ev.Success = err == nil
	if err != nil {
		ev.Error = err.Error()
	}
	s.recorder.Record(ctx, ev)
}

func reason(err error) string {
	var (
		nf  *htmldoc.ElementNotFoundError
		ie  *htmldoc.InvalidEditError
		id  *htmldoc.InvalidDocumentError
		ife *ImportFormatError
	)
	switch {
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &ie):
		return "invalid_edit"
	case errors.As(err, &id):
		return "invalid_document"
	case errors.As(err, &ife):
		return "import_format"
	}
	return "other"
}

// reconcileSelectionLocked drops a selection whose element is gone.
func (s *Session) reconcileSelectionLocked() {
	if s.selection == "" {
		return
	}
	if _, ok := htmldoc.QueryByIdentity(s.hist.Current(), s.selection); !ok {
		s.selection = ""
	}
}

// Commit replaces the document. Content that is not a complete document is
// normalized into one first; content that cannot be is rejected.
func (s *Session) Commit(ctx context.Context, doc string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.commitLocked(ctx, "commit", doc, journal.Event{})
}

// SetHTML is the code editor's commit: raw markup typed by the user.
func (s *Session) SetHTML(ctx context.Context, doc string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if strings.TrimSpace(doc) == "" {
		return s.rejectLocked(ctx, "set_html", &htmldoc.InvalidDocumentError{Reason: "empty document"}, journal.Event{})
	}
	return s.commitLocked(ctx, "set_html", doc, journal.Event{})
}

// Undo moves back one history entry. At the start it is a no-op.
func (s *Session) Undo(ctx context.Context) (State, bool) {
	return s.move(ctx, "undo", (*history.History).Undo)
}

// Redo moves forward one history entry. At the tail it is a no-op.
func (s *Session) Redo(ctx context.Context) (State, bool) {
	return s.move(ctx, "redo", (*history.History).Redo)
}

func (s *Session) move(ctx context.Context, dir string, step func(*history.History) bool) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if !step(s.hist) {
		return s.stateLocked(), false
	}
	s.reconcileSelectionLocked()
	historyMovesTotal.WithLabelValues(dir).Inc()
	st := s.stateLocked()
	s.record(ctx, dir, journal.Event{}, st.Position, nil)
	return st, true
}

// Select makes id the current selection.
func (s *Session) Select(ctx context.Context, id string) (htmldoc.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	h, ok := htmldoc.QueryByIdentity(s.hist.Current(), id)
	if !ok {
		if s.selection == id {
			s.selection = ""
		}
		return htmldoc.Handle{}, &htmldoc.ElementNotFoundError{Identity: id}
	}
	s.selection = id
	s.logger.DebugContext(ctx, "editor: selected", "identity", id)
	return h, nil
}

// Deselect clears the selection.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.selection = ""
}

// Selection returns the selected identity, or "".
func (s *Session) Selection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Selected returns the handle bound to the inspector: the selected element.
func (s *Session) Selected() (htmldoc.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == "" {
		return htmldoc.Handle{}, false
	}
	return htmldoc.QueryByIdentity(s.hist.Current(), s.selection)
}

// EnsureIdentities tags untagged elements of interest, committing the result
// when anything was assigned. It returns how many identities were assigned.
func (s *Session) EnsureIdentities(ctx context.Context, tags ...string) (int, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	out, n, err := s.tagger.EnsureIdentities(s.hist.Current(), tags...)
	if err != nil || n == 0 {
		return 0, s.stateLocked(), err
	}
	st, err := s.commitLocked(ctx, "tag", out, journal.Event{})
	if err != nil {
		return 0, st, err
	}
	return n, st, nil
}

// Element returns the element carrying id.
func (s *Session) Element(id string) (htmldoc.Handle, bool) {
	return htmldoc.QueryByIdentity(s.Document(), id)
}

// ByTag returns every element named tag.
func (s *Session) ByTag(tag string) []htmldoc.Handle {
	return htmldoc.QueryByTag(s.Document(), tag)
}

// Find returns the elements matching a CSS selector.
func (s *Session) Find(selector string) ([]htmldoc.Handle, error) {
	return htmldoc.QuerySelector(s.Document(), selector)
}

// ByXPath returns the element at an absolute positional path.
func (s *Session) ByXPath(path string) (htmldoc.Handle, bool) {
	return htmldoc.QueryXPath(s.Document(), path)
}

// Inventory groups body elements by tag.
func (s *Session) Inventory(tags ...string) map[string][]htmldoc.Handle {
	return htmldoc.Inventory(s.Document(), tags...)
}
