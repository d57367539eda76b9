// Package journal is an append-only SQLite log of editing events. It records
// what happened (which session, which element, which kind of change, where
// the cursor landed), never document content.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vedit/dbopen"
	"github.com/hazyhaar/vedit/idgen"
	"github.com/hazyhaar/vedit/trace"
)

// Schema is the journal DDL, applied by Open.
const Schema = `
CREATE TABLE IF NOT EXISTS edit_events (
    event_id   TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    kind       TEXT NOT NULL,
    identity   TEXT NOT NULL DEFAULT '',
    edit_key   TEXT NOT NULL DEFAULT '',
    surface    TEXT NOT NULL DEFAULT '',
    transport  TEXT NOT NULL DEFAULT '',
    position   INTEGER NOT NULL DEFAULT 0,
    success    INTEGER NOT NULL DEFAULT 1,
    error      TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edit_events_session
    ON edit_events(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_edit_events_created
    ON edit_events(created_at);
`

// Event is one journal row.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"` // open, commit, edit, insert, remove, undo, redo, import, export, close
	Identity  string    `json:"identity,omitempty"`
	Key       string    `json:"key,omitempty"`
	Surface   string    `json:"surface,omitempty"`
	Transport string    `json:"transport,omitempty"`
	Position  int       `json:"position"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal writes and reads edit events.
type Journal struct {
	db     *sql.DB
	owned  bool
	driver string
	newID  idgen.Generator
	logger *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the generator for event IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithLogger sets the logger used to report write failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithSQLTrace opens the database through the tracing driver. Only Open
// honours it.
func WithSQLTrace() Option {
	return func(j *Journal) { j.driver = trace.DriverName }
}

// Open opens (or creates) the journal database at path.
func Open(path string, opts ...Option) (*Journal, error) {
	j := New(nil, opts...)
	db, err := dbopen.Open(path,
		dbopen.WithDriver(j.driver),
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	j.db = db
	j.owned = true
	return j, nil
}

// New wraps an open database. The schema must already be applied.
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:     db,
		driver: "sqlite",
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Close closes the database when Open created it.
func (j *Journal) Close() error {
	if !j.owned {
		return nil
	}
	return j.db.Close()
}

// Record appends an event. Failures are logged and swallowed: a broken
// journal never blocks an edit.
func (j *Journal) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO edit_events (
			event_id, session_id, kind, identity, edit_key, surface,
			transport, position, success, error, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.SessionID, e.Kind, e.Identity, e.Key, e.Surface,
		e.Transport, e.Position, e.Success, e.Error, e.CreatedAt.UnixMilli())
	if err != nil {
		j.logger.Warn("journal: record failed", "error", err, "session_id", e.SessionID, "kind", e.Kind)
	}
}

// Recent returns the latest events of a session, newest first. An empty
// sessionID lists all sessions.
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT event_id, session_id, kind, identity, edit_key, surface,
		transport, position, success, error, created_at
		FROM edit_events`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var created int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Identity, &e.Key, &e.Surface,
			&e.Transport, &e.Position, &e.Success, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than retention and returns how many went.
func (j *Journal) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := j.db.ExecContext(ctx, `DELETE FROM edit_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// RunRetention calls Cleanup every interval until ctx is done.
func (j *Journal) RunRetention(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := j.Cleanup(ctx, retention)
			if err != nil {
				j.logger.Warn("journal: retention failed", "error", err)
				continue
			}
			if n > 0 {
				j.logger.Info("journal: retention", "deleted", n)
			}
		}
	}
}
