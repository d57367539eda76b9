package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/vedit/kit"
)

// Driver wraps another database/sql driver and traces its statements.
type Driver struct {
	driver.Driver
}

func (d *Driver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &tracingConn{Conn: conn}, nil
}

type tracingConn struct {
	driver.Conn
}

func (c *tracingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext records failed preparations: sqlite reports unknown tables
// and syntax errors here, before any Exec or Query runs.
func (c *tracingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	start := time.Now()
	var (
		stmt driver.Stmt
		err  error
	)
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		record(ctx, "prepare", query, time.Since(start), err)
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query}, nil
}

type tracingStmt struct {
	driver.Stmt
	query string
}

func (s *tracingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = ec.ExecContext(ctx, args)
	} else {
		res, err = s.Stmt.Exec(values(args))
	}
	record(ctx, "exec", s.query, time.Since(start), err)
	return res, err
}

func (s *tracingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(values(args))
	}
	record(ctx, "query", s.query, time.Since(start), err)
	return rows, err
}

func (s *tracingStmt) Exec(args []driver.Value) (driver.Result, error) {
	start := time.Now()
	res, err := s.Stmt.Exec(args)
	record(context.Background(), "exec", s.query, time.Since(start), err)
	return res, err
}

func (s *tracingStmt) Query(args []driver.Value) (driver.Rows, error) {
	start := time.Now()
	rows, err := s.Stmt.Query(args)
	record(context.Background(), "query", s.query, time.Since(start), err)
	return rows, err
}

func record(ctx context.Context, op, query string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryDuration.WithLabelValues(op, status).Observe(d.Seconds())

	// PRAGMA statements run on every open; only slow or failed ones matter.
	if err == nil && d < SlowThreshold && strings.HasPrefix(query, "PRAGMA ") {
		return
	}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case d > SlowThreshold:
		level = slog.LevelWarn
	}
	if !slog.Default().Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", strings.Join(strings.Fields(query), " ")),
		slog.Duration("duration", d),
	}
	if sid := kit.GetSessionID(ctx); sid != "" {
		attrs = append(attrs, slog.String("session_id", sid))
	}
	if rid := kit.GetRequestID(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	slog.LogAttrs(ctx, level, "trace: sql", attrs...)
}

func values(named []driver.NamedValue) []driver.Value {
	vals := make([]driver.Value, len(named))
	for i, nv := range named {
		vals[i] = nv.Value
	}
	return vals
}
