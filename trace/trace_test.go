package trace

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/vedit/kit"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func openTraced(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDriver_LogsStatements(t *testing.T) {
	buf := captureLogs(t)
	db := openTraced(t)

	ctx := kit.WithSessionID(context.Background(), "s-1")
	if _, err := db.ExecContext(ctx, "CREATE TABLE t (x INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO t VALUES (?)", 1); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM t").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count: %d", n)
	}

	out := buf.String()
	for _, want := range []string{"trace: sql", "INSERT INTO t", "session_id=s-1", "op=query"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}

func TestDriver_LogsErrors(t *testing.T) {
	buf := captureLogs(t)
	db := openTraced(t)

	if _, err := db.Exec("INSERT INTO missing VALUES (1)"); err == nil {
		t.Fatal("expected error")
	}
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "op=prepare") {
		t.Fatalf("expected prepare error log:\n%s", out)
	}
	if !strings.Contains(out, "INSERT INTO missing") {
		t.Fatalf("failed statement not logged:\n%s", out)
	}
}

func TestDriver_SkipsFastPragma(t *testing.T) {
	buf := captureLogs(t)
	db := openTraced(t)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "PRAGMA") {
		t.Fatalf("fast PRAGMA should not be logged:\n%s", buf.String())
	}
}
