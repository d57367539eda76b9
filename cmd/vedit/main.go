// Command vedit serves the visual HTML editor back end: the session API over
// HTTP, the MCP tools for agents and a minimal embedded editor page.
//
// With -export it runs once instead: the file is imported into a throwaway
// session and written to stdout in the requested format.
package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hazyhaar/vedit/chassis"
	"github.com/hazyhaar/vedit/editor"
	"github.com/hazyhaar/vedit/journal"
	"github.com/hazyhaar/vedit/preview"
)

//go:embed static
var staticFS embed.FS

var version = "dev"

func main() {
	configPath := flag.String("config", env("VEDIT_CONFIG", ""), "YAML config file")
	addr := flag.String("addr", env("VEDIT_ADDR", ""), "listen address (overrides config)")
	journalPath := flag.String("journal", env("VEDIT_JOURNAL", ""), "SQLite edit journal path (overrides config)")
	sqlTrace := flag.Bool("sql-trace", env("VEDIT_SQL_TRACE", "") != "", "trace journal SQL statements")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error")
	exportFile := flag.String("export", "", "import this file, export it and exit")
	format := flag.String("format", editor.FormatHTML, "export format for -export")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *exportFile != "" {
		if err := runExport(ctx, cfg, logger, *exportFile, *format, os.Stdout); err != nil {
			logger.Error("export", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger, *sqlTrace); err != nil {
		logger.Error("vedit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *editor.Config, logger *slog.Logger, sqlTrace bool) error {
	var opts []editor.Option

	if cfg.JournalPath != "" {
		jopts := []journal.Option{journal.WithLogger(logger)}
		if sqlTrace {
			jopts = append(jopts, journal.WithSQLTrace())
		}
		j, err := journal.Open(cfg.JournalPath, jopts...)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer j.Close()
		go j.RunRetention(ctx, time.Hour, 30*24*time.Hour)
		opts = append(opts, editor.WithRecorder(j))
		logger.Info("journal enabled", "path", cfg.JournalPath)
	}

	if cfg.Preview.Enabled {
		mgr := preview.NewManager(preview.Config{
			RemoteURL:       cfg.Preview.RemoteURL,
			MemoryLimit:     cfg.Preview.MemoryLimit,
			RecycleInterval: cfg.Preview.RecycleInterval,
			BlockResources:  []string{"media", "fonts"},
			Logger:          logger,
		})
		defer mgr.Close()
		opts = append(opts, editor.WithPreview(preview.NewRenderer(mgr)))
		logger.Info("preview enabled", "remote", cfg.Preview.RemoteURL != "")
	}

	hub, err := editor.New(cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer hub.Close()

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}
	srv := chassis.New(chassis.Config{
		Addr:      cfg.Addr,
		Name:      "vedit",
		Version:   version,
		EnableMCP: cfg.MCP.Enabled,
		MaxBody:   cfg.Import.MaxBytes + 1<<20,
		Static:    static,
	}, logger)
	if err := srv.Register("editor", hub); err != nil {
		return err
	}
	return srv.Start(ctx)
}

// runExport converts one file without starting the server.
func runExport(ctx context.Context, cfg *editor.Config, logger *slog.Logger, path, format string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	hub, err := editor.New(cfg, logger)
	if err != nil {
		return err
	}
	defer hub.Close()

	s, err := hub.Open(ctx)
	if err != nil {
		return err
	}
	if _, err := s.Import(ctx, filepath.Base(path), data); err != nil {
		return err
	}
	exp, err := s.Export(ctx, format)
	if err != nil {
		return err
	}
	_, err = w.Write(exp.Body)
	return err
}

func loadConfig(path string) (*editor.Config, error) {
	if path == "" {
		return editor.DefaultConfig(), nil
	}
	return editor.LoadConfigFile(path)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
