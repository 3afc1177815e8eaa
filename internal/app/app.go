// Package app wires a workspace's config, logger, store, notifier and engine
// together for the CLI and the server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"reelline/internal/config"
	"reelline/internal/db"
	"reelline/internal/engine"
	"reelline/internal/logging"
	"reelline/internal/migrate"
	"reelline/internal/notify"
)

type Options struct {
	Workspace string
	// ConfigPath overrides the workspace config lookup.
	ConfigPath string
	LogLevel   string
	LogFormat  string
	LogOutput  io.Writer
}

type App struct {
	Workspace string
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Engine    engine.Engine
}

// Open loads config (defaults when the workspace has none), opens and
// migrates the store, and builds the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	logger, err := logging.NewFromConfig(cfg, opts.LogOutput)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		logger.Debug("migration applied", "name", name)
	}
	e := engine.New(conn, cfg, notify.New(cfg), logger)
	return &App{Workspace: opts.Workspace, Config: cfg, Logger: logger, DB: conn, Engine: e}, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
