package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-todo/internal/api"
	"github.com/celerix-dev/celerix-todo/internal/config"
	"github.com/celerix-dev/celerix-todo/internal/engine"
	"github.com/celerix-dev/celerix-todo/internal/tasks"
	"github.com/celerix-dev/celerix-todo/internal/token"
	"github.com/celerix-dev/celerix-todo/internal/users"
)

// Version is reported by the health endpoint.
var Version = "1.0.0"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	logger.Info("starting TODO API", "version", Version, "env", cfg.Env)

	store, err := engine.Open(ctx, engine.Options{
		DatabaseURL: cfg.DatabaseURL,
		DataDir:     cfg.DataDir,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		logger.Info("finalizing store writes")
		if err := store.Close(); err != nil {
			logger.Error("close store", "err", err)
		}
	}()

	switch {
	case cfg.DatabaseURL != "":
		logger.Info("using postgres store")
	case cfg.DataDir != "":
		logger.Info("using file-backed store", "dir", cfg.DataDir)
	default:
		logger.Warn("using memory-only store, data is lost on exit")
	}

	if cfg.MigrateFrom != "" {
		if err := migrate(ctx, cfg.MigrateFrom, store, logger); err != nil {
			return err
		}
	}

	issuer, err := token.NewIssuer([]byte(cfg.JWTSecret), nil)
	if err != nil {
		return err
	}
	userSvc, err := users.NewService(ctx, store, issuer, nil)
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &api.Handler{
		Users:       userSvc,
		Tasks:       tasks.NewService(store, nil),
		Tokens:      issuer,
		Logger:      logger,
		Version:     Version,
		Development: cfg.Development(),
	}
	router := api.NewRouter(h, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr, "prefix", api.Prefix)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// migrate imports every collection from a MemStore data directory.
func migrate(ctx context.Context, dir string, dst engine.Importer, logger *log.Logger) error {
	src, err := engine.OpenDir(dir, logger)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	n, err := engine.Migrate(ctx, src, dst)
	if err != nil {
		return fmt.Errorf("migrate from %s: %w", dir, err)
	}
	logger.Info("migration complete", "from", dir, "documents", n)
	return nil
}
