package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-presign/pkg/simplepresign/api"
	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
	"github.com/tendant/simple-presign/pkg/simplepresign/config"
	"github.com/tendant/simple-presign/pkg/simplepresign/metrics"
	memorystorage "github.com/tendant/simple-presign/pkg/simplepresign/storage/memory"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if err := run(logger, quit); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// run serves until quit delivers a signal or the listener fails. Resources
// opened here are released before it returns.
func run(logger *slog.Logger, quit <-chan os.Signal) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	auditLog, closeAudit, err := audit.OpenFile(cfg.Audit.LogFile, audit.WithErrorHook(func(err error) {
		metrics.AuditWriteFailures.Inc()
		slog.Warn("Failed to write audit record", "error", err)
	}))
	if err != nil {
		return err
	}
	defer closeAudit.Close()

	components, err := cfg.BuildService(context.Background(), auditLog)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer components.Close()

	mounts := map[string]http.Handler{}
	if backend, ok := components.Store.(*memorystorage.Backend); ok {
		base, err := url.Parse(cfg.Storage.MemoryBaseURL)
		if err != nil || base.Path == "" {
			return fmt.Errorf("invalid MEMORY_BASE_URL %q", cfg.Storage.MemoryBaseURL)
		}
		mounts[base.Path] = backend.Handler()
		slog.Warn("Serving blobs from memory; data is lost on restart", "path", base.Path)
	}

	handler := api.NewHandler(components.Service, api.Options{
		Environment:      cfg.Environment,
		Version:          cfg.Version,
		CORSOrigins:      cfg.HTTP.CORSOrigins,
		AllowedHosts:     cfg.HTTP.AllowedHosts,
		MaxBodyBytes:     cfg.HTTP.MaxBodyBytes,
		MaxFileSize:      cfg.Presign.MaxFileSize,
		VirusScanEnabled: cfg.Files.VirusScanEnabled,
		Logger:           logger,
		Mounts:           mounts,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Presign server starting",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage_backend", cfg.Storage.Backend,
			"presign_expiry", cfg.PresignExpiry(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exiting")
	return nil
}
