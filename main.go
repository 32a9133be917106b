// Command nodal runs the embedded typed key-value store: its HTTP API,
// its cooperative JavaScript scripting runtime, and the background
// status-snapshot writer, adapted from EntityDB's main.go — the
// config-then-repository-then-router-then-signal-wait shutdown sequence
// is kept, trimmed of everything this store has no equivalent for
// (RBAC bootstrap, swagger docs, static asset serving, SSL, the
// metrics/dataset subsystem).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nodalkv/nodal/internal/config"
	"github.com/nodalkv/nodal/internal/httpapi"
	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/logger"
	"github.com/nodalkv/nodal/internal/replcli"
	"github.com/nodalkv/nodal/internal/script"
	"github.com/nodalkv/nodal/internal/sqlstore"
	"github.com/nodalkv/nodal/internal/status"
	"github.com/nodalkv/nodal/internal/writequeue"
)

// Version is the build version string, overridden at build time via
// -ldflags "-X main.Version=x.y.z", the same convention EntityDB's
// main.go uses for its own Version/BuildDate pair.
var Version = "0.1.0-dev"

// sqlAdapter narrows *sqlstore.Boundary to the script.SQLBoundary shape.
// script intentionally has no import of sqlstore (kept consumer-side so
// the SQL boundary can evolve without the scripting package along for
// the ride); this is the one place that knows about both, since wiring
// them together is exactly what main does.
type sqlAdapter struct{ b *sqlstore.Boundary }

func (a sqlAdapter) Query(query string, args ...any) ([]map[string]any, error) {
	return a.b.Query(query, args...)
}

func (a sqlAdapter) Exec(query string, args ...any) (int64, error) {
	return a.b.Exec(query, args...)
}

func (a sqlAdapter) ScriptCatalog() script.ScriptCatalog {
	return a.b.ScriptCatalog()
}

const shutdownTimeout = 10 * time.Second
const statusInterval = 15 * time.Second

func main() {
	var configPath string
	for i, a := range os.Args[1:] {
		if a == "--config" && i+2 <= len(os.Args[1:]) {
			configPath = os.Args[i+2]
		}
	}

	cfg, err := config.Load(configPath, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", cfg.LogLevel)
		os.Exit(1)
	}
	logger.SetLevel(level)
	logger.Info("starting nodal v%s with log level %s", Version, strings.ToUpper(cfg.LogLevel))

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory %s: %v", cfg.DataDir, err)
		os.Exit(1)
	}

	store, err := kv.Open(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	queue := writequeue.New(store, cfg.WriteQueueSz)
	if err := queue.Start(); err != nil {
		logger.Error("failed to start write queue: %v", err)
		os.Exit(1)
	}

	sqlBoundary, err := sqlstore.Open(cfg.SQLitePath)
	if err != nil {
		logger.Error("failed to open sql boundary: %v", err)
		os.Exit(1)
	}
	defer sqlBoundary.Close()

	host := script.New(store, queue, sqlAdapter{sqlBoundary})
	if err := host.Start(); err != nil {
		logger.Error("failed to start script runtime: %v", err)
		os.Exit(1)
	}

	statusStop := make(chan struct{})
	go status.Run(cfg.StatusPath, store, queue, statusInterval, statusStop)

	server := httpapi.NewServer(store, queue, host, cfg.TokenDigest)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening on :%d", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed: %v", err)
		}
	}()

	if os.Getenv("NODAL_DEBUG_REPL") == "1" {
		go func() {
			if err := replcli.New(store, queue).Run(); err != nil {
				logger.Warn("debug console exited: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal %v, shutting down", sig)

	close(statusStop)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error: %v", err)
	}

	host.Shutdown()
	if err := queue.Stop(); err != nil {
		logger.Error("write queue shutdown error: %v", err)
	}

	logger.Info("shutdown complete")
}
