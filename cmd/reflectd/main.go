// Reflectd is the reflection analysis daemon.
//
// It accepts free-text reflections over HTTP, dispatches them to an
// OpenAI-compatible inference endpoint, and resolves each submission to
// a durable outcome: an append-only journal entry plus best-effort
// virtue score updates.
//
// Configuration is loaded from an optional YAML file and REFLECTD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (in-memory store, local endpoint)
//	reflectd
//
//	# Configure via environment
//	REFLECTD_SERVER_PORT=9190 REFLECTD_STORE_PATH=reflect.db reflectd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflectd/internal/cache"
	"github.com/fyrsmithlabs/reflectd/internal/config"
	"github.com/fyrsmithlabs/reflectd/internal/httpapi"
	"github.com/fyrsmithlabs/reflectd/internal/inference"
	"github.com/fyrsmithlabs/reflectd/internal/journal"
	"github.com/fyrsmithlabs/reflectd/internal/ledger"
	"github.com/fyrsmithlabs/reflectd/internal/logging"
	"github.com/fyrsmithlabs/reflectd/internal/metrics"
	"github.com/fyrsmithlabs/reflectd/internal/orchestrator"
	"github.com/fyrsmithlabs/reflectd/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  reflectd           Start the reflectd daemon\n")
			fmt.Fprintf(os.Stderr, "  reflectd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("reflectd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the reflectd server and blocks until context cancellation.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting reflectd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.Inference.Model),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	backing, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := backing.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	model, err := inference.NewOpenAIModel(cfg.Inference)
	if err != nil {
		return fmt.Errorf("failed to initialize inference model: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	scores := ledger.NewUpdater(backing, logger, m)

	registry := orchestrator.NewRegistry(orchestrator.Deps{
		Store:      backing,
		Dispatcher: inference.NewDispatcher(model, cfg.Inference, logger, m),
		Journal:    journal.NewWriter(backing, logger, m),
		Ledger:     scores,
		Cache:      cache.New(cfg.Cache.TTL.Duration(), cfg.Cache.MaxEntries),
		Logger:     logger,
		Metrics:    m,
	})

	srv, err := httpapi.NewServer(registry, backing, scores, logger, cfg.Server, version)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore selects the durable backend. An empty path keeps everything
// in memory, which is what the test harness and local demos use.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.Store.Path == "" {
		logger.Warn("no store path configured, using in-memory store")
		return store.NewMemory(), nil
	}
	logger.Info("opening sqlite store", zap.String("path", cfg.Store.Path))
	return store.NewSQLite(cfg.Store.Path)
}
