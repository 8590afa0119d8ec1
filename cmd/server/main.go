// Package main serves token holder graphs over HTTP and live layout
// sessions over WebSocket:
// - Graph snapshots, wallet lists, volume and reports per token
// - Analysis jobs proxied to the backend, with datasets fetched on completion
// - Prometheus metrics, health and status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"token-graph-lab/internal/analysis"
	"token-graph-lab/internal/config"
	"token-graph-lab/internal/observability"
	"token-graph-lab/internal/session"
	"token-graph-lab/internal/stream"
)

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", config.Getenv("TGL_ADDR", ":8080"), "HTTP listen address")
	backendURL := flag.String("backend-url", os.Getenv("TGL_BACKEND_URL"), "Analysis backend base URL")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", false, "Run database migrations on startup")
	logLevel := flag.String("log-level", config.Getenv("TGL_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", config.Getenv("TGL_LOG_FORMAT", "console"), "Log format (console, json)")
	cacheTTL := flag.Duration("cache-ttl", 10*time.Minute, "Graph cache TTL")
	frameInterval := flag.Duration("frame-interval", stream.DefaultConfig().FrameInterval, "Layout frame interval for live sessions")
	backendRate := flag.Float64("backend-rate", 5, "Analysis backend requests per second")

	flag.Parse()

	// Setup logger
	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:   *logLevel,
		Format:  *logFormat,
		Service: "server",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.FromEnv(config.Default())
	if err != nil {
		logger.Fatal("load pipeline config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid pipeline config", zap.Error(err))
	}

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, *migrate, logger)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	opts := ServerOptions{
		Config:    cfg,
		Datasets:  st.datasets,
		Transfers: st.transfers,
		Cache:     session.NewCache(*cacheTTL, *cacheTTL/2),
		Logger:    logger,
	}
	opts.Stream.Config = stream.DefaultConfig()
	opts.Stream.Config.FrameInterval = *frameInterval
	if *backendURL != "" {
		opts.Backend = analysis.NewClient(*backendURL,
			analysis.WithRateLimit(rate.Limit(*backendRate), 1),
			analysis.WithLogger(logger.Named("analysis")),
		)
	} else {
		logger.Warn("no analysis backend configured, serving stored datasets only")
	}

	server := NewServer(ctx, opts)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Closed once Shutdown has drained connections
	stopped := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()
		server.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		go func() {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			close(stopped)
		}()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-stopped:
			if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
				logger.Warn("graceful shutdown timed out after 30s")
			}
		}
	}()

	logger.Info("server listening",
		zap.String("addr", *addr),
		zap.Bool("memory", *useMemory),
		zap.Bool("clickhouse", st.transfers != nil && !*useMemory),
		zap.Int("months_back", cfg.MonthsBack),
		zap.Int("max_nodes", cfg.MaxNodes),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	<-stopped

	logger.Info("shutdown complete")
}
