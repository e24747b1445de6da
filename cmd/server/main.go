// Package main runs the sandbox server: it loads ledger exports, rebuilds
// the configured order books, and serves the session, swap and order-book
// API over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"deepbook-sandbox/internal/api"
	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/market"
	"deepbook-sandbox/internal/storage"
	chstore "deepbook-sandbox/internal/storage/clickhouse"
	"deepbook-sandbox/internal/storage/memory"
	"deepbook-sandbox/internal/storage/migrations"
	pgstore "deepbook-sandbox/internal/storage/postgres"
	"deepbook-sandbox/internal/swap"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", envOr("SANDBOX_ADDR", ":8080"), "HTTP listen address")
	marketsConfig := flag.String("markets-config", os.Getenv("SANDBOX_MARKETS_CONFIG"), "YAML markets configuration (built-in defaults when empty)")
	snapshotDir := flag.String("snapshot-dir", envOr("SANDBOX_SNAPSHOT_DIR", "snapshots"), "Directory with <market_id>.ndjson exports for markets without an explicit file")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for swap history")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the book archive")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	sessionTTL := flag.Duration("session-ttl", time.Hour, "Session lifetime")
	sweepInterval := flag.Duration("sweep-interval", 5*time.Minute, "Expired-session reclaim interval")
	devLog := flag.Bool("dev-log", false, "Human-readable log output")

	flag.Parse()

	logger, err := buildLogger(*devLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Markets: config file or the bundled mainnet defaults.
	markets, snapshotFiles, err := loadMarkets(*marketsConfig, *snapshotDir)
	if err != nil {
		logger.Fatal("load markets", zap.Error(err))
	}

	// Stores
	history, archive, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	// Market service and initial book builds.
	service := market.NewService(markets, market.Options{
		Archive: archive,
		Logger:  logger.Named("market"),
	})
	for _, m := range markets {
		path, ok := snapshotFiles[m.ID]
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			logger.Warn("snapshot file missing, market starts without a book",
				zap.String("market", m.ID), zap.String("path", path))
			continue
		}
		if err := service.RebuildFromFile(ctx, m.ID, path); err != nil {
			logger.Error("initial build failed",
				zap.String("market", m.ID), zap.Error(err))
		}
	}

	// Session engine and sweeper.
	engine := swap.NewEngine(service, swap.Options{
		SessionTTL: *sessionTTL,
		History:    history,
		Logger:     logger.Named("swap"),
	})
	go runSweeper(ctx, engine, *sweepInterval)

	// HTTP server with graceful shutdown.
	server := &http.Server{
		Addr:    *addr,
		Handler: api.NewServer(engine, service, api.Options{Logger: logger.Named("api")}).Handler(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("server listening",
		zap.String("addr", *addr),
		zap.Int("markets", len(markets)),
		zap.Bool("memory_storage", *useMemory))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadMarkets resolves the market list and the snapshot file per market.
func loadMarkets(configPath, snapshotDir string) ([]domain.Market, map[string]string, error) {
	files := make(map[string]string)

	if configPath == "" {
		markets := market.DefaultMarkets()
		for _, m := range markets {
			files[m.ID] = fmt.Sprintf("%s/%s.ndjson", snapshotDir, strings.ToLower(m.ID))
		}
		return markets, files, nil
	}

	cfg, err := market.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	markets := make([]domain.Market, 0, len(cfg.Markets))
	for _, mc := range cfg.Markets {
		markets = append(markets, mc.Market)
		if mc.SnapshotFile != "" {
			files[mc.ID] = mc.SnapshotFile
		} else {
			files[mc.ID] = fmt.Sprintf("%s/%s.ndjson", snapshotDir, strings.ToLower(mc.ID))
		}
	}
	return markets, files, nil
}

// createStores wires the swap history and book archive backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.SwapHistoryStore, storage.BookArchiveStore, func(), error) {
	if useMemory {
		return memory.NewSwapHistoryStore(), memory.NewBookArchiveStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return pgstore.NewSwapHistoryStore(pool), chstore.NewBookArchiveStore(chConn), cleanup, nil
}

// runSweeper reclaims expired sessions on a fixed interval.
func runSweeper(ctx context.Context, engine *swap.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.ReclaimExpired()
		}
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
