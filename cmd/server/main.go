// Package main runs the graduation tracker: feed ingestion, market
// enrichment, the live event stream, and the HTTP API in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/enrich"
	"pump-graduates/internal/feed"
	"pump-graduates/internal/ingest"
	"pump-graduates/internal/market"
	"pump-graduates/internal/notify"
	"pump-graduates/internal/server"
	"pump-graduates/internal/statshist"
	"pump-graduates/internal/store"
	pgstore "pump-graduates/internal/store/postgres"
	redisstore "pump-graduates/internal/store/redis"
	"pump-graduates/internal/stream"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	feedEndpoint := flag.String("feed-endpoint", envOr("FEED_ENDPOINT", "wss://pumpportal.fun/api/data"), "Graduation feed WebSocket endpoint")
	marketEndpoint := flag.String("market-endpoint", envOr("MARKET_ENDPOINT", "https://api.dexscreener.com"), "Market-data API base URL")
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	reconnectMode := flag.String("reconnect", envOr("RECONNECT_MODE", "auto"), "Reconnect policy: auto or manual")
	maxRecords := flag.Int("max-records", envInt("MAX_RECORDS", 0), "Retention cap on tracked records (0 = unbounded)")
	snapshotPath := flag.String("snapshot-file", os.Getenv("SNAPSHOT_FILE"), "Path for file snapshot persistence")
	redisURL := flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis URL for snapshot persistence")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for snapshot persistence")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for stats history (optional)")
	telegramToken := flag.String("telegram-token", os.Getenv("TELEGRAM_BOT_TOKEN"), "Telegram bot token for notifications (optional)")
	telegramChat := flag.String("telegram-chat", os.Getenv("TELEGRAM_CHAT_ID"), "Telegram chat ID for notifications")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *telegramToken != "" && *telegramChat == "" {
		logger.Fatal("--telegram-chat is required when --telegram-token is set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence backend: postgres, redis, file, or none.
	snap, cleanup, err := createSnapshotter(ctx, *postgresDSN, *redisURL, *snapshotPath, logger)
	if err != nil {
		logger.Fatalf("Failed to set up persistence: %v", err)
	}
	defer cleanup()

	graduateStore := store.NewGraduateStore(store.Options{
		MaxRecords:  *maxRecords,
		Snapshotter: snap,
		Logger:      log.New(os.Stdout, "[store] ", log.LstdFlags),
	})
	if err := graduateStore.Load(ctx); err != nil {
		logger.Printf("Snapshot load failed, starting empty: %v", err)
	} else if n := graduateStore.Count(); n > 0 {
		logger.Printf("Hydrated %d record(s) from snapshot", n)
	}

	// Feed client with the selected reconnect policy.
	feedLogger := log.New(os.Stdout, "[feed] ", log.LstdFlags)
	var policy feed.ReconnectPolicy
	switch strings.ToLower(*reconnectMode) {
	case "auto":
		policy = feed.NewAutoReconnect(feed.AutoReconnectOptions{Logger: feedLogger})
	case "manual":
		policy = feed.NewManualReconnect()
	default:
		logger.Fatalf("Unknown reconnect mode %q (want auto or manual)", *reconnectMode)
	}
	feedClient := feed.NewClient(*feedEndpoint, policy, feed.ClientOptions{Logger: feedLogger})

	// Live push hub, seeded from the store.
	hub := stream.NewHub(func() []*domain.Graduate {
		return graduateStore.List(context.Background(), 0)
	}, stream.HubOptions{
		Logger: log.New(os.Stdout, "[stream] ", log.LstdFlags),
	})

	// Notifier: Telegram when configured, log output otherwise.
	var notifier notify.Notifier = notify.NewLogNotifier(log.New(os.Stdout, "[notify] ", log.LstdFlags))
	if *telegramToken != "" {
		notifier = notify.NewTelegramNotifier(*telegramToken, *telegramChat)
		logger.Println("Notifications: telegram")
	}

	// Optional ClickHouse stats history.
	var recorder enrich.StatsRecorder
	if *clickhouseDSN != "" {
		conn, err := statshist.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to connect to clickhouse: %v", err)
		}
		defer conn.Close()
		r := statshist.NewRecorder(conn)
		if err := r.EnsureSchema(ctx); err != nil {
			logger.Fatalf("Failed to create stats history schema: %v", err)
		}
		recorder = r
		logger.Println("Stats history: clickhouse")
	}

	engine := enrich.New(enrich.Options{
		Source:   market.NewClient(*marketEndpoint),
		Store:    graduateStore,
		Hub:      hub,
		Notifier: notifier,
		Recorder: recorder,
		Logger:   log.New(os.Stdout, "[enrich] ", log.LstdFlags),
	})

	runner := ingest.NewRunner(ingest.RunnerOptions{
		Source:   feedClient,
		Store:    graduateStore,
		Hub:      hub,
		Enricher: engine,
		Logger:   log.New(os.Stdout, "[ingest] ", log.LstdFlags),
	})

	httpServer := server.New(server.Options{
		Store:    graduateStore,
		Hub:      hub,
		Feed:     feedClient,
		Notifier: notifier,
		Logger:   logger,
	})

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Connect the feed; the reconnect policy takes over from here. A
	// failed first dial is not fatal under the auto policy.
	if err := feedClient.Connect(ctx); err != nil {
		logger.Printf("Initial feed connect failed: %v", err)
		if _, ok := policy.(*feed.AutoReconnect); ok {
			policy.OnDisconnect(feedClient)
		}
	}

	errCh := make(chan error, 4)
	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := engine.RunSweeper(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := httpServer.Run(ctx, *listenAddr); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	feedClient.Close()
	engine.Wait()
	done <- runErr

	if runErr != nil {
		logger.Fatalf("Server error: %v", runErr)
	}
	logger.Println("Shutdown complete")
}

// envOr returns the env value or a default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns the env value parsed as int, or a default.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// createSnapshotter picks the persistence backend by configuration
// precedence: postgres, then redis, then file, then none.
func createSnapshotter(ctx context.Context, postgresDSN, redisURL, snapshotPath string, logger *log.Logger) (store.Snapshotter, func(), error) {
	switch {
	case postgresDSN != "":
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, err
		}
		snap := pgstore.NewSnapshotter(pool)
		if err := snap.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Println("Persistence: postgres")
		return snap, pool.Close, nil

	case redisURL != "":
		snap, err := redisstore.New(ctx, redisURL, "")
		if err != nil {
			return nil, nil, err
		}
		logger.Println("Persistence: redis")
		return snap, func() { snap.Close() }, nil

	case snapshotPath != "":
		logger.Printf("Persistence: file %s", snapshotPath)
		return store.NewFileSnapshotter(snapshotPath), func() {}, nil

	default:
		logger.Println("Persistence: disabled")
		return nil, func() {}, nil
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
