package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"numsync/client"
	"numsync/codec"
	"numsync/config"
	"numsync/core"
	"numsync/observability/logging"
	telemetry "numsync/observability/otel"
	"numsync/session"
)

func main() {
	configPath := flag.String("config", "numsync.toml", "path to the configuration file")
	flag.Parse()

	// A missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup("numsyncd", cfg.Environment, cfg.LogLevel)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "numsyncd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("numsyncd failed: %v", err)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheme, err := cfg.Scheme()
	if err != nil {
		return err
	}
	slotCodec, err := codec.New(scheme, cfg.SlotBitWidth)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	store, err := session.NewStore(cfg.DataDir + "/session.db")
	if err != nil {
		return err
	}
	defer store.Close()
	switch _, err := store.Load(time.Now()); {
	case err == nil:
		logger.Info("persisted session still valid")
	case errors.Is(err, session.ErrExpired):
		logger.Warn("persisted session expired, cleared")
	case errors.Is(err, session.ErrNotFound):
	default:
		return err
	}

	opts := []client.Option{}
	if ws := strings.TrimSpace(cfg.IndexerWSURL); ws != "" {
		opts = append(opts, client.WithWSEndpoint(ws))
	}
	idx, err := client.New(cfg.IndexerRPCURL, opts...)
	if err != nil {
		return err
	}

	engine, err := core.NewEngine(slotCodec, idx, idx,
		core.WithPageSize(cfg.PageSize),
		core.WithPollInterval(cfg.PollInterval()),
	)
	if err != nil {
		return err
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(ctx) }()

	if err := engine.Bootstrap(ctx); err != nil {
		// Stale-but-present beats empty; the poll loop keeps retrying.
		logger.Warn("initial bootstrap failed", "err", err)
	}
	if cfg.IndexerWSURL != "" {
		if err := engine.WatchTournaments(ctx); err != nil {
			logger.Warn("tournament subscription failed", "err", err)
		}
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newRouter(engine, slotCodec),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.ListenAndServe() }()
	logger.Info("numsyncd listening", "addr", cfg.ListenAddress)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-serverDone:
		stop()
		return err
	case err := <-engineDone:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return err
	}
}
