package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/config"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/engine"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/eventbus"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/exporters"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/resolver"
	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logger
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Str("driver", cfg.StoreDriver).Bool("watch", cfg.Watch).Msg("Starting Trader Analytics...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("Analyzer failed")
		os.Exit(1)
	}

	log.Info().Msg("Shutting down...")
}

// run owns every connection it opens and closes them all before returning.
func run(ctx context.Context, cfg *config.Config) error {
	// Setup storage
	var store storage.TradeStore
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := storage.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open SQLite store: %w", err)
		}
		defer s.Close()
		store = s
	default:
		s, err := storage.NewPostgres(cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer s.Close()
		store = s
	}

	if cfg.GammaURL != "" {
		store = storage.NewResolvingStore(store, resolver.NewClient(cfg.GammaURL, cfg.ResolveTimeout), cfg.ResolveTimeout)
	}

	// Setup event bus
	var bus *eventbus.RedisEventBus
	if cfg.RedisHost != "" {
		var err error
		bus, err = eventbus.NewRedisEventBus(cfg.RedisHost, cfg.RedisPort)
		if err != nil {
			return err
		}
		defer bus.Close()
	}

	eng := engine.NewEngine(store, cfg.Analysis)

	deps := exporters.Deps{Stream: eventbus.StreamAnalysis, ReportPath: cfg.ReportPath}
	if bus != nil {
		deps.Bus = bus
	}
	exporters.RegisterAll(eng, deps)

	if !cfg.Watch {
		if _, err := eng.Run(ctx); err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return nil
	}

	log.Info().Str("stream", eventbus.StreamMarkets).Msg("Watching for market resolutions")

	if err := eng.Watch(ctx, bus, []string{eventbus.StreamMarkets}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
