package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/manja7304/stock-pipeline/internal/alphavantage"
	"github.com/manja7304/stock-pipeline/internal/config"
	"github.com/manja7304/stock-pipeline/internal/coordinator"
	"github.com/manja7304/stock-pipeline/internal/fetcher"
	"github.com/manja7304/stock-pipeline/internal/logger"
	"github.com/manja7304/stock-pipeline/internal/pipeline"
	"github.com/manja7304/stock-pipeline/internal/ratelimit"
	"github.com/manja7304/stock-pipeline/internal/storage"
)

// Process exit codes
const (
	exitOK      = 0
	exitConfig  = 1
	exitPersist = 2
	exitFetch   = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("stock-pipeline", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	initSchema := flags.Bool("init-schema", false, "create the target schema and table, then exit")
	createDB := flags.Bool("create-db", false, "create the target database if missing, then exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	// Load configuration
	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitConfig
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return exitConfig
	}
	defer log.Sync()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Warn("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if *createDB || *initSchema {
		if err := setupDatabase(ctx, cfg.Postgres, log, *createDB, *initSchema); err != nil {
			log.Error("database setup failed", zap.Error(err))
			return exitPersist
		}
		log.Info("database setup complete",
			zap.String("database", cfg.Postgres.DBName),
			zap.String("table", cfg.Postgres.Schema+"."+cfg.Postgres.Table))
		return exitOK
	}

	log.Info("fetching quotes",
		zap.Strings("symbols", cfg.Symbols),
		zap.Duration("inter_request_delay", cfg.Fetch.InterRequestDelay),
		zap.Bool("fail_fast", cfg.Fetch.FailFast),
		zap.String("schedule_cadence", cfg.Fetch.ScheduleCadence))

	openStore := func(ctx context.Context) (pipeline.Sink, error) {
		store, err := storage.Open(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	summary, err := execute(ctx, cfg, log, openStore)
	code := exitCode(err)
	if err != nil {
		log.Error("run failed",
			zap.Error(err),
			zap.Int("exit_code", code),
			zap.Int("fetched", summary.Fetched),
			zap.Int("failed", summary.Failed))
	}
	return code
}

// execute wires the provider client, pacing and coordinator for one run.
func execute(ctx context.Context, cfg *config.Config, log *zap.Logger, openSink func(context.Context) (pipeline.Sink, error)) (pipeline.Summary, error) {
	httpClient := fetcher.NewHTTPClient(fetcher.HTTPOptions{
		BaseURL:    cfg.Provider.BaseURL,
		Timeout:    cfg.Provider.RequestTimeout,
		RetryCount: cfg.Provider.Retries,
		Logger:     log,
	})

	client, err := alphavantage.NewQuoteClient(cfg.Provider.APIKey,
		alphavantage.WithHTTPClient(httpClient),
		alphavantage.WithLogger(log),
	)
	if err != nil {
		httpClient.Close()
		return pipeline.Summary{}, err
	}
	defer client.Close()

	pacer := ratelimit.NewPacer(nil, cfg.Fetch.InterRequestDelay, cfg.Fetch.RequestsPerMinute)
	coord := coordinator.New(client, pacer, log, coordinator.WithFailFast(cfg.Fetch.FailFast))

	return pipeline.Run(ctx, cfg, pipeline.Deps{
		Coordinator: coord,
		OpenSink:    openSink,
		Logger:      log,
	})
}

func setupDatabase(ctx context.Context, cfg config.PostgresConfig, log *zap.Logger, createDB, initSchema bool) error {
	if createDB {
		if err := storage.CreateDatabase(ctx, cfg); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}
	if !initSchema {
		return nil
	}

	client, err := storage.NewClient(cfg.DSN(), log)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.EnsureSchema(ctx, cfg.Schema, cfg.Table)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, alphavantage.ErrMissingAPIKey) ||
		errors.Is(err, coordinator.ErrNoSymbols) ||
		errors.Is(err, coordinator.ErrEmptySymbol) {
		return exitConfig
	}

	var perr *pipeline.Error
	if errors.As(err, &perr) && perr.Stage == pipeline.StagePersist {
		return exitPersist
	}
	return exitFetch
}
