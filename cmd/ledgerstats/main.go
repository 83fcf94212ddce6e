package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/closelab/ledgerstats/internal/core/config"
	"github.com/closelab/ledgerstats/internal/core/pairs"
	"github.com/closelab/ledgerstats/internal/core/storage/postgres"
	"github.com/closelab/ledgerstats/internal/importer"
	"github.com/closelab/ledgerstats/internal/migrations"
	"github.com/closelab/ledgerstats/internal/query"
	"github.com/closelab/ledgerstats/internal/server"
)

func main() {
	configPath := flag.String("config", "ledgerstats.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Load the tracked market registry
	markets, err := pairs.NewFileSystemRegistry(cfg.Markets.ConfigDir)
	if err != nil {
		slog.Error("Failed to load market registry", "error", err)
		os.Exit(1)
	}
	slog.Info("Market registry loaded", "dir", cfg.Markets.ConfigDir, "markets", markets.Len())

	// 4. Initialize the Importer (pull ingestion)
	var (
		imp *importer.Importer
		src importer.Source
	)
	if cfg.Importer.Enabled {
		timeout, err := cfg.Importer.EffectiveSourceTimeout()
		if err != nil {
			slog.Error("Invalid importer source timeout", "error", err)
			os.Exit(1)
		}
		backoff, err := cfg.Importer.EffectiveRetryBackoff()
		if err != nil {
			slog.Error("Invalid importer retry backoff", "error", err)
			os.Exit(1)
		}

		src = importer.NewHTTPSource(cfg.Importer.SourceURL, timeout)
		imp = importer.New(src, dbAdapter, importer.Options{
			WorkerCount:   cfg.Importer.WorkerCount,
			BatchSize:     cfg.Importer.BatchSize,
			RetryAttempts: cfg.Importer.RetryAttempts,
			RetryBackoff:  backoff,
		})
	} else {
		// Push-only deployment: POST /v1/ledgers is still served.
		imp = importer.New(nil, dbAdapter, importer.Options{})
		slog.Info("Ledger importer disabled by config")
	}

	// 5. Initialize the Query API
	querySvc := query.NewService(dbAdapter, markets)
	handler := query.NewHandler(querySvc, imp)

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	handler.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Importer.Enabled {
		interval, err := cfg.Importer.EffectivePollInterval()
		if err != nil {
			slog.Error("Invalid importer poll interval", "error", err)
			os.Exit(1)
		}
		scheduler := importer.NewScheduler(interval, imp, src, dbAdapter, cfg.Importer.StartSequence)
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Import scheduler stopped with error", "error", err)
			}
		}()
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
