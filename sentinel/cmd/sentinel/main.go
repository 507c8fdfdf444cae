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

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/common/messaging"
	natsclient "github.com/telhawk-systems/telhawk-sentinel/common/messaging/nats"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/alerts"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/config"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/engine"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/incidents"
	sentinelnats "github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/nats"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/patterns"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/server"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/source"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("sentinel"))
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pats := patterns.Defaults()
	if cfg.Patterns.File != "" {
		pats, err = patterns.Load(cfg.Patterns.File)
		if err != nil {
			return fmt.Errorf("failed to load patterns: %w", err)
		}
		logger.Info("loaded pattern file", "path", cfg.Patterns.File, "patterns", len(pats))
	}

	deps := engine.Dependencies{Patterns: pats, Logger: logger}

	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		sup := alerts.NewRedisSuppressor(rdb, cfg.Redis.Prefix)
		if err := sup.Ping(ctx); err != nil {
			// Suppression fails open while redis is down.
			logger.Warn("redis unavailable, alert suppression degraded", logging.Error(err))
		}
		deps.Suppressor = sup
		logger.Info("redis alert suppression enabled")
	}

	if cfg.Database.Postgres.Enabled {
		connString := cfg.Database.Postgres.ConnectionString()
		if cfg.Database.Postgres.AutoMigrate {
			logger.Info("running database migrations")
			if err := incidents.Migrate(connString); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pc := incidents.DefaultPoolConfig()
		pc.MaxConns = cfg.Database.Postgres.MaxConns
		pc.MinConns = cfg.Database.Postgres.MinConns
		archive, err := incidents.NewPostgresArchive(ctx, connString, pc)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer archive.Close()
		deps.Archive = archive
		logger.Info("postgres incident archive enabled")
	} else {
		deps.Archive = incidents.NewMemoryArchive(1000)
	}

	var broker messaging.Client
	var src engine.EventSource
	if cfg.NATS.Enabled {
		client, err := natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       cfg.NATS.Timeout,
			Username:      cfg.NATS.Username,
			Password:      cfg.NATS.Password,
			Token:         cfg.NATS.Token,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer func() {
			if err := client.Drain(); err != nil {
				logger.Warn("nats drain failed", logging.Error(err))
			}
		}()
		broker = client

		deps.Sink = sentinelnats.NewAlertPublisher(client)
		deps.Executor = sentinelnats.NewActionPublisher(client, cfg.NATS.ActionAck, cfg.NATS.ActionAckTimeout)
		deps.Notifier = sentinelnats.NewIncidentPublisher(client)
		src = sentinelnats.NewSubscriber(client, cfg.NATS.QueueGroup, cfg.NATS.Buffer, logger)
	} else if cfg.Source.File != "" {
		src = source.NewFileSource(cfg.Source.File, logger)
	}

	deps.OnUnhealthy = func(failures int) {
		logger.Error("engine unhealthy", "consecutive_failures", failures)
	}

	eng, err := engine.New(cfg.EngineConfig(), deps)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	// Background work ends in eng.Stop, after intake has closed and
	// in-flight events have drained, not when the signal arrives.
	eng.Start(context.WithoutCancel(ctx))

	srv := server.New(cfg.Server, server.NewRouter(server.NewHandler(eng, broker, logger)), logger)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("sentinel listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	consumeErr := make(chan error, 1)
	if src != nil {
		go func() {
			consumeErr <- eng.Consume(ctx, src)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("event source failed: %w", err)
		} else {
			logger.Info("event source exhausted, serving until shutdown")
			select {
			case <-ctx.Done():
			case err := <-serverErr:
				runErr = fmt.Errorf("server error: %w", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful http shutdown failed", logging.Error(err))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("engine stopped with undelivered work", logging.Error(err))
	}

	stats := eng.Stats()
	logger.Info("sentinel stopped",
		"events_processed", stats.EventsProcessed,
		"incidents_created", stats.IncidentsCreated,
		"alerts_sent", stats.AlertsSent)
	return runErr
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
