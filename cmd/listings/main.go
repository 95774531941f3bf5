package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"casanexus/internal/clients"
	"casanexus/internal/config"
	"casanexus/internal/eventstore"
	"casanexus/internal/listing"
	"casanexus/internal/logger"
	"casanexus/internal/memstore"
	"casanexus/internal/outbox"
	"casanexus/internal/postgres"
	"casanexus/internal/telemetry"
	"casanexus/internal/web"
)

const serviceName = "casanexus-listings"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "listings: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	logCfg.Service = serviceName
	log := logger.New(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Error("telemetry shutdown", "error", err)
		}
	}()

	var (
		db     *sql.DB
		store  listing.Store
		events = eventstore.New()
	)
	switch cfg.Storage.Driver {
	case "postgres":
		db, err = postgres.Open(ctx, cfg.Postgres, log)
		if err != nil {
			return err
		}
		defer db.Close()

		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		store = listing.NewPostgresStore(db, events)
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		store = memstore.New().Listings()
	}

	lookup, err := clients.NewCachedLookup(
		clients.NewBreakerLookup(
			clients.NewPostalClient(cfg.Postal.BaseURL, cfg.Postal.Timeout),
			cfg.Postal.BreakerMaxFailures, cfg.Postal.BreakerTimeout, log,
		),
		cfg.Postal.CacheMaxCost, cfg.Postal.CacheTTL,
	)
	if err != nil {
		return fmt.Errorf("postal cache: %w", err)
	}
	defer lookup.Close()

	svc := listing.NewService(store, log, listing.WithAddressLookup(lookup))
	handler := listing.NewHandler(svc, log, cfg.Server.BodyLimit)

	router := chi.NewRouter()
	router.Use(middleware.RealIP, middleware.RequestID, web.RequestID, web.RecoverPanic(log), web.AccessLog(log))
	router.Get("/healthz", web.Health(pinger(db)))
	router.Mount("/listings", handler.Routes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Serve(gctx, web.NewServer(cfg.Server.ListingsPort, router, cfg.Server), cfg.Server, log)
	})

	if cfg.NATS.URL != "" && db != nil {
		pub, err := outbox.ConnectNATS(cfg.NATS.URL, serviceName)
		if err != nil {
			return err
		}
		defer pub.Close()

		relay := outbox.NewRelay(db, events, pub, outbox.Config{
			Name:           "listings",
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			AggregateTypes: []string{listing.AggregateType},
			PollInterval:   cfg.NATS.PollInterval,
			BatchSize:      cfg.NATS.BatchSize,
		}, log)
		g.Go(func() error { return relay.Run(gctx) })
	}

	log.Info("listing service ready", slog.String("storage", cfg.Storage.Driver))
	return g.Wait()
}

func pinger(db *sql.DB) func(context.Context) error {
	if db == nil {
		return nil
	}
	return db.PingContext
}
