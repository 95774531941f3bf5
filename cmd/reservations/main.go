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
	"casanexus/internal/logger"
	"casanexus/internal/memstore"
	"casanexus/internal/outbox"
	"casanexus/internal/postgres"
	"casanexus/internal/reservation"
	"casanexus/internal/telemetry"
	"casanexus/internal/web"
)

const serviceName = "casanexus-reservations"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reservations: %v\n", err)
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
		store  reservation.Store
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
		store = reservation.NewPostgresStore(db, events)
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		store = memstore.New().Reservations()
	}

	listings := clients.NewListingClient(cfg.Services.ListingsURL, cfg.Services.ClientTimeout)
	svc := reservation.NewService(store, listings, log)
	handler := reservation.NewHandler(svc, log, cfg.Server.BodyLimit)

	router := chi.NewRouter()
	router.Use(middleware.RealIP, middleware.RequestID, web.RequestID, web.RecoverPanic(log), web.AccessLog(log))
	router.Get("/healthz", web.Health(pinger(db)))
	router.Mount("/reservations", handler.Routes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Serve(gctx, web.NewServer(cfg.Server.ReservationsPort, router, cfg.Server), cfg.Server, log)
	})

	if cfg.NATS.URL != "" && db != nil {
		pub, err := outbox.ConnectNATS(cfg.NATS.URL, serviceName)
		if err != nil {
			return err
		}
		defer pub.Close()

		relay := outbox.NewRelay(db, events, pub, outbox.Config{
			Name:           "reservations",
			SubjectPrefix:  cfg.NATS.SubjectPrefix,
			AggregateTypes: []string{reservation.AggregateType},
			PollInterval:   cfg.NATS.PollInterval,
			BatchSize:      cfg.NATS.BatchSize,
		}, log)
		g.Go(func() error { return relay.Run(gctx) })
	}

	log.Info("reservation service ready",
		slog.String("storage", cfg.Storage.Driver),
		slog.String("listings_url", cfg.Services.ListingsURL))
	return g.Wait()
}

func pinger(db *sql.DB) func(context.Context) error {
	if db == nil {
		return nil
	}
	return db.PingContext
}
