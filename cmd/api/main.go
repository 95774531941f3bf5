package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"casanexus/internal/config"
	"casanexus/internal/logger"
	"casanexus/internal/telemetry"
	"casanexus/internal/web"
)

const serviceName = "casanexus-gateway"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
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

	limiter := web.NewRateLimiter(ctx, cfg.Rate, log)

	router, err := newRouter(cfg.Services, limiter, log)
	if err != nil {
		return err
	}

	return web.Serve(ctx, web.NewServer(cfg.Server.GatewayPort, router, cfg.Server), cfg.Server, log)
}
