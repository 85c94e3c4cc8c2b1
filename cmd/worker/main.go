package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/payment-service/internal/app/worker"
	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/lib/logger"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting worker",
		slog.String("env", cfg.Env),
		slog.Any("queues", cfg.Worker.Queues),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := worker.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize worker", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("worker stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("worker stopped gracefully")
}
