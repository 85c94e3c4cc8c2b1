package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/payment-service/internal/cli"
	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/lib/logger"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, cli.NewEnv(cfg, log), os.Args[1:], os.Stdout); err != nil {
		stop()
		os.Exit(1)
	}
}
