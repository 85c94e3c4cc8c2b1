package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/payment-service/internal/app/proxy"
	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/lib/logger"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)
	log.Info("starting proxy",
		slog.String("upstream", cfg.Proxy.Upstream),
		slog.Bool("tls", cfg.Proxy.TLSEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := proxy.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize proxy", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("proxy stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("proxy stopped gracefully")
}
