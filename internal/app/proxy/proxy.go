// Package proxy собирает процесс обратного прокси.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/proxy"
)

type App struct {
	cfg     config.Proxy
	logger  *slog.Logger
	servers []*http.Server
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.proxy.New"

	handler, err := proxy.New(logger, cfg.Proxy, cfg.CORS)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a := &App{cfg: cfg.Proxy, logger: logger}
	if !cfg.Proxy.TLSEnabled() {
		a.servers = append(a.servers, newServer(cfg.Proxy.HTTPAddress, handler, cfg.Proxy.Timeout))
		return a, nil
	}

	httpsServer := newServer(cfg.Proxy.HTTPSAddress, handler, cfg.Proxy.Timeout)
	httpsServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	a.servers = append(a.servers,
		httpsServer,
		newServer(cfg.Proxy.HTTPAddress, proxy.RedirectHTTPS(cfg.Proxy.HTTPSAddress), cfg.Proxy.Timeout),
	)
	return a, nil
}

func newServer(addr string, h http.Handler, timeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, len(a.servers))
	for _, srv := range a.servers {
		go func(srv *http.Server) {
			var err error
			if srv.TLSConfig != nil {
				a.logger.Info("proxy listening (https)", slog.String("address", srv.Addr))
				err = srv.ListenAndServeTLS(a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
			} else {
				a.logger.Info("proxy listening (http)", slog.String("address", srv.Addr))
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("proxy shutting down gracefully")
	case runErr = <-errCh:
		a.logger.Error("proxy server failed", sl.Err(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range a.servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to shutdown server", slog.String("address", srv.Addr), sl.Err(err))
		}
	}
	return runErr
}
