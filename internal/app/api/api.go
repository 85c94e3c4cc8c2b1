package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/payment-service/internal/cache"
	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/http/admin"
	"github.com/magabrotheeeer/payment-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/lib/jwt"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	"github.com/magabrotheeeer/payment-service/internal/services/auth"
	"github.com/magabrotheeeer/payment-service/internal/services/plans"
	"github.com/magabrotheeeer/payment-service/internal/storage/repository"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// ShutdownTimeout время на завершение активных запросов.
const ShutdownTimeout = 15 * time.Second

type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *repository.Storage
	cache     *cache.Cache
	conn      *amqp.Connection
	publisher *rabbitmq.ChannelPublisher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.api.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = repository.WaitReady(ctx, db, 10, 3*time.Second); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := rabbitmq.Connect(cfg.Broker.URL, cfg.Broker.MaxRetries, cfg.Broker.RetryDelay)
	if err != nil {
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("connected to RabbitMQ")

	topology := rabbitmq.NewTopology(cfg.Broker.Exchange, cfg.Broker.Queues)
	ch, err := rabbitmq.SetupChannel(conn, topology, 0)
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publisher := rabbitmq.NewChannelPublisher(ch, cfg.Broker.Exchange)

	backend := tasks.NewRedisBackend(cacheRedis, cfg.Worker.ResultTTL)
	enqueuer := tasks.NewEnqueuer(logger, publisher, backend, topology)

	authService := auth.NewAuthService(db, jwt.NewJWTMaker(cfg.SecretKey, cfg.JWTToken.TokenTTL))
	plansService := plans.NewService(db, cacheRedis, logger)

	adminHandler, err := admin.New(logger, db, plansService, enqueuer, topology.Queues, "/static/")
	if err != nil {
		_ = publisher.Close()
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Auth:     authService,
		Storage:  db,
		Plans:    plansService,
		Enqueuer: enqueuer,
		Results:  backend,
		Admin:    adminHandler,
		Checks: map[string]health.Pinger{
			"database": db,
			"redis":    cacheRedis,
		},
		Queues:       topology.Queues,
		AllowedHosts: cfg.AllowedHosts,
		Limiter:      middlewarectx.NewLimiter(cfg.HTTPServer.RateLimit, cfg.HTTPServer.RateBurst),
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return &App{
		server:    srv,
		logger:    logger,
		db:        db,
		cache:     cacheRedis,
		conn:      conn,
		publisher: publisher,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server failed", sl.Err(err))
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("graceful shutdown failed", sl.Err(err))
		return err
	}
	return <-errCh
}

func (a *App) close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Debug("failed to close publish channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Debug("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
