// Package worker собирает процесс исполнения фоновых задач.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/payment-service/internal/cache"
	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/lib/smtp"
	"github.com/magabrotheeeer/payment-service/internal/metrics"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	"github.com/magabrotheeeer/payment-service/internal/services/jobs"
	"github.com/magabrotheeeer/payment-service/internal/services/mailer"
	workerservice "github.com/magabrotheeeer/payment-service/internal/services/worker"
	"github.com/magabrotheeeer/payment-service/internal/storage/repository"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *repository.Storage
	cache     *cache.Cache
	conn      *amqp.Connection
	consumeCh *amqp.Channel
	publisher *rabbitmq.ChannelPublisher
	service   *workerservice.Service
	metrics   *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.worker.New"

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
		_ = db.Close()
		_ = cacheRedis.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("connected to RabbitMQ")

	topology := Topology(cfg)
	consumeCh, err := rabbitmq.SetupChannel(conn, topology, cfg.Worker.Concurrency)
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		_ = cacheRedis.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publishCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		_ = cacheRedis.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publisher := rabbitmq.NewChannelPublisher(publishCh, topology.Exchange)

	var sender jobs.Sender
	transport := smtp.NewTransport(cfg.SMTP, logger)
	if transport.Configured() {
		sender = mailer.New(logger, transport)
	} else {
		logger.Warn("SMTP is not configured, mailing tasks will fail")
	}

	registry := tasks.NewRegistry()
	if err := jobs.New(logger, db, cacheRedis, sender, cfg.Worker.RunsRetention).Register(registry); err != nil {
		_ = conn.Close()
		_ = db.Close()
		_ = cacheRedis.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	backend := tasks.NewRedisBackend(cacheRedis, cfg.Worker.ResultTTL)
	service := workerservice.New(logger, registry, publisher, backend, db, topology, workerservice.Options{
		MaxRetries:  cfg.Worker.MaxRetries,
		TaskTimeout: cfg.Worker.TaskTimeout,
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		cache:     cacheRedis,
		conn:      conn,
		consumeCh: consumeCh,
		publisher: publisher,
		service:   service,
		metrics:   metrics.NewServer(cfg.Worker.MetricsAddress),
	}, nil
}

// Topology объявляемые очереди: очереди брокера и очереди воркера.
func Topology(cfg *config.Config) rabbitmq.Topology {
	queues := append([]string{}, cfg.Broker.Queues...)
	seen := make(map[string]bool, len(queues))
	for _, q := range queues {
		seen[q] = true
	}
	for _, q := range cfg.Worker.Queues {
		if !seen[q] {
			queues = append(queues, q)
			seen[q] = true
		}
	}
	return rabbitmq.NewTopology(cfg.Broker.Exchange, queues)
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	go func() {
		a.logger.Info("metrics server starting", slog.String("address", a.metrics.Addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", sl.Err(err))
		}
	}()

	topology := Topology(a.cfg)
	consumers := make([]*rabbitmq.Consumer, 0, len(a.cfg.Worker.Queues))
	for _, q := range a.cfg.Worker.Queues {
		consumer, err := rabbitmq.ConsumerMessage(ctx, a.consumeCh, topology.QueueName(q), a.cfg.Worker.Concurrency, a.service.HandleDelivery)
		if err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q), sl.Err(err))
			return err
		}
		consumers = append(consumers, consumer)
		a.logger.Info("consuming queue",
			slog.String("queue", topology.QueueName(q)),
			slog.Int("concurrency", a.cfg.Worker.Concurrency),
		)
	}

	connClosed := a.conn.NotifyClose(make(chan *amqp.Error, 1))
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("worker shutting down gracefully, waiting for in-flight tasks")
	case amqpErr := <-connClosed:
		if amqpErr != nil {
			runErr = fmt.Errorf("broker connection closed: %w", amqpErr)
		} else {
			runErr = errors.New("broker connection closed")
		}
		a.logger.Error("broker connection lost", sl.Err(runErr))
	}

	// Непрочитанные доставки вернутся в очередь при закрытии канала.
	for _, c := range consumers {
		c.Wait()
	}
	return runErr
}

func (a *App) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop metrics server", sl.Err(err))
	}
	if err := a.consumeCh.Close(); err != nil {
		a.logger.Debug("failed to close channel", sl.Err(err))
	}
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
