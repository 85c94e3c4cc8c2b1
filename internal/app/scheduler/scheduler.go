// Package scheduler собирает процесс планировщика периодических задач.
// Активен только один экземпляр: pid-файл на хосте и аренда в Redis.
package scheduler

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
	"github.com/magabrotheeeer/payment-service/internal/lock"
	"github.com/magabrotheeeer/payment-service/internal/metrics"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	schedulerservice "github.com/magabrotheeeer/payment-service/internal/services/scheduler"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// Leader аренда лидерства.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Cron управляемый запуск расписания.
type Cron interface {
	Start(ctx context.Context) error
	Stop()
}

// App представляет приложение планировщика.
type App struct {
	logger    *slog.Logger
	service   *schedulerservice.SchedulerService
	pidfile   *lock.PIDFile
	leader    Leader
	interval  time.Duration
	cache     *cache.Cache
	conn      *amqp.Connection
	publisher *rabbitmq.ChannelPublisher
	metrics   *http.Server
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.scheduler.New"

	topology := rabbitmq.NewTopology(cfg.Broker.Exchange, cfg.Broker.Queues)
	entries, err := schedulerservice.EntriesFromConfig(cfg.Scheduler.Entries, topology)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pidfile, err := lock.AcquirePIDFile(cfg.Scheduler.PIDFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("pidfile acquired", slog.String("path", pidfile.Path()))

	cacheRedis, err := cache.InitServer(ctx, cfg.Redis)
	if err != nil {
		_ = pidfile.Release()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := rabbitmq.Connect(cfg.Broker.URL, cfg.Broker.MaxRetries, cfg.Broker.RetryDelay)
	if err != nil {
		_ = cacheRedis.Close()
		_ = pidfile.Release()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, topology, 0)
	if err != nil {
		_ = conn.Close()
		_ = cacheRedis.Close()
		_ = pidfile.Release()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publisher := rabbitmq.NewChannelPublisher(ch, cfg.Broker.Exchange)

	state, err := schedulerservice.LoadState(cfg.Scheduler.StateFile)
	if err != nil {
		logger.Warn("scheduler state is unreadable, starting fresh", sl.Err(err))
	}

	backend := tasks.NewRedisBackend(cacheRedis, cfg.Worker.ResultTTL)
	enqueuer := tasks.NewEnqueuer(logger, publisher, backend, topology)
	service := schedulerservice.NewSchedulerService(logger, enqueuer, entries, state)

	var leader Leader
	if cfg.Scheduler.DistributedLock {
		leader = lock.NewRedisLock(cacheRedis.Client(), cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL)
	}

	return &App{
		logger:    logger,
		service:   service,
		pidfile:   pidfile,
		leader:    leader,
		interval:  LeaseInterval(cfg.Scheduler.LockTTL),
		cache:     cacheRedis,
		conn:      conn,
		publisher: publisher,
		metrics:   metrics.NewServer(cfg.Scheduler.MetricsAddress),
	}, nil
}

// LeaseInterval период продления и повторного захвата аренды.
func LeaseInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if d := ttl / 3; d >= 100*time.Millisecond {
		return d
	}
	return 100 * time.Millisecond
}

// Run запускает планировщик.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	go func() {
		a.logger.Info("metrics server starting", slog.String("address", a.metrics.Addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", sl.Err(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	connClosed := a.conn.NotifyClose(make(chan *amqp.Error, 1))
	errCh := make(chan error, 1)
	go func() {
		if amqpErr, ok := <-connClosed; ok {
			errCh <- fmt.Errorf("broker connection closed: %v", amqpErr)
			cancel()
		}
	}()

	if a.leader == nil {
		a.logger.Info("distributed lock disabled, running as leader")
		metrics.SetLeader(true)
		if err := a.service.Start(runCtx); err != nil {
			return err
		}
		<-runCtx.Done()
		a.service.Stop()
		metrics.SetLeader(false)
	} else {
		RunLeader(runCtx, a.logger, a.leader, a.service, a.interval)
	}

	a.logger.Info("shutting down scheduler service")
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// RunLeader удерживает аренду и запускает cron, пока экземпляр лидер.
// Без аренды экземпляр ждёт и пытается захватить её каждые interval.
func RunLeader(ctx context.Context, log *slog.Logger, leader Leader, c Cron, interval time.Duration) {
	isLeader := false
	step := func() {
		if !isLeader {
			ok, err := leader.TryAcquire(ctx)
			if err != nil {
				log.Error("failed to acquire leader lease", sl.Err(err))
				return
			}
			if !ok {
				log.Debug("standby, lease held by another scheduler")
				return
			}
			if err := c.Start(ctx); err != nil {
				log.Error("failed to start cron", sl.Err(err))
				_ = leader.Release(context.WithoutCancel(ctx))
				return
			}
			isLeader = true
			metrics.SetLeader(true)
			log.Info("leader lease acquired")
			return
		}

		ok, err := leader.Extend(ctx)
		if err == nil && ok {
			return
		}
		if err != nil {
			log.Error("failed to extend leader lease", sl.Err(err))
		} else {
			log.Warn("leader lease lost")
		}
		c.Stop()
		isLeader = false
		metrics.SetLeader(false)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	step()
	for {
		select {
		case <-ctx.Done():
			if isLeader {
				c.Stop()
				metrics.SetLeader(false)
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
				if err := leader.Release(releaseCtx); err != nil {
					log.Warn("failed to release leader lease", sl.Err(err))
				}
				cancel()
			}
			return
		case <-ticker.C:
			step()
		}
	}
}

func (a *App) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop metrics server", sl.Err(err))
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Debug("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Debug("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.pidfile.Release(); err != nil {
		a.logger.Error("failed to remove pidfile", sl.Err(err))
	}
}
