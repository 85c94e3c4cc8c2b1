// Package cli реализует управляющую утилиту manage: миграции, создание
// суперпользователя, начальные данные, сборку статики и ручной запуск задач.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/payment-service/internal/cache"
	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	"github.com/magabrotheeeer/payment-service/internal/storage/repository"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// Env окружение команд. Подключения открываются лениво, только
// командами, которым они нужны.
type Env struct {
	Config *config.Config
	Log    *slog.Logger

	// OpenStorage открывает базу. По умолчанию repository.New.
	OpenStorage func(ctx context.Context) (*repository.Storage, error)
	// OpenEnqueuer подключается к брокеру. closeFn освобождает соединения.
	OpenEnqueuer func(ctx context.Context) (enq Enqueuer, closeFn func(), err error)
}

// Enqueuer публикация задач.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any, opts tasks.EnqueueOptions) (*models.Task, error)
}

// NewEnv окружение с подключениями по конфигу.
func NewEnv(cfg *config.Config, log *slog.Logger) *Env {
	env := &Env{Config: cfg, Log: log}
	env.OpenStorage = func(ctx context.Context) (*repository.Storage, error) {
		db, err := repository.New(cfg.StorageConnectionString)
		if err != nil {
			return nil, err
		}
		if err := repository.WaitReady(ctx, db, 5, 2*time.Second); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
	env.OpenEnqueuer = func(ctx context.Context) (Enqueuer, func(), error) {
		cacheRedis, err := cache.InitServer(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		conn, err := rabbitmq.Connect(cfg.Broker.URL, cfg.Broker.MaxRetries, cfg.Broker.RetryDelay)
		if err != nil {
			_ = cacheRedis.Close()
			return nil, nil, err
		}
		topology := rabbitmq.NewTopology(cfg.Broker.Exchange, cfg.Broker.Queues)
		ch, err := rabbitmq.SetupChannel(conn, topology, 0)
		if err != nil {
			_ = conn.Close()
			_ = cacheRedis.Close()
			return nil, nil, err
		}
		publisher := rabbitmq.NewChannelPublisher(ch, cfg.Broker.Exchange)
		backend := tasks.NewRedisBackend(cacheRedis, cfg.Worker.ResultTTL)
		enq := tasks.NewEnqueuer(log, publisher, backend, topology)
		return enq, func() {
			_ = publisher.Close()
			_ = conn.Close()
			_ = cacheRedis.Close()
		}, nil
	}
	return env
}

// NewRootCmd корневая команда manage.
func NewRootCmd(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "manage",
		Short:         "Payment service management commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(env),
		newCreateSuperuserCmd(env),
		newInitDataCmd(env),
		newCollectStaticCmd(env),
		newEnqueueCmd(env),
		newScheduleCmd(env),
	)
	return root
}

// Execute запускает manage с аргументами args.
func Execute(ctx context.Context, env *Env, args []string, out io.Writer) error {
	root := NewRootCmd(env)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(out, "Error:", err)
		return err
	}
	return nil
}
