package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/metrics"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
)

// Источники задач.
const (
	OriginAPI       = "api"
	OriginAdmin     = "admin"
	OriginScheduler = "scheduler"
	OriginManage    = "manage"
)

// EnqueueOptions параметры публикации.
type EnqueueOptions struct {
	Queue  string
	Origin string
}

// Enqueuer публикует задачи в брокер и отмечает их PENDING.
type Enqueuer struct {
	log       *slog.Logger
	publisher rabbitmq.Publisher
	backend   ResultBackend
	topology  rabbitmq.Topology
	known     func(string) bool
	now       func() time.Time
}

// NewEnqueuer создаёт публикатор задач. Очередь по умолчанию: первая
// очередь топологии. backend может быть nil.
func NewEnqueuer(log *slog.Logger, publisher rabbitmq.Publisher, backend ResultBackend, topology rabbitmq.Topology) *Enqueuer {
	if len(topology.Queues) == 0 {
		topology = rabbitmq.NewTopology(topology.Exchange, nil)
	}
	return &Enqueuer{
		log:       log,
		publisher: publisher,
		backend:   backend,
		topology:  topology,
		known:     Known,
		now:       time.Now,
	}
}

// WithKnown заменяет проверку имени задачи.
func (e *Enqueuer) WithKnown(known func(string) bool) *Enqueuer {
	e.known = known
	return e
}

// Enqueue публикует задачу name с аргументами args и возвращает её.
// args может быть json.RawMessage, []byte с JSON или любым значением для json.Marshal.
func (e *Enqueuer) Enqueue(ctx context.Context, name string, args any, opts EnqueueOptions) (*models.Task, error) {
	const op = "tasks.Enqueue"

	if !e.known(name) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnknownTask, name)
	}

	rawArgs, err := marshalArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	queue := opts.Queue
	if queue == "" {
		queue = e.topology.Queues[0]
	}
	// без mandatory брокер молча выбросит сообщение с неизвестным ключом
	if !e.topology.Has(queue) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnknownQueue, queue)
	}

	task := &models.Task{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       rawArgs,
		Queue:      queue,
		EnqueuedAt: e.now().UTC(),
		Origin:     opts.Origin,
	}

	if e.backend != nil {
		if err := e.backend.Store(ctx, ResultFor(task, models.TaskPending)); err != nil {
			e.log.Warn("failed to record pending task", slog.String("task_id", task.ID), sl.Err(err))
		}
	}

	err = e.publisher.Publish(ctx, queue, task, rabbitmq.PublishOptions{MessageID: task.ID})
	if err != nil {
		e.markFailed(ctx, task, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordEnqueued(name, opts.Origin)
	e.log.Info("task enqueued",
		slog.String("task_id", task.ID),
		slog.String("task", name),
		slog.String("queue", queue),
		slog.String("origin", opts.Origin),
	)
	return task, nil
}

// markFailed заменяет записанный PENDING на FAILURE, если публикация не удалась.
// PENDING пишется до публикации, иначе он мог бы затереть STARTED от воркера.
func (e *Enqueuer) markFailed(ctx context.Context, task *models.Task, publishErr error) {
	if e.backend == nil {
		return
	}
	res := ResultFor(task, models.TaskFailure)
	res.Error = "publish failed: " + publishErr.Error()
	if err := e.backend.Store(context.WithoutCancel(ctx), res); err != nil {
		e.log.Warn("failed to record unpublished task", slog.String("task_id", task.ID), sl.Err(err))
	}
}

func marshalArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) > 0 && !json.Valid(v) {
			return nil, fmt.Errorf("args is not valid JSON")
		}
		return v, nil
	case []byte:
		if len(v) > 0 && !json.Valid(v) {
			return nil, fmt.Errorf("args is not valid JSON")
		}
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}
