// Package worker исполняет задачи из брокера: повторы с задержкой,
// мёртвые письма, запись результатов и журнала исполнения.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/metrics"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

const (
	DefaultMaxRetries  = 3
	DefaultTaskTimeout = 5 * time.Minute
)

// Причины попадания в очередь мёртвых писем.
const (
	ReasonMalformed = "malformed message"
	ReasonUnknown   = "unknown task"
	ReasonExhausted = "retries exhausted"
	ReasonPermanent = "permanent error"
)

// RunStore журнал исполнения задач.
type RunStore interface {
	SaveTaskRun(ctx context.Context, run models.TaskRun) (int64, error)
}

// Options настройки исполнения.
type Options struct {
	MaxRetries  int
	TaskTimeout time.Duration
}

// Service обработчик доставок брокера.
type Service struct {
	log       *slog.Logger
	registry  *tasks.Registry
	publisher rabbitmq.Publisher
	backend   tasks.ResultBackend
	runs      RunStore
	topology  rabbitmq.Topology
	opts      Options
	now       func() time.Time
	delay     func(attempt int) time.Duration
}

// New создаёт сервис. backend и runs могут быть nil.
func New(log *slog.Logger, registry *tasks.Registry, publisher rabbitmq.Publisher, backend tasks.ResultBackend,
	runs RunStore, topology rabbitmq.Topology, opts Options) *Service {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	return &Service{
		log:       log,
		registry:  registry,
		publisher: publisher,
		backend:   backend,
		runs:      runs,
		topology:  topology,
		opts:      opts,
		now:       time.Now,
		delay:     tasks.NextRetryDelay,
	}
}

// HandleDelivery обрабатывает тело сообщения. nil означает, что сообщение
// можно подтвердить: задача выполнена, отложена на повтор или отправлена
// в мёртвые письма. Ошибка возвращается, только если не удалось
// переопубликовать сообщение, и тогда брокер вернёт его в очередь.
func (s *Service) HandleDelivery(ctx context.Context, body []byte) error {
	const op = "worker.HandleDelivery"

	var task models.Task
	if err := json.Unmarshal(body, &task); err != nil || task.ID == "" || task.Name == "" {
		s.log.Warn("malformed task message", slog.Int("size", len(body)), sl.Err(err))
		if err := s.deadLetter(ctx, ReasonMalformed, nil, body); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	if task.Queue == "" {
		task.Queue = rabbitmq.DefaultQueue
	}

	log := s.log.With(
		slog.String("task_id", task.ID),
		slog.String("task", task.Name),
		slog.Int("retries", task.Retries),
	)

	handler, err := s.registry.Lookup(task.Name)
	if err != nil {
		log.Error("unknown task")
		if err := s.deadLetter(ctx, ReasonUnknown, &task, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.storeResult(ctx, log, tasks.ResultFor(&task, models.TaskFailure), err)
		metrics.RecordTaskProcessed(task.Name, string(models.TaskFailure), 0)
		return nil
	}

	s.storeResult(ctx, log, tasks.ResultFor(&task, models.TaskStarted), nil)

	started := s.now()
	result, runErr := s.execute(ctx, handler, &task)
	finished := s.now()

	if runErr == nil {
		var raw json.RawMessage
		if result != nil {
			raw, runErr = json.Marshal(result)
			if runErr != nil {
				runErr = tasks.Permanent(fmt.Errorf("marshal result: %w", runErr))
			}
		}
		if runErr == nil {
			res := tasks.ResultFor(&task, models.TaskSuccess)
			res.Result = raw
			s.storeResult(ctx, log, res, nil)
			s.saveRun(ctx, log, &task, models.TaskSuccess, nil, started, finished)
			metrics.RecordTaskProcessed(task.Name, string(models.TaskSuccess), finished.Sub(started))
			log.Info("task succeeded", slog.Duration("duration", finished.Sub(started)))
			return nil
		}
	}

	permanent := errors.Is(runErr, tasks.ErrPermanent)
	if !permanent && !tasks.IsExhausted(task.Retries, s.opts.MaxRetries) {
		task.Retries++
		// задержка не больше TTL своей retry-очереди, иначе её обрежет брокер
		delay := s.delay(task.Retries - 1)
		if tier := s.topology.RetryTier(delay); delay > tier {
			delay = tier
		}
		err := s.publisher.Publish(ctx, s.topology.RetryRoutingKey(task.Queue, delay), &task, rabbitmq.PublishOptions{
			Expiration: delay,
			MessageID:  task.ID,
		})
		if err != nil {
			return fmt.Errorf("%s: publish retry: %w", op, err)
		}
		s.storeResult(ctx, log, tasks.ResultFor(&task, models.TaskRetry), runErr)
		metrics.RecordTaskProcessed(task.Name, string(models.TaskRetry), finished.Sub(started))
		log.Warn("task failed, retry scheduled", slog.Duration("delay", delay), sl.Err(runErr))
		return nil
	}

	reason := ReasonExhausted
	if permanent {
		reason = ReasonPermanent
	}
	if err := s.deadLetter(ctx, reason+": "+runErr.Error(), &task, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.storeResult(ctx, log, tasks.ResultFor(&task, models.TaskFailure), runErr)
	s.saveRun(ctx, log, &task, models.TaskFailure, runErr, started, finished)
	metrics.RecordTaskProcessed(task.Name, string(models.TaskFailure), finished.Sub(started))
	log.Error("task failed", slog.String("reason", reason), sl.Err(runErr))
	return nil
}

// execute запускает обработчик с таймаутом и перехватом паники.
func (s *Service) execute(ctx context.Context, handler tasks.HandlerFunc, task *models.Task) (result any, err error) {
	runCtx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	result, err = handler(runCtx, task.Args)
	if err == nil && runCtx.Err() != nil {
		err = fmt.Errorf("task timed out after %s: %w", s.opts.TaskTimeout, runCtx.Err())
	}
	return result, err
}

func (s *Service) deadLetter(ctx context.Context, reason string, task *models.Task, raw []byte) error {
	dl := models.DeadLetter{
		Reason: reason,
		Task:   task,
		At:     s.now().UTC(),
	}
	if raw != nil {
		dl.Raw = string(raw)
	}
	opts := rabbitmq.PublishOptions{}
	if task != nil {
		opts.MessageID = task.ID
	}
	if err := s.publisher.Publish(ctx, rabbitmq.DeadRoutingKey, dl, opts); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (s *Service) storeResult(ctx context.Context, log *slog.Logger, res models.TaskResult, taskErr error) {
	if s.backend == nil {
		return
	}
	if taskErr != nil {
		res.Error = taskErr.Error()
	}
	if err := s.backend.Store(ctx, res); err != nil {
		log.Warn("failed to store task result", slog.String("status", string(res.Status)), sl.Err(err))
	}
}

func (s *Service) saveRun(ctx context.Context, log *slog.Logger, task *models.Task, status models.TaskStatus,
	taskErr error, started, finished time.Time) {
	if s.runs == nil {
		return
	}
	run := models.TaskRun{
		TaskID:     task.ID,
		Name:       task.Name,
		Queue:      task.Queue,
		Status:     status,
		Retries:    task.Retries,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if taskErr != nil {
		run.Error = taskErr.Error()
	}
	if _, err := s.runs.SaveTaskRun(ctx, run); err != nil {
		log.Warn("failed to save task run", sl.Err(err))
	}
}
