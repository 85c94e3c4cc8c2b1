// Package jobs содержит обработчики задач каталога.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/cache"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/services/mailer"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// PurgeAhead ссылки, истекающие в ближайшую минуту, удаляются заранее.
const PurgeAhead = time.Minute

// DefaultRunsRetention срок хранения журнала задач.
const DefaultRunsRetention = 7 * 24 * time.Hour

// Storage нужные задачам операции с базой.
type Storage interface {
	PurgeExpiredPaymentURLs(ctx context.Context, threshold time.Time) (int64, error)
	ListEnabledPlans(ctx context.Context) ([]*models.Plan, error)
	PurgeTaskRunsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Cache хранилище кэша планов.
type Cache interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Sender отправка почты.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Jobs реализация задач каталога.
type Jobs struct {
	log           *slog.Logger
	storage       Storage
	cache         Cache
	sender        Sender
	runsRetention time.Duration
	now           func() time.Time
}

// New создаёт набор задач. sender может быть nil, тогда mailing.send_email
// завершается ошибкой.
func New(log *slog.Logger, storage Storage, cache Cache, sender Sender, runsRetention time.Duration) *Jobs {
	if runsRetention <= 0 {
		runsRetention = DefaultRunsRetention
	}
	return &Jobs{
		log:           log,
		storage:       storage,
		cache:         cache,
		sender:        sender,
		runsRetention: runsRetention,
		now:           time.Now,
	}
}

// Register регистрирует все задачи каталога.
func (j *Jobs) Register(r *tasks.Registry) error {
	handlers := map[string]tasks.HandlerFunc{
		tasks.DebugTask:            j.Debug,
		tasks.PurgePaymentURLCache: j.PurgePaymentURLCache,
		tasks.RefreshPlansCache:    j.RefreshPlansCache,
		tasks.SendEmail:            j.SendEmail,
		tasks.PurgeTaskRuns:        j.PurgeTaskRuns,
	}
	for name, h := range handlers {
		if err := r.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

// DebugResult ответ отладочной задачи.
type DebugResult struct {
	Args       json.RawMessage `json:"args,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Debug логирует запрос и возвращает его.
func (j *Jobs) Debug(_ context.Context, args json.RawMessage) (any, error) {
	j.log.Info("debug task request", slog.String("args", string(args)))
	return DebugResult{Args: args, ReceivedAt: j.now().UTC()}, nil
}

// PurgePaymentURLCache удаляет ссылки на оплату, истекающие до now+PurgeAhead.
func (j *Jobs) PurgePaymentURLCache(ctx context.Context, _ json.RawMessage) (any, error) {
	const op = "jobs.PurgePaymentURLCache"
	n, err := j.storage.PurgeExpiredPaymentURLs(ctx, j.now().Add(PurgeAhead))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	j.log.Info("payment url cache purged", slog.Int64("deleted", n))
	return map[string]int64{"deleted": n}, nil
}

// RefreshPlansCache перекладывает включённые планы в Redis.
func (j *Jobs) RefreshPlansCache(ctx context.Context, _ json.RawMessage) (any, error) {
	const op = "jobs.RefreshPlansCache"
	plans, err := j.storage.ListEnabledPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if plans == nil {
		plans = []*models.Plan{}
	}
	if err := j.cache.Set(ctx, cache.PlansEnabledKey, plans, cache.PlansEnabledTTL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return map[string]int{"plans": len(plans)}, nil
}

// SendEmail отправляет письмо из аргументов {to, subject, body}.
func (j *Jobs) SendEmail(ctx context.Context, args json.RawMessage) (any, error) {
	const op = "jobs.SendEmail"
	if j.sender == nil {
		return nil, fmt.Errorf("%s: mailer is not configured", op)
	}
	var msg mailer.Message
	if err := json.Unmarshal(args, &msg); err != nil {
		return nil, tasks.Permanent(fmt.Errorf("%s: %w", op, err))
	}
	if err := j.sender.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return map[string]int{"sent": len(msg.To)}, nil
}

// PurgeTaskRunsArgs необязательные аргументы очистки журнала.
type PurgeTaskRunsArgs struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// PurgeTaskRuns удаляет записи журнала старше срока хранения.
func (j *Jobs) PurgeTaskRuns(ctx context.Context, args json.RawMessage) (any, error) {
	const op = "jobs.PurgeTaskRuns"
	retention := j.runsRetention
	if len(args) > 0 {
		var a PurgeTaskRunsArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, tasks.Permanent(fmt.Errorf("%s: %w", op, err))
		}
		if a.RetentionHours < 0 {
			return nil, tasks.Permanent(errors.New(op + ": negative retention"))
		}
		if a.RetentionHours > 0 {
			retention = time.Duration(a.RetentionHours) * time.Hour
		}
	}

	n, err := j.storage.PurgeTaskRunsBefore(ctx, j.now().Add(-retention))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	j.log.Info("task runs purged", slog.Int64("deleted", n), slog.Duration("retention", retention))
	return map[string]int64{"deleted": n}, nil
}
