package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/cache"
	"github.com/magabrotheeeer/payment-service/internal/models"
)

// DefaultResultTTL срок хранения результата задачи.
const DefaultResultTTL = 24 * time.Hour

const resultKeyPrefix = "task:result:"

// ErrResultNotFound результата нет: id неизвестен или срок хранения истёк.
var ErrResultNotFound = errors.New("task result not found")

// ResultBackend хранилище последнего состояния задач.
type ResultBackend interface {
	Store(ctx context.Context, res models.TaskResult) error
	Get(ctx context.Context, id string) (*models.TaskResult, error)
}

// RedisBackend хранит результаты в Redis под ключом task:result:<id>.
type RedisBackend struct {
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewRedisBackend(c *cache.Cache, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &RedisBackend{cache: c, ttl: ttl, now: time.Now}
}

// ResultKey ключ Redis для задачи.
func ResultKey(id string) string {
	return resultKeyPrefix + id
}

// Store перезаписывает состояние задачи. Для финальных статусов
// проставляется DateDone.
func (b *RedisBackend) Store(ctx context.Context, res models.TaskResult) error {
	const op = "tasks.RedisBackend.Store"
	if res.ID == "" {
		return fmt.Errorf("%s: empty task id", op)
	}
	if res.Status.Done() && res.DateDone == nil {
		now := b.now().UTC()
		res.DateDone = &now
	}
	if err := b.cache.Set(ctx, ResultKey(res.ID), res, b.ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, id string) (*models.TaskResult, error) {
	const op = "tasks.RedisBackend.Get"
	var res models.TaskResult
	found, err := b.cache.Get(ctx, ResultKey(id), &res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrResultNotFound)
	}
	return &res, nil
}

// ResultFor заготовка результата для задачи с заданным статусом.
func ResultFor(task *models.Task, status models.TaskStatus) models.TaskResult {
	return models.TaskResult{
		ID:      task.ID,
		Name:    task.Name,
		Status:  status,
		Retries: task.Retries,
	}
}
