// Package plans отдаёт тарифные планы клиентам API с кэшированием в Redis.
package plans

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/cache"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
)

// VisibleTTL срок жизни списка планов, видимых клиенту.
const VisibleTTL = time.Minute

// Repository определяет методы для чтения планов из хранилища.
type Repository interface {
	// ListPlans возвращает собственные планы клиента и все включённые.
	ListPlans(ctx context.Context, clientID int64, filter models.PlanFilter) ([]*models.Plan, error)
	// ListEnabledPlans возвращает все включённые планы.
	ListEnabledPlans(ctx context.Context) ([]*models.Plan, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Service реализует выборку планов через кэш.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
	ttl   time.Duration
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
		ttl:   VisibleTTL,
	}
}

// VisibleKey ключ кэша планов, видимых клиенту.
func VisibleKey(clientID int64) string {
	return fmt.Sprintf("plans:visible:%d", clientID)
}

// List возвращает планы клиента с учётом фильтра. Полный список видимых
// планов читается из кэша или из базы, фильтр применяется в памяти.
// Ошибки Redis не мешают ответу из базы.
func (s *Service) List(ctx context.Context, clientID int64, filter models.PlanFilter) ([]*models.Plan, error) {
	const op = "plans.List"
	key := VisibleKey(clientID)

	var visible []*models.Plan
	found, err := s.cache.Get(ctx, key, &visible)
	if err != nil {
		s.log.Warn("failed to read plans from cache", slog.String("key", key), sl.Err(err))
	}
	if !found || err != nil {
		visible, err = s.repo.ListPlans(ctx, clientID, models.PlanFilter{})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if visible == nil {
			visible = []*models.Plan{}
		}
		if err := s.cache.Set(ctx, key, visible, s.ttl); err != nil {
			s.log.Warn("failed to cache plans", slog.String("key", key), sl.Err(err))
		}
	}

	return Filter(visible, filter), nil
}

// Enabled возвращает включённые планы из снимка plans:enabled,
// который обновляет фоновая задача, либо из базы.
func (s *Service) Enabled(ctx context.Context) ([]*models.Plan, error) {
	const op = "plans.Enabled"

	var plans []*models.Plan
	found, err := s.cache.Get(ctx, cache.PlansEnabledKey, &plans)
	if err != nil {
		s.log.Warn("failed to read plans from cache", slog.String("key", cache.PlansEnabledKey), sl.Err(err))
	}
	if found && err == nil {
		return plans, nil
	}

	plans, err = s.repo.ListEnabledPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// Invalidate сбрасывает кэш видимых планов клиента.
func (s *Service) Invalidate(ctx context.Context, clientID int64) error {
	return s.cache.Invalidate(ctx, VisibleKey(clientID))
}

// Filter оставляет планы, подходящие под ids и is_recurring.
func Filter(plans []*models.Plan, filter models.PlanFilter) []*models.Plan {
	out := make([]*models.Plan, 0, len(plans))
	for _, p := range plans {
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, p.ID) {
			continue
		}
		if filter.IsRecurring != nil && p.IsRecurring != *filter.IsRecurring {
			continue
		}
		out = append(out, p)
	}
	return out
}
