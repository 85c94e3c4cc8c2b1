// Package scheduler ставит периодические задачи в очередь по расписанию cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/metrics"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// Enqueuer публикация задач.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any, opts tasks.EnqueueOptions) (*models.Task, error)
}

// SchedulerService запускает записи расписания и отмечает их в State.
type SchedulerService struct {
	log      *slog.Logger
	enqueuer Enqueuer
	entries  []Entry
	state    *State
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSchedulerService создаёт планировщик. entries должны пройти Prepare.
func NewSchedulerService(log *slog.Logger, enqueuer Enqueuer, entries []Entry, state *State) *SchedulerService {
	if state == nil {
		state = &State{lastRun: make(map[string]time.Time)}
	}
	return &SchedulerService{
		log:      log,
		enqueuer: enqueuer,
		entries:  entries,
		state:    state,
		now:      time.Now,
	}
}

func (s *SchedulerService) Entries() []Entry {
	return s.entries
}

// Missed записи, чей очередной запуск после последнего уже прошёл.
// Записи без истории не считаются пропущенными.
func (s *SchedulerService) Missed(now time.Time) []Entry {
	var missed []Entry
	for _, e := range s.entries {
		last, ok := s.state.LastRun(e.Name)
		if !ok {
			continue
		}
		if next := e.Next(last); !next.IsZero() && !next.After(now) {
			missed = append(missed, e)
		}
	}
	return missed
}

// Start догоняет пропущенные записи и запускает cron. Повторный Start
// без Stop ничего не делает.
func (s *SchedulerService) Start(ctx context.Context) error {
	const op = "scheduler.Start"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	for _, e := range s.Missed(s.now()) {
		s.log.Info("dispatching missed entry", slog.String("entry", e.Name))
		_ = s.Dispatch(ctx, e)
	}

	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, e := range s.entries {
		entry := e
		if entry.schedule == nil {
			return fmt.Errorf("%s: entry %q is not prepared", op, entry.Name)
		}
		c.Schedule(entry.schedule, cron.FuncJob(func() {
			_ = s.Dispatch(ctx, entry)
		}))
	}
	c.Start()
	s.cron = c

	s.log.Info("scheduler started", slog.Int("entries", len(s.entries)))
	return nil
}

// Stop останавливает cron и ждёт завершения текущих запусков.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Running сообщает, запущен ли cron.
func (s *SchedulerService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Dispatch ставит задачу записи в очередь и сохраняет время запуска.
func (s *SchedulerService) Dispatch(ctx context.Context, e Entry) error {
	const op = "scheduler.Dispatch"
	log := s.log.With(slog.String("entry", e.Name), slog.String("task", e.Task))

	var args any
	if len(e.Args) > 0 {
		args = e.Args
	}
	task, err := s.enqueuer.Enqueue(ctx, e.Task, args, tasks.EnqueueOptions{
		Queue:  e.Queue,
		Origin: tasks.OriginScheduler,
	})
	metrics.RecordDispatch(e.Name, err == nil)
	if err != nil {
		log.Error("failed to dispatch entry", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.state.Record(e.Name, s.now()); err != nil {
		log.Warn("failed to save scheduler state", sl.Err(err))
	}
	log.Debug("entry dispatched", slog.String("task_id", task.ID))
	return nil
}
