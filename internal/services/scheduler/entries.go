package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// Entry периодическая задача.
type Entry struct {
	Name  string          `json:"name"`
	Spec  string          `json:"spec"`
	Task  string          `json:"task"`
	Args  json.RawMessage `json:"args,omitempty"`
	Queue string          `json:"queue,omitempty"`

	schedule cron.Schedule
}

// Next время следующего запуска после t.
func (e Entry) Next(t time.Time) time.Time {
	if e.schedule == nil {
		return time.Time{}
	}
	return e.schedule.Next(t)
}

// DefaultEntries расписание по умолчанию.
func DefaultEntries() []Entry {
	return []Entry{
		{Name: "purge-payment-url-cache", Spec: "@every 1m", Task: tasks.PurgePaymentURLCache},
		{Name: "refresh-plans-cache", Spec: "@every 10m", Task: tasks.RefreshPlansCache},
		{Name: "purge-task-runs", Spec: "@daily", Task: tasks.PurgeTaskRuns},
	}
}

// EntriesFromConfig собирает расписание из конфига. Пустой список
// означает расписание по умолчанию.
func EntriesFromConfig(cfg []config.ScheduleEntry, topology rabbitmq.Topology) ([]Entry, error) {
	if len(cfg) == 0 {
		return Prepare(DefaultEntries(), topology)
	}
	entries := make([]Entry, 0, len(cfg))
	for _, c := range cfg {
		e := Entry{Name: c.Name, Spec: c.Spec, Task: c.Task, Queue: c.Queue}
		if c.Args != "" {
			e.Args = json.RawMessage(c.Args)
		}
		entries = append(entries, e)
	}
	return Prepare(entries, topology)
}

// Prepare проверяет записи и разбирает их выражения. Явная очередь
// записи должна быть объявлена в topology.
func Prepare(entries []Entry, topology rabbitmq.Topology) ([]Entry, error) {
	const op = "scheduler.Prepare"
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	var errs []error

	for _, e := range entries {
		if e.Name == "" {
			e.Name = e.Task
		}
		switch {
		case e.Task == "":
			errs = append(errs, fmt.Errorf("entry %q: empty task", e.Name))
			continue
		case !tasks.Known(e.Task):
			errs = append(errs, fmt.Errorf("entry %q: %w: %s", e.Name, tasks.ErrUnknownTask, e.Task))
			continue
		case seen[e.Name]:
			errs = append(errs, fmt.Errorf("entry %q: duplicate name", e.Name))
			continue
		case e.Queue != "" && !topology.Has(e.Queue):
			errs = append(errs, fmt.Errorf("entry %q: %w: %s", e.Name, tasks.ErrUnknownQueue, e.Queue))
			continue
		case len(e.Args) > 0 && !json.Valid(e.Args):
			errs = append(errs, fmt.Errorf("entry %q: args is not valid JSON", e.Name))
			continue
		}

		schedule, err := cron.ParseStandard(e.Spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q: %w", e.Name, err))
			continue
		}
		e.schedule = schedule
		seen[e.Name] = true
		out = append(out, e)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	return out, nil
}
