// Package tasks описывает каталог фоновых задач, их публикацию в брокер
// и хранилище результатов.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Имена задач. Это контракт между производителями и воркером.
const (
	DebugTask            = "core.debug_task"
	PurgeTaskRuns        = "core.purge_task_runs"
	PurgePaymentURLCache = "payments.purge_payment_url_cache"
	RefreshPlansCache    = "payments.refresh_plans_cache"
	SendEmail            = "mailing.send_email"
)

// ErrUnknownTask задача с таким именем не зарегистрирована.
var ErrUnknownTask = errors.New("unknown task")

// ErrUnknownQueue очередь не объявлена в топологии брокера.
var ErrUnknownQueue = errors.New("unknown queue")

// HandlerFunc исполняет задачу. Результат сериализуется в JSON.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Registry набор обработчиков по имени задачи.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register добавляет обработчик. Повторная регистрация имени запрещена.
func (r *Registry) Register(name string, h HandlerFunc) error {
	const op = "tasks.Register"
	if name == "" || h == nil {
		return fmt.Errorf("%s: empty name or handler", op)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%s: task %q already registered", op, name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister как Register, но паникует при ошибке.
func (r *Registry) MustRegister(name string, h HandlerFunc) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return h, nil
}

func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names отсортированный список зарегистрированных задач.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog имена всех задач сервиса. API и CLI проверяют по нему имя
// до публикации, не имея самих обработчиков.
func Catalog() []string {
	return []string{DebugTask, SendEmail, PurgeTaskRuns, PurgePaymentURLCache, RefreshPlansCache}
}

// Known сообщает, входит ли имя в каталог.
func Known(name string) bool {
	for _, n := range Catalog() {
		if n == name {
			return true
		}
	}
	return false
}

// ErrPermanent ошибка, при которой повтор бессмыслен (например, неверные аргументы).
var ErrPermanent = errors.New("permanent task error")

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
