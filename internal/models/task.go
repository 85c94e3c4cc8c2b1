// Package models содержит доменные структуры сервиса: задачи брокера,
// пользователей, клиентов API, тарифные планы и кэш платёжных ссылок.
package models

import (
	"encoding/json"
	"time"
)

// TaskStatus статус задачи в хранилище результатов.
type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskStarted TaskStatus = "STARTED"
	TaskRetry   TaskStatus = "RETRY"
	TaskSuccess TaskStatus = "SUCCESS"
	TaskFailure TaskStatus = "FAILURE"
)

// Done сообщает, что статус финальный.
func (s TaskStatus) Done() bool {
	return s == TaskSuccess || s == TaskFailure
}

// Task сообщение, которое публикуется в брокер и исполняется воркером.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args,omitempty"`
	Queue      string          `json:"queue"`
	Retries    int             `json:"retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Origin     string          `json:"origin,omitempty"` // api, scheduler, manage
}

// TaskResult последнее известное состояние задачи.
type TaskResult struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Status   TaskStatus      `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Retries  int             `json:"retries"`
	DateDone *time.Time      `json:"date_done,omitempty"`
}

// TaskRun запись об исполнении задачи в базе данных.
type TaskRun struct {
	ID         int64      `json:"id"`
	TaskID     string     `json:"task_id"`
	Name       string     `json:"name"`
	Queue      string     `json:"queue"`
	Status     TaskStatus `json:"status"`
	Retries    int        `json:"retries"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Duration длительность исполнения.
func (r TaskRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// DeadLetter сообщение в очереди tasks.dead.
type DeadLetter struct {
	Reason string          `json:"reason"`
	Task   *Task           `json:"task,omitempty"`
	Raw    string          `json:"raw,omitempty"`
	At     time.Time       `json:"at"`
}
