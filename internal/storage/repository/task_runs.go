package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/models"
)

// SaveTaskRun записывает результат исполнения задачи.
func (s *Storage) SaveTaskRun(ctx context.Context, run models.TaskRun) (int64, error) {
	const op = "storage.SaveTaskRun"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO task_runs (task_id, name, queue, status, retries, error, started_at, finished_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query, run.TaskID, run.Name, run.Queue, string(run.Status),
		run.Retries, run.Error, run.StartedAt, run.FinishedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListRecentTaskRuns возвращает последние limit записей.
func (s *Storage) ListRecentTaskRuns(ctx context.Context, limit int) ([]*models.TaskRun, error) {
	const op = "storage.ListRecentTaskRuns"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, task_id, name, queue, status, retries, error, started_at, finished_at
			  FROM task_runs
			  ORDER BY finished_at DESC
			  LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.TaskRun
	for rows.Next() {
		var (
			r      models.TaskRun
			status string
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Name, &r.Queue, &status, &r.Retries,
			&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.Status = models.TaskStatus(status)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// PurgeTaskRunsBefore удаляет записи, завершившиеся раньше before.
func (s *Storage) PurgeTaskRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.PurgeTaskRunsBefore"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM task_runs WHERE finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
