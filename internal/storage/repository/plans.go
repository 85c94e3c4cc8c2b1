package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/payment-service/internal/models"
)

const planColumns = `id, client_id, name, code, description, period, term, price::text,
			      is_recurring, is_enabled, created_at`

// CreatePlan сохраняет тарифный план.
func (s *Storage) CreatePlan(ctx context.Context, p models.Plan) error {
	const op = "storage.CreatePlan"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO plans (id, client_id, name, code, description, period, term, price,
			      is_recurring, is_enabled)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)`
	_, err := s.DB.ExecContext(ctx, query, p.ID, p.ClientID, p.Name, p.Code, p.Description,
		int(p.Period), p.Term, p.Price, p.IsRecurring, p.IsEnabled)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListPlans возвращает планы, видимые клиенту: собственные планы клиента
// и все включённые планы, с учётом фильтра.
func (s *Storage) ListPlans(ctx context.Context, clientID int64, filter models.PlanFilter) ([]*models.Plan, error) {
	const op = "storage.ListPlans"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + planColumns + ` FROM plans WHERE (client_id = $1 OR is_enabled = TRUE)`)
	args := []any{clientID}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		fmt.Fprintf(&sb, " AND id::text = ANY($%d)", len(args))
	}
	if filter.IsRecurring != nil {
		args = append(args, *filter.IsRecurring)
		fmt.Fprintf(&sb, " AND is_recurring = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	rows, err := s.DB.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return scanPlans(rows, op)
}

// ListEnabledPlans возвращает все включённые планы.
func (s *Storage) ListEnabledPlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "storage.ListEnabledPlans"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE is_enabled = TRUE ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return scanPlans(rows, op)
}

func scanPlans(rows *sql.Rows, op string) ([]*models.Plan, error) {
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Plan
	for rows.Next() {
		var (
			p           models.Plan
			period      int
			code, descr sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name, &code, &descr, &period, &p.Term,
			&p.Price, &p.IsRecurring, &p.IsEnabled, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.Period = models.PlanPeriod(period)
		if code.Valid {
			p.Code = &code.String
		}
		if descr.Valid {
			p.Description = &descr.String
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
