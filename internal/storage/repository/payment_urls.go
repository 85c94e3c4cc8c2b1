package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/models"
)

// CreatePaymentURL сохраняет ссылку на оплату.
func (s *Storage) CreatePaymentURL(ctx context.Context, p models.PaymentURL) error {
	const op = "storage.CreatePaymentURL"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO payment_url_cache (id, client_id, plan_id, url, expired_at)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query, p.ID, p.ClientID, p.PlanID, p.URL, p.ExpiredAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetPaymentURL возвращает неистёкшую ссылку клиента.
func (s *Storage) GetPaymentURL(ctx context.Context, clientID int64, id string) (*models.PaymentURL, error) {
	const op = "storage.GetPaymentURL"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, client_id, plan_id, url, expired_at, created_at
			  FROM payment_url_cache
			  WHERE id = $1 AND client_id = $2 AND expired_at > NOW()`
	p := &models.PaymentURL{}
	err := s.DB.QueryRowContext(ctx, query, id, clientID).Scan(&p.ID, &p.ClientID, &p.PlanID,
		&p.URL, &p.ExpiredAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// PurgeExpiredPaymentURLs удаляет ссылки с expired_at < threshold
// и возвращает число удалённых строк.
func (s *Storage) PurgeExpiredPaymentURLs(ctx context.Context, threshold time.Time) (int64, error) {
	const op = "storage.PurgeExpiredPaymentURLs"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM payment_url_cache WHERE expired_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
