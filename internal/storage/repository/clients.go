package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/payment-service/internal/models"
)

// CreateClient сохраняет клиента API и возвращает его ID.
func (s *Storage) CreateClient(ctx context.Context, c models.Client) (int64, error) {
	const op = "storage.CreateClient"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO clients (name, sku_prefix, product_name, client_id, client_secret, is_enabled)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query,
		c.Name, c.SKUPrefix, c.ProductName, c.ClientID, c.ClientSecret, c.IsEnabled).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// HasClients сообщает, есть ли хотя бы один клиент.
func (s *Storage) HasClients(ctx context.Context) (bool, error) {
	const op = "storage.HasClients"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	var exists bool
	if err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM clients)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// GetClientByClientID возвращает включённого клиента по публичному client_id.
func (s *Storage) GetClientByClientID(ctx context.Context, clientID string) (*models.Client, error) {
	const op = "storage.GetClientByClientID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, name, sku_prefix, product_name, client_id, client_secret, is_enabled, created_at
			  FROM clients
			  WHERE client_id = $1 AND is_enabled = TRUE`
	c := &models.Client{}
	err := s.DB.QueryRowContext(ctx, query, clientID).Scan(&c.ID, &c.Name, &c.SKUPrefix,
		&c.ProductName, &c.ClientID, &c.ClientSecret, &c.IsEnabled, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// ListClients возвращает всех клиентов для админки.
func (s *Storage) ListClients(ctx context.Context) ([]*models.Client, error) {
	const op = "storage.ListClients"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, name, sku_prefix, product_name, client_id, client_secret, is_enabled, created_at
			  FROM clients
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Client
	for rows.Next() {
		c := &models.Client{}
		if err := rows.Scan(&c.ID, &c.Name, &c.SKUPrefix, &c.ProductName, &c.ClientID,
			&c.ClientSecret, &c.IsEnabled, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
