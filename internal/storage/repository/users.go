package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/payment-service/internal/models"
)

// CreateSuperuser создаёт активного суперпользователя и возвращает его ID.
func (s *Storage) CreateSuperuser(ctx context.Context, email, passwordHash string) (int64, error) {
	const op = "storage.CreateSuperuser"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO users (email, password_hash, is_staff, is_superuser, is_active)
			  VALUES ($1, $2, TRUE, TRUE, TRUE)
			  RETURNING id`
	var id int64
	if err := s.DB.QueryRowContext(ctx, query, email, passwordHash).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, email, password_hash, is_staff, is_superuser, is_active, created_at
			  FROM users
			  WHERE email = $1`
	u := &models.User{}
	err := s.DB.QueryRowContext(ctx, query, email).Scan(&u.ID, &u.Email, &u.PasswordHash,
		&u.IsStaff, &u.IsSuperuser, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UserExists проверяет наличие пользователя с email.
func (s *Storage) UserExists(ctx context.Context, email string) (bool, error) {
	const op = "storage.UserExists"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
