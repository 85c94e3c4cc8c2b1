// Package auth проверяет учётные данные сотрудников, выпускает токены API
// и создаёт суперпользователей.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/payment-service/internal/lib/jwt"
	"github.com/magabrotheeeer/payment-service/internal/lib/password"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/storage/repository"
)

var (
	// ErrInvalidCredentials неверный email или пароль, либо нет доступа.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists пользователь с таким email уже есть.
	ErrUserExists = errors.New("user already exists")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateSuperuser(ctx context.Context, email, passwordHash string) (int64, error)
}

// AuthService отвечает за вход сотрудников и валидацию JWT.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// Authenticate проверяет пароль и право входа в админку.
func (s *AuthService) Authenticate(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "auth.Authenticate"
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if !user.CanUseAdmin() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	return user, nil
}

// Login проверяет сотрудника и выпускает токен доступа.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (string, time.Time, error) {
	const op = "auth.Login"
	user, err := s.Authenticate(ctx, email, rawPassword)
	if err != nil {
		return "", time.Time{}, err
	}
	role := jwt.RoleStaff
	if user.IsSuperuser {
		role = jwt.RoleSuperuser
	}
	token, expiresAt, err := s.jwtMaker.GenerateToken(user.ID, user.Email, role)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return token, expiresAt, nil
}

// ValidateToken разбирает токен и возвращает его claims.
func (s *AuthService) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	return s.jwtMaker.ParseToken(token)
}

// CreateSuperuser хеширует пароль и сохраняет суперпользователя.
func (s *AuthService) CreateSuperuser(ctx context.Context, email, rawPassword string) (int64, error) {
	const op = "auth.CreateSuperuser"
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return 0, fmt.Errorf("%s: invalid email %q", op, email)
	}
	hash, err := password.GetHash(rawPassword)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	id, err := s.users.CreateSuperuser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return 0, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
