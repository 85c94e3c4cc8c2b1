// Package setup заполняет базу начальными данными: клиент по умолчанию
// и главный суперпользователь. Повторный запуск ничего не меняет.
package setup

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/lib/password"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/services/auth"
)

const (
	DefaultClientName    = "Default"
	DefaultProductName   = "Default online product"
	skuPrefixLen         = 4
	generatedSecretBytes = 24
)

// Storage операции с клиентами и пользователями.
type Storage interface {
	HasClients(ctx context.Context) (bool, error)
	CreateClient(ctx context.Context, c models.Client) (int64, error)
	UserExists(ctx context.Context, email string) (bool, error)
}

// SuperuserCreator создание суперпользователя.
type SuperuserCreator interface {
	CreateSuperuser(ctx context.Context, email, rawPassword string) (int64, error)
}

// Result что было создано.
type Result struct {
	Client       *models.Client
	ClientSecret string
	UserEmail    string
}

// Initializer создаёт начальные данные.
type Initializer struct {
	log      *slog.Logger
	storage  Storage
	users    SuperuserCreator
	settings config.Init
}

func New(log *slog.Logger, storage Storage, users SuperuserCreator, settings config.Init) *Initializer {
	return &Initializer{log: log, storage: storage, users: users, settings: settings}
}

// Run создаёт клиента, если клиентов нет, и главного пользователя, если
// его email задан и такого пользователя ещё нет.
func (i *Initializer) Run(ctx context.Context) (*Result, error) {
	const op = "setup.Run"
	res := &Result{}

	if err := i.initClient(ctx, res); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := i.initUser(ctx, res); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (i *Initializer) initClient(ctx context.Context, res *Result) error {
	exists, err := i.storage.HasClients(ctx)
	if err != nil {
		return err
	}
	if exists {
		i.log.Debug("clients already exist, skipping default client")
		return nil
	}

	clientID, clientSecret := i.settings.ClientID, i.settings.ClientSecret
	if clientID == "" || clientSecret == "" {
		if clientID, err = password.RandomHex(generatedSecretBytes); err != nil {
			return err
		}
		if clientSecret, err = password.RandomHex(generatedSecretBytes); err != nil {
			return err
		}
	}
	sku, err := SKUPrefix(skuPrefixLen)
	if err != nil {
		return err
	}

	c := models.Client{
		Name:         DefaultClientName,
		SKUPrefix:    sku,
		ProductName:  DefaultProductName,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		IsEnabled:    true,
	}
	id, err := i.storage.CreateClient(ctx, c)
	if err != nil {
		return err
	}
	c.ID = id
	res.Client = &c
	res.ClientSecret = clientSecret
	i.log.Info("default client initialized", slog.String("client_id", clientID), slog.String("sku_prefix", sku))
	return nil
}

func (i *Initializer) initUser(ctx context.Context, res *Result) error {
	email := strings.TrimSpace(i.settings.MainUserEmail)
	pass := strings.TrimSpace(i.settings.MainUserPassword)
	if email == "" {
		return nil
	}
	exists, err := i.storage.UserExists(ctx, strings.ToLower(email))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if pass == "" {
		return errors.New("main user password is empty")
	}
	if _, err := i.users.CreateSuperuser(ctx, email, pass); err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return nil
		}
		return err
	}
	res.UserEmail = strings.ToLower(email)
	i.log.Info("main user initialized", slog.String("email", res.UserEmail))
	return nil
}

const skuAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// SKUPrefix случайный префикс артикулов из заглавных латинских букв.
func SKUPrefix(n int) (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(skuAlphabet)))
	for range n {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(skuAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
