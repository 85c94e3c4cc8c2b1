package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/payment-service/internal/migrations"
	"github.com/magabrotheeeer/payment-service/internal/models"
)

func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

func createTestClient(t *testing.T, s *Storage, clientID string) int64 {
	t.Helper()
	id, err := s.CreateClient(context.Background(), models.Client{
		Name:         "client " + clientID,
		SKUPrefix:    "TST",
		ProductName:  "Test product",
		ClientID:     clientID,
		ClientSecret: "secret-" + clientID,
		IsEnabled:    true,
	})
	require.NoError(t, err)
	return id
}

func createTestPlan(t *testing.T, s *Storage, clientID int64, enabled, recurring bool) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, s.CreatePlan(context.Background(), models.Plan{
		ID:          id,
		ClientID:    clientID,
		Name:        "plan " + id[:8],
		Period:      models.PeriodMonth,
		Term:        1,
		Price:       "10.00",
		IsRecurring: recurring,
		IsEnabled:   enabled,
	}))
	return id
}

func TestIntegration_ListPlansVisibility(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	owner := createTestClient(t, storage, "owner")
	other := createTestClient(t, storage, "other")

	ownDisabled := createTestPlan(t, storage, owner, false, true)
	otherEnabled := createTestPlan(t, storage, other, true, false)
	createTestPlan(t, storage, other, false, true)

	plans, err := storage.ListPlans(ctx, owner, models.PlanFilter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{ownDisabled, otherEnabled}, ids)

	recurring := false
	plans, err = storage.ListPlans(ctx, owner, models.PlanFilter{IsRecurring: &recurring})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, otherEnabled, plans[0].ID)
	assert.Equal(t, "10.00", plans[0].Price)

	plans, err = storage.ListPlans(ctx, owner, models.PlanFilter{IDs: []string{ownDisabled}})
	require.NoError(t, err)
	require.Len(t, plans, 1)

	enabled, err := storage.ListEnabledPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestIntegration_PaymentURLCache(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	client := createTestClient(t, storage, "cache")
	plan := createTestPlan(t, storage, client, true, true)
	now := time.Now()

	fresh := models.PaymentURL{ID: uuid.NewString(), ClientID: client, PlanID: plan,
		URL: "https://pay.example.com/fresh", ExpiredAt: now.Add(time.Hour)}
	soon := models.PaymentURL{ID: uuid.NewString(), ClientID: client, PlanID: plan,
		URL: "https://pay.example.com/soon", ExpiredAt: now.Add(30 * time.Second)}
	stale := models.PaymentURL{ID: uuid.NewString(), ClientID: client, PlanID: plan,
		URL: "https://pay.example.com/stale", ExpiredAt: now.Add(-time.Minute)}
	for _, p := range []models.PaymentURL{fresh, soon, stale} {
		require.NoError(t, storage.CreatePaymentURL(ctx, p))
	}

	_, err := storage.GetPaymentURL(ctx, client, stale.ID)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := storage.PurgeExpiredPaymentURLs(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := storage.GetPaymentURL(ctx, client, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.URL, got.URL)
}

func TestIntegration_UsersAndTaskRuns(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	_, err := storage.CreateSuperuser(ctx, "admin@example.com", "hash")
	require.NoError(t, err)
	_, err = storage.CreateSuperuser(ctx, "admin@example.com", "hash")
	require.ErrorIs(t, err, ErrAlreadyExists)

	exists, err := storage.UserExists(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	old := time.Now().Add(-10 * 24 * time.Hour)
	for _, finished := range []time.Time{old, time.Now()} {
		_, err = storage.SaveTaskRun(ctx, models.TaskRun{
			TaskID: uuid.NewString(), Name: "core.debug_task", Queue: "default",
			Status: models.TaskSuccess, StartedAt: finished, FinishedAt: finished,
		})
		require.NoError(t, err)
	}

	n, err := storage.PurgeTaskRunsBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := storage.ListRecentTaskRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, CheckDatabaseReady(ctx, storage))
}
