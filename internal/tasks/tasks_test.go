package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/payment-service/internal/cache"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, message any, opts rabbitmq.PublishOptions) error {
	args := m.Called(ctx, routingKey, message, opts)
	return args.Error(0)
}

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Store(ctx context.Context, res models.TaskResult) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockBackend) Get(ctx context.Context, id string) (*models.TaskResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskResult), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	h := func(_ context.Context, _ json.RawMessage) (any, error) { return "ok", nil }

	require.NoError(t, r.Register(DebugTask, h))
	require.Error(t, r.Register(DebugTask, h), "повторная регистрация")
	require.Error(t, r.Register("", h))
	require.NoError(t, r.Register(SendEmail, h))

	got, err := r.Lookup(DebugTask)
	require.NoError(t, err)
	res, err := got(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	_, err = r.Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownTask)

	assert.Equal(t, []string{DebugTask, SendEmail}, r.Names())
	assert.True(t, r.Has(SendEmail))
}

func TestCatalog(t *testing.T) {
	assert.True(t, Known(PurgePaymentURLCache))
	assert.True(t, Known(RefreshPlansCache))
	assert.False(t, Known("payments.unknown"))
	assert.Len(t, Catalog(), 5)
}

func TestNextRetryDelay(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		base    time.Duration
	}{
		{name: "первая попытка", attempt: 0, base: 10 * time.Second},
		{name: "вторая попытка", attempt: 1, base: time.Minute},
		{name: "третья попытка", attempt: 2, base: 5 * time.Minute},
		{name: "четвёртая попытка", attempt: 3, base: 30 * time.Minute},
		{name: "за пределами таблицы", attempt: 10, base: 30 * time.Minute},
		{name: "отрицательная попытка", attempt: -1, base: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 50 {
				d := NextRetryDelay(tt.attempt)
				assert.GreaterOrEqual(t, d, time.Duration(float64(tt.base)*0.8))
				assert.LessOrEqual(t, d, time.Duration(float64(tt.base)*1.2))
			}
		})
	}
}

func TestIsExhausted(t *testing.T) {
	assert.False(t, IsExhausted(2, 3))
	assert.True(t, IsExhausted(3, 3))
	assert.Len(t, RetryDelays(), 4)
}

func setupBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisBackend(c, time.Hour), mr
}

func TestRedisBackend_StoreAndGet(t *testing.T) {
	b, mr := setupBackend(t)
	ctx := context.Background()

	task := &models.Task{ID: "t-1", Name: DebugTask, Retries: 1}
	require.NoError(t, b.Store(ctx, ResultFor(task, models.TaskStarted)))

	got, err := b.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStarted, got.Status)
	assert.Nil(t, got.DateDone)
	assert.Equal(t, 1, got.Retries)

	res := ResultFor(task, models.TaskSuccess)
	res.Result = json.RawMessage(`{"deleted":3}`)
	require.NoError(t, b.Store(ctx, res))

	got, err = b.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskSuccess, got.Status)
	assert.NotNil(t, got.DateDone)
	assert.JSONEq(t, `{"deleted":3}`, string(got.Result))

	ttl := mr.TTL(ResultKey("t-1"))
	assert.Equal(t, time.Hour, ttl)
}

func TestRedisBackend_NotFound(t *testing.T) {
	b, mr := setupBackend(t)
	ctx := context.Background()

	_, err := b.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrResultNotFound)

	require.NoError(t, b.Store(ctx, models.TaskResult{ID: "short", Status: models.TaskPending}))
	mr.FastForward(2 * time.Hour)
	_, err = b.Get(ctx, "short")
	require.ErrorIs(t, err, ErrResultNotFound)

	require.Error(t, b.Store(ctx, models.TaskResult{}))
}

func testTopology() rabbitmq.Topology {
	return rabbitmq.NewTopology("tasks", []string{"default", "mail"})
}

func TestEnqueuer_Enqueue(t *testing.T) {
	tests := []struct {
		name        string
		task        string
		args        any
		opts        EnqueueOptions
		publishErr  error
		backendErr  error
		wantQueue   string
		wantArgs    string
		wantErr     error
		wantFailure bool
	}{
		{
			name:      "успешная публикация в очередь по умолчанию",
			task:      DebugTask,
			args:      map[string]int{"n": 1},
			opts:      EnqueueOptions{Origin: OriginAPI},
			wantQueue: "default",
			wantArgs:  `{"n":1}`,
		},
		{
			name:      "сырые аргументы и явная очередь",
			task:      SendEmail,
			args:      json.RawMessage(`{"to":["a@b.c"]}`),
			opts:      EnqueueOptions{Queue: "mail"},
			wantQueue: "mail",
			wantArgs:  `{"to":["a@b.c"]}`,
		},
		{
			name:       "ошибка хранилища результатов не мешает публикации",
			task:       DebugTask,
			backendErr: errors.New("redis down"),
			wantQueue:  "default",
		},
		{
			name:    "неизвестная задача",
			task:    "core.nope",
			wantErr: ErrUnknownTask,
		},
		{
			name:    "неизвестная очередь",
			task:    DebugTask,
			opts:    EnqueueOptions{Queue: "no-such-queue"},
			wantErr: ErrUnknownQueue,
		},
		{
			name:        "ошибка брокера",
			task:        DebugTask,
			publishErr:  errors.New("channel closed"),
			wantQueue:   "default",
			wantErr:     errors.New("channel closed"),
			wantFailure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := new(MockPublisher)
			backend := new(MockBackend)

			if tt.wantQueue != "" {
				backend.On("Store", mock.Anything, mock.MatchedBy(func(r models.TaskResult) bool {
					return r.Status == models.TaskPending && r.Name == tt.task
				})).Return(tt.backendErr).Once()
				pub.On("Publish", mock.Anything, tt.wantQueue, mock.AnythingOfType("*models.Task"),
					mock.AnythingOfType("rabbitmq.PublishOptions")).Return(tt.publishErr).Once()
			}
			if tt.wantFailure {
				backend.On("Store", mock.Anything, mock.MatchedBy(func(r models.TaskResult) bool {
					return r.Status == models.TaskFailure && r.Error == "publish failed: "+tt.publishErr.Error()
				})).Return(nil).Once()
			}

			e := NewEnqueuer(discardLogger(), pub, backend, testTopology())
			task, err := e.Enqueue(context.Background(), tt.task, tt.args, tt.opts)

			if tt.wantErr != nil {
				require.Error(t, err)
				if errors.Is(tt.wantErr, ErrUnknownTask) || errors.Is(tt.wantErr, ErrUnknownQueue) {
					require.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, task.ID)
				assert.Equal(t, tt.wantQueue, task.Queue)
				assert.Equal(t, tt.opts.Origin, task.Origin)
				if tt.wantArgs != "" {
					assert.JSONEq(t, tt.wantArgs, string(task.Args))
				}
			}
			pub.AssertExpectations(t)
			backend.AssertExpectations(t)
		})
	}
}

func TestEnqueuer_UnpublishedTaskNotLeftPending(t *testing.T) {
	backend, _ := setupBackend(t)

	pub := new(MockPublisher)
	var published *models.Task
	pub.On("Publish", mock.Anything, "default", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).(*models.Task) }).
		Return(errors.New("channel closed")).Once()

	e := NewEnqueuer(discardLogger(), pub, backend, testTopology())
	_, err := e.Enqueue(context.Background(), DebugTask, nil, EnqueueOptions{})
	require.Error(t, err)
	require.NotNil(t, published)

	res, err := backend.Get(context.Background(), published.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailure, res.Status)
	assert.Contains(t, res.Error, "channel closed")
	assert.NotNil(t, res.DateDone)
}

func TestEnqueuer_InvalidRawArgs(t *testing.T) {
	e := NewEnqueuer(discardLogger(), new(MockPublisher), nil, testTopology())
	_, err := e.Enqueue(context.Background(), DebugTask, []byte("{broken"), EnqueueOptions{})
	require.Error(t, err)
}

func TestEnqueuer_PublishOptionsCarryTaskID(t *testing.T) {
	pub := new(MockPublisher)
	var published *models.Task
	pub.On("Publish", mock.Anything, "default", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(2).(*models.Task)
			opts := args.Get(3).(rabbitmq.PublishOptions)
			assert.Equal(t, published.ID, opts.MessageID)
		}).Return(nil)

	e := NewEnqueuer(discardLogger(), pub, nil, testTopology()).WithKnown(func(string) bool { return true })
	task, err := e.Enqueue(context.Background(), "custom.task", nil, EnqueueOptions{Origin: OriginManage})
	require.NoError(t, err)
	assert.Same(t, published, task)
	assert.Empty(t, task.Args)
}
