package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
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

type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) SaveTaskRun(ctx context.Context, run models.TaskRun) (int64, error) {
	args := m.Called(ctx, run)
	return args.Get(0).(int64), args.Error(1)
}

const retryDelay = 10 * time.Second

func newTestService(t *testing.T, handler tasks.HandlerFunc, pub *MockPublisher, backend *MockBackend, runs *MockRunStore) *Service {
	t.Helper()
	registry := tasks.NewRegistry()
	if handler != nil {
		registry.MustRegister(tasks.DebugTask, handler)
	}
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)), registry, pub, backend, runs,
		rabbitmq.NewTopology("tasks", nil), Options{MaxRetries: 3, TaskTimeout: 200 * time.Millisecond})
	s.delay = func(int) time.Duration { return retryDelay }
	return s
}

func taskBody(t *testing.T, retries int) []byte {
	t.Helper()
	body, err := json.Marshal(models.Task{
		ID:      "11111111-2222-3333-4444-555555555555",
		Name:    tasks.DebugTask,
		Args:    json.RawMessage(`{"x":1}`),
		Queue:   "default",
		Retries: retries,
	})
	require.NoError(t, err)
	return body
}

func status(s models.TaskStatus) any {
	return mock.MatchedBy(func(r models.TaskResult) bool { return r.Status == s })
}

func TestHandleDelivery_Success(t *testing.T) {
	pub, backend, runs := new(MockPublisher), new(MockBackend), new(MockRunStore)
	handler := func(_ context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"echo": string(args)}, nil
	}

	backend.On("Store", mock.Anything, status(models.TaskStarted)).Return(nil).Once()
	backend.On("Store", mock.Anything, mock.MatchedBy(func(r models.TaskResult) bool {
		return r.Status == models.TaskSuccess && string(r.Result) == `{"echo":"{\"x\":1}"}`
	})).Return(nil).Once()
	runs.On("SaveTaskRun", mock.Anything, mock.MatchedBy(func(r models.TaskRun) bool {
		return r.Status == models.TaskSuccess && r.Queue == "default" && r.Error == ""
	})).Return(int64(1), nil).Once()

	err := newTestService(t, handler, pub, backend, runs).HandleDelivery(context.Background(), taskBody(t, 0))
	require.NoError(t, err)

	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	backend.AssertExpectations(t)
	runs.AssertExpectations(t)
}

func TestHandleDelivery_Malformed(t *testing.T) {
	tests := []struct {
		name       string
		body       []byte
		publishErr error
		wantErr    bool
	}{
		{name: "не JSON", body: []byte("{not json")},
		{name: "нет имени задачи", body: []byte(`{"id":"1"}`)},
		{name: "очередь мёртвых писем недоступна", body: []byte("garbage"),
			publishErr: errors.New("channel closed"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := new(MockPublisher)
			pub.On("Publish", mock.Anything, "dead", mock.MatchedBy(func(dl models.DeadLetter) bool {
				return dl.Reason == ReasonMalformed && dl.Raw == string(tt.body) && dl.Task == nil
			}), mock.Anything).Return(tt.publishErr).Once()

			err := newTestService(t, nil, pub, nil, nil).HandleDelivery(context.Background(), tt.body)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			pub.AssertExpectations(t)
		})
	}
}

func TestHandleDelivery_UnknownTask(t *testing.T) {
	pub, backend := new(MockPublisher), new(MockBackend)
	pub.On("Publish", mock.Anything, "dead", mock.MatchedBy(func(dl models.DeadLetter) bool {
		return dl.Reason == ReasonUnknown && dl.Task != nil && dl.Task.Name == tasks.DebugTask
	}), mock.Anything).Return(nil).Once()
	backend.On("Store", mock.Anything, mock.MatchedBy(func(r models.TaskResult) bool {
		return r.Status == models.TaskFailure && r.Error != ""
	})).Return(nil).Once()

	err := newTestService(t, nil, pub, backend, nil).HandleDelivery(context.Background(), taskBody(t, 0))
	require.NoError(t, err)
	pub.AssertExpectations(t)
	backend.AssertExpectations(t)
}

func TestHandleDelivery_RetryScheduled(t *testing.T) {
	tests := []struct {
		name    string
		handler tasks.HandlerFunc
	}{
		{
			name: "ошибка обработчика",
			handler: func(_ context.Context, _ json.RawMessage) (any, error) {
				return nil, errors.New("temporary")
			},
		},
		{
			name: "паника обработчика",
			handler: func(_ context.Context, _ json.RawMessage) (any, error) {
				panic("boom")
			},
		},
		{
			name: "таймаут",
			handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, backend, runs := new(MockPublisher), new(MockBackend), new(MockRunStore)
			pub.On("Publish", mock.Anything, "default.retry.10s", mock.MatchedBy(func(task *models.Task) bool {
				return task.Retries == 2
			}), rabbitmq.PublishOptions{Expiration: retryDelay, MessageID: "11111111-2222-3333-4444-555555555555"}).
				Return(nil).Once()
			backend.On("Store", mock.Anything, status(models.TaskStarted)).Return(nil).Once()
			backend.On("Store", mock.Anything, mock.MatchedBy(func(r models.TaskResult) bool {
				return r.Status == models.TaskRetry && r.Retries == 2 && r.Error != ""
			})).Return(nil).Once()

			err := newTestService(t, tt.handler, pub, backend, runs).HandleDelivery(context.Background(), taskBody(t, 1))
			require.NoError(t, err)

			pub.AssertExpectations(t)
			backend.AssertExpectations(t)
			runs.AssertNotCalled(t, "SaveTaskRun", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleDelivery_RetryTiersSeparateDelays(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		wantKey string
		tier    time.Duration
	}{
		{name: "первая попытка", retries: 0, wantKey: "default.retry.10s", tier: 10 * time.Second},
		{name: "вторая попытка", retries: 1, wantKey: "default.retry.1m", tier: time.Minute},
		{name: "последняя попытка", retries: 3, wantKey: "default.retry.30m", tier: 30 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, backend := new(MockPublisher), new(MockBackend)
			var opts rabbitmq.PublishOptions
			pub.On("Publish", mock.Anything, tt.wantKey, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) { opts = args.Get(3).(rabbitmq.PublishOptions) }).
				Return(nil).Once()
			backend.On("Store", mock.Anything, mock.Anything).Return(nil)

			handler := func(_ context.Context, _ json.RawMessage) (any, error) {
				return nil, errors.New("temporary")
			}
			s := newTestService(t, handler, pub, backend, nil)
			s.opts.MaxRetries = 10
			s.delay = tasks.NextRetryDelay

			require.NoError(t, s.HandleDelivery(context.Background(), taskBody(t, tt.retries)))
			pub.AssertExpectations(t)
			assert.LessOrEqual(t, opts.Expiration, tt.tier)
			assert.GreaterOrEqual(t, opts.Expiration, time.Duration(float64(tt.tier)*(1-tasks.JitterFactor)))
		})
	}
}

func TestHandleDelivery_RetryPublishFails(t *testing.T) {
	pub, backend := new(MockPublisher), new(MockBackend)
	pub.On("Publish", mock.Anything, "default.retry.10s", mock.Anything, mock.Anything).
		Return(errors.New("channel closed")).Once()
	backend.On("Store", mock.Anything, status(models.TaskStarted)).Return(nil).Once()

	handler := func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("temporary")
	}
	err := newTestService(t, handler, pub, backend, nil).HandleDelivery(context.Background(), taskBody(t, 0))
	require.Error(t, err)
	backend.AssertExpectations(t)
}

func TestHandleDelivery_DeadLettered(t *testing.T) {
	tests := []struct {
		name       string
		retries    int
		err        error
		wantReason string
	}{
		{name: "попытки исчерпаны", retries: 3, err: errors.New("still failing"), wantReason: ReasonExhausted},
		{name: "неповторяемая ошибка", retries: 0, err: tasks.Permanent(errors.New("bad args")), wantReason: ReasonPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, backend, runs := new(MockPublisher), new(MockBackend), new(MockRunStore)
			pub.On("Publish", mock.Anything, "dead", mock.MatchedBy(func(dl models.DeadLetter) bool {
				return dl.Task != nil && len(dl.Reason) > len(tt.wantReason) && dl.Reason[:len(tt.wantReason)] == tt.wantReason
			}), mock.Anything).Return(nil).Once()
			backend.On("Store", mock.Anything, status(models.TaskStarted)).Return(nil).Once()
			backend.On("Store", mock.Anything, status(models.TaskFailure)).Return(nil).Once()
			runs.On("SaveTaskRun", mock.Anything, mock.MatchedBy(func(r models.TaskRun) bool {
				return r.Status == models.TaskFailure && r.Retries == tt.retries && r.Error != ""
			})).Return(int64(0), errors.New("db down")).Once()

			handler := func(_ context.Context, _ json.RawMessage) (any, error) { return nil, tt.err }
			err := newTestService(t, handler, pub, backend, runs).HandleDelivery(context.Background(), taskBody(t, tt.retries))
			require.NoError(t, err, "сбой журнала не влияет на подтверждение")

			pub.AssertExpectations(t)
			backend.AssertExpectations(t)
			runs.AssertExpectations(t)
		})
	}
}

func TestHandleDelivery_BackendFailureIgnored(t *testing.T) {
	pub, backend := new(MockPublisher), new(MockBackend)
	backend.On("Store", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	handler := func(_ context.Context, _ json.RawMessage) (any, error) { return nil, nil }
	err := newTestService(t, handler, pub, backend, nil).HandleDelivery(context.Background(), taskBody(t, 0))
	require.NoError(t, err)
	assert.Len(t, backend.Calls, 2)
}
