package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/payment-service/internal/services/auth"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestHandler_ServeHTTP(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           any
		mockToken      string
		mockErr        error
		callService    bool
		wantStatusCode int
		wantStatus     string
		wantError      string
	}{
		{
			name:           "успешный вход",
			body:           Request{Email: "staff@example.com", Password: "secret"},
			mockToken:      "jwt-token",
			callService:    true,
			wantStatusCode: http.StatusOK,
			wantStatus:     "OK",
		},
		{
			name:           "битый JSON",
			body:           "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantStatus:     "Error",
			wantError:      "invalid request body",
		},
		{
			name:           "неверный email",
			body:           Request{Email: "staff", Password: "secret"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantStatus:     "Error",
			wantError:      "field Email must be a valid email",
		},
		{
			name:           "неверные учётные данные",
			body:           Request{Email: "staff@example.com", Password: "wrong"},
			mockErr:        auth.ErrInvalidCredentials,
			callService:    true,
			wantStatusCode: http.StatusUnauthorized,
			wantStatus:     "Error",
			wantError:      "invalid credentials",
		},
		{
			name:           "внутренняя ошибка",
			body:           Request{Email: "staff@example.com", Password: "secret"},
			mockErr:        errors.New("db down"),
			callService:    true,
			wantStatusCode: http.StatusInternalServerError,
			wantStatus:     "Error",
			wantError:      "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.callService {
				req := tt.body.(Request)
				svc.On("Login", mock.Anything, req.Email, req.Password).Return(tt.mockToken, expires, tt.mockErr).Once()
			}

			var body []byte
			switch v := tt.body.(type) {
			case string:
				body = []byte(v)
			default:
				var err error
				body, err = json.Marshal(v)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			rec := httptest.NewRecorder()

			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantStatus, got["status"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
			} else {
				data := got["data"].(map[string]any)
				assert.Equal(t, tt.mockToken, data["token"])
				assert.Equal(t, "Bearer", data["token_type"])
				assert.Equal(t, "2030-01-01T00:00:00Z", data["expires_at"])
			}
			svc.AssertExpectations(t)
		})
	}
}
