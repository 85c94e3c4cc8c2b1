package list

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) List(ctx context.Context, clientID int64, filter models.PlanFilter) ([]*models.Plan, error) {
	args := m.Called(ctx, clientID, filter)
	plans, _ := args.Get(0).([]*models.Plan)
	return plans, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

const (
	planA = "7e4c3f2a-1b2c-4d5e-8f90-a1b2c3d4e5f6"
	planB = "8e4c3f2a-1b2c-4d5e-8f90-a1b2c3d4e5f6"
)

func TestHandler_ServeHTTP(t *testing.T) {
	yes := true
	client := &models.Client{ID: 5, ClientID: "cid", IsEnabled: true}
	monthly := &models.Plan{ID: planA, Name: "Monthly", Period: models.PeriodMonth, Term: 1, Price: "9.99", IsRecurring: true}

	tests := []struct {
		name       string
		query      string
		noClient   bool
		setup      func(m *ServiceMock)
		wantCode   int
		wantError  string
		wantLength int
	}{
		{
			name:  "все планы",
			query: "",
			setup: func(m *ServiceMock) {
				m.On("List", mock.Anything, int64(5), models.PlanFilter{}).Return([]*models.Plan{monthly}, nil).Once()
			},
			wantCode:   http.StatusOK,
			wantLength: 1,
		},
		{
			name:  "фильтр по ids и is_recurring",
			query: "?ids=" + planA + "," + planB + "&is_recurring=true",
			setup: func(m *ServiceMock) {
				m.On("List", mock.Anything, int64(5), models.PlanFilter{IDs: []string{planA, planB}, IsRecurring: &yes}).
					Return([]*models.Plan{monthly}, nil).Once()
			},
			wantCode:   http.StatusOK,
			wantLength: 1,
		},
		{name: "ids не uuid", query: "?ids=1,2", wantCode: http.StatusBadRequest, wantError: "ids must contain only uuid"},
		{name: "is_recurring не bool", query: "?is_recurring=maybe", wantCode: http.StatusBadRequest, wantError: "is_recurring must be a boolean"},
		{name: "limit не число", query: "?limit=ten", wantCode: http.StatusBadRequest, wantError: "limit must be a positive integer"},
		{name: "limit ноль", query: "?limit=0", wantCode: http.StatusBadRequest, wantError: "limit must be a positive integer"},
		{name: "offset отрицательный", query: "?offset=-1", wantCode: http.StatusBadRequest, wantError: "offset must be a non-negative integer"},
		{name: "нет клиента", noClient: true, wantCode: http.StatusUnauthorized, wantError: "client identification missing"},
		{
			name: "ошибка сервиса",
			setup: func(m *ServiceMock) {
				m.On("List", mock.Anything, int64(5), models.PlanFilter{}).Return(nil, errors.New("db down")).Once()
			},
			wantCode:  http.StatusInternalServerError,
			wantError: "could not list plans",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setup != nil {
				tt.setup(svc)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/v1/plans"+tt.query, nil)
			if !tt.noClient {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.ClientKey, client))
			}
			rec := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			var got map[string]any
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
			} else {
				data := got["data"].(map[string]any)
				items := data["items"].([]any)
				require.Len(t, items, tt.wantLength)
				assert.EqualValues(t, tt.wantLength, data["count"])
				first := items[0].(map[string]any)
				assert.Equal(t, planA, first["id"])
				assert.Equal(t, "Billed every month", first["billing_description"])
				assert.NotContains(t, first, "is_enabled")
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Pagination(t *testing.T) {
	client := &models.Client{ID: 5, ClientID: "cid", IsEnabled: true}
	plans := make([]*models.Plan, 0, 5)
	for i := 0; i < 5; i++ {
		plans = append(plans, &models.Plan{
			ID:     fmt.Sprintf("00000000-0000-4000-8000-00000000000%d", i),
			Period: models.PeriodMonth,
			Term:   1,
			Price:  "1.00",
		})
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []int
	}{
		{name: "без параметров", query: "", wantIDs: []int{0, 1, 2, 3, 4}},
		{name: "первая страница", query: "?limit=2", wantIDs: []int{0, 1}},
		{name: "вторая страница", query: "?limit=2&offset=2", wantIDs: []int{2, 3}},
		{name: "хвост", query: "?limit=2&offset=4", wantIDs: []int{4}},
		{name: "за пределами", query: "?offset=10", wantIDs: []int{}},
		{name: "limit больше предела", query: "?limit=100000", wantIDs: []int{0, 1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			svc.On("List", mock.Anything, int64(5), models.PlanFilter{}).Return(plans, nil).Once()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/plans"+tt.query, nil)
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.ClientKey, client))
			rec := httptest.NewRecorder()
			New(newNoopLogger(), svc).ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)

			var got struct {
				Data Page `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, len(plans), got.Data.Count)
			ids := make([]string, 0, len(got.Data.Items))
			for _, p := range got.Data.Items {
				ids = append(ids, p.ID)
			}
			want := make([]string, 0, len(tt.wantIDs))
			for _, i := range tt.wantIDs {
				want = append(want, plans[i].ID)
			}
			assert.Equal(t, want, ids)
		})
	}
}
