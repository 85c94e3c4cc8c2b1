// Package list реализует выдачу тарифных планов клиенту API.
//
// Клиент определяется по X-Client-ID. Видны собственные планы клиента
// и все включённые планы; query-параметры ids и is_recurring сужают выборку,
// limit и offset листают её.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
)

// maxIDs ограничение на число ids в одном запросе.
const maxIDs = 100

// Размер страницы по умолчанию и предельный.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Plan: план в ответе API.
type Plan struct {
	*models.Plan
	BillingDescription string `json:"billing_description"`
}

// Page страница планов; Count: число планов без учёта limit и offset.
type Page struct {
	Items []Plan `json:"items"`
	Count int    `json:"count"`
}

type pagination struct {
	limit  int
	offset int
}

// Service описывает выборку планов.
type Service interface {
	List(ctx context.Context, clientID int64, filter models.PlanFilter) ([]*models.Plan, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список тарифных планов
// @Description Собственные планы клиента и все включённые планы.
// @Tags Plans
// @Produce json
// @Param X-Client-ID header string true "Идентификатор клиента"
// @Param ids query string false "ID планов через запятую"
// @Param is_recurring query bool false "Только рекуррентные или только разовые"
// @Param limit query int false "Размер страницы, по умолчанию 100"
// @Param offset query int false "Сдвиг от начала выборки"
// @Success 200 {object} response.Response{data=Page}
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 429 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plans.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	client, ok := middlewarectx.ClientFrom(r.Context())
	if !ok {
		log.Error("client missing in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("client identification missing"))
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		log.Warn("invalid query", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}
	pg, err := parsePagination(r)
	if err != nil {
		log.Warn("invalid pagination", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}

	plans, err := h.service.List(r.Context(), client.ID, filter)
	if err != nil {
		log.Error("failed to list plans", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list plans"))
		return
	}

	page := paginate(plans, pg)
	out := Page{Items: make([]Plan, 0, len(page)), Count: len(plans)}
	for _, p := range page {
		out.Items = append(out.Items, Plan{Plan: p, BillingDescription: p.BillingDescription()})
	}
	render.JSON(w, r, response.OKWithData(out))
}

type queryError string

func (e queryError) Error() string { return string(e) }

func parsePagination(r *http.Request) (pagination, error) {
	pg := pagination{limit: DefaultLimit}
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return pg, queryError("limit must be a positive integer")
		}
		pg.limit = min(n, MaxLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return pg, queryError("offset must be a non-negative integer")
		}
		pg.offset = n
	}
	return pg, nil
}

func paginate(plans []*models.Plan, pg pagination) []*models.Plan {
	if pg.offset >= len(plans) {
		return nil
	}
	end := min(pg.offset+pg.limit, len(plans))
	return plans[pg.offset:end]
}

func parseFilter(r *http.Request) (models.PlanFilter, error) {
	var filter models.PlanFilter
	q := r.URL.Query()

	for _, raw := range q["ids"] {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, err := uuid.Parse(id); err != nil {
				return filter, queryError("ids must contain only uuid")
			}
			filter.IDs = append(filter.IDs, id)
		}
	}
	if len(filter.IDs) > maxIDs {
		return filter, queryError("too many ids")
	}

	if v := q.Get("is_recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, queryError("is_recurring must be a boolean")
		}
		filter.IsRecurring = &b
	}
	return filter, nil
}
