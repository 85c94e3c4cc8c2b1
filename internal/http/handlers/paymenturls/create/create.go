// Package create реализует сохранение ссылки на оплату в кэш с ограниченным сроком жизни.
//
// Клиент передаёт план, ссылку и TTL в секундах. План должен быть виден клиенту:
// его собственный или включённый. Просроченные ссылки удаляет фоновая задача.
package create

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
)

// PlanFinder выборка планов, видимых клиенту.
type PlanFinder interface {
	List(ctx context.Context, clientID int64, filter models.PlanFilter) ([]*models.Plan, error)
}

// Storage сохранение ссылки.
type Storage interface {
	CreatePaymentURL(ctx context.Context, p models.PaymentURL) error
}

// Handler обрабатывает POST /api/v1/payment-urls.
type Handler struct {
	log      *slog.Logger
	plans    PlanFinder
	storage  Storage
	validate *validator.Validate
	now      func() time.Time
}

func New(log *slog.Logger, plans PlanFinder, storage Storage) *Handler {
	return &Handler{
		log:      log,
		plans:    plans,
		storage:  storage,
		validate: validator.New(),
		now:      time.Now,
	}
}

// ServeHTTP godoc
// @Summary Сохранить ссылку на оплату
// @Tags PaymentURLs
// @Accept json
// @Produce json
// @Param X-Client-ID header string true "Идентификатор клиента"
// @Param X-Client-Secret header string true "Секрет клиента"
// @Param request body models.DummyPaymentURL true "Ссылка"
// @Success 201 {object} response.Response{data=models.PaymentURL}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или план не найден"
// @Failure 401 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/payment-urls [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.paymenturls.create"

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

	var req models.DummyPaymentURL
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	plans, err := h.plans.List(r.Context(), client.ID, models.PlanFilter{IDs: []string{req.PlanID}})
	if err != nil {
		log.Error("failed to look up plan", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	if len(plans) == 0 {
		log.Warn("plan not found", slog.String("plan_id", req.PlanID))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("plan not found"))
		return
	}

	now := h.now().UTC()
	p := models.PaymentURL{
		ID:        uuid.NewString(),
		ClientID:  client.ID,
		PlanID:    req.PlanID,
		URL:       req.URL,
		ExpiredAt: now.Add(time.Duration(req.TTLSeconds) * time.Second),
		CreatedAt: now,
	}
	if err := h.storage.CreatePaymentURL(r.Context(), p); err != nil {
		log.Error("failed to save payment url", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to save"))
		return
	}

	log.Info("payment url saved", slog.String("id", p.ID), slog.Time("expired_at", p.ExpiredAt))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(p))
}
