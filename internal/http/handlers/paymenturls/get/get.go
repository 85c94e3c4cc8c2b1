// Package get отдаёт сохранённую ссылку на оплату, пока она не истекла.
package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/storage/repository"
)

// Storage чтение ссылки клиента.
type Storage interface {
	GetPaymentURL(ctx context.Context, clientID int64, id string) (*models.PaymentURL, error)
}

type Handler struct {
	log     *slog.Logger
	storage Storage
}

func New(log *slog.Logger, storage Storage) *Handler {
	return &Handler{
		log:     log,
		storage: storage,
	}
}

// ServeHTTP godoc
// @Summary Получить ссылку на оплату
// @Tags PaymentURLs
// @Produce json
// @Param X-Client-ID header string true "Идентификатор клиента"
// @Param X-Client-Secret header string true "Секрет клиента"
// @Param id path string true "ID ссылки"
// @Success 200 {object} response.Response{data=models.PaymentURL}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse "Ссылки нет или она истекла"
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/payment-urls/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.paymenturls.get"

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

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid id"))
		return
	}

	p, err := h.storage.GetPaymentURL(r.Context(), client.ID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("payment url not found"))
			return
		}
		log.Error("failed to read payment url", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(p))
}
