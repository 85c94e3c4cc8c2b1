// Package status отдаёт последнее состояние задачи из хранилища результатов.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// Backend чтение результата задачи.
type Backend interface {
	Get(ctx context.Context, id string) (*models.TaskResult, error)
}

type Handler struct {
	log     *slog.Logger
	backend Backend
}

func New(log *slog.Logger, backend Backend) *Handler {
	return &Handler{
		log:     log,
		backend: backend,
	}
}

// ServeHTTP godoc
// @Summary Статус задачи
// @Tags Tasks
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID задачи"
// @Success 200 {object} response.Response{data=models.TaskResult}
// @Failure 400 {object} response.ErrorResponse "Неверный ID"
// @Failure 404 {object} response.ErrorResponse "Задача не найдена или результат истёк"
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/tasks/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tasks.status"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		log.Warn("invalid task id", slog.String("id", id))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid task id"))
		return
	}

	res, err := h.backend.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, tasks.ErrResultNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("task not found"))
			return
		}
		log.Error("failed to read task result", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(res))
}
