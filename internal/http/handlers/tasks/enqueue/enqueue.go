// Package enqueue реализует постановку фоновой задачи в брокер через API.
package enqueue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// Request: задача для публикации.
type Request struct {
	Name  string          `json:"name" validate:"required,max=200"`
	Args  json.RawMessage `json:"args,omitempty" swaggertype:"object"`
	Queue string          `json:"queue,omitempty" validate:"omitempty,max=100"`
}

// Response: идентификатор поставленной задачи.
type Response struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

// Enqueuer публикует задачи.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any, opts tasks.EnqueueOptions) (*models.Task, error)
}

// Handler обрабатывает POST /api/v1/tasks.
type Handler struct {
	log      *slog.Logger
	enqueuer Enqueuer
	queues   []string
	validate *validator.Validate
}

// New создаёт обработчик. queues: очереди, объявленные в брокере;
// пустой список не ограничивает выбор очереди.
func New(log *slog.Logger, enqueuer Enqueuer, queues []string) *Handler {
	return &Handler{
		log:      log,
		enqueuer: enqueuer,
		queues:   queues,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Поставить задачу
// @Description Публикует зарегистрированную задачу в брокер. Статус доступен по task_id.
// @Tags Tasks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Задача"
// @Success 202 {object} response.Response{data=Response}
// @Failure 400 {object} response.ErrorResponse "Неизвестная задача или очередь"
// @Failure 401 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Брокер недоступен"
// @Router /api/v1/tasks [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tasks.enqueue"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	if claims, ok := middlewarectx.ClaimsFrom(r.Context()); ok {
		log = log.With(slog.String("user", claims.Email))
	}

	var req Request
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

	if req.Queue != "" && len(h.queues) > 0 && !slices.Contains(h.queues, req.Queue) {
		log.Warn("unknown queue", slog.String("queue", req.Queue))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown queue: "+req.Queue))
		return
	}

	task, err := h.enqueuer.Enqueue(r.Context(), req.Name, req.Args, tasks.EnqueueOptions{
		Queue:  req.Queue,
		Origin: tasks.OriginAPI,
	})
	if err != nil {
		if errors.Is(err, tasks.ErrUnknownTask) {
			log.Warn("unknown task", slog.String("task", req.Name))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown task: "+req.Name))
			return
		}
		if errors.Is(err, tasks.ErrUnknownQueue) {
			log.Warn("unknown queue", slog.String("queue", req.Queue))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown queue: "+req.Queue))
			return
		}
		log.Error("failed to enqueue task", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("failed to enqueue task"))
		return
	}

	log.Info("task accepted", slog.String("task_id", task.ID), slog.String("task", task.Name))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response.OKWithData(Response{
		TaskID: task.ID,
		Queue:  task.Queue,
	}))
}
