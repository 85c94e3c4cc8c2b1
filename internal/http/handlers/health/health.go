// Package health реализует проверки живости и готовности API-сервера.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
)

const pingTimeout = 2 * time.Second

// Pinger зависимость, доступность которой проверяет /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log    *slog.Logger
	checks map[string]Pinger
}

// New создаёт обработчик. checks: именованные зависимости для /ready.
func New(log *slog.Logger, checks map[string]Pinger) *Handler {
	return &Handler{
		log:    log,
		checks: checks,
	}
}

// ServeHTTP godoc
// @Summary Проверка живости
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status": "ok",
	}))
}

// Ready godoc
// @Summary Проверка готовности
// @Description Пингует базу данных и Redis.
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /ready [get]
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health.Ready"
	log := h.log.With(slog.String("op", op))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := h.checks[name].Ping(ctx)
		cancel()
		if err != nil {
			log.Error("dependency is not ready", slog.String("dependency", name), sl.Err(err))
			statuses[name] = "unavailable"
			ready = false
			continue
		}
		statuses[name] = "ok"
	}

	if !ready {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{
			Status: response.StatusError,
			Error:  "not ready",
			Data:   statuses,
		})
		return
	}
	render.JSON(w, r, response.OKWithData(statuses))
}
