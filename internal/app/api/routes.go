// Package api предоставляет маршруты и сборку HTTP API/админки.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	// Регистрация OpenAPI-описания для httpSwagger.
	_ "github.com/magabrotheeeer/payment-service/internal/docs"
	"github.com/magabrotheeeer/payment-service/internal/http/admin"
	"github.com/magabrotheeeer/payment-service/internal/http/handlers/auth/token"
	"github.com/magabrotheeeer/payment-service/internal/http/handlers/health"
	paymenturlcreate "github.com/magabrotheeeer/payment-service/internal/http/handlers/paymenturls/create"
	paymenturlget "github.com/magabrotheeeer/payment-service/internal/http/handlers/paymenturls/get"
	planslist "github.com/magabrotheeeer/payment-service/internal/http/handlers/plans/list"
	"github.com/magabrotheeeer/payment-service/internal/http/handlers/tasks/enqueue"
	taskstatus "github.com/magabrotheeeer/payment-service/internal/http/handlers/tasks/status"
	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/metrics"
)

// AdminRealm realm basic auth админки.
const AdminRealm = "payment-service admin"

// Auth вход сотрудников, проверка JWT и пароля админки.
type Auth interface {
	token.Service
	middlewarectx.TokenValidator
	middlewarectx.Authenticator
}

// Storage операции хранилища, нужные обработчикам.
type Storage interface {
	middlewarectx.ClientStore
	paymenturlcreate.Storage
	paymenturlget.Storage
}

// Deps зависимости маршрутов.
type Deps struct {
	Auth         Auth
	Storage      Storage
	Plans        planslist.Service
	Enqueuer     enqueue.Enqueuer
	Results      taskstatus.Backend
	Admin        *admin.Handler
	Checks       map[string]health.Pinger
	Queues       []string
	AllowedHosts []string
	Limiter      *middlewarectx.Limiter
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		metrics.InstrumentHandler,
		middlewarectx.AllowedHosts(logger, d.AllowedHosts),
	)

	healthHandler := health.New(logger, d.Checks)
	r.Get("/health", healthHandler.ServeHTTP)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/token", token.New(logger, d.Auth).ServeHTTP)

		// Служебные ручки сотрудников
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Auth, logger))
			r.Post("/tasks", enqueue.New(logger, d.Enqueuer, d.Queues).ServeHTTP)
			r.Get("/tasks/{id}", taskstatus.New(logger, d.Results).ServeHTTP)
		})

		// Клиенты API по X-Client-ID
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, d.Limiter, middlewarectx.KeyByIP))
			r.Use(middlewarectx.ClientAuth(d.Storage, logger, false))
			r.Use(middlewarectx.RateLimitMiddleware(logger, d.Limiter, middlewarectx.KeyByClient))
			r.Get("/plans", planslist.New(logger, d.Plans).ServeHTTP)
		})

		// Клиенты API по X-Client-ID и X-Client-Secret
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, d.Limiter, middlewarectx.KeyByIP))
			r.Use(middlewarectx.ClientAuth(d.Storage, logger, true))
			r.Use(middlewarectx.RateLimitMiddleware(logger, d.Limiter, middlewarectx.KeyByClient))
			r.Post("/payment-urls", paymenturlcreate.New(logger, d.Plans, d.Storage).ServeHTTP)
			r.Get("/payment-urls/{id}", paymenturlget.New(logger, d.Storage).ServeHTTP)
		})
	})

	if d.Admin != nil {
		r.With(middlewarectx.BasicAuth(d.Auth, logger, AdminRealm)).Mount("/admin", d.Admin.Routes())
	}

	r.Handle("/metrics", metrics.Handler())
	// Swagger docs endpoint
	r.Get("/api/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/api/docs/*", httpSwagger.Handler(httpSwagger.URL("/api/docs/doc.json")))
}
