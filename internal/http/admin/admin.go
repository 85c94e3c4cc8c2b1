// Package admin реализует HTML-админку: журнал задач, клиентов, планы
// и постановку задач вручную. Доступ ограничивается basic auth снаружи пакета.
package admin

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/payment-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// RecentRunsLimit сколько записей журнала показывать.
const RecentRunsLimit = 50

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Assets статические файлы админки; корень содержит каталог admin/.
func Assets() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Storage чтение данных для страниц.
type Storage interface {
	ListRecentTaskRuns(ctx context.Context, limit int) ([]*models.TaskRun, error)
	ListClients(ctx context.Context) ([]*models.Client, error)
}

// Plans включённые планы.
type Plans interface {
	Enabled(ctx context.Context) ([]*models.Plan, error)
}

// Enqueuer публикация задач.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any, opts tasks.EnqueueOptions) (*models.Task, error)
}

// Handler страницы админки.
type Handler struct {
	log       *slog.Logger
	storage   Storage
	plans     Plans
	enqueuer  Enqueuer
	queues    []string
	staticURL string
	pages     map[string]*template.Template
}

type page struct {
	Title     string
	StaticURL string
	User      string
	Flash     string
	Error     string

	Tasks   []string
	Queues  []string
	Runs    []*models.TaskRun
	Clients []*models.Client
	Plans   []*models.Plan
}

var funcs = template.FuncMap{
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04:05")
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

// New разбирает шаблоны. staticURL: префикс статики, по умолчанию /static/.
func New(log *slog.Logger, storage Storage, plans Plans, enqueuer Enqueuer, queues []string, staticURL string) (*Handler, error) {
	const op = "admin.New"
	if staticURL == "" {
		staticURL = "/static/"
	}
	if !strings.HasSuffix(staticURL, "/") {
		staticURL += "/"
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{"tasks", "clients", "plans"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		pages[name] = t
	}

	return &Handler{
		log:       log,
		storage:   storage,
		plans:     plans,
		enqueuer:  enqueuer,
		queues:    queues,
		staticURL: staticURL,
		pages:     pages,
	}, nil
}

// Routes маршруты админки относительно /admin.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middlewarectx.SameOrigin(h.log))
	r.Get("/", h.Tasks)
	r.Get("/clients", h.Clients)
	r.Get("/plans", h.Plans)
	r.Post("/tasks", h.Enqueue)
	return r
}

func (h *Handler) newPage(r *http.Request, title string) page {
	p := page{
		Title:     title,
		StaticURL: h.staticURL,
		Flash:     r.URL.Query().Get("flash"),
		Error:     r.URL.Query().Get("error"),
	}
	if u, ok := middlewarectx.UserFrom(r.Context()); ok {
		p.User = u.Email
	}
	return p
}

// Tasks журнал последних запусков и форма постановки задачи.
func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	const op = "admin.Tasks"
	log := h.log.With(slog.String("op", op), slog.String("request_id", middleware.GetReqID(r.Context())))

	runs, err := h.storage.ListRecentTaskRuns(r.Context(), RecentRunsLimit)
	if err != nil {
		log.Error("failed to list task runs", sl.Err(err))
		http.Error(w, "failed to load task runs", http.StatusInternalServerError)
		return
	}

	p := h.newPage(r, "Tasks")
	p.Tasks = tasks.Catalog()
	p.Queues = h.queues
	p.Runs = runs
	h.render(w, log, "tasks", p)
}

// Clients список клиентов API.
func (h *Handler) Clients(w http.ResponseWriter, r *http.Request) {
	const op = "admin.Clients"
	log := h.log.With(slog.String("op", op), slog.String("request_id", middleware.GetReqID(r.Context())))

	clients, err := h.storage.ListClients(r.Context())
	if err != nil {
		log.Error("failed to list clients", sl.Err(err))
		http.Error(w, "failed to load clients", http.StatusInternalServerError)
		return
	}

	p := h.newPage(r, "Clients")
	p.Clients = clients
	h.render(w, log, "clients", p)
}

// Plans включённые тарифные планы.
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	const op = "admin.Plans"
	log := h.log.With(slog.String("op", op), slog.String("request_id", middleware.GetReqID(r.Context())))

	plans, err := h.plans.Enabled(r.Context())
	if err != nil {
		log.Error("failed to list plans", sl.Err(err))
		http.Error(w, "failed to load plans", http.StatusInternalServerError)
		return
	}

	p := h.newPage(r, "Plans")
	p.Plans = plans
	h.render(w, log, "plans", p)
}

// Enqueue ставит задачу из формы и возвращает на страницу задач.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	const op = "admin.Enqueue"
	log := h.log.With(slog.String("op", op), slog.String("request_id", middleware.GetReqID(r.Context())))

	if err := r.ParseForm(); err != nil {
		redirect(w, r, "error", "invalid form")
		return
	}
	name := strings.TrimSpace(r.PostForm.Get("name"))
	queue := strings.TrimSpace(r.PostForm.Get("queue"))
	rawArgs := strings.TrimSpace(r.PostForm.Get("args"))

	var args json.RawMessage
	if rawArgs != "" {
		if !json.Valid([]byte(rawArgs)) {
			redirect(w, r, "error", "args must be valid JSON")
			return
		}
		args = json.RawMessage(rawArgs)
	}

	task, err := h.enqueuer.Enqueue(r.Context(), name, args, tasks.EnqueueOptions{
		Queue:  queue,
		Origin: tasks.OriginAdmin,
	})
	if err != nil {
		if errors.Is(err, tasks.ErrUnknownTask) {
			redirect(w, r, "error", "unknown task "+name)
			return
		}
		if errors.Is(err, tasks.ErrUnknownQueue) {
			redirect(w, r, "error", "unknown queue "+queue)
			return
		}
		log.Error("failed to enqueue task", sl.Err(err))
		redirect(w, r, "error", "failed to enqueue task")
		return
	}

	user := ""
	if u, ok := middlewarectx.UserFrom(r.Context()); ok {
		user = u.Email
	}
	log.Info("task enqueued from admin", slog.String("task_id", task.ID), slog.String("user", user))
	redirect(w, r, "flash", fmt.Sprintf("Task %s enqueued with id %s", task.Name, task.ID))
}

func (h *Handler) render(w http.ResponseWriter, log *slog.Logger, name string, p page) {
	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "layout", p); err != nil {
		log.Error("failed to render template", slog.String("template", name), sl.Err(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func redirect(w http.ResponseWriter, r *http.Request, key, msg string) {
	http.Redirect(w, r, "/admin/?"+key+"="+url.QueryEscape(msg), http.StatusSeeOther)
}
