// Package metrics собирает метрики Prometheus для API, воркера и планировщика.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payment_service"

var (
	// Registry реестр коллекторов сервиса.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	tasksEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "enqueued_total",
			Help:      "Total number of tasks published to the broker.",
		},
		[]string{"task", "origin"},
	)

	tasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "processed_total",
			Help:      "Total number of task executions by final status.",
		},
		[]string{"task", "status"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Duration of task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"task"},
	)

	schedulerDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dispatches_total",
			Help:      "Total number of periodic task dispatches.",
		},
		[]string{"entry", "success"},
	)

	schedulerLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "leader",
			Help:      "1 if this scheduler instance holds the leader lease.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		tasksEnqueued,
		tasksProcessed,
		taskDuration,
		schedulerDispatches,
		schedulerLeader,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler отдаёт метрики реестра.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler middleware, считающее запросы и их длительность.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routePattern(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordEnqueued учитывает публикацию задачи.
func RecordEnqueued(task, origin string) {
	if origin == "" {
		origin = "unknown"
	}
	tasksEnqueued.WithLabelValues(task, origin).Inc()
}

// RecordTaskProcessed учитывает исполнение задачи со статусом SUCCESS, RETRY или FAILURE.
func RecordTaskProcessed(task, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	tasksProcessed.WithLabelValues(task, status).Inc()
	taskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordDispatch учитывает срабатывание периодической записи.
func RecordDispatch(entry string, success bool) {
	schedulerDispatches.WithLabelValues(entry, strconv.FormatBool(success)).Inc()
}

// SetLeader отмечает, является ли экземпляр планировщика лидером.
func SetLeader(leader bool) {
	if leader {
		schedulerLeader.Set(1)
		return
	}
	schedulerLeader.Set(0)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// UnmatchedRoute метка пути для запросов мимо маршрутов.
const UnmatchedRoute = "unmatched"

// routePattern метка пути без идентификаторов, чтобы не раздувать кардинальность.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return UnmatchedRoute
}

// NewServer HTTP-сервер с /metrics для фоновых процессов.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
