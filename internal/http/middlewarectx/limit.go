package middlewarectx

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/payment-service/internal/http/response"
)

// DefaultLimiterIdleTTL через сколько простоя ключ забывается.
const DefaultLimiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter набор ограничителей по ключу запроса. Ключи без запросов
// дольше idleTTL удаляются при очередном обращении.
type Limiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	limiters  map[string]*limiterEntry
	now       func() time.Time
}

// NewLimiter создаёт ограничитель rps запросов в секунду с запасом burst на ключ.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  DefaultLimiterIdleTTL,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow расходует токен ключа key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// Len число отслеживаемых ключей.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) sweep(now time.Time) {
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// KeyFunc ключ ограничения для запроса.
type KeyFunc func(r *http.Request) string

// KeyByIP ключ по адресу клиента. Заголовки запроса не учитываются,
// поэтому подходит для ручек до аутентификации.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// KeyByClient ключ по клиенту, положенному ClientAuth, иначе по адресу.
func KeyByClient(r *http.Request) string {
	if client, ok := ClientFrom(r.Context()); ok {
		return "client:" + client.ClientID
	}
	return KeyByIP(r)
}

// RateLimitMiddleware ограничивает частоту запросов по ключу key.
func RateLimitMiddleware(log *slog.Logger, limiter *Limiter, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = KeyByIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !limiter.Allow(k) {
				log.Warn("too many requests", slog.String("key", k))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
