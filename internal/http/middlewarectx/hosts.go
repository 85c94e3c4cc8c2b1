package middlewarectx

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/payment-service/internal/http/response"
)

// AllowedHosts пропускает только запросы с разрешённым Host.
// "*" разрешает любой хост, ".example.com" разрешает домен и его поддомены.
// Пустой список ничего не ограничивает.
func AllowedHosts(log *slog.Logger, hosts []string) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			patterns = append(patterns, h)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(patterns) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := requestHost(r)
			if !HostAllowed(host, patterns) {
				log.Warn("disallowed host", slog.String("host", host))
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("invalid host header"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HostAllowed проверяет host по списку шаблонов в нижнем регистре.
func HostAllowed(host string, patterns []string) bool {
	host = strings.ToLower(host)
	for _, p := range patterns {
		switch {
		case p == "*":
			return true
		case strings.HasPrefix(p, "."):
			if host == p[1:] || strings.HasSuffix(host, p) {
				return true
			}
		case host == p:
			return true
		}
	}
	return false
}

func requestHost(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
