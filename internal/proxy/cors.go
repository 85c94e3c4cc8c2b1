package proxy

import (
	"net/http"
	"strconv"
	"strings"
)

// PreflightMaxAge срок кэширования preflight-ответа браузером, секунды.
const PreflightMaxAge = 1728000

var (
	corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"DNT", "User-Agent", "X-Requested-With", "If-Modified-Since", "Cache-Control",
		"Content-Type", "Range", "Authorization", "X-Client-ID", "X-Client-Secret",
	}
	corsExpose = []string{"Content-Length", "Content-Range"}
)

// CORS добавляет заголовки CORS ко всем ответам. OPTIONS обрабатывается
// здесь же и дальше не передаётся.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	methods := strings.Join(corsMethods, ", ")
	headers := strings.Join(corsHeaders, ", ")
	expose := strings.Join(corsExpose, ", ")
	maxAge := strconv.Itoa(PreflightMaxAge)

	wildcard := len(allowedOrigins) == 0
	origins := make(map[string]string, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		if o != "" {
			origins[strings.ToLower(o)] = o
		}
	}
	fallback := "*"
	if !wildcard && len(allowedOrigins) > 0 {
		fallback = strings.TrimSpace(allowedOrigins[0])
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowOrigin(r.Header.Get("Origin"), wildcard, origins, fallback))
			if !wildcard {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Max-Age", maxAge)
				h.Set("Content-Type", "text/plain; charset=utf-8")
				h.Set("Content-Length", "0")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			h.Set("Access-Control-Expose-Headers", expose)
			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin значение Access-Control-Allow-Origin для запроса. Заголовок
// ставится всегда, неразрешённый origin получает первый из настроенных.
func allowOrigin(origin string, wildcard bool, origins map[string]string, fallback string) string {
	if wildcard {
		return "*"
	}
	if o, ok := origins[strings.ToLower(origin)]; ok && origin != "" {
		return o
	}
	return fallback
}
