// Package proxy обратный прокси перед API: CORS, статика и медиа с диска,
// пересылка остальных запросов в upstream, редирект на HTTPS.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/payment-service/internal/config"
	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
)

const (
	StaticPrefix = "/static/"
	MediaPrefix  = "/media/"
)

// New собирает обработчик прокси.
func New(log *slog.Logger, cfg config.Proxy, cors config.CORS) (http.Handler, error) {
	const op = "proxy.New"

	upstream, err := Forward(log, cfg.Upstream, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	router := chi.NewRouter()
	router.Use(CORS(cors.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(AccessLog(log))
	router.Use(LimitBody(cfg.MaxBodyBytes))

	router.Handle(StaticPrefix+"*", Files(StaticPrefix, cfg.StaticRoot, nil))
	router.Handle(MediaPrefix+"*", Files(MediaPrefix, cfg.MediaRoot, nil))
	router.Handle("/*", upstream)

	return router, nil
}

// Forward пересылает запросы в upstream с заголовками X-Forwarded-* и X-Real-IP.
// Ошибка upstream превращается в 502 с JSON-телом.
func Forward(log *slog.Logger, upstream string, timeout time.Duration) (*httputil.ReverseProxy, error) {
	const op = "proxy.Forward"

	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%s: upstream must be an absolute URL: %q", op, upstream)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			if prior := pr.In.Header.Values("X-Forwarded-For"); len(prior) > 0 {
				pr.Out.Header["X-Forwarded-For"] = append([]string(nil), prior...)
			}
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
			pr.Out.Header.Set("X-Real-IP", clientIP(pr.In))
		},
		Transport: transport,
		ModifyResponse: func(res *http.Response) error {
			for k := range res.Header {
				if strings.HasPrefix(http.CanonicalHeaderKey(k), "Access-Control-") {
					res.Header.Del(k)
				}
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				render.Status(r, http.StatusRequestEntityTooLarge)
				render.JSON(w, r, response.Error("request body too large"))
				return
			}
			log.Error("upstream request failed",
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			)
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.Error("bad gateway"))
		},
	}, nil
}

// LimitBody ограничивает размер тела запроса. limit <= 0 отключает проверку.
func LimitBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				render.Status(r, http.StatusRequestEntityTooLarge)
				render.JSON(w, r, response.Error("request body too large"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog пишет строку лога на каждый запрос.
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("remote", clientIP(r)),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// RedirectHTTPS отправляет клиента на тот же путь по HTTPS.
func RedirectHTTPS(httpsAddress string) http.Handler {
	_, port, _ := net.SplitHostPort(httpsAddress)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if port != "" && port != "443" {
			host = net.JoinHostPort(host, port)
		}
		target := url.URL{Scheme: "https", Host: host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
		http.Redirect(w, r, target.String(), http.StatusMovedPermanently)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
