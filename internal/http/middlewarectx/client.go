package middlewarectx

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/payment-service/internal/http/response"
	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/storage/repository"
)

// Заголовки аутентификации клиента API.
const (
	HeaderClientID     = "X-Client-ID"
	HeaderClientSecret = "X-Client-Secret"
)

// ClientStore поиск клиента по публичному идентификатору.
type ClientStore interface {
	GetClientByClientID(ctx context.Context, clientID string) (*models.Client, error)
}

// ClientAuth находит клиента по X-Client-ID и кладёт его в контекст.
// При requireSecret дополнительно сверяет X-Client-Secret.
// Отключённые клиенты получают 403.
func ClientAuth(store ClientStore, log *slog.Logger, requireSecret bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.ClientAuth"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			clientID := r.Header.Get(HeaderClientID)
			if clientID == "" {
				log.Warn("missing client id")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing X-Client-ID header"))
				return
			}

			client, err := store.GetClientByClientID(r.Context(), clientID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					log.Warn("unknown client", slog.String("client_id", clientID))
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, response.Error("invalid client credentials"))
					return
				}
				log.Error("failed to load client", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal error"))
				return
			}

			if requireSecret {
				secret := r.Header.Get(HeaderClientSecret)
				if subtle.ConstantTimeCompare([]byte(secret), []byte(client.ClientSecret)) != 1 {
					log.Warn("client secret mismatch", slog.String("client_id", clientID))
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, response.Error("invalid client credentials"))
					return
				}
			}

			if !client.IsEnabled {
				log.Warn("client disabled", slog.String("client_id", clientID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("client is disabled"))
				return
			}

			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientFrom достаёт клиента, положенного ClientAuth.
func ClientFrom(ctx context.Context) (*models.Client, bool) {
	client, ok := ctx.Value(ClientKey).(*models.Client)
	return client, ok && client != nil
}
