package middlewarectx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/payment-service/internal/lib/sl"
	"github.com/magabrotheeeer/payment-service/internal/models"
	"github.com/magabrotheeeer/payment-service/internal/services/auth"
)

// Authenticator проверка email и пароля сотрудника.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// BasicAuth пускает в админку только суперпользователей.
func BasicAuth(authenticator Authenticator, log *slog.Logger, realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w, realm)
				return
			}

			user, err := authenticator.Authenticate(r.Context(), email, password)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidCredentials) {
					log.Error("admin authentication failed", sl.Err(err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				log.Warn("invalid admin credentials", slog.String("email", email))
				unauthorized(w, realm)
				return
			}
			if !user.IsSuperuser {
				log.Warn("admin access denied", slog.String("email", user.Email))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom достаёт пользователя админки.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok && user != nil
}

func unauthorized(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", realm))
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
