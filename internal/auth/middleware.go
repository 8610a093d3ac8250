package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rawdatain/backoffice/internal/shared"
)

// Middleware resolves the caller identity from a bearer token or the session cookie. It never
// rejects a request; operations call Require when they need an identity.
func Middleware(service *Service, tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if raw, ok := bearerToken(r); ok {
				if tokens == nil {
					next.ServeHTTP(w, r)
					return
				}
				id, err := tokens.Verify(raw)
				if err != nil {
					logger.Debug("bearer token rejected", slog.Any("error", err))
					next.ServeHTTP(w, r)
					return
				}
				ctx = withBearer(WithIdentity(ctx, id))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			sess := shared.SessionFromContext(ctx)
			if sess == nil || sess.User() == "" || service == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := service.IdentityFor(ctx, sess.User())
			if err != nil {
				if !errors.Is(err, shared.ErrUnauthorized) {
					logger.Warn("resolve session identity", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
