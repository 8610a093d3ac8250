package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/platform/httpx"
)

const rateLimit = 30
const rateWindow = time.Minute

// MountRoutes mendaftarkan endpoint audit timeline.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/audit", h.handleTimeline)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		return "user:" + id.UID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
