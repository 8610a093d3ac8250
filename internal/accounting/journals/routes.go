package journals

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers journal endpoints. post guards the mutating routes.
func (h *Handler) MountRoutes(r chi.Router, post func(http.Handler) http.Handler) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Group(func(r chi.Router) {
		if post != nil {
			r.Use(post)
		}
		r.Post("/{id}/void", h.Void)
		r.Post("/{id}/reverse", h.Reverse)
	})
}
