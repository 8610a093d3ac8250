package relations

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers client endpoints. edit guards the mutating routes.
func (h *Handler) MountRoutes(r chi.Router, edit func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	r.Get("/search", h.search)
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		if edit != nil {
			r.Use(edit)
		}
		r.Post("/", h.create)
		r.Post("/batch", h.createMany)
		r.Post("/batch-delete", h.deleteMany)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}
