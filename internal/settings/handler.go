package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Handler serves the settings document.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the endpoints. edit guards the update route.
func (h *Handler) MountRoutes(r chi.Router, edit func(http.Handler) http.Handler) {
	r.Get("/", h.get)
	r.Group(func(r chi.Router) {
		if edit != nil {
			r.Use(edit)
		}
		r.Put("/", h.update)
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.Error("load settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var doc AppSettings
	if err := httpx.DecodeJSON(r, &doc); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	saved, err := h.service.Update(r.Context(), doc)
	if err != nil {
		h.logger.Warn("update settings", slog.Any("error", err))
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, saved)
}
