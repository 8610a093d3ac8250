package lookup

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/platform/httpx"
)

// Handler serves the lookup snapshot.
type Handler struct {
	cache  *Cache
	logger *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, cache *Cache) *Handler {
	return &Handler{cache: cache, logger: logger}
}

// MountRoutes registers GET / and POST /refresh.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.get)
	r.Post("/refresh", h.refresh)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Get(r.Context())
	if err != nil {
		h.logger.Error("load lookup snapshot", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Refresh(r.Context())
	if err != nil {
		h.logger.Error("refresh lookup snapshot", slog.Any("error", err))
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, snap)
}
