package segments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Handler exposes segment period endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type draftResponse struct {
	Draft   DraftInput `json:"draft"`
	Preview View       `json:"preview"`
}

// MountRoutes registers the endpoints. edit guards the routes that lead to a save.
func (h *Handler) MountRoutes(r chi.Router, edit func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/preview", h.preview)
	r.Group(func(r chi.Router) {
		if edit != nil {
			r.Use(edit)
		}
		r.Post("/partners", h.editPartner)
		r.Post("/", h.save)
		r.Post("/{id}/revise", h.revise)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters ListFilters
	for key, target := range map[string]*time.Time{"from": &filters.From, "to": &filters.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.RespondError(w, shared.FieldError(key, "must be a date formatted YYYY-MM-DD"))
			return
		}
		*target = parsed
	}
	periods, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list segment periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var in DraftInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	view, err := h.service.Preview(r.Context(), in)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, view)
}

func (h *Handler) editPartner(w http.ResponseWriter, r *http.Request) {
	var edit PartnerEdit
	if err := httpx.DecodeJSON(r, &edit); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	draft, view, err := h.service.EditPartner(r.Context(), edit)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, draftResponse{Draft: draft, Preview: view})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var in DraftInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	view, err := h.service.Save(r.Context(), in)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, view)
}

func (h *Handler) revise(w http.ResponseWriter, r *http.Request) {
	draft, err := h.service.Revise(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	view, err := h.service.Preview(r.Context(), draft)
	if err != nil {
		h.logger.Warn("preview revision", slog.Any("error", err))
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, draftResponse{Draft: draft, Preview: view})
}
