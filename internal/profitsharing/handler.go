package profitsharing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Handler exposes profit sharing endpoints.
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

// MountRoutes registers the endpoints. edit guards the mutating routes.
func (h *Handler) MountRoutes(r chi.Router, edit func(http.Handler) http.Handler) {
	r.Get("/months", h.listMonths)
	r.Get("/months/{id}/shares", h.shares)
	r.Group(func(r chi.Router) {
		if edit != nil {
			r.Use(edit)
		}
		r.Post("/shares", h.saveShare)
		r.Put("/shares/{id}", h.updateShare)
		r.Delete("/shares/{id}", h.deleteShare)
		r.Post("/manual", h.saveManual)
		r.Put("/manual/{id}", h.updateManual)
		r.Delete("/manual/{id}", h.deleteManual)
	})
}

func (h *Handler) listMonths(w http.ResponseWriter, r *http.Request) {
	months, err := h.service.ListMonthlyProfits(r.Context())
	if err != nil {
		h.logger.Error("list monthly profits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, months)
}

func (h *Handler) shares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.service.SharesForMonth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shares)
}

func (h *Handler) saveShare(w http.ResponseWriter, r *http.Request) {
	var in ShareInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	share, err := h.service.SaveProfitShare(r.Context(), in)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, share)
}

func (h *Handler) updateShare(w http.ResponseWriter, r *http.Request) {
	var in ShareInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	share, err := h.service.UpdateProfitShare(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, share)
}

func (h *Handler) deleteShare(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProfitShare(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil)
}

func (h *Handler) saveManual(w http.ResponseWriter, r *http.Request) {
	var in ManualInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	record, err := h.service.SaveManualDistribution(r.Context(), in)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, record)
}

func (h *Handler) updateManual(w http.ResponseWriter, r *http.Request) {
	var in ManualInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	record, err := h.service.UpdateManualDistribution(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, record)
}

func (h *Handler) deleteManual(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteManualDistribution(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil)
}
