package relations

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Handler exposes client endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type batchCreateRequest struct {
	Clients []ClientInput `json:"clients" validate:"required,min=1,max=500"`
}

type batchDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	result, err := h.service.List(r.Context(), ListFilters{
		RelationType:    RelationType(strings.ToLower(q.Get("relationType"))),
		PaymentType:     PaymentType(strings.ToLower(q.Get("paymentType"))),
		Status:          Status(strings.ToLower(q.Get("status"))),
		IncludeInactive: q.Get("includeInactive") == "true",
		Country:         q.Get("country"),
		Province:        q.Get("province"),
		Search:          q.Get("search"),
		Sort:            q.Get("sort"),
		Page:            page,
		PerPage:         perPage,
		All:             q.Get("all") == "true",
	})
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	options, err := h.service.Search(r.Context(), q.Get("q"), RelationType(strings.ToLower(q.Get("relationType"))))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, options)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input ClientInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	client, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Warn("create client", slog.Any("error", err))
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, client)
}

func (h *Handler) createMany(w http.ResponseWriter, r *http.Request) {
	var req batchCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.Fail(w, err)
		return
	}
	clients, err := h.service.CreateMany(r.Context(), req.Clients)
	if err != nil {
		h.logger.Warn("create clients", slog.Int("count", len(req.Clients)), slog.Any("error", err))
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, clients)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input ClientInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	client, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.logger.Warn("update client", slog.Any("error", err))
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, client)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, nil)
}

func (h *Handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.Fail(w, err)
		return
	}
	deleted, err := h.service.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
