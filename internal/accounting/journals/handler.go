package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type reverseRequest struct {
	Memo       string `json:"memo" validate:"max=500"`
	Override   bool   `json:"override"`
	TargetDate string `json:"targetDate" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := h.service.List(r.Context(), ListFilters{
		SourceModule: strings.TrimSpace(q.Get("source_module")),
		Status:       JournalStatus(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Limit:        limit,
	})
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapLedgerError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Require(r.Context())
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.Fail(w, err)
		return
	}
	entry, err := h.service.VoidJournal(r.Context(), VoidInput{EntryID: id, ActorID: actor.UID, Reason: req.Reason})
	if err != nil {
		h.logger.Warn("void journal", slog.Int64("id", id), slog.Any("error", err))
		httpx.Fail(w, mapLedgerError(err))
		return
	}
	httpx.OK(w, http.StatusOK, entry)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.Require(r.Context())
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.Fail(w, err)
		return
	}
	input := ReverseInput{EntryID: id, ActorID: actor.UID, Memo: req.Memo, Override: req.Override}
	if req.TargetDate != "" {
		date, _ := time.Parse("2006-01-02", req.TargetDate)
		input.TargetDate = &date
	}
	entry, err := h.service.ReverseJournal(r.Context(), input)
	if err != nil {
		h.logger.Warn("reverse journal", slog.Int64("id", id), slog.Any("error", err))
		httpx.Fail(w, mapLedgerError(err))
		return
	}
	httpx.OK(w, http.StatusCreated, entry)
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, shared.FieldError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
