package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 50
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	dateLayout        = "2006-01-02"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Authorizer checks permissions for the current user.
type Authorizer interface {
	Authorize(ctx context.Context, userID int64, perms ...string) error
}

// Handler menangani permintaan audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	authz   Authorizer
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService, authz Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		authz:   authz,
		now:     time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context(), shared.PermAuditView); err != nil {
		httpx.RespondError(w, err)
		return
	}

	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = now.Format(dateLayout)
	}
	toTime, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return audit.TimelineFilters{}, shared.FieldError("to", "must be a date (YYYY-MM-DD)")
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format(dateLayout)
	}
	fromTime, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return audit.TimelineFilters{}, shared.FieldError("from", "must be a date (YYYY-MM-DD)")
	}
	if fromTime.After(toTime) {
		return audit.TimelineFilters{}, shared.FieldError("range", "from must not be after to")
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, shared.FieldError("range", "must not exceed 90 days")
	}

	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, shared.FieldError("page", "must be a positive integer")
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, shared.FieldError("page_size", "must be a positive integer")
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}

	return audit.TimelineFilters{
		From:       fromTime,
		To:         toTime,
		Actor:      strings.TrimSpace(q.Get("actor")),
		TargetType: strings.TrimSpace(q.Get("target_type")),
		Action:     strings.ToUpper(strings.TrimSpace(q.Get("action"))),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func (h *Handler) authorize(ctx context.Context, perm string) error {
	id, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if h.authz == nil {
		return shared.ErrForbidden
	}
	userID, ok := id.UserID()
	if !ok {
		return shared.ErrForbidden
	}
	return h.authz.Authorize(ctx, userID, perm)
}
