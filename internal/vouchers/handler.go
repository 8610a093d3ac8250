package vouchers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/integration"
	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Handler exposes voucher endpoints.
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

type voucherResponse struct {
	Success   bool                  `json:"success"`
	VoucherID integration.VoucherID `json:"voucherId"`
	Replayed  bool                  `json:"replayed,omitempty"`
}

// MountRoutes registers the endpoints. create guards voucher creation.
func (h *Handler) MountRoutes(r chi.Router, create func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if create != nil {
			r.Use(create)
		}
		r.Post("/expense", h.createExpense)
	})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var in ExpenseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	v, err := h.service.CreateExpenseVoucher(r.Context(), in, r.Header.Get("Idempotency-Key"))
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("create expense voucher", slog.Any("error", err))
		}
		httpx.Fail(w, err)
		return
	}
	status := http.StatusCreated
	if v.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, voucherResponse{Success: true, VoucherID: v.ID, Replayed: v.Replayed})
}
