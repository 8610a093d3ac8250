package vouchers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rawdatain/backoffice/internal/accounting/accounts"
	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/integration"
	"github.com/rawdatain/backoffice/internal/settings"
	"github.com/rawdatain/backoffice/internal/shared"
)

const idempotencyModule = "vouchers.expense"

// Lookup resolves cash boxes and settings.
type Lookup interface {
	Box(ctx context.Context, code string) (accounts.Account, error)
	Settings(ctx context.Context) (settings.AppSettings, error)
}

// Poster posts ledger vouchers.
type Poster interface {
	Post(ctx context.Context, req integration.PostingRequest) (integration.VoucherID, error)
}

// Idempotency claims client supplied request keys.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module, fingerprint string) error
	Release(ctx context.Context, key, module string) error
}

// Service creates expense vouchers.
type Service struct {
	lookup      Lookup
	poster      Poster
	idempotency Idempotency
	emitter     audit.Emitter
	logger      *slog.Logger
	newID       func() string
}

// NewService constructs the service. idempotency, emitter and logger may be nil.
func NewService(lookup Lookup, poster Poster, idempotency Idempotency, emitter audit.Emitter, logger *slog.Logger) *Service {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		lookup:      lookup,
		poster:      poster,
		idempotency: idempotency,
		emitter:     emitter,
		logger:      logger,
		newID:       func() string { return uuid.NewString() },
	}
}

// CreateExpenseVoucher posts an expense debiting the expense type account and crediting the box.
// A request repeated with the same idempotency key and payload returns the original voucher without
// posting or auditing again. Reusing a key for a different payload fails with shared.ErrDuplicate.
func (s *Service) CreateExpenseVoucher(ctx context.Context, in ExpenseInput, idempotencyKey string) (Voucher, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return Voucher{}, err
	}
	v, err := s.build(ctx, in)
	if err != nil {
		return Voucher{}, err
	}

	sourceID := s.newID()
	var claimed string
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		claimed = actor.UID + ":" + key
		sourceID = "key:" + claimed
		if s.idempotency != nil {
			err := s.idempotency.CheckAndInsert(ctx, claimed, idempotencyModule, fingerprint(v, in.Notes))
			switch {
			case errors.Is(err, shared.ErrIdempotencyConflict):
				v.Replayed = true
			case errors.Is(err, shared.ErrIdempotencyMismatch):
				return Voucher{}, fmt.Errorf("vouchers: key %q: %w", key, err)
			case err != nil:
				return Voucher{}, fmt.Errorf("vouchers: claim idempotency key: %w", err)
			}
		}
	}

	description := strings.TrimSpace(fmt.Sprintf("Expense %s: %s", v.ExpenseType, in.Notes))
	voucher, err := s.poster.Post(ctx, integration.PostingRequest{
		SourceType:    integration.SourceManualExpense,
		SourceID:      sourceID,
		Description:   strings.TrimSuffix(description, ":"),
		Amount:        v.Amount,
		Currency:      v.Currency,
		Date:          v.Date,
		DebitAccount:  ExpenseAccountKey(v.ExpenseType),
		CreditAccount: v.BoxID,
	})
	if err != nil {
		if claimed != "" && !v.Replayed && s.idempotency != nil {
			if releaseErr := s.idempotency.Release(ctx, claimed, idempotencyModule); releaseErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", releaseErr))
			}
		}
		return Voucher{}, err
	}
	v.ID = voucher
	if v.Replayed {
		return v, nil
	}

	meta := map[string]any{
		"expense_type": v.ExpenseType,
		"box":          v.BoxID,
		"amount":       v.Amount.StringFixed(2),
		"currency":     string(v.Currency),
	}
	if v.Payee != "" {
		meta["payee"] = v.Payee
	}
	if in.ExchangeRate != nil {
		meta["exchange_rate"] = in.ExchangeRate.String()
	}
	s.emitter.Emit(ctx, audit.Event{
		UserID:      actor.UID,
		UserName:    actor.Name,
		Action:      audit.ActionCreate,
		TargetType:  audit.TargetVoucher,
		TargetID:    string(voucher),
		Description: fmt.Sprintf("Created expense voucher of %s %s", v.Amount.StringFixed(2), v.Currency),
		Meta:        meta,
	})
	return v, nil
}

// fingerprint digests the normalised request so a reused key can be matched to its payload.
func fingerprint(v Voucher, notes string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		v.Date.Format(dateLayout),
		v.ExpenseType,
		v.Amount.StringFixed(2),
		string(v.Currency),
		v.BoxID,
		v.Payee,
		strings.TrimSpace(notes),
	}, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func (s *Service) build(ctx context.Context, in ExpenseInput) (Voucher, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Voucher{}, err
	}
	cfg, err := s.lookup.Settings(ctx)
	if err != nil {
		return Voucher{}, err
	}

	fields := map[string]string{}
	date, _ := time.Parse(dateLayout, in.Date)
	if !in.Amount.IsPositive() {
		fields["amount"] = "must be greater than zero"
	}
	if in.ExchangeRate != nil && !in.ExchangeRate.IsPositive() {
		fields["exchangeRate"] = "must be greater than zero"
	}
	currency, err := apportion.ParseCurrency(in.Currency)
	if err != nil {
		fields["currency"] = err.Error()
	} else if !cfg.Supports(currency) {
		fields["currency"] = "is not enabled"
	}
	expenseType := strings.ToLower(strings.TrimSpace(in.ExpenseType))
	if strings.ContainsAny(expenseType, " \t/") {
		fields["expenseType"] = "must not contain spaces or slashes"
	}

	box, err := s.lookup.Box(ctx, in.BoxID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		fields["boxId"] = "unknown cash box"
	case err != nil:
		return Voucher{}, err
	case box.Currency != "" && currency != "" && box.Currency != string(currency):
		fields["currency"] = "box " + box.Code + " holds " + box.Currency
	}
	if len(fields) > 0 {
		return Voucher{}, &shared.ValidationError{Fields: fields}
	}

	return Voucher{
		Date:        date,
		ExpenseType: expenseType,
		Amount:      in.Amount.Round(2),
		Currency:    currency,
		BoxID:       box.Code,
		Payee:       strings.TrimSpace(in.Payee),
	}, nil
}
