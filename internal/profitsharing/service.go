package profitsharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/integration"
	"github.com/rawdatain/backoffice/internal/relations"
	"github.com/rawdatain/backoffice/internal/settings"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Lookup resolves relations and settings.
type Lookup interface {
	Relation(ctx context.Context, id string) (relations.Client, error)
	Settings(ctx context.Context) (settings.AppSettings, error)
}

// Poster posts ledger vouchers.
type Poster interface {
	Post(ctx context.Context, req integration.PostingRequest) (integration.VoucherID, error)
}

// Service manages monthly profits and their partner shares.
type Service struct {
	repo    Repository
	lookup  Lookup
	poster  Poster
	emitter audit.Emitter
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo    Repository
	Lookup  Lookup
	Poster  Poster
	Emitter audit.Emitter
	Logger  *slog.Logger
}

// NewService constructs the service. Emitter and Logger are optional.
func NewService(deps Deps) *Service {
	if deps.Emitter == nil {
		deps.Emitter = audit.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		repo:    deps.Repo,
		lookup:  deps.Lookup,
		poster:  deps.Poster,
		emitter: deps.Emitter,
		logger:  deps.Logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// ListMonthlyProfits merges system months and manual distributions, newest first.
func (s *Service) ListMonthlyProfits(ctx context.Context) ([]MonthlyProfit, error) {
	system, err := s.repo.ListSystemMonths(ctx)
	if err != nil {
		return nil, err
	}
	manual, err := s.repo.ListManual(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MonthlyProfit, 0, len(system)+len(manual))
	out = append(out, system...)
	out = append(out, manual...)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].sortKey(), out[j].sortKey()
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}

// SharesForMonth returns the shares of a system month or the embedded partners of a manual
// distribution.
func (s *Service) SharesForMonth(ctx context.Context, id string) ([]ProfitShare, error) {
	if _, err := time.Parse(monthLayout, id); err == nil {
		return s.repo.SharesForMonth(ctx, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, shared.FieldError("id", "must be a month (YYYY-MM) or a distribution id")
	}
	record, err := s.repo.GetManual(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]ProfitShare, 0, len(record.Partners))
	for i, p := range record.Partners {
		share := p
		if share.ID == "" {
			share.ID = record.ID + "-" + strconv.Itoa(i)
		}
		share.ProfitMonthID = record.ID
		share.Currency = record.Currency
		out = append(out, share)
	}
	return out, nil
}

// SaveProfitShare adds a partner share to a system month.
func (s *Service) SaveProfitShare(ctx context.Context, in ShareInput) (ProfitShare, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return ProfitShare{}, err
	}
	share, err := s.buildShare(ctx, in, "")
	if err != nil {
		return ProfitShare{}, err
	}
	share.ID = s.newID()
	share.CreatedBy = actor.UID
	share.CreatedAt = s.now().UTC()
	if err := s.repo.InsertShare(ctx, share); err != nil {
		return ProfitShare{}, err
	}
	s.emitShare(ctx, actor, audit.ActionCreate, share, "Added")
	return share, nil
}

// UpdateProfitShare replaces a partner share of a system month.
func (s *Service) UpdateProfitShare(ctx context.Context, id string, in ShareInput) (ProfitShare, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return ProfitShare{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ProfitShare{}, shared.FieldError("id", "must be a valid id")
	}
	current, err := s.repo.GetShare(ctx, id)
	if err != nil {
		return ProfitShare{}, err
	}
	if current.ProfitMonthID != in.ProfitMonthID || string(current.Currency) != in.Currency {
		return ProfitShare{}, shared.FieldError("profitMonthId", "a share cannot move to another month")
	}
	share, err := s.buildShare(ctx, in, id)
	if err != nil {
		return ProfitShare{}, err
	}
	share.ID = current.ID
	share.CreatedBy = current.CreatedBy
	share.CreatedAt = current.CreatedAt
	if err := s.repo.UpdateShare(ctx, share); err != nil {
		return ProfitShare{}, err
	}
	s.emitShare(ctx, actor, audit.ActionUpdate, share, "Updated")
	return share, nil
}

// DeleteProfitShare removes a partner share.
func (s *Service) DeleteProfitShare(ctx context.Context, id string) error {
	actor, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return shared.FieldError("id", "must be a valid id")
	}
	share, err := s.repo.GetShare(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteShare(ctx, id); err != nil {
		return err
	}
	s.emitShare(ctx, actor, audit.ActionDelete, share, "Deleted")
	return nil
}

func (s *Service) buildShare(ctx context.Context, in ShareInput, skipID string) (ProfitShare, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return ProfitShare{}, err
	}
	currency, err := apportion.ParseCurrency(in.Currency)
	if err != nil {
		return ProfitShare{}, shared.FieldError("currency", err.Error())
	}
	month, err := s.repo.GetSystemMonth(ctx, in.ProfitMonthID, string(currency))
	if errors.Is(err, shared.ErrNotFound) {
		return ProfitShare{}, shared.FieldError("profitMonthId", "no profit recorded for this month")
	}
	if err != nil {
		return ProfitShare{}, err
	}
	partner, err := s.lookup.Relation(ctx, in.PartnerID)
	if errors.Is(err, shared.ErrNotFound) {
		return ProfitShare{}, shared.FieldError("partnerId", "unknown relation")
	}
	if err != nil {
		return ProfitShare{}, err
	}

	existing, err := s.repo.SharesForMonth(ctx, in.ProfitMonthID)
	if err != nil {
		return ProfitShare{}, err
	}
	var table []apportion.PartnerDeclaration
	skip := -1
	for _, row := range existing {
		if row.Currency != currency {
			continue
		}
		if row.ID == skipID {
			skip = len(table)
		} else if row.PartnerID == partner.ID {
			return ProfitShare{}, shared.FieldError("partnerId", "already has a share of this month")
		}
		table = append(table, apportion.PartnerDeclaration{PartnerID: row.PartnerID, Percentage: row.Percentage})
	}
	if err := apportion.CheckPartnerAddition(table, in.Percentage, skip); err != nil {
		return ProfitShare{}, shared.FieldError("percentage", err.Error())
	}

	amount := month.TotalProfit.Mul(in.Percentage).Div(decimal.NewFromInt(100)).Round(4)
	if in.Amount != nil {
		if in.Amount.IsNegative() {
			return ProfitShare{}, shared.FieldError("amount", "must not be negative")
		}
		amount = *in.Amount
	}
	return ProfitShare{
		ProfitMonthID: month.ID,
		Currency:      currency,
		PartnerID:     partner.ID,
		PartnerName:   partner.Name,
		Percentage:    in.Percentage,
		Amount:        amount,
		Notes:         in.Notes,
	}, nil
}

func (s *Service) emitShare(ctx context.Context, actor auth.Identity, action audit.Action, share ProfitShare, verb string) {
	s.emitter.Emit(ctx, audit.Event{
		UserID:      actor.UID,
		UserName:    actor.Name,
		Action:      action,
		TargetType:  audit.TargetProfitShare,
		TargetID:    share.ID,
		Description: fmt.Sprintf("%s %s share of %s for %s", verb, share.Percentage.String()+"%", share.ProfitMonthID, share.PartnerName),
		Meta: map[string]any{
			"month":    share.ProfitMonthID,
			"currency": string(share.Currency),
			"amount":   share.Amount.StringFixed(2),
		},
	})
}

// SaveManualDistribution records a manual distribution and posts the distributed total.
func (s *Service) SaveManualDistribution(ctx context.Context, in ManualInput) (MonthlyProfit, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return MonthlyProfit{}, err
	}
	record, cfg, err := s.buildManual(ctx, in)
	if err != nil {
		return MonthlyProfit{}, err
	}
	now := s.now().UTC()
	record.ID = s.newID()
	record.CreatedBy = actor.UID
	record.CreatedAt = now
	record.UpdatedAt = now

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		distributed := record.Distributed()
		if distributed.Round(2).IsPositive() {
			record.Revision = 1
			voucher, err := s.postDelta(ctx, record, distributed, cfg.FinanceAccounts, "Manual profit distribution")
			if err != nil {
				return err
			}
			record.VoucherID = voucher
			record.PostedAmount = distributed
		}
		return s.repo.InsertManual(ctx, record)
	})
	if err != nil {
		return MonthlyProfit{}, err
	}
	s.emitManual(ctx, actor, audit.ActionCreate, record, "Recorded")
	return record, nil
}

// UpdateManualDistribution replaces a manual distribution and posts the difference between the
// new and the previously posted distributed total.
func (s *Service) UpdateManualDistribution(ctx context.Context, id string, in ManualInput) (MonthlyProfit, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return MonthlyProfit{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return MonthlyProfit{}, shared.FieldError("id", "must be a valid id")
	}
	current, err := s.repo.GetManual(ctx, id)
	if err != nil {
		return MonthlyProfit{}, err
	}
	record, cfg, err := s.buildManual(ctx, in)
	if err != nil {
		return MonthlyProfit{}, err
	}
	if record.Currency != current.Currency && current.PostedAmount.Round(2).IsPositive() {
		return MonthlyProfit{}, shared.FieldError("currency", "cannot change the currency of a posted distribution")
	}
	record.ID = current.ID
	record.Revision = current.Revision
	record.PostedAmount = current.PostedAmount
	record.VoucherID = current.VoucherID
	record.CreatedBy = current.CreatedBy
	record.CreatedAt = current.CreatedAt
	record.UpdatedAt = s.now().UTC()

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		distributed := record.Distributed()
		delta := distributed.Sub(current.PostedAmount)
		if !delta.Round(2).IsZero() {
			record.Revision++
			voucher, err := s.postDelta(ctx, record, delta, cfg.FinanceAccounts, "Manual profit distribution adjustment")
			if err != nil {
				return err
			}
			record.VoucherID = voucher
			record.PostedAmount = distributed
		}
		return s.repo.UpdateManual(ctx, record)
	})
	if err != nil {
		return MonthlyProfit{}, err
	}
	s.emitManual(ctx, actor, audit.ActionUpdate, record, "Updated")
	return record, nil
}

// DeleteManualDistribution removes a manual distribution and reverses what it posted.
func (s *Service) DeleteManualDistribution(ctx context.Context, id string) error {
	actor, err := auth.Require(ctx)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return shared.FieldError("id", "must be a valid id")
	}
	record, err := s.repo.GetManual(ctx, id)
	if err != nil {
		return err
	}
	cfg, err := s.lookup.Settings(ctx)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		if record.PostedAmount.Round(2).IsPositive() {
			record.Revision++
			voucher, err := s.postDelta(ctx, record, record.PostedAmount.Neg(), cfg.FinanceAccounts, "Manual profit distribution removed")
			if err != nil {
				return err
			}
			record.VoucherID = voucher
			record.PostedAmount = decimal.Zero
		}
		return s.repo.DeleteManual(ctx, record.ID)
	})
	if err != nil {
		return err
	}
	s.emitManual(ctx, actor, audit.ActionDelete, record, "Deleted")
	return nil
}

// postDelta posts amount for a manual distribution. A negative amount swaps the sides. The
// revision counter keeps every adjustment on its own source id.
func (s *Service) postDelta(ctx context.Context, record MonthlyProfit, amount decimal.Decimal, accounts settings.FinanceAccounts, description string) (integration.VoucherID, error) {
	debit, credit := accounts.ProfitDistribution, accounts.PartnerPayable
	if amount.IsNegative() {
		debit, credit = credit, debit
		amount = amount.Neg()
	}
	date, err := time.Parse(dateLayout, record.ToDate)
	if err != nil {
		return "", shared.FieldError("toDate", "must be a date formatted YYYY-MM-DD")
	}
	return s.poster.Post(ctx, integration.PostingRequest{
		SourceType:    integration.SourceManualProfit,
		SourceID:      fmt.Sprintf("%s:r%d", record.ID, record.Revision),
		Description:   fmt.Sprintf("%s %s to %s", description, record.FromDate, record.ToDate),
		Amount:        amount,
		Currency:      record.Currency,
		Date:          date,
		DebitAccount:  debit,
		CreditAccount: credit,
	})
}

func (s *Service) buildManual(ctx context.Context, in ManualInput) (MonthlyProfit, settings.AppSettings, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return MonthlyProfit{}, settings.AppSettings{}, err
	}
	cfg, err := s.lookup.Settings(ctx)
	if err != nil {
		return MonthlyProfit{}, settings.AppSettings{}, err
	}

	fields := map[string]string{}
	from, _ := time.Parse(dateLayout, in.FromDate)
	to, _ := time.Parse(dateLayout, in.ToDate)
	if to.Before(from) {
		fields["toDate"] = "must not be before fromDate"
	}
	if !in.Profit.IsPositive() {
		fields["profit"] = "must be greater than zero"
	}
	currency, err := apportion.ParseCurrency(in.Currency)
	if err != nil {
		fields["currency"] = err.Error()
	} else if !cfg.Supports(currency) {
		fields["currency"] = "is not enabled"
	}

	table := make([]apportion.PartnerDeclaration, 0, len(in.Partners))
	seen := make(map[string]bool, len(in.Partners))
	for i, row := range in.Partners {
		key := fmt.Sprintf("partners[%d]", i)
		partner, err := s.lookup.Relation(ctx, row.PartnerID)
		if errors.Is(err, shared.ErrNotFound) {
			fields[key+".partnerId"] = "unknown relation"
			continue
		}
		if err != nil {
			return MonthlyProfit{}, cfg, err
		}
		if seen[partner.ID] {
			fields[key+".partnerId"] = "listed twice"
			continue
		}
		seen[partner.ID] = true
		if err := apportion.CheckPartnerAddition(table, row.Percentage, -1); err != nil {
			fields[key+".percentage"] = err.Error()
			continue
		}
		table = append(table, apportion.PartnerDeclaration{
			PartnerID:   partner.ID,
			PartnerName: partner.Name,
			Percentage:  row.Percentage,
		})
	}
	if len(fields) > 0 {
		return MonthlyProfit{}, cfg, &shared.ValidationError{Fields: fields}
	}

	record := MonthlyProfit{
		TotalProfit: in.Profit,
		Currency:    currency,
		FromDate:    in.FromDate,
		ToDate:      in.ToDate,
		Notes:       fmt.Sprintf("Manual distribution %s to %s", in.FromDate, in.ToDate),
	}
	for i, alloc := range apportion.Allocate(in.Profit, table) {
		record.Partners = append(record.Partners, ProfitShare{
			PartnerID:   alloc.PartnerID,
			PartnerName: alloc.PartnerName,
			Percentage:  table[i].Percentage,
			Amount:      alloc.Share.Round(4),
			Notes:       in.Partners[i].Notes,
		})
	}
	return record, cfg, nil
}

func (s *Service) emitManual(ctx context.Context, actor auth.Identity, action audit.Action, record MonthlyProfit, verb string) {
	s.emitter.Emit(ctx, audit.Event{
		UserID:      actor.UID,
		UserName:    actor.Name,
		Action:      action,
		TargetType:  audit.TargetManualProfit,
		TargetID:    record.ID,
		Description: fmt.Sprintf("%s manual profit distribution %s to %s", verb, record.FromDate, record.ToDate),
		Meta: map[string]any{
			"profit":   record.TotalProfit.StringFixed(2),
			"currency": string(record.Currency),
			"posted":   record.PostedAmount.StringFixed(2),
			"voucher":  string(record.VoucherID),
		},
	})
}

// RecordSystemMonth upserts the profit of a month in one currency. It runs from the rollup job
// and needs no identity.
func (s *Service) RecordSystemMonth(ctx context.Context, monthID string, currency apportion.Currency, profit decimal.Decimal) error {
	if _, err := time.Parse(monthLayout, monthID); err != nil {
		return shared.FieldError("id", "must be formatted YYYY-MM")
	}
	if _, err := apportion.ParseCurrency(string(currency)); err != nil {
		return shared.FieldError("currency", err.Error())
	}
	now := s.now().UTC()
	return s.repo.UpsertSystemMonth(ctx, MonthlyProfit{
		ID:          monthID,
		Currency:    currency,
		TotalProfit: profit,
		FromSystem:  true,
		Notes:       "Profit for month " + monthID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
