package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Invalidator drops cached copies of the settings document.
type Invalidator interface {
	Invalidate()
}

// Service reads and updates the settings document.
type Service struct {
	repo        Repository
	emitter     audit.Emitter
	invalidator Invalidator
	now         func() time.Time
}

// NewService constructs the settings service. invalidator may be nil.
func NewService(repo Repository, emitter audit.Emitter, invalidator Invalidator) *Service {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	return &Service{repo: repo, emitter: emitter, invalidator: invalidator, now: time.Now}
}

// Get returns the stored document or Defaults when none was saved yet.
func (s *Service) Get(ctx context.Context) (AppSettings, error) {
	doc, ok, err := s.repo.Load(ctx)
	if err != nil {
		return AppSettings{}, err
	}
	if !ok {
		return Defaults(), nil
	}
	return doc, nil
}

// Update validates and replaces the whole document.
func (s *Service) Update(ctx context.Context, doc AppSettings) (AppSettings, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return AppSettings{}, err
	}
	doc, err = normalize(doc)
	if err != nil {
		return AppSettings{}, err
	}
	doc.UpdatedBy = actor.UID
	doc.UpdatedAt = s.now().UTC()
	if err := s.repo.Store(ctx, doc); err != nil {
		return AppSettings{}, err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	s.emitter.Emit(ctx, audit.Event{
		UserID:      actor.UID,
		UserName:    actor.Name,
		Action:      audit.ActionUpdate,
		TargetType:  audit.TargetSettings,
		TargetID:    documentKey,
		Description: "Updated application settings",
	})
	return doc, nil
}

func normalize(doc AppSettings) (AppSettings, error) {
	fields := map[string]string{}

	currencies := make([]apportion.Currency, 0, len(doc.Currencies))
	for _, c := range doc.Currencies {
		parsed, err := apportion.ParseCurrency(string(c))
		if err != nil {
			fields["currencies"] = err.Error()
			continue
		}
		currencies = append(currencies, parsed)
	}
	if len(currencies) == 0 && fields["currencies"] == "" {
		fields["currencies"] = "at least one currency is required"
	}
	doc.Currencies = currencies

	if def, err := apportion.ParseCurrency(string(doc.DefaultCurrency)); err != nil {
		fields["defaultCurrency"] = err.Error()
	} else {
		doc.DefaultCurrency = def
		if len(currencies) > 0 && !doc.Supports(def) {
			fields["defaultCurrency"] = "must be one of the enabled currencies"
		}
	}

	retention := doc.Segment.FirmRetentionPercentage
	if retention.IsNegative() || retention.GreaterThan(decimal.NewFromInt(100)) {
		fields["segment.firmRetentionPercentage"] = "must be between 0 and 100"
	}
	if _, err := doc.Segment.Rates.Table(); err != nil {
		fields["segment.rates"] = err.Error()
	}

	accounts := map[string]*string{
		"financeAccounts.defaultReceivable":  &doc.FinanceAccounts.DefaultReceivable,
		"financeAccounts.defaultPayable":     &doc.FinanceAccounts.DefaultPayable,
		"financeAccounts.defaultRevenue":     &doc.FinanceAccounts.DefaultRevenue,
		"financeAccounts.defaultExpense":     &doc.FinanceAccounts.DefaultExpense,
		"financeAccounts.defaultCash":        &doc.FinanceAccounts.DefaultCash,
		"financeAccounts.partnerPayable":     &doc.FinanceAccounts.PartnerPayable,
		"financeAccounts.profitDistribution": &doc.FinanceAccounts.ProfitDistribution,
	}
	for field, value := range accounts {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			fields[field] = "is required"
		}
	}
	for category, account := range doc.FinanceAccounts.RevenueMap {
		if strings.TrimSpace(account) == "" {
			fields[fmt.Sprintf("financeAccounts.revenueMap.%s", category)] = "is required"
		}
	}

	if len(fields) > 0 {
		return AppSettings{}, &shared.ValidationError{Fields: fields}
	}
	return doc, nil
}
