package segments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

// Poster posts and reverses ledger vouchers.
type Poster interface {
	Post(ctx context.Context, req integration.PostingRequest) (integration.VoucherID, error)
	Reverse(ctx context.Context, voucher integration.VoucherID, memo string) (integration.VoucherID, error)
}

// UsageMarker counts how often a relation is used.
type UsageMarker interface {
	MarkUsed(ctx context.Context, ids []string) error
}

// Recorder counts save outcomes.
type Recorder interface {
	ObservePeriodSave(outcome string)
}

// Service builds, validates and saves segment periods.
type Service struct {
	repo     Repository
	lookup   Lookup
	poster   Poster
	usage    UsageMarker
	emitter  audit.Emitter
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo     Repository
	Lookup   Lookup
	Poster   Poster
	Usage    UsageMarker
	Emitter  audit.Emitter
	Recorder Recorder
	Logger   *slog.Logger
}

// NewService constructs the service. Usage, Emitter, Recorder and Logger are optional.
func NewService(deps Deps) *Service {
	if deps.Emitter == nil {
		deps.Emitter = audit.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		repo:     deps.Repo,
		lookup:   deps.Lookup,
		poster:   deps.Poster,
		usage:    deps.Usage,
		emitter:  deps.Emitter,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Preview computes entries and totals of a draft without persisting anything.
func (s *Service) Preview(ctx context.Context, in DraftInput) (View, error) {
	p, _, err := s.build(ctx, in)
	if err != nil {
		return View{}, err
	}
	return ViewOf(p), nil
}

// EditPartner adds or replaces a partner row and returns the updated draft with its preview.
func (s *Service) EditPartner(ctx context.Context, edit PartnerEdit) (DraftInput, View, error) {
	if err := shared.ValidateStruct(edit); err != nil {
		return DraftInput{}, View{}, err
	}
	partner, err := s.relation(ctx, edit.Partner.PartnerID)
	if errors.Is(err, shared.ErrNotFound) {
		return DraftInput{}, View{}, shared.FieldError("partner.partnerId", "unknown relation")
	}
	if err != nil {
		return DraftInput{}, View{}, err
	}

	rows := edit.Draft.Partners
	skip := -1
	if edit.Index != nil {
		if *edit.Index >= len(rows) {
			return DraftInput{}, View{}, shared.FieldError("index", "out of range")
		}
		skip = *edit.Index
	}
	existing := make([]apportion.PartnerDeclaration, 0, len(rows))
	for i, row := range rows {
		if i != skip && row.PartnerID == partner.ID {
			return DraftInput{}, View{}, shared.FieldError("partner.partnerId", "already in the partner table")
		}
		existing = append(existing, apportion.PartnerDeclaration{PartnerID: row.PartnerID, Percentage: row.Percentage})
	}
	if err := apportion.CheckPartnerAddition(existing, edit.Partner.Percentage, skip); err != nil {
		return DraftInput{}, View{}, shared.FieldError("partner.percentage", err.Error())
	}

	draft := edit.Draft
	draft.Partners = append([]PartnerInput(nil), rows...)
	row := edit.Partner
	if row.ID == "" {
		row.ID = s.newID()
	}
	if skip >= 0 {
		draft.Partners[skip] = row
	} else {
		draft.Partners = append(draft.Partners, row)
	}
	draft.HasPartner = true

	view, err := s.Preview(ctx, draft)
	if err != nil {
		return DraftInput{}, View{}, err
	}
	return draft, view, nil
}

// Save validates the draft, persists it and posts its journals in one transaction.
func (s *Service) Save(ctx context.Context, in DraftInput) (View, error) {
	p, err := s.save(ctx, in)
	s.observe(err)
	if err != nil {
		return View{}, err
	}
	return ViewOf(p), nil
}

func (s *Service) save(ctx context.Context, in DraftInput) (Period, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return Period{}, err
	}
	p, cfg, err := s.build(ctx, in)
	if err != nil {
		return Period{}, err
	}
	if err := validate(p, cfg); err != nil {
		return Period{}, err
	}
	p.State = StateValidated

	if p.ID == "" {
		p.ID = s.newID()
	} else {
		exists, err := s.repo.Exists(ctx, p.ID)
		if err != nil {
			return Period{}, err
		}
		if exists {
			return Period{}, fmt.Errorf("%w: %s", ErrAlreadySaved, p.ID)
		}
	}

	var superseded Period
	if p.SupersedesID != "" {
		superseded, err = s.revisable(ctx, p.SupersedesID)
		if err != nil {
			return Period{}, err
		}
	}

	p.CreatedBy = actor.UID
	p.CreatedAt = s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		saved := p
		saved.State = StateSaved
		if err := s.repo.Insert(ctx, saved); err != nil {
			return err
		}
		if err := s.post(ctx, &saved, cfg.FinanceAccounts); err != nil {
			return err
		}
		if superseded.ID != "" {
			if err := s.reverse(ctx, superseded, saved.ID); err != nil {
				return err
			}
		}
		if err := s.repo.SetVouchers(ctx, saved.ID, saved.GrossVoucher, saved.PoolVoucher); err != nil {
			return err
		}
		if s.usage != nil {
			if err := s.usage.MarkUsed(ctx, saved.ClientIDs()); err != nil {
				return err
			}
		}
		p = saved
		return nil
	})
	if err != nil {
		return Period{}, err
	}

	meta := map[string]any{
		"gross_voucher": string(p.GrossVoucher),
		"grand_total":   p.Totals.GrandTotal.StringFixed(2),
		"currency":      string(p.Currency),
	}
	if p.SupersedesID != "" {
		meta["supersedes"] = p.SupersedesID
	}
	s.emitter.Emit(ctx, audit.Event{
		UserID:      actor.UID,
		UserName:    actor.Name,
		Action:      audit.ActionCreate,
		TargetType:  audit.TargetSegment,
		TargetID:    p.ID,
		Description: fmt.Sprintf("Saved segment period %s to %s", formatDate(p.FromDate), formatDate(p.ToDate)),
		Meta:        meta,
	})
	return p, nil
}

// post writes the gross profit journal and, when partners share the profit, the partner pool
// journal. Source ids derive from the period id so a retry never posts twice.
func (s *Service) post(ctx context.Context, p *Period, accounts settings.FinanceAccounts) error {
	if !p.Totals.GrandTotal.Round(2).IsPositive() {
		return nil
	}
	revenue := accounts.Revenue("segments")
	gross, err := s.poster.Post(ctx, integration.PostingRequest{
		SourceType:    integration.SourceSegmentPeriod,
		SourceID:      p.ID + ":gross",
		Description:   fmt.Sprintf("Segment profit %s to %s", formatDate(p.FromDate), formatDate(p.ToDate)),
		Amount:        p.Totals.GrandTotal,
		Currency:      p.Currency,
		Date:          p.EntryDate,
		DebitAccount:  accounts.DefaultReceivable,
		CreditAccount: revenue,
	})
	if err != nil {
		return err
	}
	p.GrossVoucher = gross

	if !p.Totals.PartnerPoolTotal.Round(2).IsPositive() {
		return nil
	}
	pool, err := s.poster.Post(ctx, integration.PostingRequest{
		SourceType:    integration.SourceSegmentPeriod,
		SourceID:      p.ID + ":pool",
		Description:   fmt.Sprintf("Partner share %s to %s", formatDate(p.FromDate), formatDate(p.ToDate)),
		Amount:        p.Totals.PartnerPoolTotal,
		Currency:      p.Currency,
		Date:          p.EntryDate,
		DebitAccount:  revenue,
		CreditAccount: accounts.PartnerPayable,
	})
	if err != nil {
		return err
	}
	p.PoolVoucher = pool
	return nil
}

func (s *Service) reverse(ctx context.Context, superseded Period, revisionID string) error {
	memo := fmt.Sprintf("Superseded by segment period %s", revisionID)
	for _, voucher := range []integration.VoucherID{superseded.GrossVoucher, superseded.PoolVoucher} {
		if voucher == "" {
			continue
		}
		if _, err := s.poster.Reverse(ctx, voucher, memo); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a saved period with its entries.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	if _, err := uuid.Parse(id); err != nil {
		return View{}, shared.FieldError("id", "must be a valid id")
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return ViewOf(p), nil
}

// List returns period headers overlapping the filter range.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]View, error) {
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return nil, shared.FieldError("to", "must not be before from")
	}
	periods, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(periods))
	for _, p := range periods {
		out = append(out, ViewOf(p))
	}
	return out, nil
}

// Revise returns a new draft copied from a saved period. Saving it reverses the postings of the
// original.
func (s *Service) Revise(ctx context.Context, id string) (DraftInput, error) {
	if _, err := uuid.Parse(id); err != nil {
		return DraftInput{}, shared.FieldError("id", "must be a valid id")
	}
	p, err := s.revisable(ctx, id)
	if err != nil {
		return DraftInput{}, err
	}
	draft := DraftOf(p)
	draft.ID = ""
	draft.SupersedesID = p.ID
	for i := range draft.Entries {
		draft.Entries[i].ID = ""
	}
	for i := range draft.Partners {
		draft.Partners[i].ID = ""
	}
	return draft, nil
}

// MonthlyFirmShare sums the firm share of saved periods by currency for month.
func (s *Service) MonthlyFirmShare(ctx context.Context, month time.Time) ([]MonthlyTotal, error) {
	return s.repo.FirmShareByMonth(ctx, month)
}

func (s *Service) revisable(ctx context.Context, id string) (Period, error) {
	p, err := s.repo.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Period{}, shared.FieldError("supersedesId", "unknown period")
	}
	if err != nil {
		return Period{}, err
	}
	if p.State != StateSaved {
		return Period{}, shared.FieldError("supersedesId", "only saved periods can be revised")
	}
	revision, revised, err := s.repo.RevisionOf(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if revised {
		return Period{}, shared.FieldError("supersedesId", "period was already revised by "+revision)
	}
	return p, nil
}

func (s *Service) build(ctx context.Context, in DraftInput) (Period, settings.AppSettings, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Period{}, settings.AppSettings{}, err
	}
	cfg, err := s.lookup.Settings(ctx)
	if err != nil {
		return Period{}, settings.AppSettings{}, err
	}
	defaults, err := cfg.Segment.RateTable()
	if err != nil {
		return Period{}, settings.AppSettings{}, fmt.Errorf("segments: default rates: %w", err)
	}

	fields := map[string]string{}
	p := Period{
		ID:                      in.ID,
		FromDate:                parseDate(in.FromDate),
		ToDate:                  parseDate(in.ToDate),
		EntryDate:               parseDate(in.EntryDate),
		HasPartner:              in.HasPartner,
		FirmRetentionPercentage: cfg.Segment.FirmRetentionPercentage,
		SupersedesID:            in.SupersedesID,
		State:                   StateDraft,
	}
	if p.EntryDate.IsZero() {
		p.EntryDate = p.ToDate
	}

	p.Currency = cfg.DefaultCurrency
	if in.Currency != "" {
		currency, err := apportion.ParseCurrency(in.Currency)
		if err != nil {
			fields["currency"] = err.Error()
		}
		p.Currency = currency
	}

	if in.FirmRetentionPercentage != nil {
		p.FirmRetentionPercentage = *in.FirmRetentionPercentage
	}
	if p.FirmRetentionPercentage.IsNegative() || p.FirmRetentionPercentage.GreaterThan(decimal.NewFromInt(100)) {
		fields["firmRetentionPercentage"] = "must be between 0 and 100"
	}

	for i, row := range in.Partners {
		partner, err := s.relation(ctx, row.PartnerID)
		if errors.Is(err, shared.ErrNotFound) {
			fields[fmt.Sprintf("partners[%d].partnerId", i)] = "unknown relation"
			continue
		}
		if err != nil {
			return Period{}, cfg, err
		}
		id := row.ID
		if id == "" {
			id = s.newID()
		}
		p.Partners = append(p.Partners, apportion.PartnerDeclaration{
			ID:          id,
			PartnerID:   partner.ID,
			PartnerName: partner.Name,
			Percentage:  row.Percentage,
		})
	}

	for i, row := range in.Entries {
		client, err := s.relation(ctx, row.ClientID)
		if errors.Is(err, shared.ErrNotFound) {
			fields[fmt.Sprintf("entries[%d].clientId", i)] = "unknown client"
			continue
		}
		if err != nil {
			return Period{}, cfg, err
		}
		rates, err := client.SegmentRates(defaults)
		if err != nil {
			fields[fmt.Sprintf("entries[%d].clientId", i)] = "invalid segment settings: " + err.Error()
			continue
		}
		var counts [4]int
		for j, svc := range row.services() {
			counts[j] = svc.Count
			if svc.Rate == nil {
				continue
			}
			spec, err := svc.Rate.Spec()
			if err != nil {
				fields[fmt.Sprintf("entries[%d].%s.rate", i, apportion.Services[j])] = err.Error()
				continue
			}
			rates[j] = spec
		}
		id := row.ID
		if id == "" {
			id = s.newID()
		}
		p.Entries = append(p.Entries, apportion.CompanyEntry{
			ID:         id,
			ClientID:   client.ID,
			ClientName: client.Name,
			Lines:      apportion.NewServiceLines(counts, rates),
			Notes:      row.Notes,
		})
	}

	if len(fields) > 0 {
		return Period{}, cfg, &shared.ValidationError{Fields: fields}
	}
	p.Recompute()
	return p, cfg, nil
}

func (s *Service) relation(ctx context.Context, id string) (relations.Client, error) {
	return s.lookup.Relation(ctx, id)
}

func (s *Service) observe(err error) {
	if s.recorder == nil {
		return
	}
	outcome := "saved"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrUnauthorized):
		outcome = "unauthenticated"
	case errors.Is(err, shared.ErrValidation):
		outcome = "invalid"
	case errors.Is(err, shared.ErrDuplicate):
		outcome = "duplicate"
	case errors.Is(err, shared.ErrPosting):
		outcome = "posting_failed"
	case errors.Is(err, shared.ErrPersistenceUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	s.recorder.ObservePeriodSave(outcome)
	if err != nil && outcome != "invalid" && outcome != "unauthenticated" {
		s.logger.Warn("segment period save failed", slog.String("outcome", outcome), slog.Any("error", err))
	}
}

// validate enforces the save-time invariants of a built period.
func validate(p Period, cfg settings.AppSettings) error {
	fields := map[string]string{}
	if len(p.Entries) == 0 {
		fields["entries"] = "at least one company entry is required"
	}
	if p.FromDate.IsZero() {
		fields["fromDate"] = "is required"
	}
	if p.ToDate.IsZero() {
		fields["toDate"] = "is required"
	}
	if !p.FromDate.IsZero() && !p.ToDate.IsZero() && p.ToDate.Before(p.FromDate) {
		fields["toDate"] = "must not be before fromDate"
	}
	if !cfg.Supports(p.Currency) {
		fields["currency"] = "is not enabled"
	}
	if err := apportion.ValidatePartnerTable(p.HasPartner, p.Partners); err != nil {
		fields["partners"] = err.Error()
	} else if err := p.Totals.CheckBalanced(); err != nil {
		fields["totals"] = err.Error()
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
