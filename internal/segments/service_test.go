package segments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/integration"
	"github.com/rawdatain/backoffice/internal/relations"
	"github.com/rawdatain/backoffice/internal/settings"
	"github.com/rawdatain/backoffice/internal/shared"
)

var (
	clientBabylon  = "6f1c1a52-0d4b-4a53-9d0e-8f5e0c3a1001"
	clientZagros   = "6f1c1a52-0d4b-4a53-9d0e-8f5e0c3a1002"
	partnerAshur   = "6f1c1a52-0d4b-4a53-9d0e-8f5e0c3a2001"
	partnerNineveh = "6f1c1a52-0d4b-4a53-9d0e-8f5e0c3a2002"
)

type memRepo struct {
	periods map[string]Period
	inserts int
}

func newMemRepo() *memRepo { return &memRepo{periods: map[string]Period{}} }

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[string]Period, len(m.periods))
	for k, v := range m.periods {
		snapshot[k] = v
	}
	if err := fn(ctx); err != nil {
		m.periods = snapshot
		return err
	}
	return nil
}

func (m *memRepo) Insert(_ context.Context, p Period) error {
	if _, ok := m.periods[p.ID]; ok {
		return shared.ErrDuplicate
	}
	m.inserts++
	m.periods[p.ID] = p
	return nil
}

func (m *memRepo) SetVouchers(_ context.Context, id string, gross, pool integration.VoucherID) error {
	p, ok := m.periods[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.GrossVoucher, p.PoolVoucher = gross, pool
	m.periods[id] = p
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return Period{}, fmt.Errorf("period %s: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (m *memRepo) Exists(_ context.Context, id string) (bool, error) {
	_, ok := m.periods[id]
	return ok, nil
}

func (m *memRepo) RevisionOf(_ context.Context, id string) (string, bool, error) {
	for _, p := range m.periods {
		if p.SupersedesID == id {
			return p.ID, true, nil
		}
	}
	return "", false, nil
}

func (m *memRepo) List(_ context.Context, _ ListFilters) ([]Period, error) {
	out := make([]Period, 0, len(m.periods))
	for _, p := range m.periods {
		p.Entries = nil
		out = append(out, p)
	}
	return out, nil
}

func (m *memRepo) FirmShareByMonth(context.Context, time.Time) ([]MonthlyTotal, error) {
	return nil, nil
}

type fakeLookup struct {
	relations map[string]relations.Client
	settings  settings.AppSettings
}

func newLookup() *fakeLookup {
	return &fakeLookup{
		relations: map[string]relations.Client{
			clientBabylon: {ID: clientBabylon, Name: "Babylon Tours", RelationType: relations.RelationClient},
			clientZagros: {ID: clientZagros, Name: "Zagros Travel", RelationType: relations.RelationClient,
				SegmentSettings: apportion.RateOverrides{
					apportion.ServiceTickets: {Kind: apportion.RateKindFixed, Value: decimal.NewFromInt(3)},
				}},
			partnerAshur:   {ID: partnerAshur, Name: "Ashur", RelationType: relations.RelationBoth},
			partnerNineveh: {ID: partnerNineveh, Name: "Nineveh", RelationType: relations.RelationSupplier},
		},
		settings: settings.Defaults(),
	}
}

func (f *fakeLookup) Relation(_ context.Context, id string) (relations.Client, error) {
	c, ok := f.relations[id]
	if !ok {
		return relations.Client{}, shared.ErrNotFound
	}
	return c, nil
}

func (f *fakeLookup) Settings(context.Context) (settings.AppSettings, error) { return f.settings, nil }

type fakePoster struct {
	posted   []integration.PostingRequest
	reversed []integration.VoucherID
	failOn   string
}

func (f *fakePoster) Post(_ context.Context, req integration.PostingRequest) (integration.VoucherID, error) {
	if f.failOn != "" && req.SourceID[len(req.SourceID)-len(f.failOn):] == f.failOn {
		return "", &integration.PostingError{Reason: integration.ReasonNoOpenPeriod, SourceType: req.SourceType, SourceID: req.SourceID,
			Err: errors.New("no open period")}
	}
	f.posted = append(f.posted, req)
	return integration.VoucherID(strconv.Itoa(len(f.posted) + len(f.reversed))), nil
}

func (f *fakePoster) Reverse(_ context.Context, voucher integration.VoucherID, _ string) (integration.VoucherID, error) {
	f.reversed = append(f.reversed, voucher)
	return integration.VoucherID(strconv.Itoa(len(f.posted) + len(f.reversed))), nil
}

type usageCounter map[string]int

func (u usageCounter) MarkUsed(_ context.Context, ids []string) error {
	for _, id := range ids {
		u[id]++
	}
	return nil
}

type outcomes map[string]int

func (o outcomes) ObservePeriodSave(outcome string) { o[outcome]++ }

type recordingEmitter struct{ events []audit.Event }

func (r *recordingEmitter) Emit(_ context.Context, evt audit.Event) { r.events = append(r.events, evt) }

type fixture struct {
	svc      *Service
	repo     *memRepo
	lookup   *fakeLookup
	poster   *fakePoster
	usage    usageCounter
	outcomes outcomes
	emitter  *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		lookup:   newLookup(),
		poster:   &fakePoster{},
		usage:    usageCounter{},
		outcomes: outcomes{},
		emitter:  &recordingEmitter{},
	}
	f.svc = NewService(Deps{
		Repo:     f.repo,
		Lookup:   f.lookup,
		Poster:   f.poster,
		Usage:    f.usage,
		Emitter:  f.emitter,
		Recorder: f.outcomes,
	})
	seq := 0
	f.svc.newID = func() string {
		seq++
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.Itoa(seq))).String()
	}
	f.svc.now = func() time.Time { return time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) }
	return f
}

func actorCtx() context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: "5", Name: "Layla"})
}

func pct(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func fixedRate(v string) *apportion.RateValue {
	return &apportion.RateValue{Kind: apportion.RateKindFixed, Value: decimal.RequireFromString(v)}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func thousandDraft() DraftInput {
	retention := pct(60)
	return DraftInput{
		FromDate:                "2024-03-01",
		ToDate:                  "2024-03-31",
		Currency:                "usd",
		HasPartner:              true,
		FirmRetentionPercentage: &retention,
		Partners: []PartnerInput{
			{PartnerID: partnerAshur, Percentage: pct(40)},
			{PartnerID: partnerNineveh, Percentage: pct(60)},
		},
		Entries: []EntryInput{
			{ClientID: clientBabylon, Tickets: ServiceInput{Count: 1, Rate: fixedRate("1000")}},
		},
	}
}

func TestPreviewUsesDefaultRates(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Preview(context.Background(), DraftInput{
		Entries: []EntryInput{{ClientID: clientBabylon, Tickets: ServiceInput{Count: 10}}},
	})
	require.NoError(t, err)
	require.Equal(t, StateDraft, view.State)
	require.Len(t, view.Entries, 1)
	entry := view.Entries[0]
	require.Equal(t, "Babylon Tours", entry.ClientName)
	require.Equal(t, apportion.RateKindPercentage, entry.Tickets.Rate.Kind)
	requireDecimal(t, "5", entry.Total)
	requireDecimal(t, "5", entry.FirmShare)
	requireDecimal(t, "0", entry.PartnerShare)
	require.Empty(t, entry.PartnerShares)
	require.Equal(t, apportion.CurrencyUSD, view.Currency)
	require.Zero(t, f.repo.inserts)
	require.Empty(t, f.poster.posted)
}

func TestPreviewAppliesClientSettingsThenEntryOverrides(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Preview(context.Background(), DraftInput{
		Entries: []EntryInput{
			{ClientID: clientZagros, Tickets: ServiceInput{Count: 4}},
			{ClientID: clientZagros, Tickets: ServiceInput{Count: 4, Rate: fixedRate("10")}},
		},
	})
	require.NoError(t, err)
	requireDecimal(t, "12", view.Entries[0].Total)
	requireDecimal(t, "40", view.Entries[1].Total)
	requireDecimal(t, "52", view.Totals.GrandTotal)
}

func TestPreviewRejectsUnknownClient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Preview(context.Background(), DraftInput{
		Entries: []EntryInput{{ClientID: uuid.NewString(), Visas: ServiceInput{Count: 1}}},
	})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Fields, "entries[0].clientId")
}

func TestSaveSplitsAndPostsBothLegs(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Save(actorCtx(), thousandDraft())
	require.NoError(t, err)

	require.Equal(t, StateSaved, view.State)
	requireDecimal(t, "1000", view.Totals.GrandTotal)
	requireDecimal(t, "600", view.Totals.FirmTotal)
	requireDecimal(t, "400", view.Totals.PartnerPoolTotal)
	requireDecimal(t, "0", view.Totals.Remainder)
	require.Len(t, view.PartnerTotals, 2)
	requireDecimal(t, "160", view.PartnerTotals[0].Share)
	requireDecimal(t, "240", view.PartnerTotals[1].Share)
	require.Equal(t, "2024-03-31", view.EntryDate)

	require.Len(t, f.poster.posted, 2)
	gross, pool := f.poster.posted[0], f.poster.posted[1]
	require.Equal(t, integration.SourceSegmentPeriod, gross.SourceType)
	require.Equal(t, view.ID+":gross", gross.SourceID)
	require.Equal(t, "1200", gross.DebitAccount)
	require.Equal(t, "4100", gross.CreditAccount)
	requireDecimal(t, "1000", gross.Amount)
	require.Equal(t, view.ID+":pool", pool.SourceID)
	require.Equal(t, "4100", pool.DebitAccount)
	require.Equal(t, "2300", pool.CreditAccount)
	requireDecimal(t, "400", pool.Amount)

	stored := f.repo.periods[view.ID]
	require.Equal(t, StateSaved, stored.State)
	require.Equal(t, integration.VoucherID("1"), stored.GrossVoucher)
	require.Equal(t, integration.VoucherID("2"), stored.PoolVoucher)
	require.Equal(t, "5", stored.CreatedBy)

	require.Equal(t, 1, f.usage[clientBabylon])
	require.Equal(t, 1, f.outcomes["saved"])
	require.Len(t, f.emitter.events, 1)
	require.Equal(t, audit.TargetSegment, f.emitter.events[0].TargetType)
	require.Equal(t, view.ID, f.emitter.events[0].TargetID)
}

func TestSaveWithoutPartnersPostsOnlyGross(t *testing.T) {
	f := newFixture(t)
	draft := thousandDraft()
	draft.HasPartner = false
	draft.Partners = nil

	view, err := f.svc.Save(actorCtx(), draft)
	require.NoError(t, err)
	requireDecimal(t, "1000", view.Totals.FirmTotal)
	require.Len(t, f.poster.posted, 1)
	require.Empty(t, f.repo.periods[view.ID].PoolVoucher)
}

func TestSaveZeroProfitPeriodPostsNothing(t *testing.T) {
	f := newFixture(t)
	draft := thousandDraft()
	draft.HasPartner = false
	draft.Partners = nil
	draft.Entries = []EntryInput{{ClientID: clientBabylon}}

	view, err := f.svc.Save(actorCtx(), draft)
	require.NoError(t, err)
	require.Equal(t, StateSaved, view.State)
	requireDecimal(t, "0", view.Totals.GrandTotal)
	require.Empty(t, f.poster.posted)
	saved := f.repo.periods[view.ID]
	require.Empty(t, saved.GrossVoucher)
	require.Empty(t, saved.PoolVoucher)
	require.Equal(t, 1, f.outcomes["saved"])
}

func TestSaveRejectsUnbalancedPartnersWithoutPosting(t *testing.T) {
	f := newFixture(t)
	draft := thousandDraft()
	draft.Partners[0].Percentage = pct(30)
	draft.Partners[1].Percentage = pct(50)

	_, err := f.svc.Save(actorCtx(), draft)
	require.ErrorIs(t, err, shared.ErrValidation)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Fields["partners"], "sum to 100")

	require.Empty(t, f.poster.posted)
	require.Empty(t, f.repo.periods)
	require.Equal(t, 1, f.outcomes["invalid"])
	require.Empty(t, f.emitter.events)
}

func TestSaveRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Save(context.Background(), thousandDraft())
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	require.Empty(t, f.repo.periods)
	require.Equal(t, 1, f.outcomes["unauthenticated"])
}

func TestSaveValidatesDatesAndEntries(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Save(actorCtx(), DraftInput{FromDate: "2024-03-31", ToDate: "2024-03-01"})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Fields, "entries")
	require.Contains(t, ve.Fields, "toDate")

	draft := thousandDraft()
	draft.FromDate = ""
	draft.Currency = "EUR"
	_, err = f.svc.Save(actorCtx(), draft)
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Fields, "fromDate")
	require.Contains(t, ve.Fields, "currency")
}

func TestSavePostingFailureLeavesNothingSaved(t *testing.T) {
	f := newFixture(t)
	f.poster.failOn = ":pool"

	_, err := f.svc.Save(actorCtx(), thousandDraft())
	require.ErrorIs(t, err, shared.ErrPosting)
	var perr *integration.PostingError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, integration.ReasonNoOpenPeriod, perr.Reason)

	require.Empty(t, f.repo.periods)
	require.Empty(t, f.usage)
	require.Empty(t, f.emitter.events)
	require.Equal(t, 1, f.outcomes["posting_failed"])
}

func TestSaveRefusesExistingID(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.Save(actorCtx(), thousandDraft())
	require.NoError(t, err)

	draft := thousandDraft()
	draft.ID = view.ID
	_, err = f.svc.Save(actorCtx(), draft)
	require.ErrorIs(t, err, ErrAlreadySaved)
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.Len(t, f.poster.posted, 2)
}

func TestReviseCreatesDraftAndReversesOriginal(t *testing.T) {
	f := newFixture(t)
	original, err := f.svc.Save(actorCtx(), thousandDraft())
	require.NoError(t, err)

	draft, err := f.svc.Revise(actorCtx(), original.ID)
	require.NoError(t, err)
	require.Empty(t, draft.ID)
	require.Equal(t, original.ID, draft.SupersedesID)
	require.Len(t, draft.Entries, 1)
	require.Empty(t, draft.Entries[0].ID)
	require.Equal(t, 1, draft.Entries[0].Tickets.Count)

	draft.Entries[0].Tickets.Rate = fixedRate("1500")
	revision, err := f.svc.Save(actorCtx(), draft)
	require.NoError(t, err)
	require.NotEqual(t, original.ID, revision.ID)
	requireDecimal(t, "1500", revision.Totals.GrandTotal)
	require.Equal(t, []integration.VoucherID{"1", "2"}, f.poster.reversed)
	require.Equal(t, StateSaved, f.repo.periods[original.ID].State)

	_, err = f.svc.Revise(actorCtx(), original.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "already revised")
}

func TestEditPartnerEnforcesRunningTotal(t *testing.T) {
	f := newFixture(t)
	draft := thousandDraft()
	draft.Partners = draft.Partners[:1]

	_, _, err := f.svc.EditPartner(context.Background(), PartnerEdit{
		Draft:   draft,
		Partner: PartnerInput{PartnerID: partnerNineveh, Percentage: pct(61)},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "exceed")

	_, _, err = f.svc.EditPartner(context.Background(), PartnerEdit{
		Draft:   draft,
		Partner: PartnerInput{PartnerID: uuid.NewString(), Percentage: pct(10)},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = f.svc.EditPartner(context.Background(), PartnerEdit{
		Draft:   draft,
		Partner: PartnerInput{PartnerID: partnerNineveh, Percentage: pct(0)},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	updated, view, err := f.svc.EditPartner(context.Background(), PartnerEdit{
		Draft:   draft,
		Partner: PartnerInput{PartnerID: partnerNineveh, Percentage: pct(60)},
	})
	require.NoError(t, err)
	require.Len(t, updated.Partners, 2)
	require.NotEmpty(t, updated.Partners[1].ID)
	requireDecimal(t, "400", view.Totals.DistributedTotal)

	index := 0
	replaced, _, err := f.svc.EditPartner(context.Background(), PartnerEdit{
		Draft:   updated,
		Partner: PartnerInput{PartnerID: partnerAshur, Percentage: pct(40)},
		Index:   &index,
	})
	require.NoError(t, err)
	require.Len(t, replaced.Partners, 2)

	_, _, err = f.svc.EditPartner(context.Background(), PartnerEdit{
		Draft:   updated,
		Partner: PartnerInput{PartnerID: partnerAshur, Percentage: pct(1)},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	saved, err := f.svc.Save(actorCtx(), thousandDraft())
	require.NoError(t, err)

	view, err := f.svc.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	require.Len(t, view.Entries, 1)

	_, err = f.svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Get(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, shared.ErrNotFound)

	list, err := f.svc.List(context.Background(), ListFilters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Empty(t, list[0].Entries)

	_, err = f.svc.List(context.Background(), ListFilters{
		From: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
