package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/accounting/accounts"
	"github.com/rawdatain/backoffice/internal/accounting/journals"
	"github.com/rawdatain/backoffice/internal/accounting/mappings"
	"github.com/rawdatain/backoffice/internal/accounting/periods"
	ledger "github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/shared"
)

type fakeLedger struct {
	posted []journals.PostingInput
	bySrc  map[uuid.UUID]journals.JournalEntry
	err    error
}

func (f *fakeLedger) PostJournal(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error) {
	if f.err != nil {
		return journals.JournalEntry{}, f.err
	}
	if f.bySrc == nil {
		f.bySrc = make(map[uuid.UUID]journals.JournalEntry)
	}
	if _, ok := f.bySrc[in.SourceID]; ok {
		return journals.JournalEntry{}, ledger.ErrSourceAlreadyLinked
	}
	entry := journals.JournalEntry{ID: int64(len(f.posted) + 1), SourceModule: in.SourceModule, SourceID: in.SourceID}
	f.bySrc[in.SourceID] = entry
	f.posted = append(f.posted, in)
	return entry, nil
}

func (f *fakeLedger) Get(ctx context.Context, id int64) (journals.JournalEntry, error) {
	for _, entry := range f.bySrc {
		if entry.ID == id {
			return entry, nil
		}
	}
	return journals.JournalEntry{}, ledger.ErrJournalNotFound
}

func (f *fakeLedger) ReverseJournal(ctx context.Context, in journals.ReverseInput) (journals.JournalEntry, error) {
	original, err := f.Get(ctx, in.EntryID)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	module, ref := journals.ReversalSource(original)
	return f.PostJournal(ctx, journals.PostingInput{SourceModule: module, SourceID: ref, Memo: in.Memo, PostedBy: in.ActorID})
}

func (f *fakeLedger) EntryForSource(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error) {
	entry, ok := f.bySrc[ref]
	if !ok {
		return journals.JournalEntry{}, ledger.ErrJournalNotFound
	}
	return entry, nil
}

type fakePeriods struct {
	open periods.Period
}

func (f fakePeriods) FindOpenPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error) {
	if f.open.ID == 0 || !f.open.Covers(date) {
		return periods.Period{}, ledger.ErrInvalidPeriod
	}
	return f.open, nil
}

type fakeMappings map[string]int64

func (f fakeMappings) Get(ctx context.Context, module, key string) (mappings.AccountMapping, error) {
	id, ok := f[module+"/"+key]
	if !ok {
		return mappings.AccountMapping{}, ledger.ErrMappingNotFound
	}
	return mappings.AccountMapping{Module: module, Key: key, AccountID: id}, nil
}

type fakeAccounts map[string]int64

func (f fakeAccounts) FindByCode(ctx context.Context, code string) (accounts.Account, error) {
	id, ok := f[code]
	if !ok {
		return accounts.Account{}, ledger.ErrAccountNotFound
	}
	return accounts.Account{ID: id, Code: code}, nil
}

type countingRecorder map[string]int

func (c countingRecorder) ObservePosting(sourceType, outcome string) {
	c[sourceType+"/"+outcome]++
}

var march = periods.Period{ID: 3, Status: periods.PeriodStatusOpen,
	StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}

func newPoster(l *fakeLedger, rec countingRecorder) *Poster {
	return NewPoster(l, fakePeriods{open: march},
		fakeMappings{"manualExpense/expense_fuel": 501},
		fakeAccounts{"1100": 101, "expense_fuel": 999},
		rec, nil)
}

func expenseRequest() PostingRequest {
	return PostingRequest{
		SourceType:    SourceManualExpense,
		SourceID:      "voucher-42",
		Description:   "Fuel for airport run",
		Amount:        decimal.RequireFromString("80.005"),
		Currency:      apportion.CurrencyUSD,
		Date:          time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		DebitAccount:  "expense_fuel",
		CreditAccount: "1100",
	}
}

func TestPostBuildsBalancedTwoLineJournal(t *testing.T) {
	l := &fakeLedger{}
	rec := countingRecorder{}
	p := newPoster(l, rec)

	id, err := p.Post(context.Background(), expenseRequest())

	require.NoError(t, err)
	require.Equal(t, VoucherID("1"), id)
	require.Len(t, l.posted, 1)
	in := l.posted[0]
	require.Equal(t, march.ID, in.PeriodID)
	require.Equal(t, "USD", in.Currency)
	require.Equal(t, SourceUUID(SourceManualExpense, "voucher-42"), in.SourceID)
	require.Equal(t, int64(501), in.Lines[0].AccountID, "mapping wins over account code")
	require.Equal(t, int64(101), in.Lines[1].AccountID)
	require.True(t, in.Lines[0].Debit.Equal(decimal.RequireFromString("80.01")))
	require.True(t, in.Lines[1].Credit.Equal(in.Lines[0].Debit))
	require.Equal(t, 1, rec["manualExpense/posted"])
}

func TestPostRetryReturnsOriginalVoucher(t *testing.T) {
	l := &fakeLedger{}
	rec := countingRecorder{}
	p := newPoster(l, rec)
	ctx := context.Background()

	first, err := p.Post(ctx, expenseRequest())
	require.NoError(t, err)
	second, err := p.Post(ctx, expenseRequest())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, l.posted, 1)
	require.Equal(t, 1, rec["manualExpense/duplicate"])
}

func TestPostFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PostingRequest)
		ledger error
		reason FailureReason
	}{
		{name: "unknown account", mutate: func(r *PostingRequest) { r.CreditAccount = "9999" }, reason: ReasonUnknownAccount},
		{name: "no open period", mutate: func(r *PostingRequest) { r.Date = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }, reason: ReasonNoOpenPeriod},
		{name: "zero amount", mutate: func(r *PostingRequest) { r.Amount = decimal.RequireFromString("0.004") }, reason: ReasonInvalidRequest},
		{name: "ledger unavailable", ledger: shared.ErrPersistenceUnavailable, reason: ReasonLedgerUnavailable},
		{name: "ledger rejects", ledger: ledger.ErrPeriodLocked, reason: ReasonRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := &fakeLedger{err: tc.ledger}
			p := newPoster(l, countingRecorder{})
			req := expenseRequest()
			if tc.mutate != nil {
				tc.mutate(&req)
			}

			id, err := p.Post(context.Background(), req)

			require.Empty(t, id)
			require.ErrorIs(t, err, shared.ErrPosting)
			var perr *PostingError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, tc.reason, perr.Reason)
			require.Empty(t, l.posted)
		})
	}
}

func TestReverseIsIdempotent(t *testing.T) {
	l := &fakeLedger{}
	rec := countingRecorder{}
	p := newPoster(l, rec)
	ctx := context.Background()

	voucher, err := p.Post(ctx, expenseRequest())
	require.NoError(t, err)

	first, err := p.Reverse(ctx, voucher, "voucher cancelled")
	require.NoError(t, err)
	require.NotEqual(t, voucher, first)
	second, err := p.Reverse(ctx, voucher, "voucher cancelled")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, rec["reversal/posted"])
	require.Equal(t, 1, rec["reversal/duplicate"])

	_, err = p.Reverse(ctx, "abc", "")
	var perr *PostingError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ReasonInvalidRequest, perr.Reason)
	require.ErrorIs(t, err, shared.ErrPosting)
}
