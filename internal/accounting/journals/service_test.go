package journals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/accounting/periods"
	"github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
)

type memLedger struct {
	periods map[int64]periods.Period
	entries map[int64]JournalEntry
	lines   map[int64][]JournalLine
	links   map[string]int64
	nextID  int64
}

func newMemLedger(ps ...periods.Period) *memLedger {
	m := &memLedger{
		periods: make(map[int64]periods.Period),
		entries: make(map[int64]JournalEntry),
		lines:   make(map[int64][]JournalLine),
		links:   make(map[string]int64),
	}
	for _, p := range ps {
		m.periods[p.ID] = p
	}
	return m
}

func (m *memLedger) List(ctx context.Context, filters ListFilters) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *memLedger) Get(ctx context.Context, id int64) (JournalEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	e.Lines = m.lines[id]
	return e, nil
}

func (m *memLedger) FindBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	id, ok := m.links[module+"|"+ref.String()]
	if !ok {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return m.entries[id], nil
}

func (m *memLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memLedger) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	m.nextID++
	e := JournalEntry{
		ID: m.nextID, Number: 1000 + m.nextID, PeriodID: in.PeriodID, Date: in.Date, Currency: in.Currency,
		SourceModule: in.SourceModule, SourceID: in.SourceID, Memo: in.Memo, PostedBy: in.PostedBy, Status: JournalStatusPosted,
	}
	m.entries[e.ID] = e
	return e, nil
}

func (m *memLedger) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, l := range lines {
		m.lines[entryID] = append(m.lines[entryID], JournalLine{JournalID: entryID, AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit})
	}
	return nil
}

func (m *memLedger) SourceLinked(ctx context.Context, module string, ref uuid.UUID) (bool, error) {
	_, ok := m.links[module+"|"+ref.String()]
	return ok, nil
}

func (m *memLedger) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	key := module + "|" + ref.String()
	if _, ok := m.links[key]; ok {
		return shared.ErrSourceConflict
	}
	m.links[key] = entryID
	return nil
}

func (m *memLedger) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	e, ok := m.entries[entryID]
	if !ok {
		return JournalEntry{}, nil, shared.ErrJournalNotFound
	}
	return e, m.lines[entryID], nil
}

func (m *memLedger) UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error {
	e := m.entries[entryID]
	e.Status = status
	m.entries[entryID] = e
	return nil
}

func (m *memLedger) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	p, ok := m.periods[periodID]
	if !ok {
		return periods.Period{}, shared.ErrInvalidPeriod
	}
	return p, nil
}

func (m *memLedger) GetNextOpenPeriodAfter(ctx context.Context, date time.Time) (periods.Period, error) {
	var best *periods.Period
	for _, p := range m.periods {
		p := p
		if p.Status == periods.PeriodStatusOpen && !p.StartDate.Before(date) && (best == nil || p.StartDate.Before(best.StartDate)) {
			best = &p
		}
	}
	if best == nil {
		return periods.Period{}, shared.ErrInvalidPeriod
	}
	return *best, nil
}

type recordingEmitter struct {
	events []audit.Event
}

func (r *recordingEmitter) Emit(ctx context.Context, evt audit.Event) {
	r.events = append(r.events, evt)
}

var (
	march = periods.Period{ID: 1, Code: "2024-03", Status: periods.PeriodStatusOpen,
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}
	april = periods.Period{ID: 2, Code: "2024-04", Status: periods.PeriodStatusOpen,
		StartDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)}
)

func posting(amount string) PostingInput {
	amt := decimal.RequireFromString(amount)
	return PostingInput{
		PeriodID:     march.ID,
		Date:         time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Currency:     "USD",
		SourceModule: "manualExpense",
		SourceID:     uuid.NewSHA1(uuid.Nil, []byte("voucher-1")),
		Memo:         "fuel",
		PostedBy:     "7",
		Lines: []PostingLineInput{
			{AccountID: 10, Debit: amt},
			{AccountID: 20, Credit: amt},
		},
	}
}

func TestPostJournalIsIdempotentPerSource(t *testing.T) {
	repo := newMemLedger(march)
	emitter := &recordingEmitter{}
	svc := NewService(repo, emitter, nil)
	ctx := auth.WithIdentity(context.Background(), auth.Identity{UID: "7", Name: "Amal"})

	entry, err := svc.PostJournal(ctx, posting("125.50"))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	require.Len(t, emitter.events, 1)
	require.Equal(t, audit.ActionPost, emitter.events[0].Action)
	require.Equal(t, "Amal", emitter.events[0].UserName)

	_, err = svc.PostJournal(ctx, posting("125.50"))
	require.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
	require.Len(t, repo.entries, 1)
}

func TestPostJournalValidation(t *testing.T) {
	svc := NewService(newMemLedger(march), nil, nil)
	ctx := context.Background()

	unbalanced := posting("10")
	unbalanced.Lines[1].Credit = decimal.RequireFromString("9.99")
	_, err := svc.PostJournal(ctx, unbalanced)
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	single := posting("10")
	single.Lines = single.Lines[:1]
	_, err = svc.PostJournal(ctx, single)
	require.ErrorIs(t, err, shared.ErrTooFewLines)

	outside := posting("10")
	outside.Date = april.StartDate
	_, err = svc.PostJournal(ctx, outside)
	require.ErrorIs(t, err, shared.ErrDateOutOfRange)
}

func TestPostJournalRespectsLockedPeriod(t *testing.T) {
	locked := march
	locked.Status = periods.PeriodStatusLocked
	svc := NewService(newMemLedger(locked), nil, nil)

	_, err := svc.PostJournal(context.Background(), posting("10"))
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestVoidJournal(t *testing.T) {
	repo := newMemLedger(march)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	entry, err := svc.PostJournal(ctx, posting("40"))
	require.NoError(t, err)

	voided, err := svc.VoidJournal(ctx, VoidInput{EntryID: entry.ID, ActorID: "7", Reason: "duplicate"})
	require.NoError(t, err)
	require.Equal(t, JournalStatusVoid, voided.Status)

	_, err = svc.VoidJournal(ctx, VoidInput{EntryID: entry.ID, ActorID: "7"})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestReverseJournalMovesToNextOpenPeriodOnce(t *testing.T) {
	repo := newMemLedger(march, april)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	entry, err := svc.PostJournal(ctx, posting("75"))
	require.NoError(t, err)

	closed := repo.periods[march.ID]
	closed.Status = periods.PeriodStatusClosed
	repo.periods[march.ID] = closed

	reversal, err := svc.ReverseJournal(ctx, ReverseInput{EntryID: entry.ID, ActorID: "7"})
	require.NoError(t, err)
	require.Equal(t, april.ID, reversal.PeriodID)
	require.True(t, reversal.Lines[0].Credit.Equal(decimal.NewFromInt(75)))
	require.True(t, reversal.Lines[1].Debit.Equal(decimal.NewFromInt(75)))
	require.Equal(t, "Reversal of JE 1001", reversal.Memo)

	_, err = svc.ReverseJournal(ctx, ReverseInput{EntryID: entry.ID, ActorID: "7"})
	require.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
}
