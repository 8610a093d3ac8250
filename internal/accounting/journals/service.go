package journals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rawdatain/backoffice/internal/accounting/periods"
	"github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/platform/db"
)

type PeriodGuard interface {
	EnsurePeriodOpenForPosting(ctx context.Context, periodID int64) error
}

type Service struct {
	repo  Repository
	audit audit.Emitter
	guard PeriodGuard
	now   func() time.Time
}

func NewService(repo Repository, emitter audit.Emitter, guard PeriodGuard) *Service {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	return &Service{repo: repo, audit: emitter, guard: guard, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]JournalEntry, error) {
	if filters.Limit <= 0 || filters.Limit > 500 {
		filters.Limit = 100
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// EntryForSource returns the entry posted for module/ref.
func (s *Service) EntryForSource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	return s.repo.FindBySource(ctx, module, ref)
}

// PostJournal writes a balanced entry and links it to its source. A source that was already
// posted yields ErrSourceAlreadyLinked without writing anything.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if s.guard != nil {
			if err := s.guard.EnsurePeriodOpenForPosting(ctx, input.PeriodID); err != nil {
				return err
			}
		}
		linked, err := tx.SourceLinked(ctx, input.SourceModule, input.SourceID)
		if err != nil {
			return err
		}
		if linked {
			return shared.ErrSourceAlreadyLinked
		}
		period, err := tx.GetPeriodForUpdate(ctx, input.PeriodID)
		if err != nil {
			return err
		}
		if period.Status == periods.PeriodStatusLocked {
			return shared.ErrPeriodLocked
		}
		if period.Status != periods.PeriodStatusOpen {
			return shared.ErrInvalidPeriod
		}
		if !period.Covers(input.Date) {
			return shared.ErrDateOutOfRange
		}
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceID, inserted.ID); err != nil {
			if errors.Is(err, shared.ErrSourceConflict) {
				return shared.ErrSourceAlreadyLinked
			}
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, input.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	// Postings made inside a caller's transaction are audited by the caller once it commits.
	if _, nested := db.TxFromContext(ctx); !nested {
		s.emit(ctx, audit.ActionPost, entry.ID, fmt.Sprintf("Posted JE %d from %s", entry.Number, input.SourceModule), map[string]any{
			"number":        entry.Number,
			"source_module": input.SourceModule,
			"source_id":     input.SourceID.String(),
		})
	}
	return entry, nil
}

func (s *Service) VoidJournal(ctx context.Context, input VoidInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("accounting: entry id required")
	}
	var entry JournalEntry
	var lines []JournalLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, currLines, err := tx.GetJournalWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		if period.Status == periods.PeriodStatusLocked {
			return shared.ErrPeriodLocked
		}
		if period.Status == periods.PeriodStatusClosed {
			return shared.ErrInvalidPeriod
		}
		if current.Status != JournalStatusPosted {
			return shared.ErrInvalidStatus
		}
		if err := tx.UpdateJournalStatus(ctx, current.ID, JournalStatusVoid); err != nil {
			return err
		}
		entry = current
		entry.Status = JournalStatusVoid
		lines = currLines
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	s.emit(ctx, audit.ActionVoid, entry.ID, fmt.Sprintf("Voided JE %d", entry.Number), map[string]any{
		"reason": input.Reason,
	})
	return entry, nil
}

// ReverseJournal posts the mirror image of an entry. When the original period is no longer
// open the reversal lands at the start of the next open period. Each entry can be reversed once.
func (s *Service) ReverseJournal(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("accounting: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := tx.GetJournalWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return shared.ErrInvalidStatus
		}
		period, err := tx.GetPeriodForUpdate(ctx, original.PeriodID)
		if err != nil {
			return err
		}
		reversalModule, reversalRef := ReversalSource(original)
		targetPeriod := period
		targetDate := original.Date
		if input.TargetDate != nil {
			targetDate = *input.TargetDate
		}
		if period.Status != periods.PeriodStatusOpen {
			if period.Status == periods.PeriodStatusLocked && !input.Override {
				return shared.ErrPeriodLocked
			}
			next, err := tx.GetNextOpenPeriodAfter(ctx, period.EndDate.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			targetPeriod = next
			targetDate = next.StartDate
		}
		if !targetPeriod.Covers(targetDate) {
			return shared.ErrDateOutOfRange
		}
		posting := PostingInput{
			PeriodID:     targetPeriod.ID,
			Date:         targetDate,
			Currency:     original.Currency,
			SourceModule: reversalModule,
			SourceID:     reversalRef,
			Memo:         defaultReversalMemo(input.Memo, original.Number),
			PostedBy:     input.ActorID,
			Lines:        reverseLines(lines),
		}
		linked, err := tx.SourceLinked(ctx, posting.SourceModule, posting.SourceID)
		if err != nil {
			return err
		}
		if linked {
			return shared.ErrSourceAlreadyLinked
		}
		inserted, err := tx.InsertJournalEntry(ctx, posting)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, posting.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, posting.SourceModule, posting.SourceID, inserted.ID); err != nil {
			return err
		}
		reversal = inserted
		reversal.Lines = toJournalLines(inserted.ID, posting.Lines, s.now())
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.emit(ctx, audit.ActionReverse, input.EntryID, fmt.Sprintf("Reversed JE %d", input.EntryID), map[string]any{
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.Number,
	})
	return reversal, nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, entryID int64, description string, meta map[string]any) {
	evt := audit.Event{
		Action:      action,
		TargetType:  audit.TargetJournal,
		TargetID:    strconv.FormatInt(entryID, 10),
		Description: description,
		Meta:        meta,
		OccurredAt:  s.now(),
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		evt.UserID = id.UID
		evt.UserName = id.Name
	}
	s.audit.Emit(ctx, evt)
}

// ReversalSource returns the source link under which the reversal of original is recorded.
func ReversalSource(original JournalEntry) (string, uuid.UUID) {
	return original.SourceModule + ":REVERSAL", uuid.NewSHA1(original.SourceID, []byte("reversal"))
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID: entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			CreatedAt: ts,
		})
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
