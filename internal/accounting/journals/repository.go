package journals

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/accounting/periods"
	"github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]JournalEntry, error)
	Get(ctx context.Context, id int64) (JournalEntry, error)
	FindBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error)
	// WithTx joins the transaction carried by ctx, if any.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	SourceLinked(ctx context.Context, module string, ref uuid.UUID) (bool, error)
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error

	GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error)
	GetNextOpenPeriodAfter(ctx context.Context, date time.Time) (periods.Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, number, period_id, date, currency, source_module, source_id, memo, posted_by, posted_at, status, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	if filters.SourceModule != "" {
		args = append(args, filters.SourceModule)
		where = append(where, "source_module = $"+strconv.Itoa(len(args)))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	sql := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filters.Limit)
	sql += " ORDER BY number DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	entries := make([]JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		entries = append(entries, e)
	}
	return entries, db.Classify(rows.Err())
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	entry, lines, err := (&txRepository{q: r.db}).GetJournalWithLines(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) FindBySource(ctx context.Context, module string, ref uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(db.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+prefixed("je.", entryColumns)+`
FROM source_links sl JOIN journal_entries je ON je.id = sl.je_id
WHERE sl.module=$1 AND sl.ref_id=$2`, module, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, db.Classify(err)
	}
	return entry, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + p
	}
	return strings.Join(parts, ", ")
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

type txRepository struct {
	q db.Querier
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO journal_entries (period_id, date, currency, source_module, source_id, memo, posted_by, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,'POSTED') RETURNING id, number, posted_at, created_at, updated_at`,
		in.PeriodID, in.Date, in.Currency, in.SourceModule, in.SourceID, in.Memo, pgtype.Text{String: in.PostedBy, Valid: in.PostedBy != ""})
	entry := JournalEntry{
		PeriodID:     in.PeriodID,
		Date:         in.Date,
		Currency:     in.Currency,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		PostedBy:     in.PostedBy,
		Status:       JournalStatusPosted,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, db.Classify(err)
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.q.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit) VALUES ($1,$2,$3,$4)`,
			entryID, line.AccountID, line.Debit.Round(2), line.Credit.Round(2)); err != nil {
			return db.Classify(err)
		}
	}
	return nil
}

func (r *txRepository) SourceLinked(ctx context.Context, module string, ref uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM source_links WHERE module=$1 AND ref_id=$2)`, module, ref).Scan(&exists)
	return exists, db.Classify(err)
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	cmd, err := r.q.Exec(ctx, `INSERT INTO source_links (module, ref_id, je_id) VALUES ($1,$2,$3)
ON CONFLICT ON CONSTRAINT uq_source_links DO NOTHING`, module, ref, entryID)
	if err != nil {
		return db.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrSourceConflict
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(r.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, shared.ErrJournalNotFound
		}
		return JournalEntry{}, nil, db.Classify(err)
	}
	rows, err := r.q.Query(ctx, `SELECT id, je_id, account_id, debit, credit, created_at
FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, db.Classify(err)
	}
	defer rows.Close()
	lines := make([]JournalLine, 0)
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return JournalEntry{}, nil, db.Classify(err)
		}
		lines = append(lines, line)
	}
	return entry, lines, db.Classify(rows.Err())
}

func (r *txRepository) UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error {
	cmd, err := r.q.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, entryID, status)
	if err != nil {
		return db.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

// GetPeriodForUpdate fetches the period and locks it for the rest of the transaction.
func (r *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	return scanPeriod(r.q.QueryRow(ctx, `SELECT id, code, start_date, end_date, status, closed_at, created_at, updated_at
FROM periods WHERE id=$1 FOR UPDATE`, periodID))
}

func (r *txRepository) GetNextOpenPeriodAfter(ctx context.Context, date time.Time) (periods.Period, error) {
	return scanPeriod(r.q.QueryRow(ctx, `SELECT id, code, start_date, end_date, status, closed_at, created_at, updated_at
FROM periods WHERE status='OPEN' AND start_date >= $1 ORDER BY start_date ASC LIMIT 1`, date))
}

func scanPeriod(row pgx.Row) (periods.Period, error) {
	var p periods.Period
	err := row.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrInvalidPeriod
		}
		return periods.Period{}, db.Classify(err)
	}
	return p, nil
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e        JournalEntry
		postedBy pgtype.Text
	)
	err := row.Scan(&e.ID, &e.Number, &e.PeriodID, &e.Date, &e.Currency, &e.SourceModule, &e.SourceID, &e.Memo, &postedBy, &e.PostedAt, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	e.PostedBy = postedBy.String
	return e, err
}
