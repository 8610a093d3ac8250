package segments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rawdatain/backoffice/internal/apportion"
	"github.com/rawdatain/backoffice/internal/integration"
	"github.com/rawdatain/backoffice/internal/platform/db"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Repository persists saved periods.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Insert(ctx context.Context, period Period) error
	SetVouchers(ctx context.Context, id string, gross, pool integration.VoucherID) error
	Get(ctx context.Context, id string) (Period, error)
	Exists(ctx context.Context, id string) (bool, error)
	RevisionOf(ctx context.Context, id string) (string, bool, error)
	List(ctx context.Context, filters ListFilters) ([]Period, error)
	FirmShareByMonth(ctx context.Context, month time.Time) ([]MonthlyTotal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, _ pgx.Tx) error {
		return fn(ctx)
	})
}

// Insert writes the period header and its entries.
func (r *repository) Insert(ctx context.Context, p Period) error {
	partners, err := json.Marshal(p.Partners)
	if err != nil {
		return fmt.Errorf("segments: encode partners: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`INSERT INTO segment_periods (id, from_date, to_date, entry_date, currency, has_partner, firm_retention, partners,
grand_total, firm_total, partner_pool_total, distributed_total, remainder, state, supersedes_id, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::text::uuid, $16, $17)`,
			p.ID, p.FromDate, p.ToDate, p.EntryDate, string(p.Currency), p.HasPartner, p.FirmRetentionPercentage, partners,
			p.Totals.GrandTotal, p.Totals.FirmTotal, p.Totals.PartnerPoolTotal, p.Totals.DistributedTotal, p.Totals.Remainder,
			string(p.State), pgtype.Text{String: p.SupersedesID, Valid: p.SupersedesID != ""}, p.CreatedBy, p.CreatedAt)
		for i, e := range p.Entries {
			lines, err := encodeLines(e.Lines)
			if err != nil {
				return fmt.Errorf("segments: encode lines: %w", err)
			}
			shares, err := json.Marshal(e.PartnerShares)
			if err != nil {
				return fmt.Errorf("segments: encode partner shares: %w", err)
			}
			batch.Queue(`INSERT INTO segment_entries (id, period_id, position, client_id, client_name, notes, lines, total, firm_share,
partner_share, partner_shares) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				e.ID, p.ID, i, e.ClientID, e.ClientName, e.Notes, lines, e.Total, e.FirmShare, e.PartnerShare, shares)
		}
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return db.Classify(err)
			}
		}
		return db.Classify(results.Close())
	})
}

func (r *repository) SetVouchers(ctx context.Context, id string, gross, pool integration.VoucherID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE segment_periods SET gross_voucher_id = $2, pool_voucher_id = $3 WHERE id = $1`,
		id, voucherText(gross), voucherText(pool))
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("segments: period %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (Period, error) {
	q := db.Conn(ctx, r.pool)
	p, err := scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+` FROM segment_periods WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, fmt.Errorf("segments: period %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Period{}, db.Classify(err)
	}
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM segment_entries WHERE period_id = $1 ORDER BY position`, id)
	if err != nil {
		return Period{}, db.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Period{}, err
		}
		p.Entries = append(p.Entries, e)
	}
	return p, db.Classify(rows.Err())
}

func (r *repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM segment_periods WHERE id = $1)`, id).Scan(&exists)
	return exists, db.Classify(err)
}

func (r *repository) RevisionOf(ctx context.Context, id string) (string, bool, error) {
	var revision string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id::text FROM segment_periods WHERE supersedes_id = $1`, id).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, db.Classify(err)
	}
	return revision, true, nil
}

// List returns period headers without entries, newest range first.
func (r *repository) List(ctx context.Context, filters ListFilters) ([]Period, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+periodColumns+` FROM segment_periods
WHERE ($1::date IS NULL OR to_date >= $1)
  AND ($2::date IS NULL OR from_date <= $2)
ORDER BY from_date DESC, created_at DESC`, optionalDate(filters.From), optionalDate(filters.To))
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, db.Classify(rows.Err())
}

// FirmShareByMonth sums the firm share of saved periods whose entry date falls in month. Periods
// superseded by a saved revision are excluded.
func (r *repository) FirmShareByMonth(ctx context.Context, month time.Time) ([]MonthlyTotal, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT p.currency, SUM(p.firm_total), COUNT(*)
FROM segment_periods p
WHERE p.state = 'saved'
  AND p.entry_date >= $1 AND p.entry_date < $2
  AND NOT EXISTS (SELECT 1 FROM segment_periods r WHERE r.supersedes_id = p.id)
GROUP BY p.currency
ORDER BY p.currency`, start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []MonthlyTotal
	for rows.Next() {
		var (
			t        MonthlyTotal
			currency string
			total    decimal.Decimal
		)
		if err := rows.Scan(&currency, &total, &t.Periods); err != nil {
			return nil, err
		}
		t.Currency = apportion.Currency(currency)
		t.FirmShare = total
		out = append(out, t)
	}
	return out, db.Classify(rows.Err())
}

func optionalDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}
