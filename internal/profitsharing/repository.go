package profitsharing

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/platform/db"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Repository persists monthly profits, manual distributions and partner shares.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListSystemMonths(ctx context.Context) ([]MonthlyProfit, error)
	GetSystemMonth(ctx context.Context, id, currency string) (MonthlyProfit, error)
	UpsertSystemMonth(ctx context.Context, month MonthlyProfit) error
	ListManual(ctx context.Context) ([]MonthlyProfit, error)
	GetManual(ctx context.Context, id string) (MonthlyProfit, error)
	InsertManual(ctx context.Context, record MonthlyProfit) error
	UpdateManual(ctx context.Context, record MonthlyProfit) error
	DeleteManual(ctx context.Context, id string) error
	SharesForMonth(ctx context.Context, monthID string) ([]ProfitShare, error)
	GetShare(ctx context.Context, id string) (ProfitShare, error)
	InsertShare(ctx context.Context, share ProfitShare) error
	UpdateShare(ctx context.Context, share ProfitShare) error
	DeleteShare(ctx context.Context, id string) error
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

func (r *repository) ListSystemMonths(ctx context.Context) ([]MonthlyProfit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+systemColumns+` FROM monthly_profits ORDER BY id DESC, currency`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []MonthlyProfit
	for rows.Next() {
		m, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, db.Classify(rows.Err())
}

func (r *repository) GetSystemMonth(ctx context.Context, id, currency string) (MonthlyProfit, error) {
	m, err := scanSystem(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+systemColumns+` FROM monthly_profits
WHERE id = $1 AND currency = $2`, id, currency))
	if errors.Is(err, pgx.ErrNoRows) {
		return MonthlyProfit{}, fmt.Errorf("profitsharing: month %s %s: %w", id, currency, shared.ErrNotFound)
	}
	if err != nil {
		return MonthlyProfit{}, db.Classify(err)
	}
	return m, nil
}

// UpsertSystemMonth writes the month total and recomputes the amounts of its shares.
func (r *repository) UpsertSystemMonth(ctx context.Context, m MonthlyProfit) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO monthly_profits (id, currency, total_profit, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (id, currency) DO UPDATE SET total_profit = EXCLUDED.total_profit, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`,
			m.ID, string(m.Currency), m.TotalProfit, m.Notes, m.UpdatedAt)
		if err != nil {
			return db.Classify(err)
		}
		_, err = tx.Exec(ctx, `UPDATE profit_shares SET amount = ROUND($3 * percentage / 100, 4)
WHERE profit_month_id = $1 AND currency = $2`, m.ID, string(m.Currency), m.TotalProfit)
		return db.Classify(err)
	})
}

func (r *repository) ListManual(ctx context.Context) ([]MonthlyProfit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+manualColumns+` FROM manual_monthly_profits ORDER BY created_at DESC`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []MonthlyProfit
	for rows.Next() {
		m, err := scanManual(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, db.Classify(rows.Err())
}

func (r *repository) GetManual(ctx context.Context, id string) (MonthlyProfit, error) {
	m, err := scanManual(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+manualColumns+` FROM manual_monthly_profits WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return MonthlyProfit{}, fmt.Errorf("profitsharing: manual distribution %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return MonthlyProfit{}, db.Classify(err)
	}
	return m, nil
}

func (r *repository) InsertManual(ctx context.Context, m MonthlyProfit) error {
	partners, err := json.Marshal(m.Partners)
	if err != nil {
		return fmt.Errorf("profitsharing: encode partners: %w", err)
	}
	_, err = db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO manual_monthly_profits (id, from_date, to_date, profit, currency, partners, notes,
revision, posted_amount, last_voucher_id, created_by, created_at, updated_at)
VALUES ($1, $2::date, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.FromDate, m.ToDate, m.TotalProfit, string(m.Currency), partners, m.Notes, m.Revision, m.PostedAmount,
		voucherText(m.VoucherID), m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	return db.Classify(err)
}

func (r *repository) UpdateManual(ctx context.Context, m MonthlyProfit) error {
	partners, err := json.Marshal(m.Partners)
	if err != nil {
		return fmt.Errorf("profitsharing: encode partners: %w", err)
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE manual_monthly_profits SET from_date = $2::date, to_date = $3::date, profit = $4,
currency = $5, partners = $6, notes = $7, revision = $8, posted_amount = $9, last_voucher_id = $10, updated_at = $11
WHERE id = $1`,
		m.ID, m.FromDate, m.ToDate, m.TotalProfit, string(m.Currency), partners, m.Notes, m.Revision, m.PostedAmount,
		voucherText(m.VoucherID), m.UpdatedAt)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profitsharing: manual distribution %s: %w", m.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) DeleteManual(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM manual_monthly_profits WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profitsharing: manual distribution %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) SharesForMonth(ctx context.Context, monthID string) ([]ProfitShare, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+shareColumns+` FROM profit_shares
WHERE profit_month_id = $1 ORDER BY currency, created_at`, monthID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []ProfitShare
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, db.Classify(rows.Err())
}

func (r *repository) GetShare(ctx context.Context, id string) (ProfitShare, error) {
	s, err := scanShare(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+shareColumns+` FROM profit_shares WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ProfitShare{}, fmt.Errorf("profitsharing: share %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return ProfitShare{}, db.Classify(err)
	}
	return s, nil
}

func (r *repository) InsertShare(ctx context.Context, s ProfitShare) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO profit_shares (id, profit_month_id, currency, partner_id, partner_name,
percentage, amount, notes, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.ProfitMonthID, string(s.Currency), s.PartnerID, s.PartnerName, s.Percentage, s.Amount, s.Notes, s.CreatedBy, s.CreatedAt)
	if db.IsUniqueViolation(err, "profit_shares_month_partner_key") {
		return fmt.Errorf("%w: partner already has a share of %s", shared.ErrDuplicate, s.ProfitMonthID)
	}
	return db.Classify(err)
}

func (r *repository) UpdateShare(ctx context.Context, s ProfitShare) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE profit_shares SET partner_id = $2, partner_name = $3, percentage = $4,
amount = $5, notes = $6 WHERE id = $1`, s.ID, s.PartnerID, s.PartnerName, s.Percentage, s.Amount, s.Notes)
	if db.IsUniqueViolation(err, "profit_shares_month_partner_key") {
		return fmt.Errorf("%w: partner already has a share of %s", shared.ErrDuplicate, s.ProfitMonthID)
	}
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profitsharing: share %s: %w", s.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) DeleteShare(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM profit_shares WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profitsharing: share %s: %w", id, shared.ErrNotFound)
	}
	return nil
}
