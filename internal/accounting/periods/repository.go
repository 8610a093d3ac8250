package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/platform/db"
)

type Repository interface {
	FindOpenPeriodByDate(ctx context.Context, date time.Time) (Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context) ([]Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, code, start_date, end_date, status, closed_at, created_at, updated_at`

// FindOpenPeriodByDate returns the open period covering the supplied date.
func (r *repository) FindOpenPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	row := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+periodColumns+`
FROM periods WHERE status='OPEN' AND $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, date)
	return scanPeriod(row)
}

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	row := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id)
	return scanPeriod(row)
}

func (r *repository) List(ctx context.Context) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date DESC`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	out := make([]Period, 0)
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, db.Classify(rows.Err())
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrInvalidPeriod
		}
		return Period{}, db.Classify(err)
	}
	return p, nil
}
