package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context) ([]Account, error)
	ListBoxes(ctx context.Context) ([]Account, error)
	FindByCode(ctx context.Context, code string) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, type, parent_id, is_box, currency, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context) ([]Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
}

func (r *repository) ListBoxes(ctx context.Context) ([]Account, error) {
	return r.query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_box AND is_active ORDER BY code`)
}

func (r *repository) FindByCode(ctx context.Context, code string) (Account, error) {
	row := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1 AND is_active`, code)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, db.Classify(err)
}

func (r *repository) query(ctx context.Context, sql string) ([]Account, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	accounts := make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		accounts = append(accounts, a)
	}
	return accounts, db.Classify(rows.Err())
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a        Account
		currency pgtype.Text
	)
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsBox, &currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	a.Currency = currency.String
	return a, err
}
