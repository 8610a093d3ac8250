package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/accounting/shared"
	"github.com/rawdatain/backoffice/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	Upsert(ctx context.Context, module, key string, accountID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("accounting: module and key required")
	}
	var mapping AccountMapping
	err := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT module, key, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`, strings.ToUpper(module), key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, db.Classify(err)
	}
	return mapping, nil
}

// Upsert points module/key at accountID.
func (r *repository) Upsert(ctx context.Context, module, key string, accountID int64) error {
	_, err := db.Conn(ctx, r.db).Exec(ctx, `INSERT INTO account_mappings (module, key, account_id) VALUES ($1, $2, $3)
ON CONFLICT (module, key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()`, strings.ToUpper(module), key, accountID)
	return db.Classify(err)
}
