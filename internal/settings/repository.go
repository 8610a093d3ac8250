package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/platform/db"
)

const documentKey = "app"

// Repository persists the settings document.
type Repository interface {
	Load(ctx context.Context) (AppSettings, bool, error)
	Store(ctx context.Context, doc AppSettings) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Load(ctx context.Context) (AppSettings, bool, error) {
	var (
		raw       []byte
		updatedBy string
		updatedAt time.Time
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT value, updated_by, updated_at FROM app_settings WHERE key = $1`, documentKey).
		Scan(&raw, &updatedBy, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AppSettings{}, false, nil
	}
	if err != nil {
		return AppSettings{}, false, db.Classify(err)
	}
	var doc AppSettings
	if err := json.Unmarshal(raw, &doc); err != nil {
		return AppSettings{}, false, fmt.Errorf("settings: decode document: %w", err)
	}
	doc.UpdatedBy = updatedBy
	doc.UpdatedAt = updatedAt
	return doc, true, nil
}

func (r *pgRepository) Store(ctx context.Context, doc AppSettings) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("settings: encode document: %w", err)
	}
	_, err = db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO app_settings (key, value, updated_by, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
		documentKey, raw, doc.UpdatedBy, doc.UpdatedAt)
	return db.Classify(err)
}
