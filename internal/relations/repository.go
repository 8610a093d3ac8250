package relations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/platform/db"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Repository stores clients and suppliers.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Client, error)
	Get(ctx context.Context, id string) (Client, error)
	Insert(ctx context.Context, clients []Client) error
	Update(ctx context.Context, client Client) error
	Delete(ctx context.Context, ids []string) (int64, error)
	IncrementUseCount(ctx context.Context, ids []string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	switch filters.RelationType {
	case RelationClient, RelationSupplier:
		query += ` AND relation_type IN (` + arg(string(filters.RelationType)) + `, 'both')`
	case RelationBoth:
		query += ` AND relation_type = 'both'`
	}
	if filters.PaymentType != "" {
		query += ` AND payment_type = ` + arg(string(filters.PaymentType))
	}
	if filters.Status != "" {
		query += ` AND status = ` + arg(string(filters.Status))
	} else if !filters.IncludeInactive {
		query += ` AND status = 'active'`
	}
	if country := strings.TrimSpace(filters.Country); country != "" {
		query += ` AND country = ` + arg(country)
	}
	if province := strings.TrimSpace(filters.Province); province != "" {
		query += ` AND province = ` + arg(province)
	}
	query += ` ORDER BY name`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, db.Classify(rows.Err())
}

func (r *repository) Get(ctx context.Context, id string) (Client, error) {
	c, err := scanClient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, fmt.Errorf("relations: client %s: %w", id, shared.ErrNotFound)
	}
	return c, db.Classify(err)
}

// Insert writes every client in one transaction.
func (r *repository) Insert(ctx context.Context, clients []Client) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range clients {
			settings, err := encodeSettings(c)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO clients (id, code, name, type, relation_type, payment_type, status, phone, email, country, province,
segment_settings, use_count, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, $13, $14, $14)`,
				c.ID, c.Code, c.Name, string(c.Type), string(c.RelationType), string(c.PaymentType), string(c.Status),
				c.Phone, c.Email, c.Country, c.Province, settings, c.CreatedBy, c.CreatedAt)
		}
		results := tx.SendBatch(ctx, batch)
		for range clients {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return db.Classify(err)
			}
		}
		return db.Classify(results.Close())
	})
}

func (r *repository) Update(ctx context.Context, c Client) error {
	settings, err := encodeSettings(c)
	if err != nil {
		return err
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE clients SET code = $2, name = $3, type = $4, relation_type = $5, payment_type = $6,
status = $7, phone = $8, email = $9, country = $10, province = $11, segment_settings = $12, updated_at = $13
WHERE id = $1`,
		c.ID, c.Code, c.Name, string(c.Type), string(c.RelationType), string(c.PaymentType), string(c.Status),
		c.Phone, c.Email, c.Country, c.Province, settings, c.UpdatedAt)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relations: client %s: %w", c.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, ids []string) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM clients WHERE id = ANY($1::text[]::uuid[]) AND use_count = 0`, ids)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (r *repository) IncrementUseCount(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE clients SET use_count = use_count + 1 WHERE id = ANY($1::text[]::uuid[])`, ids)
	return db.Classify(err)
}
