package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/platform/db"
)

// Repository menyediakan akses penyimpanan audit_logs.
type Repository interface {
	Insert(ctx context.Context, evt Event) error
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Insert(ctx context.Context, evt Event) error {
	meta, err := json.Marshal(evt.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, actor_name, action, entity, entity_id, description, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		evt.UserID, evt.UserName, string(evt.Action), string(evt.TargetType), evt.TargetID, evt.Description, meta, toPgTime(evt.OccurredAt))
	return db.Classify(err)
}

func (r *pgRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, occurred_at, actor_id, actor_name, action, entity, entity_id, description, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor_id = $3 OR actor_name ILIKE '%' || $3 || '%')
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6 LIMIT $7`,
		toPgTime(filters.From), toPgTime(endOfDay(filters.To)), optionalText(filters.Actor),
		optionalText(strings.ToUpper(filters.TargetType)), optionalText(strings.ToUpper(filters.Action)), offset, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.ActorName, &row.Action, &row.TargetType, &row.TargetID, &row.Description, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, db.Classify(rows.Err())
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.AddDate(0, 0, 1)
}
