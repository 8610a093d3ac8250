package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/platform/db"
)

// Store reads role and permission data.
type Store interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListRoles(ctx context.Context) ([]Role, error)
	AssignRole(ctx context.Context, userID int64, role string) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EffectivePermissions returns the distinct permission names granted to the user through roles.
func (s *PGStore) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return nil, db.Classify(err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return perms, db.Classify(err)
}

// ListPermissions returns all permissions ordered by name.
func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, COALESCE(description, '') FROM permissions ORDER BY name`)
	if err != nil {
		return nil, db.Classify(err)
	}
	perms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		var p Permission
		err := row.Scan(&p.ID, &p.Name, &p.Description)
		return p, err
	})
	return perms, db.Classify(err)
}

// ListRoles returns roles with their permission names.
func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.id, r.name, COALESCE(r.description, ''), r.created_at,
       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
GROUP BY r.id
ORDER BY r.name`)
	if err != nil {
		return nil, db.Classify(err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		var r Role
		err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.Permissions)
		return r, err
	})
	return roles, db.Classify(err)
}

// AssignRole grants the named role to the user. Assigning twice is a no-op.
func (s *PGStore) AssignRole(ctx context.Context, userID int64, role string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id)
SELECT $1, id FROM roles WHERE name = $2
ON CONFLICT DO NOTHING`, userID, role)
	return db.Classify(err)
}

var _ Store = (*PGStore)(nil)
