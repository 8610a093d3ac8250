package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrIdempotencyConflict indicates the key was already processed for the same request.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrIdempotencyMismatch indicates the key was already used for a different request.
	ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key reused with a different request", ErrDuplicate)
)

// IdempotencyStore records client supplied request keys per module.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert claims key for module. fingerprint identifies the request payload: a repeat
// with the same fingerprint returns ErrIdempotencyConflict, a different one ErrIdempotencyMismatch.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module, fingerprint string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" || module == "" {
		return NewValidationError("idempotency key and module required")
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, fingerprint, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (key, module) DO NOTHING`, key, module, fingerprint, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var stored string
	if err := s.pool.QueryRow(ctx, `SELECT fingerprint FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module).Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return matchFingerprint(stored, fingerprint)
}

func matchFingerprint(stored, fingerprint string) error {
	if stored != fingerprint {
		return ErrIdempotencyMismatch
	}
	return ErrIdempotencyConflict
}

// Release removes a key so a failed request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key, module string) error {
	if s == nil || key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().UTC().Add(-olderThan))
	return err
}
