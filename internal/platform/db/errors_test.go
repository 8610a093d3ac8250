package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/shared"
)

func TestClassifyUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_clients_code"})

	classified := Classify(err)

	require.ErrorIs(t, classified, shared.ErrDuplicate)
	require.True(t, IsUniqueViolation(err, "uq_clients_code"))
	require.True(t, IsUniqueViolation(err, ""))
	require.False(t, IsUniqueViolation(err, "uq_other"))
}

func TestClassifyUnavailable(t *testing.T) {
	require.ErrorIs(t, Classify(context.DeadlineExceeded), shared.ErrPersistenceUnavailable)
	require.ErrorIs(t, Classify(fmt.Errorf("query: %w", context.DeadlineExceeded)), shared.ErrPersistenceUnavailable)
}

func TestClassifyPassThrough(t *testing.T) {
	plain := errors.New("boom")
	require.Same(t, plain, Classify(plain))
	require.NoError(t, Classify(nil))

	fk := &pgconn.PgError{Code: "23503"}
	require.Equal(t, error(fk), Classify(fk))
}

func TestConnWithoutTransaction(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	require.False(t, ok)
}
