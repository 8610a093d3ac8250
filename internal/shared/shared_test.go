package shared_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/shared"
)

func TestPageSlicesItems(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, meta := shared.Page(items, 2, 2)
	require.Equal(t, []int{3, 4}, page)
	require.Equal(t, 3, meta.TotalPages)

	last, _ := shared.Page(items, 3, 2)
	require.Equal(t, []int{5}, last)

	beyond, meta := shared.Page(items, 9, 2)
	require.Empty(t, beyond)
	require.Equal(t, 5, meta.Total)
}

func TestPageFarBeyondLastPage(t *testing.T) {
	items := []int{1, 2, 3}

	for _, page := range []int{1 << 62, math.MaxInt} {
		got, meta := shared.Page(items, page, 20)
		require.Empty(t, got)
		require.Equal(t, 3, meta.Total)
		require.Equal(t, 1, meta.TotalPages)
	}

	start, end := shared.Pagination{Page: 2, PerPage: 0, Total: 3}.Bounds()
	require.Zero(t, start)
	require.Zero(t, end)
}

func TestPaginationDefaults(t *testing.T) {
	p := shared.NewPagination(0, 0, 45)
	require.Equal(t, 1, p.Page)
	require.Equal(t, shared.DefaultPageSize, p.PerPage)
	require.Equal(t, 3, p.TotalPages)

	p = shared.NewPagination(1, 1000, 10)
	require.Equal(t, shared.MaxPageSize, p.PerPage)
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := shared.FieldError("percentage", "must be between 0 and 100")
	require.True(t, errors.Is(err, shared.ErrValidation))
	require.Equal(t, "must be between 0 and 100", err.Error())

	wrapped := shared.Invalid(errors.New("boom"))
	require.ErrorIs(t, wrapped, shared.ErrValidation)
	require.Nil(t, shared.Invalid(nil))
}

func TestValidateStructUsesJSONNames(t *testing.T) {
	type input struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"omitempty,email"`
	}
	err := shared.ValidateStruct(input{Email: "nope"})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "is required", ve.Fields["name"])
	require.Equal(t, "must be a valid email", ve.Fields["email"])
}
