package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.FieldError("amount", "is required"), http.StatusBadRequest},
		{fmt.Errorf("save: %w", shared.ErrUnauthorized), http.StatusUnauthorized},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: clients_code_key", shared.ErrDuplicate), http.StatusConflict},
		{fmt.Errorf("%w: no open period", shared.ErrPosting), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: dial tcp", shared.ErrPersistenceUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestFailWritesEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	Fail(rr, shared.FieldError("fromDate", "is required"))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body ActionResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "is required", body.Error)
	require.Equal(t, map[string]string{"fromDate": "is required"}, body.Fields)
}

func TestFailHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	Fail(rr, errors.New("pq: relation does not exist"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "relation")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "x", target.Name)
}
