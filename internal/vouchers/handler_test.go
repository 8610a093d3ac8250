package vouchers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/auth"
)

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithIdentity(req.Context(), auth.Identity{UID: "5", Name: "Layla"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/vouchers", func(r chi.Router) {
		NewHandler(nil, f.svc).MountRoutes(r, nil)
	})
	return r
}

func postExpense(t *testing.T, h http.Handler, body any, key string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/vouchers/expense", bytes.NewReader(raw))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return rr, out
}

func TestHandlerCreateExpense(t *testing.T) {
	f := newFixture()
	h := newRouter(f)

	rr, out := postExpense(t, h, fuelExpense(), "abc")
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, true, out["success"])
	require.Equal(t, "101", out["voucherId"])

	rr, out = postExpense(t, h, fuelExpense(), "abc")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "101", out["voucherId"])
	require.Equal(t, true, out["replayed"])

	changed := fuelExpense()
	changed.BoxID = "1102"
	changed.Currency = "IQD"
	rr, out = postExpense(t, h, changed, "abc")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, false, out["success"])
	require.Len(t, f.poster.posted, 1)
}

func TestHandlerCreateExpenseRejectsUnknownFields(t *testing.T) {
	f := newFixture()
	rr, out := postExpense(t, newRouter(f), map[string]any{"date": "2024-03-12", "boxId": "1101", "extra": 1}, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, false, out["success"])
	require.NotEmpty(t, out["error"])
}
