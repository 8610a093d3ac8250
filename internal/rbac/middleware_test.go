package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/shared"
)

type stubStore struct {
	perms map[int64][]string
	calls int
}

func (s *stubStore) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	s.calls++
	return s.perms[userID], nil
}

func (s *stubStore) ListPermissions(ctx context.Context) ([]Permission, error) { return nil, nil }

func (s *stubStore) ListRoles(ctx context.Context) ([]Role, error) { return nil, nil }

func (s *stubStore) AssignRole(ctx context.Context, userID int64, role string) error {
	s.perms[userID] = append(s.perms[userID], role)
	return nil
}

func serveWith(t *testing.T, mw func(http.Handler) http.Handler, id *auth.Identity) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	res := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(res, req)
	return res.Code
}

func TestRequireAny(t *testing.T) {
	store := &stubStore{perms: map[int64][]string{1: {"Segments.Edit"}, 2: {"segments.view"}}}
	m := Middleware{Service: NewService(store)}
	mw := m.RequireAny(shared.PermSegmentsEdit)

	require.Equal(t, http.StatusUnauthorized, serveWith(t, mw, nil))
	require.Equal(t, http.StatusNoContent, serveWith(t, mw, &auth.Identity{UID: "1", Name: "A"}))
	require.Equal(t, http.StatusForbidden, serveWith(t, mw, &auth.Identity{UID: "2", Name: "B"}))
	require.Equal(t, http.StatusForbidden, serveWith(t, mw, &auth.Identity{UID: "svc", Name: "C"}))
}

func TestRequireAll(t *testing.T) {
	store := &stubStore{perms: map[int64][]string{1: {"profit.view", "profit.edit"}, 2: {"profit.view"}}}
	m := Middleware{Service: NewService(store)}
	mw := m.RequireAll(shared.PermProfitView, shared.PermProfitEdit)

	require.Equal(t, http.StatusNoContent, serveWith(t, mw, &auth.Identity{UID: "1"}))
	require.Equal(t, http.StatusForbidden, serveWith(t, mw, &auth.Identity{UID: "2"}))
}

func TestEffectivePermissionsCachedUntilAssignment(t *testing.T) {
	store := &stubStore{perms: map[int64][]string{5: {"audit.view"}}}
	svc := NewService(store)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, 5, shared.PermAuditView))
	require.NoError(t, svc.Authorize(ctx, 5, shared.PermAuditView))
	require.Equal(t, 1, store.calls)

	require.ErrorIs(t, svc.Authorize(ctx, 5, shared.PermSettingsEdit), shared.ErrForbidden)
	require.NoError(t, svc.AssignRole(ctx, 5, shared.PermSettingsEdit))
	require.NoError(t, svc.Authorize(ctx, 5, shared.PermSettingsEdit))
	require.Equal(t, 2, store.calls)
}
