package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
	_ "github.com/rawdatain/backoffice/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) ListActive(ctx context.Context) ([]auth.User, error) {
	if s.user == nil {
		return nil, nil
	}
	return []auth.User{*s.user}, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type fixture struct {
	handler  *auth.Handler
	service  *auth.Service
	tokens   *auth.TokenService
	sessions *shared.SessionManager
	repo     *stubRepo
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "amal@test.local", Name: "Amal", PasswordHash: string(hashed), IsActive: true}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "bo_session", time.Hour, false)
	service := auth.NewService(repo)
	tokens := auth.NewTokenService("jwt-secret", time.Hour)
	handler := auth.NewHandler(nil, service, tokens, sessions, shared.NewCSRFManager("csrf-secret"))
	return fixture{handler: handler, service: service, tokens: tokens, sessions: sessions, repo: repo}
}

// serve runs the request through session loading, the auth routes and session commit.
func (f fixture) serve(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	sess, err := f.sessions.Load(req.Context(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	w := &committingWriter{ResponseRecorder: res, commit: func() error { return f.sessions.Commit(ctx, res, sess) }}

	router := http.NewServeMux()
	mux := auth.Middleware(f.service, f.tokens, nil)
	router.Handle("/", mux(routes(f.handler)))
	router.ServeHTTP(w, req.WithContext(ctx))
	if !w.committed {
		w.flushSession()
	}
	require.NoError(t, w.err)
	return res
}

// committingWriter saves the session before the status line is written, as the server does.
type committingWriter struct {
	*httptest.ResponseRecorder
	commit    func() error
	committed bool
	err       error
}

func (w *committingWriter) flushSession() {
	w.committed = true
	w.err = w.commit()
}

func (w *committingWriter) WriteHeader(code int) {
	if !w.committed {
		w.flushSession()
	}
	w.ResponseRecorder.WriteHeader(code)
}

func (w *committingWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseRecorder.Write(b)
}

func decodeResult(t *testing.T, res *httptest.ResponseRecorder) httpx.ActionResult {
	t.Helper()
	var out httpx.ActionResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out
}

func TestLoginIssuesTokenAndSession(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"amal@test.local","password":"correctpass"}`))
	res := f.serve(t, req)

	require.Equal(t, http.StatusOK, res.Code)
	out := decodeResult(t, res)
	require.True(t, out.Success)
	data := out.Data.(map[string]any)
	require.NotEmpty(t, data["token"])
	require.Len(t, f.repo.sessions, 1)

	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)

	me := httptest.NewRequest(http.MethodGet, "/me", nil)
	me.AddCookie(cookies[0])
	meRes := f.serve(t, me)
	require.Equal(t, http.StatusOK, meRes.Code)
	require.Equal(t, "Amal", decodeResult(t, meRes).Data.(map[string]any)["name"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"amal@test.local","password":"wrongpass"}`))
	res := f.serve(t, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	out := decodeResult(t, res)
	require.False(t, out.Success)
	require.Equal(t, shared.ErrUnauthorized.Error(), out.Error)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"not-an-email","password":"x"}`))
	res := f.serve(t, req)

	require.Equal(t, http.StatusBadRequest, res.Code)
	out := decodeResult(t, res)
	require.Contains(t, out.Fields, "email")
	require.Contains(t, out.Fields, "password")
}

func TestMeWithBearerToken(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.tokens.Issue(auth.Identity{UID: "7", Name: "Amal"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := f.serve(t, req)

	require.Equal(t, http.StatusOK, res.Code)
}

func TestMeWithoutIdentity(t *testing.T) {
	f := newFixture(t)

	res := f.serve(t, httptest.NewRequest(http.MethodGet, "/me", nil))

	require.Equal(t, http.StatusUnauthorized, res.Code)
}
