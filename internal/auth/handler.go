package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	tokens         *TokenService
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenService, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		tokens:         tokens,
		sessionManager: sessions,
		csrfManager:    csrf,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	User      Identity  `json:"user"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, shared.Invalid(err))
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.Fail(w, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Fail(w, shared.ErrUnauthorized)
			return
		}
		httpx.Fail(w, err)
		return
	}

	identity := IdentityOf(*user)
	resp := loginResponse{User: identity}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetUser(strconv.FormatInt(user.ID, 10))
		expiresAt := time.Now().Add(h.sessionManager.TTL())
		if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}
	if h.tokens != nil {
		token, expiresAt, err := h.tokens.Issue(identity)
		if err != nil {
			httpx.Fail(w, err)
			return
		}
		resp.Token = token
		resp.ExpiresAt = expiresAt
	}
	h.logger.Info("user logged in", slog.String("user_id", identity.UID))
	httpx.OK(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.OK(w, http.StatusOK, nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, err := Require(r.Context())
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, id)
}
