package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rawdatain/backoffice/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrPersistenceUnavailable) {
			return nil, err
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// IdentityFor resolves the identity of an active user by the id stored in a session.
func (s *Service) IdentityFor(ctx context.Context, uid string) (Identity, error) {
	id, err := strconv.ParseInt(uid, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, shared.ErrUnauthorized
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Identity{}, shared.ErrUnauthorized
		}
		return Identity{}, err
	}
	if !user.IsActive {
		return Identity{}, shared.ErrUnauthorized
	}
	return IdentityOf(*user), nil
}

// ListUsers returns the identities of active users.
func (s *Service) ListUsers(ctx context.Context) ([]Identity, error) {
	users, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Identity, 0, len(users))
	for _, u := range users {
		out = append(out, IdentityOf(u))
	}
	return out, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
