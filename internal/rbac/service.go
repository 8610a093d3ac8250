package rbac

import (
	"context"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rawdatain/backoffice/internal/shared"
)

const permissionCacheTTL = time.Minute

// Service orchestrates RBAC operations. Effective permissions are cached per user for a minute.
type Service struct {
	store Store
	cache *gocache.Cache
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store, cache: gocache.New(permissionCacheTTL, 5*permissionCacheTTL)}
}

// EffectivePermissions returns the lower-cased permissions granted to the user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	key := strconv.FormatInt(userID, 10)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]string), nil
	}
	perms, err := s.store.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(p)))
	}
	s.cache.SetDefault(key, normalized)
	return normalized, nil
}

// Authorize returns shared.ErrForbidden unless the user holds at least one of perms.
func (s *Service) Authorize(ctx context.Context, userID int64, perms ...string) error {
	granted, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return err
	}
	if !hasAnyPermission(granted, normalizePermissions(perms)) {
		return shared.ErrForbidden
	}
	return nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// AssignRole grants a role and drops the cached permissions of the user.
func (s *Service) AssignRole(ctx context.Context, userID int64, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return shared.FieldError("role", "is required")
	}
	if err := s.store.AssignRole(ctx, userID, role); err != nil {
		return err
	}
	s.cache.Delete(strconv.FormatInt(userID, 10))
	return nil
}
