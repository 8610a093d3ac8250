package accounts

import (
	"context"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// ListBoxes returns the active cash box accounts.
func (s *Service) ListBoxes(ctx context.Context) ([]Account, error) {
	return s.repo.ListBoxes(ctx)
}

// FindByCode resolves an active account by its chart code.
func (s *Service) FindByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.FindByCode(ctx, strings.TrimSpace(code))
}
