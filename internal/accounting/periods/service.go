package periods

import (
	"context"
	"time"

	"github.com/rawdatain/backoffice/internal/accounting/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) FindOpenPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.FindOpenPeriodByDate(ctx, date)
}

func (s *Service) List(ctx context.Context) ([]Period, error) {
	return s.repo.List(ctx)
}

// EnsurePeriodOpenForPosting rejects postings into locked or closed periods.
func (s *Service) EnsurePeriodOpenForPosting(ctx context.Context, periodID int64) error {
	period, err := s.repo.Get(ctx, periodID)
	if err != nil {
		return err
	}
	switch period.Status {
	case PeriodStatusOpen:
		return nil
	case PeriodStatusLocked:
		return shared.ErrPeriodLocked
	default:
		return shared.ErrInvalidPeriod
	}
}
