package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rawdatain/backoffice/internal/accounting/shared"
)

type memRepo struct {
	periods []Period
}

func (m memRepo) FindOpenPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	for _, p := range m.periods {
		if p.Status == PeriodStatusOpen && p.Covers(date) {
			return p, nil
		}
	}
	return Period{}, shared.ErrInvalidPeriod
}

func (m memRepo) Get(ctx context.Context, id int64) (Period, error) {
	for _, p := range m.periods {
		if p.ID == id {
			return p, nil
		}
	}
	return Period{}, shared.ErrInvalidPeriod
}

func (m memRepo) List(ctx context.Context) ([]Period, error) { return m.periods, nil }

func TestEnsurePeriodOpenForPosting(t *testing.T) {
	svc := NewService(memRepo{periods: []Period{
		{ID: 1, Status: PeriodStatusOpen},
		{ID: 2, Status: PeriodStatusClosed},
		{ID: 3, Status: PeriodStatusLocked},
	}})
	ctx := context.Background()

	require.NoError(t, svc.EnsurePeriodOpenForPosting(ctx, 1))
	require.ErrorIs(t, svc.EnsurePeriodOpenForPosting(ctx, 2), shared.ErrInvalidPeriod)
	require.ErrorIs(t, svc.EnsurePeriodOpenForPosting(ctx, 3), shared.ErrPeriodLocked)
	require.ErrorIs(t, svc.EnsurePeriodOpenForPosting(ctx, 9), shared.ErrInvalidPeriod)
}

func TestCoversIgnoresTimeOfDay(t *testing.T) {
	p := Period{
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	require.True(t, p.Covers(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)))
	require.False(t, p.Covers(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))

	svc := NewService(memRepo{periods: []Period{{ID: 4, Status: PeriodStatusOpen, StartDate: p.StartDate, EndDate: p.EndDate}}})
	found, err := svc.FindOpenPeriodByDate(context.Background(), time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(4), found.ID)
}
