package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	inserted   []Event
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (s *stubTimelineRepo) Insert(ctx context.Context, evt Event) error {
	s.inserted = append(s.inserted, evt)
	return nil
}

func (s *stubTimelineRepo) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilter = filters
	s.lastOffset = offset
	s.lastLimit = limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func mockRow(id int64, at string, action string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{ID: id, At: ts, ActorID: "7", ActorName: "Sara", Action: action, TargetType: "CLIENT", TargetID: "c-1"}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow(3, "2024-03-10T10:00:00Z", "UPDATE"),
		mockRow(2, "2024-03-09T09:00:00Z", "UPDATE"),
		mockRow(1, "2024-03-08T08:00:00Z", "CREATE"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Equal(t, 3, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.Equal(t, 2, repo.lastOffset)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 50, result.Paging.PageSize)
	require.Equal(t, 51, repo.lastLimit)
	require.NotNil(t, result.Rows)
}

func TestServiceRecordRequiresTarget(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	err := svc.Record(context.Background(), Event{Action: ActionCreate, TargetType: TargetClient})
	require.ErrorIs(t, err, ErrIncompleteEvent)

	require.NoError(t, svc.Record(context.Background(), Event{Action: ActionCreate, TargetType: TargetClient, TargetID: "c-1"}))
	require.Len(t, repo.inserted, 1)
}

type stubQueue struct {
	events []Event
	err    error
}

func (q *stubQueue) EnqueueAuditEvent(ctx context.Context, evt Event) error {
	q.events = append(q.events, evt)
	return q.err
}

func TestAsyncEmitterStampsAndSwallowsErrors(t *testing.T) {
	queue := &stubQueue{err: errors.New("redis down")}
	emitter := NewAsyncEmitter(queue, nil)
	emitter.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	emitter.Emit(context.Background(), Event{Action: ActionDelete, TargetType: TargetClient, TargetID: "c-9"})

	require.Len(t, queue.events, 1)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), queue.events[0].OccurredAt)
}
