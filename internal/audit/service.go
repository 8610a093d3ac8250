package audit

import (
	"context"
	"errors"
	"fmt"
)

// ErrIncompleteEvent menandai event tanpa action, target type atau target id.
var ErrIncompleteEvent = errors.New("audit: event requires action, target type and target id")

// Service mengoordinasikan pencatatan dan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record menyimpan satu event. Dipanggil oleh worker.
func (s *Service) Record(ctx context.Context, evt Event) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	if evt.Action == "" || evt.TargetType == "" || evt.TargetID == "" {
		return ErrIncompleteEvent
	}
	return s.repo.Insert(ctx, evt)
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
