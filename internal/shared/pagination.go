package shared

import "math"

const (
	// DefaultPageSize applies when a listing request carries no page size.
	DefaultPageSize = 20
	// MaxPageSize caps page sizes requested by clients.
	MaxPageSize = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Bounds returns the slice bounds of the current page within Total items.
// Pages past the last one yield an empty range.
func (p Pagination) Bounds() (start, end int) {
	if p.PerPage <= 0 || p.Page <= 0 {
		return 0, 0
	}
	if p.Page-1 >= (p.Total+p.PerPage-1)/p.PerPage {
		return p.Total, p.Total
	}
	start = (p.Page - 1) * p.PerPage
	end = start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}

// Page returns the items of the requested page along with its metadata.
func Page[T any](items []T, page, perPage int) ([]T, Pagination) {
	p := NewPagination(page, perPage, len(items))
	start, end := p.Bounds()
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out, p
}
