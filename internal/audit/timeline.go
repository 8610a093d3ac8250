package audit

import "time"

// TimelineFilters menampung filter dasar untuk audit timeline.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	Actor      string
	TargetType string
	Action     string
	Page       int
	PageSize   int
}

// TimelineRow mewakili satu baris audit timeline.
type TimelineRow struct {
	ID          int64          `json:"id"`
	At          time.Time      `json:"at"`
	ActorID     string         `json:"actorId"`
	ActorName   string         `json:"actorName"`
	Action      string         `json:"action"`
	TargetType  string         `json:"targetType"`
	TargetID    string         `json:"targetId"`
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
