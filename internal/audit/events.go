package audit

import (
	"context"
	"log/slog"
	"time"
)

// Action menandai jenis perubahan yang dicatat.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionPost    Action = "POST"
	ActionVoid    Action = "VOID"
	ActionReverse Action = "REVERSE"
)

// TargetType menandai entitas yang berubah.
type TargetType string

const (
	TargetClient       TargetType = "CLIENT"
	TargetSegment      TargetType = "SEGMENT"
	TargetProfitShare  TargetType = "PROFIT_SHARE"
	TargetManualProfit TargetType = "MANUAL_PROFIT"
	TargetVoucher      TargetType = "VOUCHER"
	TargetJournal      TargetType = "JOURNAL"
	TargetSettings     TargetType = "SETTINGS"
)

// Event is emitted after a successful create, update or delete.
type Event struct {
	UserID      string         `json:"userId"`
	UserName    string         `json:"userName"`
	Action      Action         `json:"action"`
	TargetType  TargetType     `json:"targetType"`
	TargetID    string         `json:"targetId"`
	Description string         `json:"description"`
	Meta        map[string]any `json:"meta,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// Emitter publishes audit events. Emit never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// NopEmitter drops every event.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(context.Context, Event) {}

// Enqueuer hands an event to the background queue.
type Enqueuer interface {
	EnqueueAuditEvent(ctx context.Context, evt Event) error
}

// AsyncEmitter enqueues events for the worker; enqueue failures are logged and swallowed.
type AsyncEmitter struct {
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewAsyncEmitter membuat emitter yang mengirim event ke antrean.
func NewAsyncEmitter(queue Enqueuer, logger *slog.Logger) *AsyncEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncEmitter{queue: queue, logger: logger, now: time.Now}
}

// Emit implements Emitter.
func (e *AsyncEmitter) Emit(ctx context.Context, evt Event) {
	if e == nil || e.queue == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = e.now().UTC()
	}
	if err := e.queue.EnqueueAuditEvent(context.WithoutCancel(ctx), evt); err != nil {
		e.logger.Warn("audit enqueue failed",
			slog.String("action", string(evt.Action)),
			slog.String("target_type", string(evt.TargetType)),
			slog.String("target_id", evt.TargetID),
			slog.Any("error", err))
	}
}
