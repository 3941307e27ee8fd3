package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Symbol string
	Since  *time.Time
	Until  *time.Time
}

// SignalStore persists the history of relayed signals.
type SignalStore interface {
	Insert(ctx context.Context, ev SignalEvent) error
	ListRecent(ctx context.Context, opts ListOpts) ([]SignalEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]SignalEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of rejected and suppressed
// requests.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
