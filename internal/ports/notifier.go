package ports

import (
	"context"

	"newstrader/internal/domain"
)

// Notifier delivers human-readable alerts. Implementations must be safe to
// call with notifications disabled (no-op) and must never feed back into
// trading decisions.
type Notifier interface {
	// NotifySignal reports an entry-side decision for an event/ticker pair.
	NotifySignal(ctx context.Context, event *domain.EventCard, pre *domain.PreSignal, approved *domain.ApprovedSignal, order *domain.OrderRecord) error
	// NotifyExit reports a position exit (full or partial) with computed P&L.
	NotifyExit(ctx context.Context, pos *domain.Position, exitPrice float64, quantity int, reason domain.ExitReason, partial bool) error
	// NotifyError reports a pipeline failure.
	NotifyError(ctx context.Context, errType, details string) error
	// NotifyRunComplete summarises a finished cycle.
	NotifyRunComplete(ctx context.Context, run *domain.RunRecord) error
}
