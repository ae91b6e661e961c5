package ports

import (
	"context"
	"time"

	"newstrader/internal/domain"
)

// EventRepository stores classified news events and supports cluster-based dedup.
type EventRepository interface {
	// SaveEvent persists a classified event. Saving an event whose cluster
	// already exists is a no-op.
	SaveEvent(ctx context.Context, event *domain.EventCard) error
	// EventExists reports whether an event with the given cluster ID was
	// already ingested.
	EventExists(ctx context.Context, clusterID string) (bool, error)
}

// SignalRepository stores entry signals together with their risk verdicts.
type SignalRepository interface {
	// SaveSignal persists a pre-signal and its approval outcome, returning
	// the generated signal ID.
	SaveSignal(ctx context.Context, pre *domain.PreSignal, approved *domain.ApprovedSignal) (string, error)
}

// OrderRepository stores submitted and simulated orders.
type OrderRepository interface {
	// SaveOrder inserts or replaces an order record keyed by order ID.
	SaveOrder(ctx context.Context, order *domain.OrderRecord) error
}

// PositionRepository stores open and closed positions.
type PositionRepository interface {
	// CreatePosition saves a new position and returns its assigned ID.
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// UpdatePosition modifies an existing position (peak, partial flag,
	// quantity, closed state).
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	// FindOpenPositions retrieves all currently open positions.
	FindOpenPositions(ctx context.Context) ([]*domain.Position, error)
	// FindPositionByID retrieves a position by ID. Returns nil, nil if not found.
	FindPositionByID(ctx context.Context, id int64) (*domain.Position, error)
	// RealizedPNLSince sums the realized P&L of positions closed at or after
	// the given time.
	RealizedPNLSince(ctx context.Context, since time.Time) (float64, error)
}

// RunRepository stores pipeline cycle records.
type RunRepository interface {
	// CreateRun inserts a new run record in the running state.
	CreateRun(ctx context.Context, run *domain.RunRecord) error
	// UpdateRun writes the final state of a run record.
	UpdateRun(ctx context.Context, run *domain.RunRecord) error
	// LastCompletedRunTime returns the start time of the most recent
	// completed run, or the zero time when no run has completed yet.
	LastCompletedRunTime(ctx context.Context) (time.Time, error)
}
