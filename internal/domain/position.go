package domain

import "time"

// Position represents one actively-or-formerly-open long trade.
//
// CurrentPrice is the running peak tracker, not the live market price: it is
// initialised to EntryPrice at fill time and only ever moves upward as higher
// prices are observed. The exit engine reads it to evaluate the trailing stop
// and returns the new peak for the caller to write back.
type Position struct {
	ID         int64     // Unique identifier for the position (from DB)
	Ticker     string    // Stock symbol (e.g., "AAPL"), immutable after creation
	EntryPrice float64   // Fill price, set once, immutable
	Quantity   int       // Remaining unsold share count, never negative (long-only)
	EntryTime  time.Time // Fill timestamp, immutable

	CurrentPrice float64 // Highest favourable price observed since entry (the peak)
	PartialSold  bool    // Set permanently once the level-1 partial sale fires

	// Advisory target prices computed at entry. The exit engine works in
	// percentages off EntryPrice and does not read these.
	StopLoss   float64
	TakeProfit float64

	// Audit back-references to the originating news event and entry order.
	EventID string
	OrderID string

	Status      PositionStatus
	ExitPrice   float64   // 0 while open
	ExitTime    time.Time // zero value while open
	RealizedPNL float64   // set on close
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}
