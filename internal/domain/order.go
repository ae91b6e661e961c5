package domain

import "time"

// OrderRecord represents an order submitted to (or simulated against) the broker.
type OrderRecord struct {
	OrderID        string // Broker order ID, or a synthetic ID in dry runs
	SignalID       string
	EventID        string
	Ticker         string
	Side           OrderSide
	Quantity       int
	OrderType      string // "limit" or "market"
	LimitPrice     float64
	Status         OrderStatus
	SubmittedAt    time.Time
	FilledAt       time.Time // zero value until filled
	FilledAvgPrice float64
	FilledQty      int
	ErrorMessage   string
}
