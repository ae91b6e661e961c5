package domain

import "time"

// RunRecord captures the outcome of one pipeline cycle for audit.
type RunRecord struct {
	RunID            string
	StartedAt        time.Time
	CompletedAt      time.Time // zero value while running
	Status           RunStatus
	Mode             string // Run mode the cycle executed under (DRYRUN/LIVE)
	EventsFetched    int
	SignalsGenerated int
	OrdersPlaced     int
	Errors           []string
}
