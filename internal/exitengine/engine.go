// Package exitengine implements the deterministic exit-decision engine for
// open positions. Decide is a pure function: it inspects a position snapshot
// against the current price and clock, and returns what to do plus the state
// delta the caller must commit. It never mutates its inputs and never touches
// the network, the database, or the wall clock.
package exitengine

import (
	"fmt"
	"math"
	"time"

	"newstrader/internal/domain"
)

// Rules holds the exit thresholds a decision is evaluated against.
// All percentage fields are expressed in percent (4.0 means 4%).
type Rules struct {
	// HardStopPct closes the full position when the loss reaches this
	// percentage below entry.
	HardStopPct float64
	// Level1ProfitPct triggers a one-time partial sale when the gain reaches
	// this percentage above entry.
	Level1ProfitPct float64
	// Level1SellFraction is the fraction of the current quantity sold at the
	// level-1 profit target. Share count is rounded down.
	Level1SellFraction float64
	// TrailingStopPct closes the full position when price falls this
	// percentage from the tracked peak, once the peak is above entry.
	TrailingStopPct float64
	// MaxHoldMinutes closes the full position once the holding time reaches
	// this many minutes.
	MaxHoldMinutes int
}

// Decision is the outcome of one evaluation. UpdatedPeak is always populated
// and must be committed by the caller even when the action is Hold.
type Decision struct {
	Action      domain.ExitAction
	Reason      domain.ExitReason
	SellQty     int
	SellPrice   float64
	UpdatedPeak float64
	PnLPct      float64
}

// Decide evaluates exit rules for an open position at the given price and
// time. Rules are checked in strict priority order: hard stop, level-1
// profit, trailing stop, time limit. The first rule that fires wins.
//
// The caller is responsible for committing the returned state delta:
// UpdatedPeak always, and on a partial sale the reduced quantity and the
// partial-sold flag.
func Decide(pos *domain.Position, currentPrice float64, now time.Time, rules Rules) (*Decision, error) {
	if pos == nil {
		return nil, fmt.Errorf("position is nil")
	}
	if currentPrice <= 0 {
		return nil, fmt.Errorf("current price must be positive, got %v", currentPrice)
	}
	if pos.EntryPrice <= 0 {
		return nil, fmt.Errorf("position %d has non-positive entry price %v", pos.ID, pos.EntryPrice)
	}
	if pos.Quantity <= 0 {
		return nil, fmt.Errorf("position %d has non-positive quantity %d", pos.ID, pos.Quantity)
	}
	if pos.EntryTime.IsZero() {
		return nil, fmt.Errorf("position %d has zero entry time", pos.ID)
	}

	peak := math.Max(pos.CurrentPrice, currentPrice)
	pnlPct := (currentPrice - pos.EntryPrice) / pos.EntryPrice * 100

	d := &Decision{
		Action:      domain.Hold,
		Reason:      domain.ReasonNone,
		UpdatedPeak: peak,
		PnLPct:      pnlPct,
	}

	// Hard stop. Highest priority, closes everything.
	if pnlPct <= -rules.HardStopPct {
		d.Action = domain.FullSell
		d.Reason = domain.ReasonHardStop
		d.SellQty = pos.Quantity
		d.SellPrice = currentPrice
		return d, nil
	}

	// Level-1 profit target. Fires at most once per position; a zero-share
	// result falls through to the remaining rules.
	if !pos.PartialSold && pnlPct >= rules.Level1ProfitPct {
		qty := int(math.Floor(float64(pos.Quantity) * rules.Level1SellFraction))
		if qty > 0 {
			d.Action = domain.PartialSell
			d.Reason = domain.ReasonLvl1Profit
			d.SellQty = qty
			d.SellPrice = currentPrice
			return d, nil
		}
	}

	// Trailing stop. Armed only once the peak has moved above entry.
	if peak > pos.EntryPrice && currentPrice <= peak*(1-rules.TrailingStopPct/100) {
		d.Action = domain.FullSell
		d.Reason = domain.ReasonTrailingStop
		d.SellQty = pos.Quantity
		d.SellPrice = currentPrice
		return d, nil
	}

	// Time limit.
	if now.Sub(pos.EntryTime) >= time.Duration(rules.MaxHoldMinutes)*time.Minute {
		d.Action = domain.FullSell
		d.Reason = domain.ReasonTimeLimit
		d.SellQty = pos.Quantity
		d.SellPrice = currentPrice
		return d, nil
	}

	return d, nil
}
