package app

import (
	"context"
	"fmt"

	"newstrader/config"
	"newstrader/internal/domain"
	"newstrader/internal/exitengine"
	"newstrader/internal/ports"
	"newstrader/internal/utils"
)

// CheckOpenPositions runs one monitoring pass: every open position is priced
// against the latest quote and fed to the exit engine. Positions are handled
// sequentially so two decisions never race on the same position.
func (s *Service) CheckOpenPositions(ctx context.Context) error {
	positions, err := s.posRepo.FindOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	ruleSet := s.rulesStore.Snapshot()
	for _, pos := range positions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.checkPosition(ctx, pos, ruleSet)
	}
	return nil
}

// checkPosition evaluates the exit engine for one position and commits the
// resulting state delta. The updated peak is persisted even on Hold.
func (s *Service) checkPosition(ctx context.Context, pos *domain.Position, ruleSet config.Rules) {
	op := "checkPosition"

	quote, err := s.marketData.LatestQuote(ctx, pos.Ticker)
	if err != nil {
		s.logger.Warn(ctx, op+": Failed to fetch quote, skipping position", map[string]interface{}{
			"positionID": pos.ID,
			"ticker":     pos.Ticker,
			"error":      err.Error(),
		})
		return
	}
	if quote.BidPrice <= 0 || quote.AskPrice <= 0 {
		s.logger.Warn(ctx, op+": Invalid quote, skipping position", map[string]interface{}{
			"positionID": pos.ID,
			"ticker":     pos.Ticker,
			"bid":        quote.BidPrice,
			"ask":        quote.AskPrice,
		})
		return
	}
	mid := (quote.BidPrice + quote.AskPrice) / 2

	decision, err := exitengine.Decide(pos, mid, s.now().UTC(), ruleSet.ExitEngineRules())
	if err != nil {
		s.logger.Error(ctx, err, op+": Exit evaluation failed", map[string]interface{}{"positionID": pos.ID})
		return
	}

	pos.CurrentPrice = decision.UpdatedPeak

	switch decision.Action {
	case domain.Hold:
		if err := s.posRepo.UpdatePosition(ctx, pos); err != nil {
			s.logger.Error(ctx, err, op+": Failed to persist peak update", map[string]interface{}{"positionID": pos.ID})
		}
	case domain.PartialSell:
		s.logger.Info(ctx, op+": Exit engine directs partial sell", map[string]interface{}{
			"positionID": pos.ID,
			"ticker":     pos.Ticker,
			"reason":     decision.Reason,
			"sellQty":    decision.SellQty,
			"pnlPct":     decision.PnLPct,
		})
		s.executeExit(ctx, pos, decision, ruleSet.Execution, true)
	case domain.FullSell:
		s.logger.Info(ctx, op+": Exit engine directs full sell", map[string]interface{}{
			"positionID": pos.ID,
			"ticker":     pos.Ticker,
			"reason":     decision.Reason,
			"sellQty":    decision.SellQty,
			"pnlPct":     decision.PnLPct,
		})
		s.executeExit(ctx, pos, decision, ruleSet.Execution, false)
	}
}

// executeExit places the sell order for an exit decision and commits the
// position changes on fill. An unfilled or failed sell leaves the position
// open with only the peak advanced, so the next pass retries.
func (s *Service) executeExit(ctx context.Context, pos *domain.Position, decision *exitengine.Decision, execRules config.ExecutionRules, partial bool) {
	op := "executeExit"

	// Price the sell slightly through the market so it fills like a
	// marketable limit.
	limitPrice := utils.RoundToTick(decision.SellPrice*(1-float64(execRules.LimitOffsetBP)/10000), execRules.TickSize)

	resp, err := s.broker.PlaceLimitOrder(ctx, ports.OrderRequest{
		Ticker:        pos.Ticker,
		Quantity:      decision.SellQty,
		Side:          domain.Sell,
		LimitPrice:    limitPrice,
		ClientOrderID: fmt.Sprintf("nt-exit-%d-%d", pos.ID, s.now().UTC().UnixNano()),
	})
	if err != nil {
		s.logger.Error(ctx, err, op+": Failed to place exit order", map[string]interface{}{
			"positionID": pos.ID,
			"ticker":     pos.Ticker,
		})
		s.notifyWarn(ctx, s.notifier.NotifyError(ctx, "Exit Order Failed",
			fmt.Sprintf("position %d (%s): %v", pos.ID, pos.Ticker, err)))
		s.persistPeak(ctx, pos)
		return
	}

	order := s.orderRecordFrom(resp, "", pos.EventID, domain.Sell, decision.SellQty, limitPrice)
	s.saveOrderWarn(ctx, order)

	if order.Status != domain.OrderFilled {
		final, err := s.awaitFill(ctx, resp.OrderID)
		if err != nil {
			s.logger.Warn(ctx, op+": Exit order did not fill in time, cancelling", map[string]interface{}{
				"orderID":    resp.OrderID,
				"positionID": pos.ID,
				"error":      err.Error(),
			})
			s.cancelOrderWarn(ctx, resp.OrderID)
			order.Status = domain.OrderCancelled
			order.ErrorMessage = "not filled within timeout"
			s.saveOrderWarn(ctx, order)
			s.persistPeak(ctx, pos)
			return
		}
		order = s.orderRecordFrom(final, "", pos.EventID, domain.Sell, decision.SellQty, limitPrice)
		s.saveOrderWarn(ctx, order)
	}

	if order.Status != domain.OrderFilled {
		s.logger.Warn(ctx, op+": Exit order ended unfilled, position stays open", map[string]interface{}{
			"orderID":    order.OrderID,
			"positionID": pos.ID,
			"status":     order.Status,
		})
		s.persistPeak(ctx, pos)
		return
	}

	fillPrice := order.FilledAvgPrice
	if fillPrice == 0 {
		fillPrice = decision.SellPrice
	}

	// Remaining-share math in the notification reads the pre-sale quantity.
	s.notifyWarn(ctx, s.notifier.NotifyExit(ctx, pos, fillPrice, decision.SellQty, decision.Reason, partial))

	pos.RealizedPNL += (fillPrice - pos.EntryPrice) * float64(decision.SellQty)
	if partial {
		pos.Quantity -= decision.SellQty
		pos.PartialSold = true
	} else {
		pos.Quantity = 0
		pos.Status = domain.StatusClosed
		pos.ExitPrice = fillPrice
		pos.ExitTime = s.now().UTC()
	}

	if err := s.posRepo.UpdatePosition(ctx, pos); err != nil {
		s.logger.Error(ctx, err, op+": Failed to persist exit", map[string]interface{}{"positionID": pos.ID})
		return
	}

	s.logger.Info(ctx, op+": Exit committed", map[string]interface{}{
		"positionID":  pos.ID,
		"ticker":      pos.Ticker,
		"reason":      decision.Reason,
		"fillPrice":   fillPrice,
		"soldQty":     decision.SellQty,
		"partial":     partial,
		"realizedPNL": pos.RealizedPNL,
	})
}

func (s *Service) persistPeak(ctx context.Context, pos *domain.Position) {
	if err := s.posRepo.UpdatePosition(ctx, pos); err != nil {
		s.logger.Error(ctx, err, "Failed to persist peak update", map[string]interface{}{"positionID": pos.ID})
	}
}
