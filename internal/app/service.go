// Package app orchestrates the news trading pipeline: fetch, classify,
// evaluate, approve, execute and monitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"newstrader/config"
	"newstrader/internal/domain"
	"newstrader/internal/ports"
	"newstrader/internal/risk"
	"newstrader/internal/rules"
)

const fillPollInterval = 500 * time.Millisecond

// MarketScanner produces a market snapshot for one ticker.
type MarketScanner interface {
	Scan(ctx context.Context, ticker string) (*domain.MarketState, error)
}

// Service wires the pipeline stages together and owns the run loop.
type Service struct {
	cfg        *config.Config
	logger     ports.Logger
	rulesStore *config.RulesStore
	news       ports.NewsSource
	classifier ports.Classifier
	scanner    MarketScanner
	ruleEngine *rules.Engine
	riskGuard  *risk.Guard
	broker     ports.BrokerClient
	marketData ports.MarketDataClient
	eventRepo  ports.EventRepository
	signalRepo ports.SignalRepository
	orderRepo  ports.OrderRepository
	posRepo    ports.PositionRepository
	runRepo    ports.RunRepository
	notifier   ports.Notifier

	now func() time.Time
}

// Deps collects the collaborators required by the service.
type Deps struct {
	Cfg        *config.Config
	Logger     ports.Logger
	Rules      *config.RulesStore
	News       ports.NewsSource
	Classifier ports.Classifier
	Scanner    MarketScanner
	Broker     ports.BrokerClient
	MarketData ports.MarketDataClient
	EventRepo  ports.EventRepository
	SignalRepo ports.SignalRepository
	OrderRepo  ports.OrderRepository
	PosRepo    ports.PositionRepository
	RunRepo    ports.RunRepository
	Notifier   ports.Notifier
}

// NewService creates the application service instance.
func NewService(d Deps) (*Service, error) {
	if d.Cfg == nil || d.Logger == nil || d.Rules == nil || d.News == nil ||
		d.Classifier == nil || d.Scanner == nil || d.Broker == nil || d.MarketData == nil ||
		d.EventRepo == nil || d.SignalRepo == nil || d.OrderRepo == nil ||
		d.PosRepo == nil || d.RunRepo == nil || d.Notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}

	return &Service{
		cfg:        d.Cfg,
		logger:     d.Logger,
		rulesStore: d.Rules,
		news:       d.News,
		classifier: d.Classifier,
		scanner:    d.Scanner,
		ruleEngine: rules.NewEngine(d.Logger),
		riskGuard:  risk.NewGuard(d.Logger),
		broker:     d.Broker,
		marketData: d.MarketData,
		eventRepo:  d.EventRepo,
		signalRepo: d.SignalRepo,
		orderRepo:  d.OrderRepo,
		posRepo:    d.PosRepo,
		runRepo:    d.RunRepo,
		notifier:   d.Notifier,
		now:        time.Now,
	}, nil
}

// Start runs the pipeline until the context is cancelled or a shutdown
// signal arrives. The news cycle and the position monitor share one loop so
// a cycle never races a monitoring pass over the same position.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting news trading service...", map[string]interface{}{
		"mode":            s.cfg.RunMode,
		"cycleMinutes":    s.cfg.CycleMinutes,
		"monitorInterval": s.cfg.MonitorInterval.String(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	open, err := s.posRepo.FindOpenPositions(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load open positions at startup")
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	s.logger.Info(ctx, "Initial state synchronized", map[string]interface{}{"openPositions": len(open)})

	if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(ctx, err, "Initial pipeline cycle failed")
	}

	cycleTicker := time.NewTicker(time.Duration(s.cfg.CycleMinutes) * time.Minute)
	defer cycleTicker.Stop()
	monitorTicker := time.NewTicker(s.cfg.MonitorInterval)
	defer monitorTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "News trading service stopped.")
			return nil
		case <-cycleTicker.C:
			if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, err, "Pipeline cycle failed")
				s.notifyWarn(ctx, s.notifier.NotifyError(ctx, "Pipeline Cycle Failed", err.Error()))
			}
		case <-monitorTicker.C:
			if err := s.CheckOpenPositions(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, err, "Position monitoring pass failed")
			}
		}
	}
}

// RunCycle executes one full news pipeline pass: reload rules, fetch fresh
// headlines, classify them, evaluate entry and risk rules per ticker, and
// place entry orders for approved signals. Per-event failures are recorded
// on the run and do not abort the cycle.
func (s *Service) RunCycle(ctx context.Context) (*domain.RunRecord, error) {
	op := "RunCycle"

	if err := s.rulesStore.Reload(); err != nil {
		// Keep trading on the previous rule set rather than stopping.
		s.logger.Warn(ctx, op+": rules reload failed, keeping previous set", map[string]interface{}{"error": err.Error()})
	}
	ruleSet := s.rulesStore.Snapshot()

	run := &domain.RunRecord{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		Status:    domain.RunRunning,
		Mode:      string(s.cfg.RunMode),
	}
	if err := s.runRepo.CreateRun(ctx, run); err != nil {
		s.logger.Error(ctx, err, op+": Failed to create run record")
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	since, err := s.fetchWindowStart(ctx, run.StartedAt)
	if err != nil {
		s.logger.Warn(ctx, op+": Failed to determine last run time, using cycle window", map[string]interface{}{"error": err.Error()})
	}

	items, err := s.news.FetchSince(ctx, since)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("news fetch: %v", err))
		s.logger.Error(ctx, err, op+": Failed to fetch news")
	}
	run.EventsFetched = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		s.processItem(ctx, run, item, ruleSet)
	}

	run.Status = domain.RunCompleted
	run.CompletedAt = s.now().UTC()
	if err := s.runRepo.UpdateRun(ctx, run); err != nil {
		s.logger.Error(ctx, err, op+": Failed to finalize run record", map[string]interface{}{"runID": run.RunID})
	}

	s.logger.Info(ctx, op+": Cycle completed", map[string]interface{}{
		"runID":   run.RunID,
		"events":  run.EventsFetched,
		"signals": run.SignalsGenerated,
		"orders":  run.OrdersPlaced,
		"errors":  len(run.Errors),
	})
	s.notifyWarn(ctx, s.notifier.NotifyRunComplete(ctx, run))
	return run, nil
}

// fetchWindowStart picks the lower bound for the news fetch: the start of the
// last completed run when one exists, otherwise one cycle back.
func (s *Service) fetchWindowStart(ctx context.Context, now time.Time) (time.Time, error) {
	fallback := now.Add(-time.Duration(s.cfg.CycleMinutes) * time.Minute)
	last, err := s.runRepo.LastCompletedRunTime(ctx)
	if err != nil {
		return fallback, err
	}
	if last.IsZero() {
		return fallback, nil
	}
	return last, nil
}

// processItem takes one raw headline through classification and hands every
// mentioned ticker to the entry pipeline.
func (s *Service) processItem(ctx context.Context, run *domain.RunRecord, item *domain.NewsItem, ruleSet config.Rules) {
	op := "processItem"

	exists, err := s.eventRepo.EventExists(ctx, item.ClusterID)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("event lookup %s: %v", item.ClusterID, err))
		s.logger.Error(ctx, err, op+": Failed to check event existence", map[string]interface{}{"clusterID": item.ClusterID})
		return
	}
	if exists {
		s.logger.Debug(ctx, op+": Duplicate cluster, skipping", map[string]interface{}{"clusterID": item.ClusterID, "headline": item.Headline})
		return
	}

	event, err := s.classifier.Classify(ctx, item)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("classify %q: %v", item.Headline, err))
		s.logger.Error(ctx, err, op+": Classification failed", map[string]interface{}{"headline": item.Headline})
		return
	}

	if err := s.eventRepo.SaveEvent(ctx, event); err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("save event %s: %v", event.EventID, err))
		s.logger.Error(ctx, err, op+": Failed to save event", map[string]interface{}{"eventID": event.EventID})
		return
	}

	for _, ticker := range event.Tickers {
		if ctx.Err() != nil {
			return
		}
		s.processTicker(ctx, run, event, ticker, ruleSet)
	}
}

// processTicker evaluates one event/ticker pair: scan the market, run entry
// rules, run the risk guard, persist the signal and execute when approved.
func (s *Service) processTicker(ctx context.Context, run *domain.RunRecord, event *domain.EventCard, ticker string, ruleSet config.Rules) {
	op := "processTicker"

	market, err := s.scanner.Scan(ctx, ticker)
	if err != nil {
		s.logger.Warn(ctx, op+": Market scan failed, skipping ticker", map[string]interface{}{
			"ticker": ticker,
			"error":  err.Error(),
		})
		return
	}

	pre := s.ruleEngine.Evaluate(ctx, event, market, ruleSet.Skip, ruleSet.Entry)

	approved := s.approveSignal(ctx, run, pre, market, ruleSet)

	signalID, err := s.signalRepo.SaveSignal(ctx, pre, approved)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("save signal for %s: %v", ticker, err))
		s.logger.Error(ctx, err, op+": Failed to save signal", map[string]interface{}{"ticker": ticker})
		return
	}
	if pre.Action == domain.ActionEntry {
		run.SignalsGenerated++
	}

	var order *domain.OrderRecord
	if approved.Approved {
		order = s.executeEntry(ctx, run, event, signalID, approved)
	}

	s.notifyWarn(ctx, s.notifier.NotifySignal(ctx, event, pre, approved, order))
}

// approveSignal runs the risk guard against the current portfolio snapshot.
// The guard rejects SKIP pre-signals itself, so it always runs and the
// persisted signal always carries a risk verdict.
func (s *Service) approveSignal(ctx context.Context, run *domain.RunRecord, pre *domain.PreSignal, market *domain.MarketState, ruleSet config.Rules) *domain.ApprovedSignal {
	op := "approveSignal"

	openPositions, err := s.posRepo.FindOpenPositions(ctx)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("open positions lookup: %v", err))
		s.logger.Error(ctx, err, op+": Failed to load open positions")
		return &domain.ApprovedSignal{
			Approved: false,
			Ticker:   market.Ticker,
			Notes:    []string{"portfolio state unavailable"},
		}
	}

	// Daily loss accounting runs on the UTC day.
	dayStart := s.now().UTC().Truncate(24 * time.Hour)
	dailyPNL, err := s.posRepo.RealizedPNLSince(ctx, dayStart)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("daily PNL lookup: %v", err))
		s.logger.Error(ctx, err, op+": Failed to compute daily PNL")
		return &domain.ApprovedSignal{
			Approved: false,
			Ticker:   market.Ticker,
			Notes:    []string{"daily PNL unavailable"},
		}
	}

	portfolio := risk.BuildPortfolioState(s.cfg.InitialEquity, openPositions, dailyPNL)
	return s.riskGuard.Approve(ctx, pre, market, portfolio, ruleSet.Risk, ruleSet.Execution)
}

// executeEntry places the entry limit order for an approved signal, waits for
// the fill and opens the position. Returns the final order record, or nil
// when placement itself failed.
func (s *Service) executeEntry(ctx context.Context, run *domain.RunRecord, event *domain.EventCard, signalID string, approved *domain.ApprovedSignal) *domain.OrderRecord {
	op := "executeEntry"

	clientOrderID := "nt-" + signalID
	s.logger.Info(ctx, op+": Placing entry limit order", map[string]interface{}{
		"ticker":     approved.Ticker,
		"shares":     approved.Shares,
		"limitPrice": approved.EntryPriceTarget,
	})

	resp, err := s.broker.PlaceLimitOrder(ctx, ports.OrderRequest{
		Ticker:        approved.Ticker,
		Quantity:      approved.Shares,
		Side:          domain.Buy,
		LimitPrice:    approved.EntryPriceTarget,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("entry order %s: %v", approved.Ticker, err))
		s.logger.Error(ctx, err, op+": Failed to place entry order", map[string]interface{}{"ticker": approved.Ticker})
		s.notifyWarn(ctx, s.notifier.NotifyError(ctx, "Entry Order Failed",
			fmt.Sprintf("%s: %v", approved.Ticker, err)))
		return nil
	}

	order := s.orderRecordFrom(resp, signalID, event.EventID, domain.Buy, approved.Shares, approved.EntryPriceTarget)
	s.saveOrderWarn(ctx, order)

	if order.Status != domain.OrderFilled {
		final, err := s.awaitFill(ctx, resp.OrderID)
		if err != nil {
			s.logger.Warn(ctx, op+": Entry order did not fill in time, cancelling", map[string]interface{}{
				"orderID": resp.OrderID,
				"ticker":  approved.Ticker,
				"error":   err.Error(),
			})
			s.cancelOrderWarn(ctx, resp.OrderID)
			order.Status = domain.OrderCancelled
			order.ErrorMessage = "not filled within timeout"
			s.saveOrderWarn(ctx, order)
			return order
		}
		order = s.orderRecordFrom(final, signalID, event.EventID, domain.Buy, approved.Shares, approved.EntryPriceTarget)
		s.saveOrderWarn(ctx, order)
	}

	if order.Status != domain.OrderFilled {
		s.logger.Warn(ctx, op+": Entry order ended unfilled", map[string]interface{}{
			"orderID": order.OrderID,
			"status":  order.Status,
		})
		return order
	}
	run.OrdersPlaced++

	fillPrice := order.FilledAvgPrice
	if fillPrice == 0 {
		s.logger.Warn(ctx, op+": Fill price missing, falling back to limit price", map[string]interface{}{"orderID": order.OrderID})
		fillPrice = approved.EntryPriceTarget
	}
	quantity := order.FilledQty
	if quantity == 0 {
		quantity = approved.Shares
	}
	entryTime := order.FilledAt
	if entryTime.IsZero() {
		entryTime = s.now().UTC()
	}

	pos := &domain.Position{
		Ticker:       approved.Ticker,
		EntryPrice:   fillPrice,
		Quantity:     quantity,
		EntryTime:    entryTime,
		CurrentPrice: fillPrice,
		StopLoss:     fillPrice * (1 - float64(approved.HardStopBP)/10000),
		TakeProfit:   fillPrice * (1 + float64(approved.TakeProfitBP)/10000),
		EventID:      event.EventID,
		OrderID:      order.OrderID,
		Status:       domain.StatusOpen,
	}
	posID, err := s.posRepo.CreatePosition(ctx, pos)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("create position %s: %v", approved.Ticker, err))
		s.logger.Error(ctx, err, op+": Failed to save new position", map[string]interface{}{"ticker": approved.Ticker})
		return order
	}

	s.logger.Info(ctx, op+": Position opened", map[string]interface{}{
		"positionID": posID,
		"ticker":     pos.Ticker,
		"entryPrice": pos.EntryPrice,
		"quantity":   pos.Quantity,
	})
	return order
}

// awaitFill polls the order with backing-off intervals until it reaches a
// terminal state or the fill timeout elapses.
func (s *Service) awaitFill(ctx context.Context, orderID string) (*ports.OrderResponse, error) {
	deadline := time.NewTimer(s.cfg.FillTimeout)
	defer deadline.Stop()
	b := &backoff.Backoff{
		Min:    fillPollInterval,
		Max:    4 * time.Second,
		Factor: 2,
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrTimeout)
		case <-time.After(b.Duration()):
			resp, err := s.broker.GetOrder(ctx, orderID)
			if err != nil {
				s.logger.Warn(ctx, "Order status poll failed", map[string]interface{}{
					"orderID": orderID,
					"error":   err.Error(),
				})
				continue
			}
			switch resp.Status {
			case domain.OrderFilled, domain.OrderCancelled, domain.OrderFailed:
				return resp, nil
			}
		}
	}
}

func (s *Service) orderRecordFrom(resp *ports.OrderResponse, signalID, eventID string, side domain.OrderSide, quantity int, limitPrice float64) *domain.OrderRecord {
	submittedAt := resp.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = s.now().UTC()
	}
	return &domain.OrderRecord{
		OrderID:        resp.OrderID,
		SignalID:       signalID,
		EventID:        eventID,
		Ticker:         resp.Ticker,
		Side:           side,
		Quantity:       quantity,
		OrderType:      "limit",
		LimitPrice:     limitPrice,
		Status:         resp.Status,
		SubmittedAt:    submittedAt,
		FilledAt:       resp.FilledAt,
		FilledAvgPrice: resp.FilledAvgPrice,
		FilledQty:      resp.FilledQty,
	}
}

// saveOrderWarn persists an order record, logging instead of failing the
// pipeline on error. The broker state is authoritative either way.
func (s *Service) saveOrderWarn(ctx context.Context, order *domain.OrderRecord) {
	if err := s.orderRepo.SaveOrder(ctx, order); err != nil {
		s.logger.Error(ctx, err, "Failed to save order record", map[string]interface{}{"orderID": order.OrderID})
	}
}

// cancelOrderWarn cancels an order, treating an already-gone order as success.
func (s *Service) cancelOrderWarn(ctx context.Context, orderID string) {
	if err := s.broker.CancelOrder(ctx, orderID); err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			s.logger.Warn(ctx, "Order not found on cancel, likely already terminal", map[string]interface{}{"orderID": orderID})
			return
		}
		s.logger.Error(ctx, err, "Failed to cancel order", map[string]interface{}{"orderID": orderID})
	}
}

// notifyWarn logs a notification failure without propagating it.
func (s *Service) notifyWarn(ctx context.Context, err error) {
	if err != nil {
		s.logger.Warn(ctx, "Notification failed", map[string]interface{}{"error": err.Error()})
	}
}
