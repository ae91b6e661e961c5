// Package risk approves or rejects entry signals and sizes positions against
// portfolio-level limits.
package risk

import (
	"context"
	"fmt"
	"math"

	"newstrader/config"
	"newstrader/internal/domain"
	"newstrader/internal/ports"
	"newstrader/internal/utils"
)

// sectorMap assigns whitelist tickers to sectors for exposure limits.
// Unknown tickers fall into "Unknown" and share one bucket.
var sectorMap = map[string]string{
	"AAPL":  "Technology",
	"MSFT":  "Technology",
	"GOOGL": "Technology",
	"META":  "Technology",
	"NVDA":  "Technology",
	"TSLA":  "Automotive",
	"AMZN":  "Consumer",
}

// SectorFor returns the sector bucket used for exposure accounting.
func SectorFor(ticker string) string {
	if s, ok := sectorMap[ticker]; ok {
		return s
	}
	return "Unknown"
}

// Guard sizes approved entries and enforces daily-loss, concurrency and
// sector exposure limits.
type Guard struct {
	logger ports.Logger
}

func NewGuard(logger ports.Logger) *Guard {
	return &Guard{logger: logger}
}

// Approve turns an ENTRY pre-signal into a sized, approved signal or a
// rejection with reasons. A SKIP pre-signal is always rejected.
func (g *Guard) Approve(ctx context.Context, pre *domain.PreSignal, market *domain.MarketState, portfolio *domain.PortfolioState, riskRules config.RiskRules, execRules config.ExecutionRules) *domain.ApprovedSignal {
	rejected := func(notes []string) *domain.ApprovedSignal {
		return &domain.ApprovedSignal{
			Approved: false,
			Ticker:   market.Ticker,
			Notes:    notes,
		}
	}

	if pre.Action != domain.ActionEntry {
		return rejected([]string{"signal was SKIP"})
	}

	var notes []string
	if !g.checkPortfolioLimits(portfolio, riskRules, &notes) {
		return rejected(notes)
	}
	if !g.checkSectorLimit(market.Ticker, portfolio, riskRules, &notes) {
		return rejected(notes)
	}

	// Stop distance: at least the configured floor, widened when the 5m move
	// suggests elevated volatility.
	estimatedVolBP := int(math.Abs(market.DP5m) * 100)
	hardStopBP := riskRules.MinStopBP
	if widened := int(float64(estimatedVolBP) * 1.5); widened > hardStopBP {
		hardStopBP = widened
	}

	// Size so that hitting the stop loses per_trade_risk_pct of equity.
	riskAmount := portfolio.Equity * riskRules.PerTradeRiskPct
	stopFraction := float64(hardStopBP) / 10000
	sizeUSD := 0.0
	if stopFraction > 0 {
		sizeUSD = riskAmount / stopFraction
	}

	maxPositionUSD := portfolio.Equity * riskRules.MaxPositionSizePct
	sizeUSD = math.Min(sizeUSD, math.Min(maxPositionUSD, riskRules.MaxPositionSizeUSD))

	if sizeUSD < riskRules.MinPositionSizeUSD {
		notes = append(notes, fmt.Sprintf("position size $%.2f below minimum $%.2f", sizeUSD, riskRules.MinPositionSizeUSD))
		return rejected(notes)
	}

	shares := int(sizeUSD / market.Mid)
	if shares == 0 {
		notes = append(notes, "calculated 0 shares, price too high for position size")
		return rejected(notes)
	}
	sizeUSD = float64(shares) * market.Mid

	entryTarget := utils.RoundToTick(market.Mid*(1+float64(execRules.LimitOffsetBP)/10000), execRules.TickSize)

	notes = append(notes,
		fmt.Sprintf("risk per trade: $%.2f (%.2f%% of equity)", riskAmount, riskRules.PerTradeRiskPct*100),
		fmt.Sprintf("position size: %d shares @ ~$%.2f = $%.2f", shares, market.Mid, sizeUSD),
		fmt.Sprintf("stop: %d bp", hardStopBP),
		fmt.Sprintf("take profit: %d bp", riskRules.TrailTakeProfitBP),
	)

	g.logger.Info(ctx, "signal approved", map[string]interface{}{
		"ticker":     market.Ticker,
		"shares":     shares,
		"sizeUSD":    sizeUSD,
		"hardStopBP": hardStopBP,
	})

	return &domain.ApprovedSignal{
		Approved:         true,
		Ticker:           market.Ticker,
		SizeUSD:          sizeUSD,
		Shares:           shares,
		EntryPriceTarget: entryTarget,
		HardStopBP:       hardStopBP,
		TakeProfitBP:     riskRules.TrailTakeProfitBP,
		MaxSlippageBP:    execRules.MaxSlippageBP,
		Notes:            notes,
	}
}

func (g *Guard) checkPortfolioLimits(portfolio *domain.PortfolioState, riskRules config.RiskRules, notes *[]string) bool {
	if portfolio.DailyPNLPct < -riskRules.MaxDailyLossPct {
		*notes = append(*notes, fmt.Sprintf("daily loss limit exceeded: %.2f%% (limit: %.2f%%)",
			portfolio.DailyPNLPct*100, riskRules.MaxDailyLossPct*100))
		return false
	}
	if portfolio.PositionsCount >= riskRules.MaxConcurrentPositions {
		*notes = append(*notes, fmt.Sprintf("max positions reached: %d/%d",
			portfolio.PositionsCount, riskRules.MaxConcurrentPositions))
		return false
	}
	return true
}

// checkSectorLimit assumes the new position could reach the per-position cap
// and rejects when that would push the sector past its limit.
func (g *Guard) checkSectorLimit(ticker string, portfolio *domain.PortfolioState, riskRules config.RiskRules, notes *[]string) bool {
	sector := SectorFor(ticker)
	potential := portfolio.SectorExposure[sector] + riskRules.MaxPositionSizePct
	if potential > riskRules.MaxSectorExposurePct {
		*notes = append(*notes, fmt.Sprintf("sector %q exposure would exceed limit: %.1f%% (limit: %.1f%%)",
			sector, potential*100, riskRules.MaxSectorExposurePct*100))
		return false
	}
	return true
}

// BuildPortfolioState assembles the portfolio snapshot used for approval from
// the open positions and configured equity.
func BuildPortfolioState(equity float64, openPositions []*domain.Position, dailyPNL float64) *domain.PortfolioState {
	sectorExposure := make(map[string]float64)
	for _, pos := range openPositions {
		exposure := math.Abs(float64(pos.Quantity)*pos.EntryPrice) / equity
		sectorExposure[SectorFor(pos.Ticker)] += exposure
	}

	dailyPNLPct := 0.0
	if equity > 0 {
		dailyPNLPct = dailyPNL / equity
	}

	return &domain.PortfolioState{
		Equity:         equity,
		Cash:           equity,
		PositionsCount: len(openPositions),
		DailyPNL:       dailyPNL,
		DailyPNLPct:    dailyPNLPct,
		SectorExposure: sectorExposure,
		OpenPositions:  openPositions,
	}
}
