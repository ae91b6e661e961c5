// Package scanner builds per-ticker market snapshots from quotes and minute
// bars, including the short-horizon indicators the entry rules consume.
package scanner

import (
	"context"
	"fmt"
	"time"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
	"newstrader/internal/utils"
)

const (
	lookbackMinutes = 10
	minBars         = 5
	rsiPeriod       = 3
)

// Scanner assembles MarketState snapshots for tickers.
type Scanner struct {
	data   ports.MarketDataClient
	logger ports.Logger
	now    func() time.Time
}

func New(data ports.MarketDataClient, logger ports.Logger) *Scanner {
	return &Scanner{
		data:   data,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Scan fetches the latest quote and recent minute bars for a ticker and
// derives the indicator set. It fails when the book or bar history is too
// thin to compute indicators.
func (s *Scanner) Scan(ctx context.Context, ticker string) (*domain.MarketState, error) {
	quote, err := s.data.LatestQuote(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", ticker, err)
	}
	if quote == nil || quote.BidPrice <= 0 || quote.AskPrice <= 0 {
		return nil, fmt.Errorf("no usable quote for %s: %w", ticker, ports.ErrNoMarketData)
	}

	now := s.now()
	bars, err := s.data.MinuteBars(ctx, ticker, now.Add(-lookbackMinutes*time.Minute), now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", ticker, err)
	}
	if len(bars) < minBars {
		s.logger.Warn(ctx, "insufficient bar data", map[string]interface{}{
			"ticker": ticker,
			"bars":   len(bars),
		})
		return nil, fmt.Errorf("insufficient bar data for %s (%d bars): %w", ticker, len(bars), ports.ErrNoMarketData)
	}

	mid := (quote.BidPrice + quote.AskPrice) / 2
	last := bars[len(bars)-1]

	dp1m := utils.PriceChangePct(bars[len(bars)-2].Close, last.Close)

	ref5m := bars[0]
	if len(bars) > 5 {
		ref5m = bars[len(bars)-6]
	}
	dp5m := utils.PriceChangePct(ref5m.Close, last.Close)

	vwap := computeVWAP(bars)
	vwapDevBP := 0
	if vwap > 0 {
		vwapDevBP = int((mid - vwap) / vwap * 10000)
	}

	return &domain.MarketState{
		Ticker:     ticker,
		Timestamp:  now,
		Mid:        mid,
		Bid:        quote.BidPrice,
		Ask:        quote.AskPrice,
		SpreadBP:   utils.SpreadBasisPoints(quote.BidPrice, quote.AskPrice),
		DP1m:       dp1m,
		DP5m:       dp5m,
		VolRatio1m: volumeRatio(bars),
		RSI3:       computeRSI(closes(bars), rsiPeriod),
		VWAPDevBP:  vwapDevBP,
		Volume:     last.Volume,
		Session:    utils.MarketSession(now),
	}, nil
}

func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// volumeRatio compares the latest bar's volume to the average of the bars
// before it. A dead tape yields 1.0 rather than a divide by zero.
func volumeRatio(bars []domain.Bar) float64 {
	last := bars[len(bars)-1]
	var total int64
	for _, b := range bars[:len(bars)-1] {
		total += b.Volume
	}
	avg := float64(total) / float64(len(bars)-1)
	if avg <= 0 {
		return 1.0
	}
	return float64(last.Volume) / avg
}

// computeRSI calculates a simple-average RSI over the trailing period.
// Returns the neutral 50 when history is too short and 100 when there are no
// losing bars in the window.
func computeRSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	deltas := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		deltas[i-1] = prices[i] - prices[i-1]
	}

	var gainSum, lossSum float64
	for _, d := range deltas[len(deltas)-period:] {
		if d > 0 {
			gainSum += d
		} else {
			lossSum -= d
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// computeVWAP prefers the exchange-provided VWAP on the latest bar and falls
// back to a close-weighted calculation over the window.
func computeVWAP(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	last := bars[len(bars)-1]
	if last.VWAP > 0 {
		return last.VWAP
	}

	var totalVolume int64
	var weighted float64
	for _, b := range bars {
		totalVolume += b.Volume
		weighted += b.Close * float64(b.Volume)
	}
	if totalVolume == 0 {
		return last.Close
	}
	return weighted / float64(totalVolume)
}
