package alpacabroker

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
)

// MarketData implements ports.MarketDataClient against the Alpaca market
// data API. The IEX feed is used throughout for free-tier compatibility.
type MarketData struct {
	client *marketdata.Client
	logger ports.Logger
}

func NewMarketData(cfg Config) (*MarketData, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca market data")
	}
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})
	return &MarketData{client: client, logger: cfg.Logger}, nil
}

// LatestQuote returns the most recent best bid/offer for a ticker.
func (m *MarketData) LatestQuote(ctx context.Context, ticker string) (*domain.Quote, error) {
	quote, err := m.client.GetLatestQuote(ticker, marketdata.GetLatestQuoteRequest{
		Feed: marketdata.IEX,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest quote for %s: %w", ticker, err)
	}
	if quote == nil {
		return nil, fmt.Errorf("no quote for %s: %w", ticker, ports.ErrNoMarketData)
	}

	return &domain.Quote{
		Ticker:    ticker,
		Timestamp: quote.Timestamp,
		BidPrice:  quote.BidPrice,
		AskPrice:  quote.AskPrice,
		BidSize:   int64(quote.BidSize),
		AskSize:   int64(quote.AskSize),
	}, nil
}

// MinuteBars returns minute bars for the ticker between start and end,
// oldest first.
func (m *MarketData) MinuteBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := m.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		End:       end,
		Feed:      marketdata.IEX,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", ticker, err)
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
			VWAP:      b.VWAP,
		})
	}
	return out, nil
}
