package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockMarketData struct {
	quote    *domain.Quote
	quoteErr error
	bars     []domain.Bar
	barsErr  error
}

func (m *mockMarketData) LatestQuote(ctx context.Context, ticker string) (*domain.Quote, error) {
	return m.quote, m.quoteErr
}

func (m *mockMarketData) MinuteBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	return m.bars, m.barsErr
}

func minuteBars(closes []float64, volumes []int64) []domain.Bar {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i := range closes {
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      closes[i],
			High:      closes[i],
			Low:       closes[i],
			Close:     closes[i],
			Volume:    volumes[i],
		}
	}
	return bars
}

func TestScan(t *testing.T) {
	closes := []float64{100.0, 100.5, 101.0, 101.5, 102.0, 102.5, 103.0}
	volumes := []int64{1000, 1000, 1000, 1000, 1000, 1000, 5000}

	data := &mockMarketData{
		quote: &domain.Quote{Ticker: "AAPL", BidPrice: 102.9, AskPrice: 103.1},
		bars:  minuteBars(closes, volumes),
	}
	s := New(data, &mockLogger{})
	// Pin the clock to a regular-session minute (14:30 UTC = 10:30 ET in June).
	s.now = func() time.Time { return time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC) }

	state, err := s.Scan(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", state.Ticker)
	assert.InDelta(t, 103.0, state.Mid, 1e-9)
	assert.InDelta(t, 102.9, state.Bid, 1e-9)
	assert.InDelta(t, 103.1, state.Ask, 1e-9)

	// dP_1m from the last two closes, dP_5m from six bars back.
	assert.InDelta(t, (103.0-102.5)/102.5*100, state.DP1m, 1e-9)
	assert.InDelta(t, (103.0-100.5)/100.5*100, state.DP5m, 1e-9)

	// Last bar ran 5x the average of the prior bars.
	assert.InDelta(t, 5.0, state.VolRatio1m, 1e-9)

	// Monotonic rises leave no losses in the window.
	assert.InDelta(t, 100.0, state.RSI3, 1e-9)

	assert.Equal(t, int64(5000), state.Volume)
	assert.Equal(t, domain.SessionRegular, state.Session)
}

func TestScanShortHistoryUsesFirstBar(t *testing.T) {
	closes := []float64{100.0, 100.5, 101.0, 101.5, 102.0}
	volumes := []int64{1000, 1000, 1000, 1000, 2000}

	data := &mockMarketData{
		quote: &domain.Quote{Ticker: "AAPL", BidPrice: 101.9, AskPrice: 102.1},
		bars:  minuteBars(closes, volumes),
	}
	s := New(data, &mockLogger{})

	state, err := s.Scan(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, (102.0-100.0)/100.0*100, state.DP5m, 1e-9)
}

func TestScanInsufficientBars(t *testing.T) {
	data := &mockMarketData{
		quote: &domain.Quote{Ticker: "AAPL", BidPrice: 101.9, AskPrice: 102.1},
		bars:  minuteBars([]float64{100, 101}, []int64{1000, 1000}),
	}
	s := New(data, &mockLogger{})

	_, err := s.Scan(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNoMarketData)
}

func TestScanBadQuote(t *testing.T) {
	data := &mockMarketData{
		quote: &domain.Quote{Ticker: "AAPL", BidPrice: 0, AskPrice: 102.1},
	}
	s := New(data, &mockLogger{})

	_, err := s.Scan(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNoMarketData)
}

func TestComputeRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"too short returns neutral", []float64{100, 101}, 50.0},
		{"all gains returns 100", []float64{100, 101, 102, 103}, 100.0},
		{"all losses returns 0", []float64{103, 102, 101, 100}, 0.0},
		{"mixed", []float64{100, 102, 101, 103}, 80.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, computeRSI(tt.prices, 3), 1e-9)
		})
	}
}

func TestComputeVWAP(t *testing.T) {
	bars := []domain.Bar{
		{Close: 100, Volume: 100},
		{Close: 110, Volume: 300},
	}
	// (100*100 + 110*300) / 400 = 107.5
	assert.InDelta(t, 107.5, computeVWAP(bars), 1e-9)

	// An exchange VWAP on the last bar takes precedence.
	bars[1].VWAP = 105.0
	assert.InDelta(t, 105.0, computeVWAP(bars), 1e-9)

	// Zero volume falls back to the last close.
	assert.InDelta(t, 110.0, computeVWAP([]domain.Bar{{Close: 100, Volume: 0}, {Close: 110, Volume: 0}}), 1e-9)
}
