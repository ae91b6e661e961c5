package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"newstrader/config"
	"newstrader/internal/domain"
)

// mockLogger discards all log output.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func goodEvent() *domain.EventCard {
	return &domain.EventCard{
		EventID:     "evt1",
		ClusterID:   "cluster1",
		Tickers:     []string{"AAPL"},
		Headline:    "Apple announces record Q4 earnings",
		PublishedAt: time.Now().UTC(),
		Category:    domain.CategoryEarnings,
		Sentiment:   0.85,
		Reliability: 0.90,
		Session:     domain.SessionRegular,
		Source:      "Yahoo Finance",
	}
}

func goodMarket() *domain.MarketState {
	return &domain.MarketState{
		Ticker:     "AAPL",
		Timestamp:  time.Now().UTC(),
		Mid:        175.50,
		Bid:        175.45,
		Ask:        175.55,
		SpreadBP:   5,
		DP1m:       0.5,
		DP5m:       2.3,
		VolRatio1m: 4.2,
		RSI3:       65.0,
		VWAPDevBP:  15,
		Session:    domain.SessionRegular,
	}
}

func TestEvaluateEntry(t *testing.T) {
	defaults := config.DefaultRules()
	engine := NewEngine(&mockLogger{})

	pre := engine.Evaluate(context.Background(), goodEvent(), goodMarket(), defaults.Skip, defaults.Entry)

	assert.Equal(t, domain.ActionEntry, pre.Action)
	assert.Equal(t, "[1,5]m", pre.WindowHint)
	assert.Equal(t, "evt1", pre.EventID)
	assert.Equal(t, "AAPL", pre.Ticker)
	assert.NotEmpty(t, pre.Reasons)
	assert.InDelta(t, 0.85, pre.Metrics["sentiment"], 1e-9)
	assert.InDelta(t, 2.3, pre.Metrics["dP_5m"], 1e-9)
}

func TestEvaluateSkipConditions(t *testing.T) {
	defaults := config.DefaultRules()
	skip := defaults.Skip
	skip.DisallowSessions = []string{"after"}
	skip.DisallowCategories = []string{"rumor"}
	engine := NewEngine(&mockLogger{})

	tests := []struct {
		name   string
		event  func(*domain.EventCard)
		market func(*domain.MarketState)
		reason string
	}{
		{
			name:   "excessive 1m spike",
			market: func(m *domain.MarketState) { m.DP1m = 6.0 },
			reason: "excessive 1m spike",
		},
		{
			name:   "negative 1m spike counts too",
			market: func(m *domain.MarketState) { m.DP1m = -5.5 },
			reason: "excessive 1m spike",
		},
		{
			name:   "disallowed session",
			market: func(m *domain.MarketState) { m.Session = domain.SessionAfter },
			reason: "disallowed",
		},
		{
			name:   "disallowed category",
			event:  func(e *domain.EventCard) { e.Category = domain.CategoryRumor },
			reason: "disallowed",
		},
		{
			name:   "low reliability",
			event:  func(e *domain.EventCard) { e.Reliability = 0.50 },
			reason: "low reliability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := goodEvent()
			market := goodMarket()
			if tt.event != nil {
				tt.event(event)
			}
			if tt.market != nil {
				tt.market(market)
			}

			pre := engine.Evaluate(context.Background(), event, market, skip, defaults.Entry)
			assert.Equal(t, domain.ActionSkip, pre.Action)
			assert.Equal(t, "N/A", pre.WindowHint)
			assert.Contains(t, pre.Reasons[0], tt.reason)
		})
	}
}

func TestEvaluateEntryConditions(t *testing.T) {
	defaults := config.DefaultRules()
	engine := NewEngine(&mockLogger{})

	tests := []struct {
		name   string
		event  func(*domain.EventCard)
		market func(*domain.MarketState)
	}{
		{"sentiment too low", func(e *domain.EventCard) { e.Sentiment = 0.50 }, nil},
		{"reliability below impact floor", func(e *domain.EventCard) { e.Reliability = 0.65 }, nil},
		{"5m move too small", nil, func(m *domain.MarketState) { m.DP5m = 0.5 }},
		{"5m move too large", nil, func(m *domain.MarketState) { m.DP5m = 5.0 }},
		{"volume ratio too low", nil, func(m *domain.MarketState) { m.VolRatio1m = 1.5 }},
		{"spread too wide", nil, func(m *domain.MarketState) { m.SpreadBP = 80 }},
		{"overbought", nil, func(m *domain.MarketState) { m.RSI3 = 85.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := goodEvent()
			market := goodMarket()
			if tt.event != nil {
				tt.event(event)
			}
			if tt.market != nil {
				tt.market(market)
			}

			pre := engine.Evaluate(context.Background(), event, market, defaults.Skip, defaults.Entry)
			assert.Equal(t, domain.ActionSkip, pre.Action)
			assert.NotEmpty(t, pre.Reasons)
		})
	}
}

func TestEvaluateCategoryAllowlist(t *testing.T) {
	defaults := config.DefaultRules()
	entry := defaults.Entry
	entry.AllowedCategories = []string{"earnings", "M&A"}
	engine := NewEngine(&mockLogger{})

	event := goodEvent()
	event.Category = domain.CategoryPartnership

	pre := engine.Evaluate(context.Background(), event, goodMarket(), defaults.Skip, entry)
	assert.Equal(t, domain.ActionSkip, pre.Action)
	assert.Contains(t, pre.Reasons[0], "not in allowlist")

	event.Category = domain.CategoryEarnings
	pre = engine.Evaluate(context.Background(), event, goodMarket(), defaults.Skip, entry)
	assert.Equal(t, domain.ActionEntry, pre.Action)
}

func TestEvaluateCollectsAllFailures(t *testing.T) {
	defaults := config.DefaultRules()
	engine := NewEngine(&mockLogger{})

	event := goodEvent()
	event.Sentiment = 0.10
	market := goodMarket()
	market.VolRatio1m = 1.0
	market.SpreadBP = 100

	pre := engine.Evaluate(context.Background(), event, market, defaults.Skip, defaults.Entry)
	assert.Equal(t, domain.ActionSkip, pre.Action)
	assert.GreaterOrEqual(t, len(pre.Reasons), 3)
}
