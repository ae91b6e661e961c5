// Package rules evaluates classified events against the configured entry and
// skip conditions to produce a pre-signal.
package rules

import (
	"context"
	"fmt"
	"time"

	"newstrader/config"
	"newstrader/internal/domain"
	"newstrader/internal/ports"
)

// Engine turns an event/market pair into an ENTRY or SKIP pre-signal.
// Evaluation is pure apart from logging; thresholds come in per call so a
// rules reload mid-cycle cannot split a decision.
type Engine struct {
	logger ports.Logger
}

func NewEngine(logger ports.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate checks skip conditions first (any one of them vetoes the event),
// then entry conditions (all must pass). The default is SKIP.
func (e *Engine) Evaluate(ctx context.Context, event *domain.EventCard, market *domain.MarketState, skip config.SkipRules, entry config.EntryRules) *domain.PreSignal {
	pre := &domain.PreSignal{
		Action:     domain.ActionSkip,
		WindowHint: "N/A",
		Metrics:    map[string]float64{},
		EventID:    event.EventID,
		Ticker:     market.Ticker,
		Timestamp:  time.Now().UTC(),
	}

	if e.checkSkip(event, market, skip, pre) {
		e.logger.Debug(ctx, "event vetoed by skip rules", map[string]interface{}{
			"ticker":  market.Ticker,
			"eventID": event.EventID,
			"reasons": pre.Reasons,
		})
		return pre
	}

	if e.checkEntry(event, market, entry, pre) {
		pre.Action = domain.ActionEntry
		pre.WindowHint = "[1,5]m"
		return pre
	}

	pre.Reasons = append(pre.Reasons, "did not meet entry criteria")
	return pre
}

// checkSkip returns true when any veto condition fires. The first hit wins
// and short-circuits the rest.
func (e *Engine) checkSkip(event *domain.EventCard, market *domain.MarketState, skip config.SkipRules, pre *domain.PreSignal) bool {
	if abs(market.DP1m) > skip.Spike1mGtPct {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("excessive 1m spike: %.2f%% (limit: %.2f%%)", market.DP1m, skip.Spike1mGtPct))
		pre.Metrics["spike_1m"] = market.DP1m
		return true
	}

	for _, s := range skip.DisallowSessions {
		if string(market.Session) == s {
			pre.Reasons = append(pre.Reasons, fmt.Sprintf("session %q is disallowed", market.Session))
			return true
		}
	}

	for _, c := range skip.DisallowCategories {
		if string(event.Category) == c {
			pre.Reasons = append(pre.Reasons, fmt.Sprintf("category %q is disallowed", event.Category))
			return true
		}
	}

	if event.Reliability < skip.MinReliability {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("low reliability: %.2f (min: %.2f)", event.Reliability, skip.MinReliability))
		pre.Metrics["reliability"] = event.Reliability
		return true
	}

	return false
}

// checkEntry evaluates every condition so the pre-signal records all the
// reasons an event fell short, not just the first. On success the warning
// reasons are replaced by a positive summary.
func (e *Engine) checkEntry(event *domain.EventCard, market *domain.MarketState, entry config.EntryRules, pre *domain.PreSignal) bool {
	passed := true

	pre.Metrics["sentiment"] = event.Sentiment
	if event.Sentiment < entry.MinSentiment {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("sentiment too low: %.2f (min: %.2f)", event.Sentiment, entry.MinSentiment))
		passed = false
	}

	pre.Metrics["reliability"] = event.Reliability
	if event.Reliability < entry.MinImpact {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("impact/reliability too low: %.2f (min: %.2f)", event.Reliability, entry.MinImpact))
		passed = false
	}

	pre.Metrics["dP_5m"] = market.DP5m
	if market.DP5m < entry.DP5mMinPct {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("5m price change too small: %.2f%% (min: %.2f%%)", market.DP5m, entry.DP5mMinPct))
		passed = false
	} else if market.DP5m > entry.DP5mMaxPct {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("5m price change too large: %.2f%% (max: %.2f%%)", market.DP5m, entry.DP5mMaxPct))
		passed = false
	}

	pre.Metrics["vol_ratio"] = market.VolRatio1m
	if market.VolRatio1m < entry.MinVolRatio {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("volume ratio too low: %.2fx (min: %.2fx)", market.VolRatio1m, entry.MinVolRatio))
		passed = false
	}

	pre.Metrics["spread_bp"] = float64(market.SpreadBP)
	if market.SpreadBP > entry.MaxSpreadBP {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("spread too wide: %d bp (max: %d bp)", market.SpreadBP, entry.MaxSpreadBP))
		passed = false
	}

	pre.Metrics["rsi_3"] = market.RSI3
	if market.RSI3 > entry.MaxRSI3 {
		pre.Reasons = append(pre.Reasons,
			fmt.Sprintf("RSI too high (overbought): %.1f (max: %.1f)", market.RSI3, entry.MaxRSI3))
		passed = false
	}

	if len(entry.AllowedCategories) > 0 && !contains(entry.AllowedCategories, string(event.Category)) {
		pre.Reasons = append(pre.Reasons, fmt.Sprintf("category %q not in allowlist", event.Category))
		passed = false
	}

	if passed {
		pre.Reasons = []string{
			fmt.Sprintf("strong positive sentiment: %.2f", event.Sentiment),
			fmt.Sprintf("good price momentum: %.2f%% (5m)", market.DP5m),
			fmt.Sprintf("high volume: %.1fx average", market.VolRatio1m),
			fmt.Sprintf("category: %s", event.Category),
		}
	}

	return passed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
