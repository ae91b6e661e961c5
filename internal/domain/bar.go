package domain

import "time"

// Bar represents a single minute candlestick of equities market data.
type Bar struct {
	Timestamp time.Time // Start time of the bar
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	VWAP      float64 // Volume-weighted average price, 0 when the feed omits it
}

// Quote is the latest best bid/offer for a ticker.
type Quote struct {
	Ticker    string
	Timestamp time.Time
	BidPrice  float64
	AskPrice  float64
	BidSize   int64
	AskSize   int64
}
