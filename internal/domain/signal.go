package domain

import "time"

// MarketState is a microstructure snapshot for one ticker at evaluation time.
type MarketState struct {
	Ticker     string
	Timestamp  time.Time
	Mid        float64 // Midpoint of best bid/ask
	Bid        float64
	Ask        float64
	SpreadBP   int     // Bid/ask spread in basis points
	DP1m       float64 // Price change over the last minute, percent
	DP5m       float64 // Price change over the last five minutes, percent
	VolRatio1m float64 // Last-minute volume vs average of preceding bars
	RSI3       float64 // 3-period RSI over recent minute closes
	VWAPDevBP  int     // Mid deviation from VWAP, basis points
	Volume     int64   // Last-minute volume
	Session    Session
}

// PreSignal is the entry rule engine's verdict for one event/ticker pair.
type PreSignal struct {
	Action     SignalAction
	WindowHint string             // Suggested entry window (e.g., "[1,5]m")
	Metrics    map[string]float64 // Threshold values that drove the decision
	Reasons    []string
	EventID    string
	Ticker     string
	Timestamp  time.Time
}

// ApprovedSignal is the risk guard's sized and gated version of a PreSignal.
type ApprovedSignal struct {
	Approved         bool
	Ticker           string
	SizeUSD          float64 // Final notional size
	Shares           int     // Whole shares to buy
	EntryPriceTarget float64 // Limit price for the entry order
	HardStopBP       int     // Stop distance in basis points
	TakeProfitBP     int     // Advisory take-profit distance in basis points
	MaxSlippageBP    int
	Notes            []string
}

// PortfolioState summarises account-level exposure for risk checks.
type PortfolioState struct {
	Equity         float64
	Cash           float64
	PositionsCount int
	DailyPNL       float64
	DailyPNLPct    float64
	SectorExposure map[string]float64 // Sector -> fraction of equity
	OpenPositions  []*Position
}
