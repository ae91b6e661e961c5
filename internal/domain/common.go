package domain

// OrderSide represents the side of an order (buy or sell).
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// ExitAction is the action the exit engine directs for an open position.
type ExitAction string

const (
	Hold        ExitAction = "HOLD"
	PartialSell ExitAction = "PARTIAL_SELL"
	FullSell    ExitAction = "FULL_SELL"
)

// ExitReason indicates which exit rule produced a sell decision.
type ExitReason string

const (
	ReasonNone         ExitReason = "NONE"
	ReasonHardStop     ExitReason = "HARD_STOP"
	ReasonLvl1Profit   ExitReason = "LVL1_PROFIT"
	ReasonTrailingStop ExitReason = "TRAILING_STOP"
	ReasonTimeLimit    ExitReason = "TIME_LIMIT"
)

// SignalAction is the entry-side decision for a news event.
type SignalAction string

const (
	ActionEntry SignalAction = "ENTRY"
	ActionSkip  SignalAction = "SKIP"
)

// Session identifies the US equities trading session a timestamp falls in.
type Session string

const (
	SessionPre     Session = "pre"
	SessionRegular Session = "regular"
	SessionAfter   Session = "after"
)

// Category is the news category assigned by the classifier.
type Category string

const (
	CategoryEarnings    Category = "earnings"
	CategoryFDA         Category = "FDA"
	CategoryMA          Category = "M&A"
	CategoryGuidance    Category = "guidance"
	CategoryPartnership Category = "partnership"
	CategoryRegulatory  Category = "regulatory"
	CategoryRumor       Category = "rumor"
	CategoryOther       Category = "other"
)

// ValidCategory reports whether c is one of the classifier's known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryEarnings, CategoryFDA, CategoryMA, CategoryGuidance,
		CategoryPartnership, CategoryRegulatory, CategoryRumor, CategoryOther:
		return true
	}
	return false
}

// OrderStatus tracks the lifecycle of a submitted order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

// RunStatus tracks the lifecycle of one pipeline cycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)
