package ports

import (
	"context"
	"time"

	"newstrader/internal/domain"
)

// OrderRequest describes a limit order to submit to the broker.
type OrderRequest struct {
	Ticker        string
	Quantity      int
	Side          domain.OrderSide
	LimitPrice    float64
	ClientOrderID string
}

// OrderResponse carries the essential details of a broker order after
// placement or a status poll.
type OrderResponse struct {
	OrderID        string
	ClientOrderID  string
	Ticker         string
	Status         domain.OrderStatus
	FilledAvgPrice float64
	FilledQty      int
	SubmittedAt    time.Time
	FilledAt       time.Time
}

// BrokerClient is the order-execution collaborator. Implementations place
// real orders (Alpaca) or simulate immediate fills (dry run).
type BrokerClient interface {
	// PlaceLimitOrder submits a DAY limit order and returns its initial state.
	PlaceLimitOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	// GetOrder polls the current state of an order by broker order ID.
	GetOrder(ctx context.Context, orderID string) (*OrderResponse, error)
	// CancelOrder cancels an open order. Cancelling an already-filled or
	// unknown order returns ErrOrderNotFound.
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketDataClient supplies quotes and historical minute bars.
type MarketDataClient interface {
	// LatestQuote returns the most recent best bid/offer for a ticker.
	LatestQuote(ctx context.Context, ticker string) (*domain.Quote, error)
	// MinuteBars returns minute bars for the ticker between start and end,
	// oldest first.
	MinuteBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error)
}
