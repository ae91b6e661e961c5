// Package alpacabroker implements order execution and market data access
// against the Alpaca trading API.
package alpacabroker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
)

// Broker implements ports.BrokerClient against the Alpaca trading API.
type Broker struct {
	client *alpaca.Client
	logger ports.Logger
}

// Config holds the Alpaca API credentials and endpoint.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Logger    ports.Logger
}

func New(cfg Config) (*Broker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Alpaca broker")
	}
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return &Broker{client: client, logger: cfg.Logger}, nil
}

// PlaceLimitOrder submits a DAY limit order.
func (b *Broker) PlaceLimitOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	qty := decimal.NewFromInt(int64(req.Quantity))
	limitPrice := decimal.NewFromFloat(req.LimitPrice)

	side := alpaca.Buy
	if req.Side == domain.Sell {
		side = alpaca.Sell
	}

	order, err := b.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Ticker,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Limit,
		TimeInForce:   alpaca.Day,
		LimitPrice:    &limitPrice,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		b.logger.Error(ctx, err, "order placement failed", map[string]interface{}{
			"ticker": req.Ticker,
			"side":   req.Side,
			"qty":    req.Quantity,
		})
		return nil, fmt.Errorf("%w: %v", classifyError(err, ports.ErrOrderPlacementFailed), err)
	}

	b.logger.Info(ctx, "order placed", map[string]interface{}{
		"orderID": order.ID,
		"ticker":  req.Ticker,
		"side":    req.Side,
		"qty":     req.Quantity,
		"limit":   req.LimitPrice,
		"status":  order.Status,
	})
	return toOrderResponse(order), nil
}

// GetOrder polls the current state of an order.
func (b *Broker) GetOrder(ctx context.Context, orderID string) (*ports.OrderResponse, error) {
	order, err := b.client.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, classifyError(err, ports.ErrBrokerUnavailable))
	}
	return toOrderResponse(order), nil
}

// CancelOrder cancels an open order.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, classifyError(err, ports.ErrOrderCancelFailed))
	}
	b.logger.Info(ctx, "order cancelled", map[string]interface{}{"orderID": orderID})
	return nil
}

func toOrderResponse(order *alpaca.Order) *ports.OrderResponse {
	resp := &ports.OrderResponse{
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Ticker:        order.Symbol,
		Status:        mapOrderStatus(order.Status),
		SubmittedAt:   order.SubmittedAt,
		FilledQty:     int(order.FilledQty.IntPart()),
	}
	if order.FilledAvgPrice != nil {
		resp.FilledAvgPrice, _ = order.FilledAvgPrice.Float64()
	}
	if order.FilledAt != nil {
		resp.FilledAt = *order.FilledAt
	}
	return resp
}

func mapOrderStatus(status string) domain.OrderStatus {
	switch status {
	case "filled":
		return domain.OrderFilled
	case "canceled", "cancelled":
		return domain.OrderCancelled
	case "rejected", "expired", "suspended":
		return domain.OrderFailed
	case "new", "accepted", "pending_new", "partially_filled", "accepted_for_bidding":
		return domain.OrderSubmitted
	default:
		return domain.OrderPending
	}
}

// classifyError maps Alpaca API errors onto the port sentinels so the
// application layer can branch without knowing the adapter.
func classifyError(err error, fallback error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ports.ErrAuthenticationFailed
		case http.StatusNotFound:
			return ports.ErrOrderNotFound
		case http.StatusUnprocessableEntity:
			return ports.ErrInsufficientFunds
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable:
			return ports.ErrBrokerUnavailable
		}
	}
	return fallback
}
