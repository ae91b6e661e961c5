// Package dryrun provides a simulated broker that fills every order
// immediately at its limit price. It lets the whole pipeline run end to end
// without touching a real trading API.
package dryrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
)

// Broker implements ports.BrokerClient with instant simulated fills.
type Broker struct {
	logger ports.Logger

	mu     sync.Mutex
	orders map[string]*ports.OrderResponse
}

func New(logger ports.Logger) *Broker {
	return &Broker{
		logger: logger,
		orders: make(map[string]*ports.OrderResponse),
	}
}

// PlaceLimitOrder records the order and fills it immediately at the limit
// price.
func (b *Broker) PlaceLimitOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", ports.ErrInvalidRequest)
	}
	if req.LimitPrice <= 0 {
		return nil, fmt.Errorf("limit price must be positive: %w", ports.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	resp := &ports.OrderResponse{
		OrderID:        "dryrun-" + uuid.NewString(),
		ClientOrderID:  req.ClientOrderID,
		Ticker:         req.Ticker,
		Status:         domain.OrderFilled,
		FilledAvgPrice: req.LimitPrice,
		FilledQty:      req.Quantity,
		SubmittedAt:    now,
		FilledAt:       now,
	}

	b.mu.Lock()
	b.orders[resp.OrderID] = resp
	b.mu.Unlock()

	b.logger.Info(ctx, "simulated fill", map[string]interface{}{
		"orderID": resp.OrderID,
		"ticker":  req.Ticker,
		"side":    req.Side,
		"qty":     req.Quantity,
		"price":   req.LimitPrice,
	})
	return resp, nil
}

// GetOrder returns the stored state of a simulated order.
func (b *Broker) GetOrder(ctx context.Context, orderID string) (*ports.OrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	resp, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrOrderNotFound)
	}
	copied := *resp
	return &copied, nil
}

// CancelOrder always fails with ErrOrderNotFound for unknown orders and is a
// no-op otherwise, since simulated orders fill instantly.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.orders[orderID]; !ok {
		return fmt.Errorf("order %s: %w", orderID, ports.ErrOrderNotFound)
	}
	return nil
}
