package dryrun

import (
	"context"
	"testing"

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

func TestPlaceLimitOrderFillsImmediately(t *testing.T) {
	b := New(&mockLogger{})
	ctx := context.Background()

	resp, err := b.PlaceLimitOrder(ctx, ports.OrderRequest{
		Ticker:        "AAPL",
		Side:          domain.Buy,
		Quantity:      10,
		LimitPrice:    175.68,
		ClientOrderID: "nt-test-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, resp.Status)
	assert.Equal(t, 10, resp.FilledQty)
	assert.InDelta(t, 175.68, resp.FilledAvgPrice, 1e-9)
	assert.Equal(t, "nt-test-1", resp.ClientOrderID)
	assert.False(t, resp.FilledAt.IsZero())

	fetched, err := b.GetOrder(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, fetched.OrderID)
	assert.Equal(t, domain.OrderFilled, fetched.Status)
}

func TestPlaceLimitOrderValidation(t *testing.T) {
	b := New(&mockLogger{})
	ctx := context.Background()

	_, err := b.PlaceLimitOrder(ctx, ports.OrderRequest{Ticker: "AAPL", Side: domain.Buy, Quantity: 0, LimitPrice: 100})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = b.PlaceLimitOrder(ctx, ports.OrderRequest{Ticker: "AAPL", Side: domain.Buy, Quantity: 5, LimitPrice: 0})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestGetOrderUnknown(t *testing.T) {
	b := New(&mockLogger{})

	_, err := b.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)
}

func TestCancelOrder(t *testing.T) {
	b := New(&mockLogger{})
	ctx := context.Background()

	err := b.CancelOrder(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)

	resp, err := b.PlaceLimitOrder(ctx, ports.OrderRequest{Ticker: "TSLA", Side: domain.Sell, Quantity: 3, LimitPrice: 250.10})
	require.NoError(t, err)

	// Filled orders cancel as a no-op.
	assert.NoError(t, b.CancelOrder(ctx, resp.OrderID))
}
