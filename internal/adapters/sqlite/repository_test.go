package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newstrader/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "newstrader-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tempDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tempDir)
	}
	return repo, cleanup
}

func testEvent(clusterID string) *domain.EventCard {
	return &domain.EventCard{
		EventID:     "evt-" + clusterID,
		ClusterID:   clusterID,
		Tickers:     []string{"AAPL"},
		Headline:    "Apple beats earnings expectations",
		PublishedAt: time.Now().UTC().Truncate(time.Second),
		Category:    domain.CategoryEarnings,
		Sentiment:   0.85,
		Reliability: 0.90,
		KeyFacts:    []string{"EPS beat by 12%"},
		Session:     domain.SessionRegular,
		Source:      "Yahoo Finance",
		URL:         "https://example.com/article",
	}
}

func TestEventDedup(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	exists, err := repo.EventExists(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.SaveEvent(ctx, testEvent("c1")))

	exists, err = repo.EventExists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, exists)

	// Saving the same cluster again is a silent no-op.
	dup := testEvent("c1")
	dup.EventID = "evt-other"
	require.NoError(t, repo.SaveEvent(ctx, dup))
}

func TestSaveSignal(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pre := &domain.PreSignal{
		Action:     domain.ActionEntry,
		WindowHint: "[1,5]m",
		Metrics:    map[string]float64{"sentiment": 0.85},
		Reasons:    []string{"strong positive sentiment"},
		EventID:    "evt-1",
		Ticker:     "AAPL",
		Timestamp:  time.Now().UTC(),
	}
	approved := &domain.ApprovedSignal{
		Approved:         true,
		Ticker:           "AAPL",
		SizeUSD:          11583.0,
		Shares:           66,
		EntryPriceTarget: 175.68,
		HardStopBP:       343,
		TakeProfitBP:     250,
		MaxSlippageBP:    40,
		Notes:            []string{"position size: 66 shares"},
	}

	id, err := repo.SaveSignal(ctx, pre, approved)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	id2, err := repo.SaveSignal(ctx, pre, approved)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
}

func TestSaveOrder(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := &domain.OrderRecord{
		OrderID:     "ord-1",
		SignalID:    "sig-1",
		EventID:     "evt-1",
		Ticker:      "AAPL",
		Side:        domain.Buy,
		Quantity:    66,
		OrderType:   "limit",
		LimitPrice:  175.68,
		Status:      domain.OrderSubmitted,
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.SaveOrder(ctx, order))

	// Updating the same order ID replaces the record.
	order.Status = domain.OrderFilled
	order.FilledAt = order.SubmittedAt.Add(2 * time.Second)
	order.FilledAvgPrice = 175.65
	order.FilledQty = 66
	require.NoError(t, repo.SaveOrder(ctx, order))
}

func TestPositionLifecycle(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	entryTime := time.Now().UTC().Truncate(time.Second)
	pos := &domain.Position{
		Ticker:       "AAPL",
		EntryPrice:   175.65,
		Quantity:     66,
		EntryTime:    entryTime,
		CurrentPrice: 175.65,
		StopLoss:     169.63,
		TakeProfit:   180.04,
		EventID:      "evt-1",
		OrderID:      "ord-1",
		Status:       domain.StatusOpen,
	}

	id, err := repo.CreatePosition(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, id, pos.ID)

	open, err := repo.FindOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "AAPL", open[0].Ticker)
	assert.Equal(t, 66, open[0].Quantity)
	assert.False(t, open[0].PartialSold)
	assert.True(t, open[0].EntryTime.Equal(entryTime))

	// Partial sale: reduce quantity, bump the peak, set the flag.
	pos.Quantity = 40
	pos.CurrentPrice = 190.0
	pos.PartialSold = true
	require.NoError(t, repo.UpdatePosition(ctx, pos))

	found, err := repo.FindPositionByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 40, found.Quantity)
	assert.InDelta(t, 190.0, found.CurrentPrice, 1e-9)
	assert.True(t, found.PartialSold)
	assert.True(t, found.IsOpen())

	// Close it out.
	pos.Status = domain.StatusClosed
	pos.ExitPrice = 185.0
	pos.ExitTime = entryTime.Add(45 * time.Minute)
	pos.RealizedPNL = 612.0
	require.NoError(t, repo.UpdatePosition(ctx, pos))

	open, err = repo.FindOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := repo.FindPositionByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.False(t, closed.IsOpen())
	assert.InDelta(t, 185.0, closed.ExitPrice, 1e-9)
	assert.False(t, closed.ExitTime.IsZero())
}

func TestFindPositionByIDNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	pos, err := repo.FindPositionByID(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestUpdatePositionNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.UpdatePosition(context.Background(), &domain.Position{ID: 999, Status: domain.StatusOpen})
	require.Error(t, err)
}

func TestRealizedPNLSince(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	closedPosition := func(ticker string, exitTime time.Time, pnl float64) {
		pos := &domain.Position{
			Ticker:       ticker,
			EntryPrice:   100.0,
			Quantity:     10,
			EntryTime:    exitTime.Add(-time.Hour),
			CurrentPrice: 100.0,
			Status:       domain.StatusOpen,
		}
		_, err := repo.CreatePosition(ctx, pos)
		require.NoError(t, err)

		pos.Status = domain.StatusClosed
		pos.ExitPrice = 100.0 + pnl/10
		pos.ExitTime = exitTime
		pos.RealizedPNL = pnl
		require.NoError(t, repo.UpdatePosition(ctx, pos))
	}

	closedPosition("AAPL", now.Add(-time.Hour), 150.0)
	closedPosition("TSLA", now.Add(-30*time.Minute), -70.0)
	closedPosition("NVDA", now.Add(-48*time.Hour), 999.0) // outside the window

	// An open position never counts, whatever its running numbers say.
	openPos := &domain.Position{
		Ticker:       "MSFT",
		EntryPrice:   100.0,
		Quantity:     5,
		EntryTime:    now,
		CurrentPrice: 110.0,
		Status:       domain.StatusOpen,
	}
	_, err := repo.CreatePosition(ctx, openPos)
	require.NoError(t, err)

	pnl, err := repo.RealizedPNLSince(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 80.0, pnl, 1e-9)

	pnl, err = repo.RealizedPNLSince(ctx, now)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pnl, 1e-9)
}

func TestRunLifecycle(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	last, err := repo.LastCompletedRunTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	started := time.Now().UTC().Truncate(time.Second)
	run := &domain.RunRecord{
		RunID:     "run-1",
		StartedAt: started,
		Status:    domain.RunRunning,
		Mode:      "DRYRUN",
	}
	require.NoError(t, repo.CreateRun(ctx, run))

	run.CompletedAt = started.Add(30 * time.Second)
	run.Status = domain.RunCompleted
	run.EventsFetched = 12
	run.SignalsGenerated = 2
	run.OrdersPlaced = 1
	run.Errors = []string{"classifier timeout on one item"}
	require.NoError(t, repo.UpdateRun(ctx, run))

	last, err = repo.LastCompletedRunTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(started))
}
