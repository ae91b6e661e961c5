package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"newstrader/internal/domain"
	"newstrader/internal/ports"
)

// Repository implements the event, signal, order, position and run
// repository interfaces from ports using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/newstrader.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from
	// limiting connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		cluster_id TEXT NOT NULL UNIQUE,
		tickers TEXT NOT NULL,
		headline TEXT NOT NULL,
		published_at TIMESTAMP NOT NULL,
		category TEXT NOT NULL,
		sentiment REAL NOT NULL,
		reliability REAL NOT NULL,
		key_facts TEXT NOT NULL,
		session TEXT NOT NULL,
		source TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS signals (
		signal_id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		action TEXT NOT NULL,
		window_hint TEXT NOT NULL,
		metrics TEXT NOT NULL,
		reasons TEXT NOT NULL,
		approved INTEGER NOT NULL,
		size_usd REAL NOT NULL DEFAULT 0,
		shares INTEGER NOT NULL DEFAULT 0,
		entry_price_target REAL NOT NULL DEFAULT 0,
		hard_stop_bp INTEGER NOT NULL DEFAULT 0,
		take_profit_bp INTEGER NOT NULL DEFAULT 0,
		max_slippage_bp INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		signal_id TEXT NOT NULL DEFAULT '',
		event_id TEXT NOT NULL DEFAULT '',
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		order_type TEXT NOT NULL,
		limit_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		submitted_at TIMESTAMP NOT NULL,
		filled_at TIMESTAMP DEFAULT NULL,
		filled_avg_price REAL NOT NULL DEFAULT 0,
		filled_qty INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		entry_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		current_price REAL NOT NULL,
		partial_sold INTEGER NOT NULL DEFAULT 0,
		stop_loss REAL NOT NULL DEFAULT 0,
		take_profit REAL NOT NULL DEFAULT 0,
		event_id TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		exit_price REAL DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		realized_pnl REAL DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP DEFAULT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL,
		events_fetched INTEGER NOT NULL DEFAULT 0,
		signals_generated INTEGER NOT NULL DEFAULT 0,
		orders_placed INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_events_cluster ON events (cluster_id);
	CREATE INDEX IF NOT EXISTS idx_signals_event ON signals (event_id);
	CREATE INDEX IF NOT EXISTS idx_orders_ticker ON orders (ticker);
	CREATE INDEX IF NOT EXISTS idx_positions_ticker_status ON positions (ticker, status);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs (started_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- EventRepository Implementation ---

// SaveEvent persists a classified event. Saving an event whose cluster
// already exists is a no-op.
func (r *Repository) SaveEvent(ctx context.Context, event *domain.EventCard) error {
	const query = `
	INSERT OR IGNORE INTO events (event_id, cluster_id, tickers, headline, published_at,
	                              category, sentiment, reliability, key_facts, session, source, url)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tickers, err := json.Marshal(event.Tickers)
	if err != nil {
		return fmt.Errorf("failed to encode tickers for event %s: %w", event.EventID, err)
	}
	keyFacts, err := json.Marshal(event.KeyFacts)
	if err != nil {
		return fmt.Errorf("failed to encode key facts for event %s: %w", event.EventID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		event.EventID, event.ClusterID, string(tickers), event.Headline, event.PublishedAt,
		event.Category, event.Sentiment, event.Reliability, string(keyFacts), event.Session,
		event.Source, event.URL)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.EventID, err)
	}
	return nil
}

// EventExists reports whether an event with the given cluster ID was already ingested.
func (r *Repository) EventExists(ctx context.Context, clusterID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM events WHERE cluster_id = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, clusterID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check event cluster %s: %w", clusterID, err)
	}
	return count > 0, nil
}

// --- SignalRepository Implementation ---

// SaveSignal persists a pre-signal and its approval outcome, returning the
// generated signal ID.
func (r *Repository) SaveSignal(ctx context.Context, pre *domain.PreSignal, approved *domain.ApprovedSignal) (string, error) {
	const query = `
	INSERT INTO signals (signal_id, event_id, ticker, action, window_hint, metrics, reasons,
	                     approved, size_usd, shares, entry_price_target, hard_stop_bp,
	                     take_profit_bp, max_slippage_bp, notes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	metrics, err := json.Marshal(pre.Metrics)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics for event %s: %w", pre.EventID, err)
	}
	reasons, err := json.Marshal(pre.Reasons)
	if err != nil {
		return "", fmt.Errorf("failed to encode reasons for event %s: %w", pre.EventID, err)
	}
	notes, err := json.Marshal(approved.Notes)
	if err != nil {
		return "", fmt.Errorf("failed to encode notes for event %s: %w", pre.EventID, err)
	}

	signalID := uuid.NewString()
	_, err = r.db.ExecContext(ctx, query,
		signalID, pre.EventID, pre.Ticker, pre.Action, pre.WindowHint, string(metrics), string(reasons),
		approved.Approved, approved.SizeUSD, approved.Shares, approved.EntryPriceTarget,
		approved.HardStopBP, approved.TakeProfitBP, approved.MaxSlippageBP, string(notes))
	if err != nil {
		return "", fmt.Errorf("failed to insert signal for event %s: %w", pre.EventID, err)
	}

	r.logger.Debug(ctx, "Signal saved", map[string]interface{}{
		"signalID": signalID,
		"ticker":   pre.Ticker,
		"action":   pre.Action,
		"approved": approved.Approved,
	})
	return signalID, nil
}

// --- OrderRepository Implementation ---

// SaveOrder inserts or replaces an order record keyed by order ID.
func (r *Repository) SaveOrder(ctx context.Context, order *domain.OrderRecord) error {
	const query = `
	INSERT OR REPLACE INTO orders (order_id, signal_id, event_id, ticker, side, quantity,
	                               order_type, limit_price, status, submitted_at, filled_at,
	                               filled_avg_price, filled_qty, error_message)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var filledAt sql.NullTime
	if !order.FilledAt.IsZero() {
		filledAt = sql.NullTime{Time: order.FilledAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		order.OrderID, order.SignalID, order.EventID, order.Ticker, order.Side, order.Quantity,
		order.OrderType, order.LimitPrice, order.Status, order.SubmittedAt, filledAt,
		order.FilledAvgPrice, order.FilledQty, order.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.OrderID, err)
	}
	return nil
}

// --- PositionRepository Implementation ---

// CreatePosition saves a new position and returns its assigned ID.
func (r *Repository) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (ticker, entry_price, quantity, entry_time, current_price,
	                       partial_sold, stop_loss, take_profit, event_id, order_id, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		pos.Ticker, pos.EntryPrice, pos.Quantity, pos.EntryTime, pos.CurrentPrice,
		pos.PartialSold, pos.StopLoss, pos.TakeProfit, pos.EventID, pos.OrderID, pos.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for ticker %s: %w", pos.Ticker, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Ticker, err)
	}
	pos.ID = id
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "ticker": pos.Ticker})
	return id, nil
}

// UpdatePosition modifies an existing position based on its ID.
func (r *Repository) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET quantity = ?, current_price = ?, partial_sold = ?, status = ?,
	    exit_price = ?, exit_time = ?, realized_pnl = ?
	WHERE id = ?`

	var exitTime sql.NullTime
	if !pos.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: pos.ExitTime, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		pos.Quantity, pos.CurrentPrice, pos.PartialSold, pos.Status,
		pos.ExitPrice, exitTime, pos.RealizedPNL,
		pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", pos.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": pos.ID, "ticker": pos.Ticker, "status": pos.Status})
	return nil
}

// FindOpenPositions retrieves all currently open positions, oldest first.
func (r *Repository) FindOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT id, ticker, entry_price, quantity, entry_time, current_price, partial_sold,
	       stop_loss, take_profit, event_id, order_id, status,
	       COALESCE(exit_price, 0), exit_time, COALESCE(realized_pnl, 0)
	FROM positions
	WHERE status = ?
	ORDER BY entry_time ASC`

	rows, err := r.db.QueryContext(ctx, query, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpenPositions: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// FindPositionByID retrieves a position by its unique ID.
func (r *Repository) FindPositionByID(ctx context.Context, id int64) (*domain.Position, error) {
	const query = `
	SELECT id, ticker, entry_price, quantity, entry_time, current_price, partial_sold,
	       stop_loss, take_profit, event_id, order_id, status,
	       COALESCE(exit_price, 0), exit_time, COALESCE(realized_pnl, 0)
	FROM positions
	WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query position by ID %d: %w", id, err)
	}
	return pos, nil
}

// RealizedPNLSince sums realized P&L over positions closed at or after since.
func (r *Repository) RealizedPNLSince(ctx context.Context, since time.Time) (float64, error) {
	const query = `
	SELECT COALESCE(SUM(realized_pnl), 0)
	FROM positions
	WHERE status = ? AND exit_time >= ?`

	var pnl float64
	err := r.db.QueryRowContext(ctx, query, domain.StatusClosed, since).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized PNL since %s: %w", since.Format(time.RFC3339), err)
	}
	return pnl, nil
}

// --- RunRepository Implementation ---

// CreateRun inserts a new run record in the running state.
func (r *Repository) CreateRun(ctx context.Context, run *domain.RunRecord) error {
	const query = `
	INSERT INTO runs (run_id, started_at, status, mode)
	VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, run.RunID, run.StartedAt, run.Status, run.Mode)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}
	return nil
}

// UpdateRun writes the final state of a run record.
func (r *Repository) UpdateRun(ctx context.Context, run *domain.RunRecord) error {
	const query = `
	UPDATE runs
	SET completed_at = ?, status = ?, events_fetched = ?, signals_generated = ?,
	    orders_placed = ?, errors = ?
	WHERE run_id = ?`

	var completedAt sql.NullTime
	if !run.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: run.CompletedAt, Valid: true}
	}

	runErrors, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode errors for run %s: %w", run.RunID, err)
	}

	result, err := r.db.ExecContext(ctx, query,
		completedAt, run.Status, run.EventsFetched, run.SignalsGenerated,
		run.OrdersPlaced, string(runErrors), run.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.RunID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for run %s: %w", run.RunID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s not found for update: %w", run.RunID, ports.ErrNotFound)
	}
	return nil
}

// LastCompletedRunTime returns the start time of the most recent completed
// run, or the zero time when no run has completed yet.
func (r *Repository) LastCompletedRunTime(ctx context.Context) (time.Time, error) {
	const query = `SELECT started_at FROM runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`

	var startedAt time.Time
	err := r.db.QueryRowContext(ctx, query, domain.RunCompleted).Scan(&startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to query last completed run: %w", err)
	}
	return startedAt, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var exitTime sql.NullTime
	var status string
	err := s.Scan(
		&p.ID, &p.Ticker, &p.EntryPrice, &p.Quantity, &p.EntryTime, &p.CurrentPrice, &p.PartialSold,
		&p.StopLoss, &p.TakeProfit, &p.EventID, &p.OrderID, &status,
		&p.ExitPrice, &exitTime, &p.RealizedPNL)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}
