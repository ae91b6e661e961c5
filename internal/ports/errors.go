package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these sentinels so the
// application layer can branch on failure class without importing adapters.
var (
	// General
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker
	ErrBrokerUnavailable    = errors.New("broker API is unavailable")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient buying power for order")
	ErrOrderNotFound        = errors.New("order not found at the broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Market data
	ErrNoMarketData = errors.New("no market data available for ticker")

	// News / classification
	ErrFeedUnavailable  = errors.New("news feed is unavailable")
	ErrClassifierFailed = errors.New("classifier returned unusable output")

	// Database
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
