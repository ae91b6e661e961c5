// Command fetch_bars dumps recent minute bars for one ticker to CSV, for
// offline inspection of the scanner's inputs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"newstrader/config"
	"newstrader/internal/adapters/alpacabroker"
	"newstrader/internal/adapters/logger"
	"newstrader/internal/utils"
)

func main() {
	ticker := flag.String("ticker", "AAPL", "Ticker symbol to fetch")
	days := flag.Int("days", 1, "How many days back to fetch")
	flag.Parse()

	if !utils.ValidTicker(*ticker) {
		log.Fatalf("FATAL: Invalid ticker %q", *ticker)
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Market Data Client
	marketData, err := alpacabroker.NewMarketData(alpacabroker.Config{
		APIKey:    cfg.AlpacaAPIKey,
		APISecret: cfg.AlpacaSecretKey,
		BaseURL:   cfg.AlpacaBaseURL,
		Logger:    appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market data client: %v", err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	fmt.Printf("Fetching minute bars for %s from %s to %s...\n", *ticker, start.Format(time.RFC3339), end.Format(time.RFC3339))
	bars, err := marketData.MinuteBars(context.Background(), *ticker, start, end)
	if err != nil {
		log.Fatalf("Error fetching bars: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched bars", map[string]interface{}{"ticker": *ticker, "count": len(bars)})

	filename := fmt.Sprintf("data/%s_1m_%s_to_%s.csv", *ticker, start.Format("20060102"), end.Format("20060102"))
	if err := utils.WriteBarsToCSV(bars, *ticker, filename); err != nil {
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
