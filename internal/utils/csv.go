package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"newstrader/internal/domain"
)

// WriteBarsToCSV dumps minute bars to a CSV file for offline analysis.
func WriteBarsToCSV(bars []domain.Bar, ticker, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"timestamp", "ticker", "open", "high", "low", "close", "volume", "vwap"})

	for _, b := range bars {
		writer.Write([]string{
			b.Timestamp.Format(time.RFC3339),
			ticker,
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
			strconv.FormatFloat(b.VWAP, 'f', -1, 64),
		})
	}
	return writer.Error()
}
