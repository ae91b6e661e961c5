// Package utils provides small pure helpers shared across the pipeline:
// event identity hashing, ticker extraction and price math.
package utils

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"

	"newstrader/internal/domain"
)

// EventID derives a stable 16-character identifier for a news event from its
// source, headline and publication time.
func EventID(source, headline string, publishedAt time.Time) string {
	content := source + "|" + headline + "|" + publishedAt.UTC().Format(time.RFC3339)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// ClusterID derives a 12-character dedup key for a headline. Headlines that
// differ only by case or surrounding whitespace map to the same cluster.
func ClusterID(source, headline string) string {
	content := source + "|" + strings.ToLower(strings.TrimSpace(headline))
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// invalidSpreadBP is returned when either side of the book is missing.
const invalidSpreadBP = 999999

// SpreadBasisPoints computes the bid/ask spread in basis points of the mid.
func SpreadBasisPoints(bid, ask float64) int {
	if bid <= 0 || ask <= 0 {
		return invalidSpreadBP
	}
	mid := (bid + ask) / 2
	return int((ask - bid) / mid * 10000)
}

// PriceChangePct computes the percentage change from old to new. A
// non-positive old price yields 0.
func PriceChangePct(oldPrice, newPrice float64) float64 {
	if oldPrice <= 0 {
		return 0
	}
	return (newPrice - oldPrice) / oldPrice * 100
}

// RoundToTick rounds a price to the nearest multiple of tickSize.
func RoundToTick(price, tickSize float64) float64 {
	return math.Round(price/tickSize) * tickSize
}

// ExtractTickers returns the whitelist symbols that appear in the text,
// matched case-insensitively. Order follows the whitelist.
func ExtractTickers(text string, whitelist []string) []string {
	upper := strings.ToUpper(text)
	seen := make(map[string]struct{}, len(whitelist))
	var found []string
	for _, ticker := range whitelist {
		if ticker == "" {
			continue
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		if strings.Contains(upper, ticker) {
			found = append(found, ticker)
			seen[ticker] = struct{}{}
		}
	}
	return found
}

// ValidTicker reports whether a symbol looks like a US equity ticker
// (1 to 5 uppercase letters).
func ValidTicker(ticker string) bool {
	if len(ticker) < 1 || len(ticker) > 5 {
		return false
	}
	for _, r := range ticker {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

var eastern *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Fall back to a fixed offset; session boundaries will ignore DST.
		loc = time.FixedZone("ET", -5*3600)
	}
	eastern = loc
}

// MarketSession classifies a timestamp into the US equity trading session.
// Pre-market runs 04:00-09:30 ET, regular 09:30-16:00 ET; everything else is
// treated as after-hours.
func MarketSession(t time.Time) domain.Session {
	et := t.In(eastern)
	minutes := et.Hour()*60 + et.Minute()

	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return domain.SessionPre
	case minutes >= 9*60+30 && minutes < 16*60:
		return domain.SessionRegular
	default:
		return domain.SessionAfter
	}
}
