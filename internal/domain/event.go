package domain

import "time"

// NewsItem is a raw headline pulled from an RSS feed, before classification.
type NewsItem struct {
	Source      string    // Feed name (e.g., "Yahoo Finance")
	Headline    string    // Item title
	URL         string    // Link to the article
	PublishedAt time.Time // Publication time (UTC)
	Snippet     string    // Plain-text summary, truncated
	ClusterID   string    // Dedup hash of source+headline
}

// EventCard is a classified news event, the unit the entry pipeline acts on.
type EventCard struct {
	EventID     string
	ClusterID   string
	Tickers     []string // Whitelisted tickers mentioned in the headline/snippet
	Headline    string
	PublishedAt time.Time
	Category    Category
	Sentiment   float64  // -1.0 (very negative) .. 1.0 (very positive)
	Reliability float64  // 0.0 (uncertain) .. 1.0 (highly confident)
	KeyFacts    []string // Factual bullet points extracted by the classifier
	Session     Session  // Trading session at publication time
	Source      string
	URL         string
}
