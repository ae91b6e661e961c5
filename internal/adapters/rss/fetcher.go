// Package rss fetches headlines from financial RSS feeds, filtered to a
// ticker whitelist and deduplicated by headline cluster.
package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
	"newstrader/internal/utils"
)

const (
	fetchTimeout = 10 * time.Second
	// A browser-like agent avoids blanket bot blocking on some feeds.
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxSnippetSize = 500
)

// Feed identifies one RSS source.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds are the sources polled every cycle.
var DefaultFeeds = []Feed{
	{Name: "Yahoo Finance", URL: "https://finance.yahoo.com/news/rssindex"},
	{Name: "Nasdaq News", URL: "https://www.nasdaq.com/feed/rssoutbound"},
	{Name: "Seeking Alpha Market News", URL: "https://seekingalpha.com/feed.xml"},
}

// Fetcher implements ports.NewsSource over plain RSS 2.0 feeds.
type Fetcher struct {
	httpClient *http.Client
	feeds      []Feed
	whitelist  []string
	logger     ports.Logger
}

// Config holds the fetcher settings.
type Config struct {
	Feeds     []Feed // Defaults to DefaultFeeds
	Whitelist []string
	Logger    ports.Logger
}

func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for RSS fetcher")
	}
	feeds := cfg.Feeds
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: fetchTimeout},
		feeds:      feeds,
		whitelist:  cfg.Whitelist,
		logger:     cfg.Logger,
	}, nil
}

// rssDocument mirrors the subset of RSS 2.0 the feeds actually use.
type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// FetchSince polls all feeds concurrently and returns whitelist-relevant
// items published after the given time, deduplicated by cluster ID. A feed
// that fails is logged and skipped; the others still contribute.
func (f *Fetcher) FetchSince(ctx context.Context, since time.Time) ([]*domain.NewsItem, error) {
	var wg sync.WaitGroup
	results := make([][]*domain.NewsItem, len(f.feeds))

	for i, feed := range f.feeds {
		wg.Add(1)
		go func(i int, feed Feed) {
			defer wg.Done()
			items, err := f.fetchFeed(ctx, feed, since)
			if err != nil {
				f.logger.Warn(ctx, "feed fetch failed", map[string]interface{}{
					"feed":  feed.Name,
					"error": err.Error(),
				})
				return
			}
			results[i] = items
		}(i, feed)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var unique []*domain.NewsItem
	total := 0
	for _, items := range results {
		for _, item := range items {
			total++
			if _, dup := seen[item.ClusterID]; dup {
				continue
			}
			seen[item.ClusterID] = struct{}{}
			unique = append(unique, item)
		}
	}

	f.logger.Info(ctx, "fetched news items", map[string]interface{}{
		"unique": len(unique),
		"total":  total,
		"since":  since.Format(time.RFC3339),
	})
	return unique, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feed Feed, since time.Time) ([]*domain.NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", feed.Name, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: feed %s returned status %d", ports.ErrFeedUnavailable, feed.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feed.Name, err)
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feed.Name, err)
	}

	var items []*domain.NewsItem
	for _, entry := range doc.Channel.Items {
		pubTime, ok := parsePubDate(entry.PubDate)
		if !ok || pubTime.Before(since) {
			continue
		}

		headline := strings.TrimSpace(entry.Title)
		snippet := cleanSnippet(entry.Description)

		// Only keep items that mention a whitelisted ticker.
		if len(utils.ExtractTickers(headline+" "+snippet, f.whitelist)) == 0 {
			continue
		}

		items = append(items, &domain.NewsItem{
			Source:      feed.Name,
			Headline:    headline,
			URL:         strings.TrimSpace(entry.Link),
			PublishedAt: pubTime,
			Snippet:     snippet,
			ClusterID:   utils.ClusterID(feed.Name, headline),
		})
	}

	f.logger.Debug(ctx, "feed fetched", map[string]interface{}{
		"feed":  feed.Name,
		"items": len(items),
	})
	return items, nil
}

// pubDateFormats covers the date styles seen across the polled feeds.
var pubDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

func parsePubDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// cleanSnippet strips markup and collapses whitespace, truncating to a
// prompt-friendly length.
func cleanSnippet(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(s)
	s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
	if len(s) > maxSnippetSize {
		s = s[:maxSnippetSize]
	}
	return s
}
