package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func rssFeed(items string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test Feed</title>%s</channel></rss>`, items)
}

func rssEntry(title, pubDate, description string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>https://example.com/a</link><pubDate>%s</pubDate><description>%s</description></item>`,
		title, pubDate, description)
}

func TestFetchSince(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-2 * time.Minute).Format(time.RFC1123Z)
	stale := now.Add(-2 * time.Hour).Format(time.RFC1123Z)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := rssEntry("Apple AAPL surges on earnings", recent, "<p>Apple &amp; suppliers rally.</p>") +
			rssEntry("TSLA recalls vehicles", stale, "old news") +
			rssEntry("Weather is nice today", recent, "no tickers here")
		w.Write([]byte(rssFeed(items)))
	}))
	defer server.Close()

	f, err := NewFetcher(Config{
		Feeds:     []Feed{{Name: "Test Feed", URL: server.URL}},
		Whitelist: []string{"AAPL", "TSLA"},
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)

	items, err := f.FetchSince(context.Background(), now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Test Feed", item.Source)
	assert.Equal(t, "Apple AAPL surges on earnings", item.Headline)
	assert.Equal(t, "Apple & suppliers rally.", item.Snippet)
	assert.NotEmpty(t, item.ClusterID)
	assert.True(t, item.PublishedAt.After(now.Add(-10*time.Minute)))
}

func TestFetchSinceDeduplicatesAcrossFeeds(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-time.Minute).Format(time.RFC1123Z)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFeed(
			rssEntry("AAPL hits new high", recent, "") +
				rssEntry("AAPL hits new high", recent, ""))))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	f, err := NewFetcher(Config{
		Feeds:     []Feed{{Name: "Feed A", URL: server.URL}},
		Whitelist: []string{"AAPL"},
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)

	items, err := f.FetchSince(context.Background(), now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFetchSinceSurvivesFailingFeed(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-time.Minute).Format(time.RFC1123Z)

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFeed(rssEntry("NVDA earnings blowout", recent, ""))))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	f, err := NewFetcher(Config{
		Feeds: []Feed{
			{Name: "Bad Feed", URL: bad.URL},
			{Name: "Good Feed", URL: good.URL},
		},
		Whitelist: []string{"NVDA"},
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)

	items, err := f.FetchSince(context.Background(), now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Good Feed", items[0].Source)
}

func TestParsePubDate(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"Mon, 02 Jun 2025 14:30:00 +0000", true},
		{"Mon, 02 Jun 2025 14:30:00 GMT", true},
		{"2025-06-02T14:30:00Z", true},
		{"", false},
		{"not a date", false},
	}
	for _, tt := range tests {
		_, ok := parsePubDate(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
	}
}

func TestCleanSnippet(t *testing.T) {
	assert.Equal(t, "Hello world", cleanSnippet("<p>Hello   <b>world</b></p>"))
	assert.Equal(t, `A "quoted" & 'plain'`, cleanSnippet("A &quot;quoted&quot; &amp; &#39;plain&#39;"))

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, cleanSnippet(string(long)), 500)
}
