package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

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

func apiResponse(text string) string {
	resp := map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": text}},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newsItem() *domain.NewsItem {
	return &domain.NewsItem{
		Source:      "Yahoo Finance",
		Headline:    "Apple (AAPL) beats Q4 earnings estimates",
		URL:         "https://example.com/article",
		PublishedAt: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
		Snippet:     "Apple Inc. reported quarterly earnings above expectations.",
		ClusterID:   "cluster-1",
	}
}

func newTestClassifier(t *testing.T, handler http.HandlerFunc) (*Classifier, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{
		APIKey:    "test-key",
		Model:     "claude-3-haiku-20240307",
		BaseURL:   server.URL,
		Whitelist: []string{"AAPL", "TSLA"},
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)
	return c, server
}

func TestClassify(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-haiku-20240307", req["model"])
		assert.NotEmpty(t, req["system"])

		w.Write([]byte(apiResponse(`{"category": "earnings", "sentiment": 0.8, "reliability": 0.9, "key_facts": ["EPS beat"]}`)))
	})

	event, err := c.Classify(context.Background(), newsItem())
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "2023-06-01", gotVersion)
	assert.Equal(t, "test-key", gotKey)

	assert.Equal(t, domain.CategoryEarnings, event.Category)
	assert.InDelta(t, 0.8, event.Sentiment, 1e-9)
	assert.InDelta(t, 0.9, event.Reliability, 1e-9)
	assert.Equal(t, []string{"EPS beat"}, event.KeyFacts)
	assert.Equal(t, []string{"AAPL"}, event.Tickers)
	assert.Equal(t, "cluster-1", event.ClusterID)
	assert.NotEmpty(t, event.EventID)
	// 14:00 UTC in June is 10:00 ET.
	assert.Equal(t, domain.SessionRegular, event.Session)
}

func TestClassifyFencedJSON(t *testing.T) {
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		text := "Here is the classification:\n```json\n{\"category\": \"M&A\", \"sentiment\": 0.5, \"reliability\": 0.7, \"key_facts\": []}\n```"
		w.Write([]byte(apiResponse(text)))
	})

	event, err := c.Classify(context.Background(), newsItem())
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryMA, event.Category)
}

func TestClassifyRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(apiResponse("this is not JSON at all")))
	})

	_, err := c.Classify(context.Background(), newsItem())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrClassifierFailed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassifyRecoverOnRetry(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": {"type": "api_error", "message": "overloaded"}}`))
			return
		}
		w.Write([]byte(apiResponse(`{"category": "other", "sentiment": 0.0, "reliability": 0.5, "key_facts": []}`)))
	})

	event, err := c.Classify(context.Background(), newsItem())
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryOther, event.Category)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassifyRejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown category", `{"category": "memes", "sentiment": 0.5, "reliability": 0.7, "key_facts": []}`},
		{"sentiment out of range", `{"category": "other", "sentiment": 2.0, "reliability": 0.7, "key_facts": []}`},
		{"reliability out of range", `{"category": "other", "sentiment": 0.5, "reliability": 1.7, "key_facts": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(apiResponse(tt.text)))
			})
			_, err := c.Classify(context.Background(), newsItem())
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrClassifierFailed)
		})
	}
}

func TestClassifyTruncatesKeyFacts(t *testing.T) {
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(apiResponse(`{"category": "other", "sentiment": 0.1, "reliability": 0.6, "key_facts": ["a","b","c","d","e","f","g"]}`)))
	})

	event, err := c.Classify(context.Background(), newsItem())
	require.NoError(t, err)
	assert.Len(t, event.KeyFacts, 5)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
