// Package anthropic classifies news headlines into structured event cards
// using the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
	"newstrader/internal/utils"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	maxAttempts      = 2

	systemPrompt = `You are a financial news classification system. Your task is to analyze news headlines and extract structured information.

CRITICAL RULES:
1. Output ONLY valid JSON matching the exact schema provided
2. Do NOT guess or speculate - if uncertain, set reliability < 0.6
3. sentiment: -1.0 (very negative) to 1.0 (very positive)
4. reliability: 0.0 (uncertain) to 1.0 (highly confident)
5. For rumors or unconfirmed news: set category="rumor" and reliability < 0.5
6. Extract only factual key_facts - no opinions or speculation

Categories:
- earnings: Quarterly/annual earnings reports
- FDA: FDA approvals, rejections, or regulatory decisions
- M&A: Mergers, acquisitions, takeovers
- guidance: Company guidance updates
- partnership: Business partnerships, collaborations
- regulatory: Regulatory actions (non-FDA)
- rumor: Unconfirmed reports, speculation
- other: Everything else

Be conservative with sentiment and reliability scores.`
)

// Classifier implements ports.Classifier using the Anthropic Messages API.
type Classifier struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	whitelist  []string
	logger     ports.Logger
}

// Config holds the classifier settings.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string // Defaults to the public API endpoint
	Whitelist []string
	Logger    ports.Logger
}

func New(cfg Config) (*Classifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Anthropic classifier")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required: %w", ports.ErrConfigurationError)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Classifier{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		whitelist:  cfg.Whitelist,
		logger:     cfg.Logger,
	}, nil
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// classification is the JSON object the model is asked to return.
type classification struct {
	Category    string   `json:"category"`
	Sentiment   float64  `json:"sentiment"`
	Reliability float64  `json:"reliability"`
	KeyFacts    []string `json:"key_facts"`
}

// Classify analyses a headline and snippet into an event card. Unusable model
// output is retried once before giving up with ErrClassifierFailed.
func (c *Classifier) Classify(ctx context.Context, item *domain.NewsItem) (*domain.EventCard, error) {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := c.requestClassification(ctx, item)
		if err == nil {
			return c.buildEventCard(item, out), nil
		}
		lastErr = err
		c.logger.Warn(ctx, "classification attempt failed", map[string]interface{}{
			"attempt":  attempt,
			"headline": item.Headline,
			"error":    err.Error(),
		})

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ports.ErrClassifierFailed, maxAttempts, lastErr)
}

func (c *Classifier) requestClassification(ctx context.Context, item *domain.NewsItem) (*classification, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   500,
		Temperature: 0.3,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: buildUserPrompt(item)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("empty response content")
	}

	out, err := extractClassification(parsed.Content[0].Text)
	if err != nil {
		return nil, err
	}
	if err := validateClassification(out); err != nil {
		return nil, err
	}
	return out, nil
}

func buildUserPrompt(item *domain.NewsItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this financial news item and return ONLY a JSON object:\n\n")
	fmt.Fprintf(&sb, "Headline: %s\n", item.Headline)
	fmt.Fprintf(&sb, "Source: %s\n", item.Source)
	fmt.Fprintf(&sb, "Published: %s", item.PublishedAt.UTC().Format(time.RFC3339))

	if item.Snippet != "" {
		snippet := item.Snippet
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		fmt.Fprintf(&sb, "\nSnippet: %s", snippet)
	}

	sb.WriteString(`

Return JSON with fields: category (one of earnings, FDA, M&A, guidance, partnership, regulatory, rumor, other), sentiment (-1.0 to 1.0), reliability (0.0 to 1.0), key_facts (array of up to 5 strings).

Remember: Be conservative with scores. Use category="other" and low reliability if uncertain.`)
	return sb.String()
}

// extractClassification parses the model output, tolerating markdown code
// fences around the JSON object.
func extractClassification(content string) (*classification, error) {
	content = strings.TrimSpace(content)

	var out classification
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return &out, nil
	}

	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
	}
	if end := strings.Index(content, "```"); end >= 0 {
		content = content[:end]
	}
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("failed to extract valid JSON from model output: %w", err)
	}
	return &out, nil
}

func validateClassification(out *classification) error {
	if !domain.ValidCategory(domain.Category(out.Category)) {
		return fmt.Errorf("unknown category %q", out.Category)
	}
	if out.Sentiment < -1.0 || out.Sentiment > 1.0 {
		return fmt.Errorf("sentiment %v out of range [-1, 1]", out.Sentiment)
	}
	if out.Reliability < 0.0 || out.Reliability > 1.0 {
		return fmt.Errorf("reliability %v out of range [0, 1]", out.Reliability)
	}
	if len(out.KeyFacts) > 5 {
		out.KeyFacts = out.KeyFacts[:5]
	}
	return nil
}

func (c *Classifier) buildEventCard(item *domain.NewsItem, out *classification) *domain.EventCard {
	return &domain.EventCard{
		EventID:     utils.EventID(item.Source, item.Headline, item.PublishedAt),
		ClusterID:   item.ClusterID,
		Tickers:     utils.ExtractTickers(item.Headline+" "+item.Snippet, c.whitelist),
		Headline:    item.Headline,
		PublishedAt: item.PublishedAt,
		Category:    domain.Category(out.Category),
		Sentiment:   out.Sentiment,
		Reliability: out.Reliability,
		KeyFacts:    out.KeyFacts,
		Session:     utils.MarketSession(item.PublishedAt),
		Source:      item.Source,
		URL:         item.URL,
	}
}
