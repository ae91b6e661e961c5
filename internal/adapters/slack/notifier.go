// Package slack delivers pipeline notifications via a Slack incoming
// webhook. With no webhook configured every call is a silent no-op.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newstrader/internal/domain"
	"newstrader/internal/ports"
)

// Notifier implements ports.Notifier over a Slack incoming webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     ports.Logger
}

// NewNotifier creates a Notifier for the given webhook URL. An empty URL
// disables sending.
func NewNotifier(webhookURL string, logger ports.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return strings.HasPrefix(n.webhookURL, "http")
}

type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks,omitempty"`
}

type block struct {
	Type string     `json:"type"`
	Text *blockText `json:"text,omitempty"`
}

type blockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func sectionMessage(text, body string) message {
	return message{
		Text: text,
		Blocks: []block{{
			Type: "section",
			Text: &blockText{Type: "mrkdwn", Text: body},
		}},
	}
}

// NotifySignal reports an entry-side decision for an event/ticker pair.
func (n *Notifier) NotifySignal(ctx context.Context, event *domain.EventCard, pre *domain.PreSignal, approved *domain.ApprovedSignal, order *domain.OrderRecord) error {
	if !n.Enabled() {
		return nil
	}

	var msg message
	switch {
	case pre.Action == domain.ActionSkip:
		msg = buildSkipMessage(event, pre)
	case approved.Approved:
		msg = buildEntryMessage(event, pre, approved, order)
	default:
		msg = buildRejectedMessage(event, pre, approved)
	}
	return n.send(ctx, msg)
}

// NotifyExit reports a position exit (full or partial) with computed P&L.
func (n *Notifier) NotifyExit(ctx context.Context, pos *domain.Position, exitPrice float64, quantity int, reason domain.ExitReason, partial bool) error {
	if !n.Enabled() {
		return nil
	}

	pnlPerShare := exitPrice - pos.EntryPrice
	totalPNL := pnlPerShare * float64(quantity)
	pnlPct := pnlPerShare / pos.EntryPrice * 100

	emoji, reasonText := exitReasonDisplay(reason)
	exitType := "FULL EXIT"
	if partial {
		exitType = "PARTIAL EXIT"
	}

	details := []string{
		fmt.Sprintf("*%s: %s*", exitType, pos.Ticker),
		fmt.Sprintf("*Reason:* %s", reasonText),
		"",
		"*Position Details:*",
		fmt.Sprintf("• Entry Price: $%.2f", pos.EntryPrice),
		fmt.Sprintf("• Exit Price: $%.2f", exitPrice),
		fmt.Sprintf("• Quantity: %d shares", quantity),
		fmt.Sprintf("• P&L: $%.2f (%.2f%%)", totalPNL, pnlPct),
		"",
	}
	if partial {
		details = append(details, fmt.Sprintf("• Remaining: %d shares", pos.Quantity-quantity))
	} else {
		details = append(details, "• Position CLOSED")
	}

	text := fmt.Sprintf("%s *%s* - %s (%s)", emoji, exitType, pos.Ticker, reasonText)
	return n.send(ctx, sectionMessage(text, strings.Join(details, "\n")))
}

// NotifyError reports a pipeline failure.
func (n *Notifier) NotifyError(ctx context.Context, errType, details string) error {
	if !n.Enabled() {
		return nil
	}
	text := fmt.Sprintf(":warning: *%s*", errType)
	return n.send(ctx, sectionMessage(text, fmt.Sprintf("%s\n```%s```", text, details)))
}

// NotifyRunComplete summarises a finished cycle.
func (n *Notifier) NotifyRunComplete(ctx context.Context, run *domain.RunRecord) error {
	if !n.Enabled() {
		return nil
	}

	emoji := ":white_check_mark:"
	if len(run.Errors) > 0 {
		emoji = ":warning:"
	}
	runID := run.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	text := fmt.Sprintf("%s *Run %s completed*", emoji, runID)

	fields := []string{
		fmt.Sprintf("• Events fetched: %d", run.EventsFetched),
		fmt.Sprintf("• Signals generated: %d", run.SignalsGenerated),
		fmt.Sprintf("• Orders placed: %d", run.OrdersPlaced),
	}
	if len(run.Errors) > 0 {
		fields = append(fields, fmt.Sprintf("• Errors: %d", len(run.Errors)))
	}
	return n.send(ctx, sectionMessage(text, text+"\n"+strings.Join(fields, "\n")))
}

func buildSkipMessage(event *domain.EventCard, pre *domain.PreSignal) message {
	ticker := "Unknown"
	if len(event.Tickers) > 0 {
		ticker = event.Tickers[0]
	}
	reason := "N/A"
	if len(pre.Reasons) > 0 {
		reason = pre.Reasons[0]
	}

	details := []string{
		fmt.Sprintf("*Headline:* %s", truncate(event.Headline, 80)),
		fmt.Sprintf("*Category:* %s | *Sentiment:* %.2f | *Reliability:* %.2f",
			event.Category, event.Sentiment, event.Reliability),
		fmt.Sprintf("*Reason:* %s", reason),
	}
	return sectionMessage(fmt.Sprintf(":no_entry: *SKIP* - %s", ticker), strings.Join(details, "\n"))
}

func buildEntryMessage(event *domain.EventCard, pre *domain.PreSignal, approved *domain.ApprovedSignal, order *domain.OrderRecord) message {
	statusEmoji, statusText := ":rocket:", "ENTRY SIGNAL"
	if order != nil {
		switch order.Status {
		case domain.OrderFilled:
			statusEmoji, statusText = ":white_check_mark:", "FILLED"
		case domain.OrderSubmitted:
			statusEmoji, statusText = ":hourglass:", "SUBMITTED"
		default:
			statusEmoji, statusText = ":x:", strings.ToUpper(string(order.Status))
		}
	}

	details := []string{
		fmt.Sprintf("*%s*", truncate(event.Headline, 80)),
		"",
		fmt.Sprintf("*Category:* %s", event.Category),
		fmt.Sprintf("*Sentiment:* %.2f | *Reliability:* %.2f", event.Sentiment, event.Reliability),
		"",
		"*Trade Details:*",
		fmt.Sprintf("• Size: %d shares @ $%.2f ≈ $%.2f", approved.Shares, approved.EntryPriceTarget, approved.SizeUSD),
		fmt.Sprintf("• Stop: %d bp | TP: %d bp", approved.HardStopBP, approved.TakeProfitBP),
	}
	if order != nil && order.Status == domain.OrderFilled {
		details = append(details, fmt.Sprintf("• Fill Price: $%.2f", order.FilledAvgPrice))
	}
	if len(pre.Reasons) > 0 {
		details = append(details, "", "*Reasons:*")
		for i, reason := range pre.Reasons {
			if i == 3 {
				break
			}
			details = append(details, fmt.Sprintf("• %s", reason))
		}
	}

	text := fmt.Sprintf("%s *%s* - %s", statusEmoji, statusText, approved.Ticker)
	return sectionMessage(text, strings.Join(details, "\n"))
}

func buildRejectedMessage(event *domain.EventCard, pre *domain.PreSignal, approved *domain.ApprovedSignal) message {
	reason := "N/A"
	if len(approved.Notes) > 0 {
		reason = approved.Notes[0]
	}

	details := []string{
		fmt.Sprintf("*Headline:* %s", truncate(event.Headline, 80)),
		fmt.Sprintf("*Rejected by risk guard:* %s", reason),
	}
	return sectionMessage(fmt.Sprintf(":no_entry_sign: *REJECTED* - %s", pre.Ticker), strings.Join(details, "\n"))
}

func exitReasonDisplay(reason domain.ExitReason) (emoji, text string) {
	switch reason {
	case domain.ReasonHardStop:
		return ":red_circle:", "STOP LOSS"
	case domain.ReasonLvl1Profit:
		return ":large_green_circle:", "PROFIT TAKING (Partial)"
	case domain.ReasonTrailingStop:
		return ":green_circle:", "TRAILING STOP"
	case domain.ReasonTimeLimit:
		return ":clock3:", "TIME EXIT"
	default:
		return ":white_circle:", string(reason)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func (n *Notifier) send(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Debug(ctx, "slack notification sent", map[string]interface{}{
		"text": msg.Text,
	})
	return nil
}
