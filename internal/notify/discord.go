package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"market_watch/internal/model"
)

const embedColor = 0x2ECC71

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Discord posts notifications to a Discord webhook.
type Discord struct {
	client  HTTPClient
	url     string
	limiter *rate.Limiter
	timeout time.Duration
}

// NewDiscord creates a webhook notifier that sends at most perSecond
// messages per second.
func NewDiscord(client HTTPClient, webhookURL string, perSecond float64, timeout time.Duration) *Discord {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Discord{
		client:  client,
		url:     webhookURL,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
	}
}

type webhookPayload struct {
	Embeds     []embed     `json:"embeds"`
	Components []component `json:"components,omitempty"`
}

type embed struct {
	Title       string      `json:"title"`
	URL         string      `json:"url,omitempty"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Image       *embedImage `json:"image,omitempty"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	URL        string      `json:"url,omitempty"`
	Components []component `json:"components,omitempty"`
}

type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
}

// Payload builds the webhook body for a notification: one embed plus a row
// of link buttons.
func Payload(n model.Notification) any {
	e := embed{
		Title:       n.Title,
		URL:         n.URL,
		Description: n.Description,
		Color:       embedColor,
		Timestamp:   n.Timestamp,
	}
	if n.ImageURL != "" {
		e.Image = &embedImage{URL: n.ImageURL}
	}
	p := webhookPayload{Embeds: []embed{e}}
	if n.URL != "" {
		p.Components = []component{{
			Type: 1,
			Components: []component{
				{Type: 2, Style: 5, Label: "Buy now", URL: n.URL},
				{Type: 2, Style: 5, Label: "Open in browser", URL: n.URL},
			},
		}}
	}
	return p
}

// Notify implements Notifier. A 429 response is returned as *RateLimitError
// and never retried here.
func (d *Discord) Notify(ctx context.Context, n model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("discord pacing: %w", err)
	}

	body, err := json.Marshal(Payload(n))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{Sink: "discord", RetryAfter: retryAfter(resp.Header, respBody)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("discord webhook: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}

func retryAfter(h http.Header, body []byte) time.Duration {
	var rl rateLimitBody
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if secs, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
