package marketplace

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"market_watch/internal/model"
)

// FeedClient reads listings from marketplaces that publish saved searches as
// RSS or Atom feeds.
type FeedClient struct {
	client  HTTPClient
	timeout time.Duration
}

// NewFeed creates a FeedClient with the given HTTP client.
func NewFeed(client HTTPClient, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedClient{client: client, timeout: timeout}
}

// Search downloads p.FeedURL and converts its items to listings. At most
// p.Limit items are returned when a limit is set.
func (f *FeedClient) Search(ctx context.Context, p model.SearchParams) ([]model.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "MarketWatch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := feed.Items
	if p.Limit > 0 && len(items) > p.Limit {
		items = items[:p.Limit]
	}
	listings := make([]model.Listing, 0, len(items))
	for _, item := range items {
		listings = append(listings, feedListing(item))
	}
	return listings, nil
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Title == "" && item.Link == "" {
		return ""
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func feedListing(item *gofeed.Item) model.Listing {
	l := model.Listing{
		ID:     ItemGUID(item),
		Title:  item.Title,
		WebURL: item.Link,
		Price:  feedPrice(item),
	}
	if item.PublishedParsed != nil {
		l.CreatedAt = item.PublishedParsed.UTC().Format(time.RFC3339)
	}
	if item.Image != nil {
		l.ImageURL = item.Image.URL
	}
	if l.ImageURL == "" {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				l.ImageURL = enc.URL
				break
			}
		}
	}
	return l
}

// feedPrice looks for a price in the Google Merchant namespace (g:price) or a
// plain <price> element, formatted as "<value> [currency]".
func feedPrice(item *gofeed.Item) *model.Money {
	raw := ""
	if exts, ok := item.Extensions["g"]["price"]; ok && len(exts) > 0 {
		raw = exts[0].Value
	}
	if raw == "" && item.Custom != nil {
		raw = item.Custom["price"]
	}
	fields := strings.Fields(raw)
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return &model.Money{Value: fields[0]}
	default:
		return &model.Money{Value: fields[0], Currency: fields[1]}
	}
}
