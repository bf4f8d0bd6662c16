package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"market_watch/internal/model"
)

const (
	tokenPath  = "/identity/v1/oauth2/token"
	searchPath = "/buy/browse/v1/item_summary/search"

	// tokenLeeway renews the token this long before eBay expires it.
	tokenLeeway        = 60 * time.Second
	defaultTokenExpiry = 7200
	maxBodySize        = 5 * 1024 * 1024
)

// EbayConfig configures an EbayClient.
type EbayConfig struct {
	BaseURL       string
	MarketplaceID string
	ClientID      string
	ClientSecret  string
	Scope         string
	Timeout       time.Duration
}

// EbayClient searches the eBay Browse API using an application token.
type EbayClient struct {
	client HTTPClient
	cfg    EbayConfig
	now    func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewEbay creates an EbayClient with the given HTTP client.
func NewEbay(client HTTPClient, cfg EbayConfig) *EbayClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &EbayClient{client: client, cfg: cfg, now: time.Now}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *EbayClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.tokenExp.Add(-tokenLeeway)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", c.cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	var tr tokenResponse
	if err := c.doJSON(req, &tr); err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("request token: empty access token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = defaultTokenExpiry
	}

	c.token = tr.AccessToken
	c.tokenExp = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.token, nil
}

type searchResponse struct {
	ItemSummaries []itemSummary `json:"itemSummaries"`
}

type itemSummary struct {
	ItemID           string      `json:"itemId"`
	Title            string      `json:"title"`
	ItemWebURL       string      `json:"itemWebUrl"`
	Price            *amount     `json:"price"`
	ShippingOptions  []shipping  `json:"shippingOptions"`
	Image            *imageField `json:"image"`
	ItemCreationDate string      `json:"itemCreationDate"`
	ItemGroupHref    string      `json:"itemGroupHref"`
	ItemGroupType    string      `json:"itemGroupType"`
}

type amount struct {
	Value    flexValue `json:"value"`
	Currency string    `json:"currency"`
}

// flexValue keeps a JSON string or number as text. Malformed amounts are kept
// verbatim and coerced later, so one bad listing never fails a search.
type flexValue string

func (f *flexValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexValue(s)
		return nil
	}
	*f = flexValue(b)
	return nil
}

type shipping struct {
	ShippingCost *amount `json:"shippingCost"`
}

type imageField struct {
	ImageURL string `json:"imageUrl"`
}

// Search runs an item_summary search with the query's filters.
func (c *EbayClient) Search(ctx context.Context, p model.SearchParams) ([]model.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+searchPath+"?"+SearchQuery(p).Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.cfg.MarketplaceID)

	var sr searchResponse
	if err := c.doJSON(req, &sr); err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}

	listings := make([]model.Listing, 0, len(sr.ItemSummaries))
	for _, it := range sr.ItemSummaries {
		listings = append(listings, it.listing())
	}
	return listings, nil
}

// SearchQuery builds the Browse API query string for p.
func SearchQuery(p model.SearchParams) url.Values {
	v := url.Values{}
	v.Set("q", p.Keywords)
	v.Set("limit", strconv.Itoa(min(max(p.Limit, 1), 200)))
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}

	var filters []string
	if p.CategoryID != "" {
		filters = append(filters, "categoryIds:{"+p.CategoryID+"}")
	}
	if len(p.ConditionIDs) > 0 {
		ids := make([]string, len(p.ConditionIDs))
		for i, id := range p.ConditionIDs {
			ids[i] = strconv.Itoa(id)
		}
		filters = append(filters, "conditionIds:{"+strings.Join(ids, "|")+"}")
	}
	if p.PriceMin != nil || p.PriceMax != nil {
		filters = append(filters, fmt.Sprintf("price:[%s..%s],priceCurrency:%s",
			formatBound(p.PriceMin), formatBound(p.PriceMax), p.Currency))
	}
	if p.LocationCountry != "" {
		filters = append(filters, "itemLocationCountry:"+p.LocationCountry)
	}
	if p.DeliveryCountry != "" {
		filters = append(filters, "deliveryCountry:"+p.DeliveryCountry)
	}
	if len(filters) > 0 {
		v.Set("filter", strings.Join(filters, ","))
	}
	return v
}

func formatBound(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func (c *EbayClient) doJSON(req *http.Request, dst any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", strings.ToLower(req.Method), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(body))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (it itemSummary) listing() model.Listing {
	l := model.Listing{
		ID:        it.ItemID,
		Title:     it.Title,
		WebURL:    it.ItemWebURL,
		Price:     it.Price.money(),
		CreatedAt: it.ItemCreationDate,
		GroupHref: it.ItemGroupHref,
		Variant:   it.ItemGroupType != "",
	}
	for _, so := range it.ShippingOptions {
		l.Shipping = append(l.Shipping, model.ShippingOption{Cost: so.ShippingCost.money()})
	}
	if it.Image != nil {
		l.ImageURL = it.Image.ImageURL
	}
	return l
}

func (a *amount) money() *model.Money {
	if a == nil {
		return nil
	}
	return &model.Money{Value: string(a.Value), Currency: a.Currency}
}

func snippet(b []byte) string {
	const n = 200
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
