// Package model defines the domain types used across the application.
package model

import "time"

// Listing sources.
const (
	SourceEbay = "ebay"
	SourceFeed = "feed"
)

// Query is a named, independently scheduled marketplace search.
// It is loaded once at startup and never mutated afterwards.
type Query struct {
	Name            string   `yaml:"name"`
	Enabled         *bool    `yaml:"enabled"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	Source          string   `yaml:"source"`
	FeedURL         string   `yaml:"feed_url"`
	Keywords        string   `yaml:"keywords"`
	CategoryID      string   `yaml:"category_id"`
	ConditionIDs    []int    `yaml:"condition_ids"`
	PriceMin        *float64 `yaml:"price_min"`
	PriceMax        *float64 `yaml:"price_max"`
	Currency        string   `yaml:"currency"`
	LocationCountry string   `yaml:"location_country"`
	DeliveryCountry string   `yaml:"delivery_country"`
	Sort            string   `yaml:"sort"`
	Limit           int      `yaml:"limit"`
	Rank            string   `yaml:"rank"`

	TitleMustContainAny    []string `yaml:"title_must_contain_any"`
	TitleMustNotContainAny []string `yaml:"title_must_not_contain_any"`

	Discord  DiscordTarget  `yaml:"discord"`
	Telegram TelegramTarget `yaml:"telegram"`
}

// DiscordTarget points a query at a Discord webhook.
type DiscordTarget struct {
	WebhookURL string `yaml:"webhook_url"`
}

// TelegramTarget points a query at a Telegram chat.
type TelegramTarget struct {
	ChatID int64 `yaml:"chat_id"`
}

// IsEnabled reports whether the query should be scheduled. Queries are enabled
// unless explicitly disabled.
func (q Query) IsEnabled() bool {
	return q.Enabled == nil || *q.Enabled
}

// Interval returns the polling interval.
func (q Query) Interval() time.Duration {
	return time.Duration(q.IntervalSeconds) * time.Second
}

// JobID returns the scheduler job identifier for the query.
func (q Query) JobID() string {
	return "query::" + q.Name
}

// SearchParams returns the marketplace call parameters for the query.
func (q Query) SearchParams() SearchParams {
	return SearchParams{
		Source:          q.Source,
		FeedURL:         q.FeedURL,
		Keywords:        q.Keywords,
		CategoryID:      q.CategoryID,
		ConditionIDs:    q.ConditionIDs,
		PriceMin:        q.PriceMin,
		PriceMax:        q.PriceMax,
		Currency:        q.Currency,
		LocationCountry: q.LocationCountry,
		DeliveryCountry: q.DeliveryCountry,
		Sort:            q.Sort,
		Limit:           q.Limit,
	}
}

// SearchParams is the input of a single marketplace search.
type SearchParams struct {
	Source          string
	FeedURL         string
	Keywords        string
	CategoryID      string
	ConditionIDs    []int
	PriceMin        *float64
	PriceMax        *float64
	Currency        string
	LocationCountry string
	DeliveryCountry string
	Sort            string
	Limit           int
}

// Money is an amount as the marketplace reported it. Value is kept as the raw
// decimal string; numeric coercion is left to callers.
type Money struct {
	Value    string
	Currency string
}

// ShippingOption is one shipping choice offered for a listing.
type ShippingOption struct {
	Cost *Money
}

// Listing is a single marketplace search result. Optional fields are nil or
// empty when the marketplace did not report them.
type Listing struct {
	ID        string
	Title     string
	WebURL    string
	Price     *Money
	Shipping  []ShippingOption
	CreatedAt string
	ImageURL  string

	// GroupHref and Variant mark "choose an option" listings that bundle
	// several items under one id.
	GroupHref string
	Variant   bool
}

// PostedRecord tracks a listing already notified for a query.
type PostedRecord struct {
	Query    string
	ItemID   string
	PostedAt time.Time
}

// Notification is the transport-agnostic message sent for one listing.
type Notification struct {
	Query       string
	Title       string
	Description string
	URL         string
	ImageURL    string
	Timestamp   string
}
