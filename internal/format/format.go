// Package format turns listings into notification payloads.
package format

import (
	"fmt"
	"strings"

	"market_watch/internal/model"
	"market_watch/internal/rank"
)

// Payload size limits shared by the supported sinks.
const (
	MaxTitleLen       = 256
	MaxDescriptionLen = 4096
)

const (
	untitled       = "Untitled"
	unknownPrice   = "?"
	noShippingInfo = "N/D"
)

// Build formats a listing found by the named query as a notification.
func Build(query string, l model.Listing) model.Notification {
	title := l.Title
	if strings.TrimSpace(title) == "" {
		title = untitled
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", query)
	fmt.Fprintf(&b, "Price: %s\n", Money(l.Price))
	fmt.Fprintf(&b, "Shipping: %s\n", Shipping(l))
	fmt.Fprintf(&b, "Total: %s", Total(l))

	return model.Notification{
		Query:       query,
		Title:       Truncate(title, MaxTitleLen),
		Description: Truncate(b.String(), MaxDescriptionLen),
		URL:         l.WebURL,
		ImageURL:    l.ImageURL,
		Timestamp:   l.CreatedAt,
	}
}

// Money renders an amount as reported by the marketplace.
func Money(m *model.Money) string {
	if m == nil {
		return unknownPrice
	}
	value := m.Value
	if value == "" {
		value = unknownPrice
	}
	return strings.TrimSpace(value + " " + m.Currency)
}

// Shipping renders the first shipping option cost.
func Shipping(l model.Listing) string {
	cost := rank.ShippingCost(l)
	if cost == nil {
		return noShippingInfo
	}
	return Money(cost)
}

// Total renders price plus shipping in the price currency.
func Total(l model.Listing) string {
	currency := ""
	switch {
	case l.Price != nil:
		currency = l.Price.Currency
	case rank.ShippingCost(l) != nil:
		currency = rank.ShippingCost(l).Currency
	}
	return strings.TrimSpace(fmt.Sprintf("%.2f %s", rank.TotalCost(l), currency))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
