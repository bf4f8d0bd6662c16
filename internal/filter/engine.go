// Package filter decides which marketplace listings are eligible for
// notification.
package filter

import (
	"strings"

	"market_watch/internal/model"
)

// Reason explains why a listing was dropped.
type Reason string

// Drop reasons. ReasonNone means the listing survives.
const (
	ReasonNone       Reason = ""
	ReasonMissingID  Reason = "missing_id"
	ReasonMissingURL Reason = "missing_url"
	ReasonVariant    Reason = "variant"
	ReasonTitle      Reason = "title"
)

// Structural checks that a listing can be dispatched and deduplicated on its
// own. Grouped "choose an option" listings never can.
func Structural(l model.Listing) Reason {
	switch {
	case strings.TrimSpace(l.ID) == "":
		return ReasonMissingID
	case strings.TrimSpace(l.WebURL) == "":
		return ReasonMissingURL
	case l.GroupHref != "" || l.Variant:
		return ReasonVariant
	}
	return ReasonNone
}

// MatchTitle checks a title against inclusion and exclusion lists.
// Empty lists impose no constraint.
// Includes use OR logic (at least one must match).
// Excludes use AND logic (none must match) and win over includes.
func MatchTitle(title string, mustContainAny, mustNotContainAny []string) bool {
	text := strings.ToLower(title)

	for _, v := range mustNotContainAny {
		if contains(text, v) {
			return false
		}
	}

	hasIncludes := false
	for _, v := range mustContainAny {
		if strings.TrimSpace(v) == "" {
			continue
		}
		hasIncludes = true
		if contains(text, v) {
			return true
		}
	}
	return !hasIncludes
}

func contains(lowerText, value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	return strings.Contains(lowerText, strings.ToLower(value))
}

// Apply runs the structural filter and then the title filter over listings,
// preserving order. Dropped listings are counted by reason.
func Apply(listings []model.Listing, q model.Query) ([]model.Listing, map[Reason]int) {
	kept := make([]model.Listing, 0, len(listings))
	skipped := make(map[Reason]int)

	for _, l := range listings {
		if r := Structural(l); r != ReasonNone {
			skipped[r]++
			continue
		}
		if !MatchTitle(l.Title, q.TitleMustContainAny, q.TitleMustNotContainAny) {
			skipped[ReasonTitle]++
			continue
		}
		kept = append(kept, l)
	}
	return kept, skipped
}
