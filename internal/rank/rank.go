// Package rank orders listings by what they cost delivered.
package rank

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"market_watch/internal/model"
)

// Order selects how listings are arranged before dispatch.
type Order string

// Supported orders.
const (
	OrderTotalDesc Order = "total_desc"
	OrderTotalAsc  Order = "total_asc"
	OrderNone      Order = "none"
)

// ParseOrder maps a configured rank value to an Order, defaulting to
// OrderTotalDesc.
func ParseOrder(s string) Order {
	switch Order(s) {
	case OrderTotalAsc, OrderNone:
		return Order(s)
	default:
		return OrderTotalDesc
	}
}

// Amount parses a money value, returning 0 when it is absent, malformed or
// not a finite number.
func Amount(m *model.Money) float64 {
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m.Value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ShippingCost returns the cost of the first shipping option, or nil.
func ShippingCost(l model.Listing) *model.Money {
	if len(l.Shipping) == 0 {
		return nil
	}
	return l.Shipping[0].Cost
}

// TotalCost is the item price plus the first shipping option.
func TotalCost(l model.Listing) float64 {
	return Amount(l.Price) + Amount(ShippingCost(l))
}

// Sort returns a copy of listings arranged by order. Ties keep their input
// order.
func Sort(listings []model.Listing, order Order) []model.Listing {
	out := slices.Clone(listings)
	switch order {
	case OrderNone:
		return out
	case OrderTotalAsc:
		slices.SortStableFunc(out, func(a, b model.Listing) int {
			return compare(TotalCost(a), TotalCost(b))
		})
	default:
		slices.SortStableFunc(out, func(a, b model.Listing) int {
			return compare(TotalCost(b), TotalCost(a))
		})
	}
	return out
}

func compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
