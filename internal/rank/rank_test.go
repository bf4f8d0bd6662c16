package rank

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"market_watch/internal/model"
)

func listing(id, price, ship string) model.Listing {
	l := model.Listing{ID: id}
	if price != "" {
		l.Price = &model.Money{Value: price, Currency: "EUR"}
	}
	if ship != "" {
		l.Shipping = []model.ShippingOption{{Cost: &model.Money{Value: ship, Currency: "EUR"}}}
	}
	return l
}

func TestTotalCost(t *testing.T) {
	tests := []struct {
		name    string
		listing model.Listing
		want    float64
	}{
		{name: "price and shipping", listing: listing("a", "40.50", "9.50"), want: 50},
		{name: "price only", listing: listing("a", "12.00", ""), want: 12},
		{name: "no price", listing: listing("a", "", "4.99"), want: 4.99},
		{name: "malformed price coerces to zero", listing: listing("a", "n/a", "3"), want: 3},
		{name: "malformed shipping coerces to zero", listing: listing("a", "7", "free"), want: 7},
		{
			name: "only the first shipping option counts",
			listing: model.Listing{
				Price: &model.Money{Value: "10"},
				Shipping: []model.ShippingOption{
					{Cost: &model.Money{Value: "5"}},
					{Cost: &model.Money{Value: "50"}},
				},
			},
			want: 15,
		},
		{
			name:    "shipping option without cost",
			listing: model.Listing{Price: &model.Money{Value: "10"}, Shipping: []model.ShippingOption{{}}},
			want:    10,
		},
		{name: "nothing at all", listing: model.Listing{}, want: 0},
		{name: "NaN price coerces to zero", listing: listing("a", "NaN", "2"), want: 2},
		{name: "infinite price coerces to zero", listing: listing("a", "Inf", "2"), want: 2},
		{name: "negative infinite shipping coerces to zero", listing: listing("a", "6", "-Inf"), want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, TotalCost(tt.listing)); diff != "" {
				t.Errorf("TotalCost mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSort(t *testing.T) {
	in := []model.Listing{
		listing("fifty", "45", "5"),
		listing("ten", "10", ""),
		listing("thirty", "25", "5"),
		listing("also-ten", "8", "2"),
	}

	tests := []struct {
		order Order
		want  []string
	}{
		{order: OrderTotalDesc, want: []string{"fifty", "thirty", "ten", "also-ten"}},
		{order: OrderTotalAsc, want: []string{"ten", "also-ten", "thirty", "fifty"}},
		{order: OrderNone, want: []string{"fifty", "ten", "thirty", "also-ten"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			var got []string
			for _, l := range Sort(in, tt.order) {
				got = append(got, l.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if diff := cmp.Diff("fifty", in[0].ID); diff != "" {
		t.Errorf("input was mutated (-want +got):\n%s", diff)
	}
}

func TestSortNonFinitePrices(t *testing.T) {
	in := []model.Listing{
		listing("ten", "10", ""),
		listing("nan", "NaN", ""),
		listing("fifty", "50", ""),
		listing("thirty", "30", ""),
	}

	var got []string
	for _, l := range Sort(in, OrderTotalDesc) {
		got = append(got, l.ID)
	}
	if diff := cmp.Diff([]string{"fifty", "thirty", "ten", "nan"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]Order{
		"":           OrderTotalDesc,
		"total_desc": OrderTotalDesc,
		"total_asc":  OrderTotalAsc,
		"none":       OrderNone,
		"bogus":      OrderTotalDesc,
	} {
		if diff := cmp.Diff(want, ParseOrder(in)); diff != "" {
			t.Errorf("ParseOrder(%q) mismatch (-want +got):\n%s", in, diff)
		}
	}
}
