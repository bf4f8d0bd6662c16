package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"market_watch/internal/model"
)

func TestMatchTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		include []string
		exclude []string
		want    bool
	}{
		{
			name:  "no rules passes everything",
			title: "anything at all",
			want:  true,
		},
		{
			name:    "whitespace exclude entries exclude nothing",
			title:   "LEGO Star Wars",
			exclude: []string{"", "\t"},
			want:    true,
		},
		{
			name:    "blank include entry next to a real one is ignored",
			title:   "playmobil set",
			include: []string{" ", "lego"},
			want:    false,
		},
		{
			name:    "include matches case insensitively",
			title:   "LEGO Star Wars",
			include: []string{"lego"},
			want:    true,
		},
		{
			name:    "include no match",
			title:   "playmobil set",
			include: []string{"lego"},
			want:    false,
		},
		{
			name:    "include rule is lower-cased too",
			title:   "lego technic",
			include: []string{"LEGO"},
			want:    true,
		},
		{
			name:    "exclude blocks",
			title:   "iPhone broken screen",
			exclude: []string{"broken"},
			want:    false,
		},
		{
			name:    "exclude wins over include",
			title:   "iPhone broken screen",
			include: []string{"iphone"},
			exclude: []string{"broken"},
			want:    false,
		},
		{
			name:    "exclude does not block non-match",
			title:   "iPhone 15 mint",
			include: []string{"iphone"},
			exclude: []string{"broken"},
			want:    true,
		},
		{
			name:    "multiple includes OR logic",
			title:   "Nintendo Switch OLED",
			include: []string{"playstation", "switch"},
			want:    true,
		},
		{
			name:    "substring inside a word matches",
			title:   "Legoland ticket",
			include: []string{"lego"},
			want:    true,
		},
		{
			name:    "blank include entries are ignored",
			title:   "random gadget",
			include: []string{"", "  "},
			want:    true,
		},
		{
			name:    "blank exclude entries are ignored",
			title:   "random gadget",
			exclude: []string{""},
			want:    true,
		},
		{
			name:    "empty title with includes fails",
			title:   "",
			include: []string{"lego"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchTitle(tt.title, tt.include, tt.exclude)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MatchTitle mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStructural(t *testing.T) {
	tests := []struct {
		name    string
		listing model.Listing
		want    Reason
	}{
		{
			name:    "complete listing survives",
			listing: model.Listing{ID: "1", WebURL: "https://m.example/1"},
			want:    ReasonNone,
		},
		{
			name:    "missing id",
			listing: model.Listing{WebURL: "https://m.example/1"},
			want:    ReasonMissingID,
		},
		{
			name:    "blank id",
			listing: model.Listing{ID: "  ", WebURL: "https://m.example/1"},
			want:    ReasonMissingID,
		},
		{
			name:    "missing link",
			listing: model.Listing{ID: "1"},
			want:    ReasonMissingURL,
		},
		{
			name:    "group href marks a variant",
			listing: model.Listing{ID: "1", WebURL: "https://m.example/1", GroupHref: "https://api.example/group/9"},
			want:    ReasonVariant,
		},
		{
			name:    "variant flag",
			listing: model.Listing{ID: "1", WebURL: "https://m.example/1", Variant: true},
			want:    ReasonVariant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Structural(tt.listing)); diff != "" {
				t.Errorf("Structural mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApply(t *testing.T) {
	listings := []model.Listing{
		{ID: "1", Title: "LEGO Star Wars", WebURL: "https://m.example/1"},
		{ID: "2", Title: "playmobil set", WebURL: "https://m.example/2"},
		{ID: "", Title: "LEGO without id", WebURL: "https://m.example/x"},
		{ID: "3", Title: "LEGO without link"},
		{ID: "4", Title: "LEGO broken bricks", WebURL: "https://m.example/4"},
		{ID: "5", Title: "LEGO choose colour", WebURL: "https://m.example/5", Variant: true},
		{ID: "6", Title: "Lego City", WebURL: "https://m.example/6"},
	}
	q := model.Query{
		TitleMustContainAny:    []string{"lego"},
		TitleMustNotContainAny: []string{"broken"},
	}

	kept, skipped := Apply(listings, q)

	var ids []string
	for _, l := range kept {
		ids = append(ids, l.ID)
	}
	if diff := cmp.Diff([]string{"1", "6"}, ids); diff != "" {
		t.Errorf("kept ids mismatch (-want +got):\n%s", diff)
	}

	wantSkipped := map[Reason]int{
		ReasonMissingID:  1,
		ReasonMissingURL: 1,
		ReasonVariant:    1,
		ReasonTitle:      2,
	}
	if diff := cmp.Diff(wantSkipped, skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
}
