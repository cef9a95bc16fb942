package engine

import (
	"errors"
	"slices"
	"testing"

	"github.com/Sternrassler/serp-harvest/pkg/query"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name       string
		mode       query.Mode
		perPage    int
		offset     string
		resultsKey string
		idField    string
	}{
		{"google", query.ModeOffset, 10, "start", "organic_results", ""},
		{"google_maps", query.ModeCursor, 20, "", "local_results", "place_id"},
		{"bing", query.ModeOffset, 10, "first", "organic_results", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.name, err)
			}
			if p.Name != tt.name {
				t.Errorf("Name = %q", p.Name)
			}
			if p.Paging.Mode != tt.mode || p.Paging.PerPage != tt.perPage || p.Paging.OffsetParam != tt.offset {
				t.Errorf("Paging = %+v", p.Paging)
			}
			if p.Schema.ResultsKey != tt.resultsKey || p.Schema.IDField != tt.idField {
				t.Errorf("Schema = %+v", p.Schema)
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("altavista")
	if !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("Lookup() error = %v, want ErrUnknownEngine", err)
	}
}

func TestLookup_ReturnsCopies(t *testing.T) {
	p, _ := Lookup("google_maps")
	p.Params["type"] = "place"
	p.Schema.URLFields[0] = "mutated"

	again, _ := Lookup("google_maps")
	if again.Params["type"] != "search" || again.Schema.URLFields[0] != "website" {
		t.Errorf("profile mutated through a previous Lookup: %+v", again)
	}
}

func TestNames(t *testing.T) {
	want := []string{"bing", "google", "google_maps"}
	if got := Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestProfile_Request(t *testing.T) {
	p, _ := Lookup("google_maps")

	req := p.Request(query.SearchRequest{Query: "suspension", Target: 20})
	if req.Params["type"] != "search" {
		t.Errorf("type = %q, want search", req.Params["type"])
	}

	req = p.Request(query.SearchRequest{Query: "suspension", Target: 20, Params: map[string]string{"type": "place"}})
	if req.Params["type"] != "place" {
		t.Errorf("caller params must win, got %q", req.Params["type"])
	}
}
