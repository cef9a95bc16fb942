// Package engine holds the per-engine knowledge the pipeline needs: how
// pages are addressed and where results live in a response.
package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Sternrassler/serp-harvest/pkg/normalize"
	"github.com/Sternrassler/serp-harvest/pkg/query"
)

// ErrUnknownEngine is returned by Lookup for unsupported engine names.
var ErrUnknownEngine = errors.New("unknown engine")

// Profile describes one search engine.
type Profile struct {
	// Name is the value of the "engine" parameter.
	Name string

	Paging query.Paging
	Schema normalize.Schema

	// Params are sent with every request of this engine.
	Params map[string]string
}

var profiles = map[string]Profile{
	"google": {
		Name: "google",
		Paging: query.Paging{
			Mode:        query.ModeOffset,
			PerPage:     10,
			OffsetParam: "start",
			SizeParam:   "num",
		},
		Schema: normalize.DefaultSchema("organic_results"),
	},
	"google_maps": {
		Name: "google_maps",
		Paging: query.Paging{
			Mode:    query.ModeCursor,
			PerPage: 20,
		},
		Schema: func() normalize.Schema {
			s := normalize.DefaultSchema("local_results")
			s.IDField = "place_id"
			s.URLFields = []string{"website", "link"}
			s.ExtraFields = []string{"type", "reviews", "hours", "gps_coordinates"}
			return s
		}(),
		Params: map[string]string{"type": "search"},
	},
	"bing": {
		Name: "bing",
		Paging: query.Paging{
			Mode:        query.ModeOffset,
			PerPage:     10,
			OffsetParam: "first",
			SizeParam:   "count",
		},
		Schema: normalize.DefaultSchema("organic_results"),
	},
}

// Lookup returns the profile for name. MaxPages is left for the caller.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownEngine, name, Names())
	}
	p.Params = maps.Clone(p.Params)
	p.Schema.URLFields = slices.Clone(p.Schema.URLFields)
	p.Schema.ExtraFields = slices.Clone(p.Schema.ExtraFields)
	return p, nil
}

// Names returns the supported engine names, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(profiles))
}

// Request merges the profile's fixed parameters into req. Parameters already
// set on req win.
func (p Profile) Request(req query.SearchRequest) query.SearchRequest {
	if len(p.Params) == 0 {
		return req
	}
	params := maps.Clone(p.Params)
	maps.Copy(params, req.Params)
	req.Params = params
	return req
}
