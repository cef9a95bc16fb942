// Package query turns a search intent into a lazy sequence of page requests
// for a SerpApi-compatible search endpoint.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidRequest is returned when a SearchRequest or Paging cannot be built.
var ErrInvalidRequest = errors.New("invalid request")

// SearchRequest describes one search intent. It is treated as immutable once
// handed to Build.
type SearchRequest struct {
	// Query is the search string (required, trimmed).
	Query string

	// Target is the number of distinct results wanted (>= 1).
	Target int

	// Locale is the interface language (hl), e.g. "en".
	Locale string

	// Region is the country code (gl), e.g. "au".
	Region string

	// Location is a free-form location string understood by the engine.
	Location string

	// Params are engine-specific parameters passed through verbatim.
	Params map[string]string
}

// Validate checks the request constraints.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	}
	if r.Target < 1 {
		return fmt.Errorf("%w: target must be >= 1 (got %d)", ErrInvalidRequest, r.Target)
	}
	return nil
}

// values renders the request-level parameters shared by every page.
func (r SearchRequest) values() url.Values {
	v := url.Values{}

	// Engine params first so the typed fields win on conflict.
	keys := make([]string, 0, len(r.Params))
	for key := range r.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v.Set(key, r.Params[key])
	}

	v.Set("q", strings.TrimSpace(r.Query))
	if r.Locale != "" {
		v.Set("hl", r.Locale)
	}
	if r.Region != "" {
		v.Set("gl", r.Region)
	}
	if r.Location != "" {
		v.Set("location", r.Location)
	}
	return v
}

// PageRequest describes a single API call.
type PageRequest struct {
	// Index is the 0-based page number within the run.
	Index int

	// Offset is the result offset (offset mode only).
	Offset int

	// Cursor is the engine supplied next-page URL (cursor mode, pages > 0).
	Cursor string

	// Params are the query parameters for this page. The credential is never
	// part of a PageRequest.
	Params url.Values
}

// Number returns the 1-based page number.
func (p PageRequest) Number() int {
	return p.Index + 1
}

// HasCursor reports whether the page is addressed by a next-page URL.
func (p PageRequest) HasCursor() bool {
	return p.Cursor != ""
}
