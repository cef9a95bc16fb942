package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RawPage is the decoded body of one search API response. Its schema is
// defined by the engine; helpers cover the fields shared by all engines.
type RawPage struct {
	// Index is the 0-based page number within the run.
	Index int

	// Status is the HTTP status of the response (200 for cached pages).
	Status int

	// Body is the decoded JSON document. Numbers are json.Number.
	Body map[string]any

	// Attempts is the number of HTTP calls spent on this page.
	Attempts int

	// Latency is the wall time of the successful call.
	Latency time.Duration

	// Cached is true when the page was served from the page cache.
	Cached bool
}

// DecodePage parses a response body.
func DecodePage(index int, data []byte) (*RawPage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", index+1, err)
	}
	if body == nil {
		return nil, fmt.Errorf("decode page %d: empty document", index+1)
	}

	return &RawPage{
		Index:  index,
		Status: 200,
		Body:   body,
	}, nil
}

// Entries returns the result list stored under key, or nil.
func (p *RawPage) Entries(key string) []any {
	if p == nil || p.Body == nil {
		return nil
	}
	entries, _ := p.Body[key].([]any)
	return entries
}

// NextCursor returns the engine supplied URL of the next page, or "".
func (p *RawPage) NextCursor() string {
	if p == nil || p.Body == nil {
		return ""
	}
	for _, key := range []string{"serpapi_pagination", "pagination"} {
		if section, ok := p.Body[key].(map[string]any); ok {
			if next, ok := section["next"].(string); ok && next != "" {
				return next
			}
		}
	}
	return ""
}

// APIError returns the body-level error message, if any. The API reports
// conditions such as "no results" this way on a 200 response.
func (p *RawPage) APIError() string {
	if p == nil || p.Body == nil {
		return ""
	}
	msg, _ := p.Body["error"].(string)
	return msg
}
