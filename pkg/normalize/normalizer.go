package normalize

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/serp-harvest/pkg/client"
	"github.com/Sternrassler/serp-harvest/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "serp_entries_total",
	Help: "Total raw result entries by outcome (kept, duplicate, dropped)",
}, []string{"outcome"})

// ParseError describes an entry that could not be turned into a record.
type ParseError struct {
	Page   int
	Entry  int
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("page %d entry %d: %s", e.Page, e.Entry, e.Reason)
}

// Normalizer converts pages of one run into records, keeping the first
// occurrence of each identity. It is not safe for concurrent use.
type Normalizer struct {
	schema     Schema
	seen       *orderedSet
	positions  int
	duplicates int
	problems   []ParseError
	logger     zerolog.Logger
}

// New creates a normalizer for schema.
func New(schema Schema) *Normalizer {
	return &Normalizer{
		schema: schema,
		seen:   newOrderedSet(),
		logger: log.With().Str("component", "normalize").Logger(),
	}
}

// SetLogger replaces the normalizer logger.
func (n *Normalizer) SetLogger(logger zerolog.Logger) {
	n.logger = logger
}

// Dropped returns the number of entries discarded as unparseable.
func (n *Normalizer) Dropped() int {
	return len(n.problems)
}

// Duplicates returns the number of entries discarded as repeats.
func (n *Normalizer) Duplicates() int {
	return n.duplicates
}

// ParseErrors returns the dropped entries.
func (n *Normalizer) ParseErrors() []ParseError {
	return append([]ParseError(nil), n.problems...)
}

// Kept returns the number of distinct records produced so far.
func (n *Normalizer) Kept() int {
	return n.seen.Len()
}

// Page normalizes one page and returns its new records together with the
// page's contribution to the run.
func (n *Normalizer) Page(raw *client.RawPage) ([]ResultRecord, pagination.Yield) {
	entries := raw.Entries(n.schema.ResultsKey)
	if len(entries) == 0 {
		if msg := raw.APIError(); msg != "" {
			n.logger.Info().Int("page", raw.Index+1).Str("api_error", msg).Msg("Page reported no results")
		}
		return nil, pagination.Yield{}
	}

	records := make([]ResultRecord, 0, len(entries))
	for i, item := range entries {
		n.positions++

		record, err := n.record(raw.Index, i, item)
		if err != nil {
			n.problems = append(n.problems, *err)
			entriesTotal.WithLabelValues("dropped").Inc()
			n.logger.Debug().Err(err).Msg("Dropping result entry")
			continue
		}
		if !n.seen.Add(record.Key) {
			n.duplicates++
			entriesTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		entriesTotal.WithLabelValues("kept").Inc()
		records = append(records, record)
	}

	return records, pagination.Yield{Entries: len(entries), Kept: len(records)}
}

func (n *Normalizer) record(pageIndex, entryIndex int, item any) (ResultRecord, *ParseError) {
	fail := func(reason string) (ResultRecord, *ParseError) {
		return ResultRecord{}, &ParseError{Page: pageIndex + 1, Entry: entryIndex, Reason: reason}
	}

	entry, ok := item.(map[string]any)
	if !ok {
		return fail(fmt.Sprintf("entry is %T, not an object", item))
	}

	link := firstString(entry, n.schema.URLFields)
	var key string
	if n.schema.IDField != "" {
		if id := stringValue(entry[n.schema.IDField]); id != "" {
			key = "id:" + id
		}
	}
	if key == "" && link != "" {
		canonical, ok := CanonicalURL(link)
		if !ok {
			return fail(fmt.Sprintf("unusable url %q", link))
		}
		key = "url:" + canonical
	}
	if key == "" {
		return fail("no url or id")
	}

	record := ResultRecord{
		Key:      key,
		Title:    firstString(entry, n.schema.TitleFields),
		URL:      link,
		Snippet:  firstString(entry, n.schema.SnippetFields),
		Position: n.positions,
		Page:     pageIndex + 1,
		Phone:    firstString(entry, n.schema.PhoneFields),
		Address:  firstString(entry, n.schema.AddressFields),
	}
	if pos, ok := intValue(entry["position"]); ok {
		record.Position = pos
	}
	if n.schema.RatingField != "" {
		if rating, ok := floatValue(entry[n.schema.RatingField]); ok {
			record.Rating = rating
		}
	}
	for _, field := range n.schema.ExtraFields {
		if v, ok := entry[field]; ok && v != nil {
			if record.Extra == nil {
				record.Extra = make(map[string]any)
			}
			record.Extra[field] = v
		}
	}
	return record, nil
}

// Records lazily normalizes pages. The returned sequence is single-pass: once
// ranged over, further ranges yield nothing.
func (n *Normalizer) Records(pages iter.Seq[*client.RawPage]) iter.Seq[ResultRecord] {
	consumed := false
	return func(yield func(ResultRecord) bool) {
		if consumed {
			return
		}
		consumed = true
		for raw := range pages {
			records, _ := n.Page(raw)
			for _, record := range records {
				if !yield(record) {
					return
				}
			}
		}
	}
}

// Normalize converts pages with a fresh normalizer.
func Normalize(schema Schema, pages []*client.RawPage) []ResultRecord {
	return slices.Collect(New(schema).Records(slices.Values(pages)))
}

func firstString(entry map[string]any, fields []string) string {
	for _, field := range fields {
		if s := stringValue(entry[field]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case float64:
		return int(t), true
	case string:
		i, err := strconv.Atoi(t)
		return i, err == nil
	default:
		return 0, false
	}
}

func floatValue(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	default:
		return 0, false
	}
}
