// Package normalize turns raw result pages into uniform, deduplicated records.
package normalize

// Schema describes where an engine keeps its result fields. Field lists are
// tried in order; the first non-empty value wins.
type Schema struct {
	// ResultsKey names the result list in a page (e.g. "organic_results").
	ResultsKey string

	// IDField names the engine's stable identifier (e.g. "place_id"); optional.
	IDField string

	TitleFields   []string
	URLFields     []string
	SnippetFields []string
	PhoneFields   []string
	AddressFields []string
	RatingField   string

	// ExtraFields are copied verbatim into ResultRecord.Extra when present.
	ExtraFields []string
}

// DefaultSchema returns the field layout shared by the SerpApi engines.
func DefaultSchema(resultsKey string) Schema {
	return Schema{
		ResultsKey:    resultsKey,
		TitleFields:   []string{"title", "name"},
		URLFields:     []string{"link", "website", "url"},
		SnippetFields: []string{"snippet", "description"},
		PhoneFields:   []string{"phone"},
		AddressFields: []string{"address"},
		RatingField:   "rating",
	}
}

// ResultRecord is one normalized search result.
type ResultRecord struct {
	// Key is the identity used for deduplication: "id:<engine id>" or
	// "url:<normalized url>".
	Key string `json:"key"`

	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`

	// Position is the engine-reported rank, or the running entry count when absent.
	Position int `json:"position"`

	// Page is the 1-based page the record came from.
	Page int `json:"page"`

	Phone   string  `json:"phone,omitempty"`
	Address string  `json:"address,omitempty"`
	Email   string  `json:"email,omitempty"`
	Rating  float64 `json:"rating,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}
