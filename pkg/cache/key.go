package cache

import (
	"net/url"
	"sort"
	"strings"
)

// credentialParam is stripped from every key.
const credentialParam = "api_key"

// CacheKey identifies a cached page.
type CacheKey struct {
	// Engine is the search engine name (e.g. "google", "google_maps").
	Engine string

	// Params are the page's query parameters.
	Params url.Values

	// Cursor is the next-page URL for cursor paginated engines.
	Cursor string
}

// String generates a deterministic cache key string.
// Format: serp:engine:param1=val1:param2=val2[:cursor=...]
//
// Example:
//
//	serp:google:num=10:q=coffee:start=10
func (k CacheKey) String() string {
	parts := []string{"serp"}

	if engine := strings.TrimSpace(k.Engine); engine != "" {
		parts = append(parts, engine)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			if key == credentialParam {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, key+"="+strings.Join(k.Params[key], ","))
		}
	}

	if k.Cursor != "" {
		parts = append(parts, "cursor="+stripCredential(k.Cursor))
	}

	return strings.Join(parts, ":")
}

// stripCredential removes the api_key parameter from a next-page URL.
func stripCredential(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has(credentialParam) {
		return raw
	}
	q.Del(credentialParam)
	u.RawQuery = q.Encode()
	return u.String()
}
