package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "engine only",
			key:  CacheKey{Engine: "google"},
			want: "serp:google",
		},
		{
			name: "params sorted",
			key: CacheKey{
				Engine: "google",
				Params: url.Values{
					"start": []string{"10"},
					"q":     []string{"coffee"},
					"num":   []string{"10"},
				},
			},
			want: "serp:google:num=10:q=coffee:start=10",
		},
		{
			name: "credential excluded",
			key: CacheKey{
				Engine: "google",
				Params: url.Values{
					"q":       []string{"coffee"},
					"api_key": []string{"secret"},
				},
			},
			want: "serp:google:q=coffee",
		},
		{
			name: "cursor stripped of credential",
			key: CacheKey{
				Engine: "google_maps",
				Cursor: "https://serpapi.com/search.json?api_key=secret&start=20",
			},
			want: "serp:google_maps:cursor=https://serpapi.com/search.json?start=20",
		},
		{
			name: "cursor without credential kept verbatim",
			key: CacheKey{
				Engine: "google_maps",
				Cursor: "https://serpapi.com/search.json?start=20&q=x",
			},
			want: "serp:google_maps:cursor=https://serpapi.com/search.json?start=20&q=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCacheKey_Determinism ensures same input always produces same key
func TestCacheKey_Determinism(t *testing.T) {
	key := CacheKey{
		Engine: "bing",
		Params: url.Values{
			"q":     []string{"coffee"},
			"first": []string{"11"},
			"count": []string{"10"},
			"cc":    []string{"au"},
		},
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Errorf("result[%d] = %v, want %v (not deterministic)", i, got, first)
		}
	}
}
