// Package testutil provides a scriptable stand-in for the search API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one call seen by the mock.
type RecordedRequest struct {
	Params   url.Values
	APIKey   string
	Started  time.Time
	Finished time.Time
}

// Responder picks the response for the n-th call (0-based).
type Responder func(call int, r *http.Request) MockResponse

// MockSerpAPI is a configurable mock search API for testing.
type MockSerpAPI struct {
	server    *httptest.Server
	mu        sync.Mutex
	responder Responder
	requests  []RecordedRequest
}

// NewMockSerpAPI creates a mock that answers every call with an empty result page.
func NewMockSerpAPI() *MockSerpAPI {
	mock := &MockSerpAPI{
		responder: func(int, *http.Request) MockResponse {
			return NewJSONResponse(`{"search_metadata": {"status": "Success"}, "organic_results": []}`)
		},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		params := r.URL.Query()
		apiKey := params.Get("api_key")
		params.Del("api_key")

		mock.mu.Lock()
		call := len(mock.requests)
		mock.requests = append(mock.requests, RecordedRequest{Params: params, APIKey: apiKey, Started: started})
		responder := mock.responder
		mock.mu.Unlock()

		resp := responder(call, r)
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if resp.StatusCode == 0 {
			resp.StatusCode = http.StatusOK
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}

		mock.mu.Lock()
		mock.requests[call].Finished = time.Now()
		mock.mu.Unlock()
	}))

	return mock
}

// URL returns the mock endpoint URL.
func (m *MockSerpAPI) URL() string {
	return m.server.URL + "/search.json"
}

// Close shuts down the mock server.
func (m *MockSerpAPI) Close() {
	m.server.Close()
}

// SetResponder replaces the response logic.
func (m *MockSerpAPI) SetResponder(responder Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = responder
}

// Script answers calls with the given responses in order; the last one repeats.
func (m *MockSerpAPI) Script(responses ...MockResponse) {
	m.SetResponder(func(call int, _ *http.Request) MockResponse {
		if call >= len(responses) {
			return responses[len(responses)-1]
		}
		return responses[call]
	})
}

// ByOffset answers by page index derived from the offset parameter.
func (m *MockSerpAPI) ByOffset(param string, perPage int, pages map[int]MockResponse, fallback MockResponse) {
	m.SetResponder(func(_ int, r *http.Request) MockResponse {
		offset, _ := strconv.Atoi(r.URL.Query().Get(param))
		if resp, ok := pages[offset/perPage]; ok {
			return resp
		}
		return fallback
	})
}

// Requests returns a copy of the calls seen so far.
func (m *MockSerpAPI) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of calls made to the server.
func (m *MockSerpAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// NewJSONResponse creates a 200 response with body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewErrorResponse creates a response with status and an API error body.
func NewErrorResponse(status int, message string) MockResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After header.
func NewRateLimitResponse(retryAfter int) MockResponse {
	resp := NewErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	resp.Headers["Retry-After"] = strconv.Itoa(retryAfter)
	return resp
}

// OrganicPage renders an organic_results page with n entries whose links are
// https://<host>/<prefix>-<i>, positions starting at first.
func OrganicPage(host, prefix string, first, n int) string {
	results := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, map[string]any{
			"position": first + i,
			"title":    fmt.Sprintf("%s result %d", prefix, first+i),
			"link":     fmt.Sprintf("https://%s/%s-%d", host, prefix, first+i),
			"snippet":  fmt.Sprintf("snippet for %s %d", prefix, first+i),
		})
	}
	body, _ := json.Marshal(map[string]any{
		"search_metadata": map[string]any{"status": "Success"},
		"organic_results": results,
	})
	return string(body)
}

// LocalPage renders a google_maps local_results page. next, when non-empty, is
// returned as serpapi_pagination.next.
func LocalPage(prefix string, first, n int, next string) string {
	results := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, map[string]any{
			"position": first + i,
			"title":    fmt.Sprintf("%s business %d", prefix, first+i),
			"place_id": fmt.Sprintf("%s-place-%d", prefix, first+i),
			"phone":    fmt.Sprintf("+61 7 0000 %04d", first+i),
			"address":  fmt.Sprintf("%d Main St, North Lakes QLD 4509", first+i),
			"website":  fmt.Sprintf("https://%s-%d.example.com/", prefix, first+i),
		})
	}
	doc := map[string]any{
		"search_metadata": map[string]any{"status": "Success"},
		"local_results":   results,
	}
	if next != "" {
		doc["serpapi_pagination"] = map[string]any{"next": next}
	}
	body, _ := json.Marshal(doc)
	return string(body)
}
