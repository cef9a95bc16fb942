package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		want   time.Duration
		wantOK bool
	}{
		{name: "absent", header: "", wantOK: false},
		{name: "seconds", header: "7", want: 7 * time.Second, wantOK: true},
		{name: "zero seconds", header: "0", want: 0, wantOK: true},
		{name: "negative seconds", header: "-4", wantOK: false},
		{name: "garbage", header: "soon", wantOK: false},
		{
			name:   "http date",
			header: now.Add(30 * time.Second).Format(http.TimeFormat),
			want:   30 * time.Second,
			wantOK: true,
		},
		{
			name:   "http date in the past",
			header: now.Add(-time.Minute).Format(http.TimeFormat),
			want:   0,
			wantOK: true,
		},
		{name: "capped", header: "3600", want: MaxRetryAfter, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.header != "" {
				headers.Set("Retry-After", tt.header)
			}

			got, ok := RetryAfter(headers, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("RetryAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}
