package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxRetryAfter caps how long a Retry-After header may delay a retry.
const MaxRetryAfter = 2 * time.Minute

// RetryAfter parses the Retry-After header of a throttled response.
// Both delta-seconds and HTTP-date forms are accepted. The second return
// value is false when the header is absent or malformed.
func RetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0, false
	}

	var wait time.Duration
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		wait = time.Duration(seconds) * time.Second
	} else {
		at, err := http.ParseTime(value)
		if err != nil {
			return 0, false
		}
		wait = at.Sub(now)
		if wait < 0 {
			wait = 0
		}
	}

	if wait > MaxRetryAfter {
		wait = MaxRetryAfter
	}
	return wait, true
}
