package sink

import (
	"fmt"
	"io"

	"github.com/Sternrassler/serp-harvest/pkg/normalize"
)

// Summary counts how complete the collected contact data is.
type Summary struct {
	Total       int `json:"total"`
	WithEmail   int `json:"with_email"`
	WithPhone   int `json:"with_phone"`
	WithWebsite int `json:"with_website"`
	WithAddress int `json:"with_address"`
}

// Summarize counts records by populated field.
func Summarize(records []normalize.ResultRecord) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		if r.Email != "" {
			s.WithEmail++
		}
		if r.Phone != "" {
			s.WithPhone++
		}
		if r.URL != "" {
			s.WithWebsite++
		}
		if r.Address != "" {
			s.WithAddress++
		}
	}
	return s
}

// WriteTo prints the summary as plain text.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "Summary:\nTotal results: %d\nWith emails: %d\nWith phones: %d\nWith websites: %d\nWith addresses: %d\n",
		s.Total, s.WithEmail, s.WithPhone, s.WithWebsite, s.WithAddress)
	return int64(n), err
}
