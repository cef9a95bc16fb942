package query

import (
	"fmt"
	"net/url"
	"strconv"
)

// Mode selects how successive pages are addressed.
type Mode string

const (
	// ModeOffset addresses page i with OffsetParam = i*PerPage.
	ModeOffset Mode = "offset"

	// ModeCursor follows the next-page URL returned with each page.
	ModeCursor Mode = "cursor"
)

// DefaultMaxPages bounds API usage when Paging.MaxPages is unset.
const DefaultMaxPages = 3

// Paging holds the engine-specific pagination parameters.
type Paging struct {
	Mode Mode

	// PerPage is the number of results the engine returns per page.
	PerPage int

	// OffsetParam names the offset parameter (e.g. "start", "first").
	OffsetParam string

	// SizeParam names the page size parameter (e.g. "num"); optional.
	SizeParam string

	// MaxPages caps the sequence length.
	MaxPages int
}

func (p Paging) validate() error {
	switch p.Mode {
	case ModeOffset:
		if p.OffsetParam == "" {
			return fmt.Errorf("%w: offset paging requires an offset parameter", ErrInvalidRequest)
		}
	case ModeCursor:
	default:
		return fmt.Errorf("%w: unknown paging mode %q", ErrInvalidRequest, p.Mode)
	}
	if p.PerPage < 1 {
		return fmt.Errorf("%w: per-page size must be >= 1 (got %d)", ErrInvalidRequest, p.PerPage)
	}
	if p.MaxPages < 0 {
		return fmt.Errorf("%w: max pages must not be negative (got %d)", ErrInvalidRequest, p.MaxPages)
	}
	return nil
}

// Pages is a lazy, forward-only sequence of PageRequests. It materializes one
// descriptor per Next call and can be restarted with Reset.
type Pages struct {
	base     url.Values
	target   int
	paging   Paging
	maxPages int

	next   int
	cursor string
	done   bool
}

// Build validates the request and returns the page sequence for it.
func Build(req SearchRequest, paging Paging) (*Pages, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := paging.validate(); err != nil {
		return nil, err
	}

	maxPages := paging.MaxPages
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}

	return &Pages{
		base:     req.values(),
		target:   req.Target,
		paging:   paging,
		maxPages: maxPages,
	}, nil
}

// Target returns the requested result count.
func (p *Pages) Target() int {
	return p.target
}

// MaxPages returns the cap on the sequence length.
func (p *Pages) MaxPages() int {
	return p.maxPages
}

// Planned returns how many pages are plausibly needed to reach the target.
func (p *Pages) Planned() int {
	n := (p.target + p.paging.PerPage - 1) / p.paging.PerPage
	if n > p.maxPages {
		return p.maxPages
	}
	return n
}

// Next returns the next page descriptor, or false when the sequence is done.
func (p *Pages) Next() (PageRequest, bool) {
	if p.done || p.next >= p.maxPages {
		p.done = true
		return PageRequest{}, false
	}

	index := p.next
	page := PageRequest{
		Index:  index,
		Params: p.params(),
	}

	switch p.paging.Mode {
	case ModeOffset:
		page.Offset = index * p.paging.PerPage
		if page.Offset > 0 {
			page.Params.Set(p.paging.OffsetParam, strconv.Itoa(page.Offset))
		}
	case ModeCursor:
		if index > 0 {
			if p.cursor == "" {
				p.done = true
				return PageRequest{}, false
			}
			page.Cursor = p.cursor
			p.cursor = ""
		}
	}

	if p.paging.SizeParam != "" {
		page.Params.Set(p.paging.SizeParam, strconv.Itoa(p.paging.PerPage))
	}

	p.next++
	return page, true
}

// Advance records the cursor returned with the last page. In cursor mode an
// empty cursor ends the sequence; offset mode ignores it.
func (p *Pages) Advance(cursor string) {
	if p.paging.Mode != ModeCursor {
		return
	}
	p.cursor = cursor
}

// Reset rewinds the sequence to the first page.
func (p *Pages) Reset() {
	p.next = 0
	p.cursor = ""
	p.done = false
}

func (p *Pages) params() url.Values {
	out := make(url.Values, len(p.base)+2)
	for key, values := range p.base {
		out[key] = append([]string(nil), values...)
	}
	return out
}
