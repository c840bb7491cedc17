package api

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 1000
)

// PageParams selects one page of a result list.
type PageParams struct {
	Page  int
	Limit int
}

// ParsePageParams reads page and limit from the query string. Defaults
// are page 1 and limit 20; page must be >= 1 and limit within 1..1000.
func ParsePageParams(q url.Values) (PageParams, error) {
	p := PageParams{Page: 1, Limit: defaultPageLimit}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return PageParams{}, fmt.Errorf("page must be an integer >= 1")
		}
		p.Page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageLimit {
			return PageParams{}, fmt.Errorf("limit must be an integer between 1 and %d", maxPageLimit)
		}
		p.Limit = n
	}
	return p, nil
}

// Offset returns the index of the page's first item.
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Envelope is the pagination wrapper every list endpoint returns.
type Envelope struct {
	HasMore     bool `json:"has_more"`
	TotalPages  int  `json:"total_pages"`
	CurrentPage int  `json:"current_page"`
	TotalItems  int  `json:"total_items"`
	Data        any  `json:"data"`
}

// paginate slices items down to the requested page. Pages past the end
// keep correct totals and an empty data list, and data is never null.
func paginate[T any](items []T, p PageParams) Envelope {
	total := len(items)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	data := items[start:end]
	if data == nil {
		data = []T{}
	}
	return Envelope{
		HasMore:     p.Offset()+p.Limit < total,
		TotalPages:  (total + p.Limit - 1) / p.Limit,
		CurrentPage: p.Page,
		TotalItems:  total,
		Data:        data,
	}
}
