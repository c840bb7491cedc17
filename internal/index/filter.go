package index

import (
	"strings"

	"github.com/ciscoinsights/device-insights/internal/alerts"
)

// filterByURL returns the items accepted by match, deduplicated by URL.
// The first occurrence of a URL wins and source order is preserved.
func filterByURL[T any](items []T, url func(T) string, match func(T) bool) []T {
	var out []T
	seen := make(map[string]struct{})
	for _, it := range items {
		if !match(it) {
			continue
		}
		u := url(it)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, it)
	}
	return out
}

func noticeURL(n alerts.Notice) string        { return n.URL }
func entryURL(e alerts.EndOfLifeEntry) string { return e.URL }

// NoticesByProduct returns notices where any affected row's product id,
// product name, or free-text product listing contains productID.
func (idx *Index) NoticesByProduct(productID string) []alerts.Notice {
	return filterByURL(idx.notices, noticeURL, func(n alerts.Notice) bool {
		for _, row := range n.ProductsAffected {
			if strings.Contains(row.ProductID(), productID) ||
				strings.Contains(row.ProductName(), productID) ||
				strings.Contains(row.Text(), productID) {
				return true
			}
		}
		return false
	})
}

// NoticesBySoftware returns notices where any affected row carries
// exactly swVersion in its release column and swType as a substring of
// its software type columns.
func (idx *Index) NoticesBySoftware(swType, swVersion string) []alerts.Notice {
	return filterByURL(idx.notices, noticeURL, func(n alerts.Notice) bool {
		for _, row := range n.ProductsAffected {
			if row.Release() != swVersion {
				continue
			}
			if strings.Contains(row.OSType(), swType) ||
				strings.Contains(row.SoftwareProduct(), swType) {
				return true
			}
		}
		return false
	})
}

// EOLEntriesBySoftware returns entries whose description contains both
// swType and swVersion. Bulletin descriptions carry no structured
// version column, so this match is looser than the notice one on
// purpose.
func (idx *Index) EOLEntriesBySoftware(swType, swVersion string) []alerts.EndOfLifeEntry {
	return filterByURL(idx.eolEntries, entryURL, func(e alerts.EndOfLifeEntry) bool {
		if e.Description == nil {
			return false
		}
		return strings.Contains(*e.Description, swType) &&
			strings.Contains(*e.Description, swVersion)
	})
}

// EOLEntriesByProduct returns entries where any affected product name
// contains productID.
func (idx *Index) EOLEntriesByProduct(productID string) []alerts.EndOfLifeEntry {
	return filterByURL(idx.eolEntries, entryURL, func(e alerts.EndOfLifeEntry) bool {
		for _, p := range e.AffectedProducts {
			if strings.Contains(p, productID) {
				return true
			}
		}
		return false
	})
}
