// Package index builds queryable in-memory snapshots of the product
// alert archive.
package index

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/alerts"
	"github.com/ciscoinsights/device-insights/internal/archive"
	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
)

// Clock supplies the timestamp stamped onto each snapshot.
type Clock interface {
	Now() time.Time
}

// Index is an immutable snapshot of every field notice and end-of-life
// entry in one archive generation. Accessors return snapshot-owned
// slices; callers must not mutate them.
type Index struct {
	notices    []alerts.Notice
	eolEntries []alerts.EndOfLifeEntry
	swTypes    []string
	swTypeSet  map[string]struct{}
	builtAt    time.Time
	pages      int
}

// Build extracts every product page from the archive and flattens it
// into one snapshot. Each end-of-life entry gets the page's general
// lifecycle dates prepended as its first date entry, so element zero is
// always the series-level triple even when all three dates are empty.
func Build(r *archive.Reader, clk Clock, logger *zap.Logger) (*Index, error) {
	log := logging.WithComponent(logger, "index")

	pages, err := archive.ExtractAll[alerts.ProductPage](r, "eol.json")
	if err != nil {
		return nil, fmt.Errorf("failed to extract product pages: %w", err)
	}

	idx := &Index{
		swTypeSet: make(map[string]struct{}),
		builtAt:   clk.Now(),
		pages:     len(pages),
	}
	for _, page := range pages {
		idx.notices = append(idx.notices, page.FNs...)
		for _, eol := range page.EOLs {
			g := page.GeneralDates()
			dates := make([]alerts.DateEntry, 0, len(eol.Dates)+1)
			dates = append(dates, alerts.DateEntry{General: &g})
			dates = append(dates, eol.Dates...)
			eol.Dates = dates
			idx.eolEntries = append(idx.eolEntries, eol)
		}
	}
	for _, n := range idx.notices {
		for _, row := range n.ProductsAffected {
			if st := row.SoftwareType(); st != "" {
				idx.swTypeSet[st] = struct{}{}
			}
		}
	}
	idx.swTypes = make([]string, 0, len(idx.swTypeSet))
	for st := range idx.swTypeSet {
		idx.swTypes = append(idx.swTypes, st)
	}
	sort.Strings(idx.swTypes)

	metrics.SetIndexRecords("notices", len(idx.notices))
	metrics.SetIndexRecords("eol_entries", len(idx.eolEntries))
	log.Info("index built",
		zap.Int("pages", idx.pages),
		zap.Int("notices", len(idx.notices)),
		zap.Int("eol_entries", len(idx.eolEntries)),
		zap.Int("software_types", len(idx.swTypes)))
	return idx, nil
}

// Notices returns every field notice in the snapshot.
func (idx *Index) Notices() []alerts.Notice {
	return idx.notices
}

// EOLEntries returns every end-of-life entry in the snapshot.
func (idx *Index) EOLEntries() []alerts.EndOfLifeEntry {
	return idx.eolEntries
}

// SoftwareTypes returns the distinct software types seen across notice
// affected-product rows, sorted.
func (idx *Index) SoftwareTypes() []string {
	return idx.swTypes
}

// HasSoftwareType reports whether s is one of the snapshot's software
// types.
func (idx *Index) HasSoftwareType(s string) bool {
	_, ok := idx.swTypeSet[s]
	return ok
}

// BuiltAt returns the time the snapshot was built.
func (idx *Index) BuiltAt() time.Time {
	return idx.builtAt
}

// Pages returns the number of product pages the snapshot was built from.
func (idx *Index) Pages() int {
	return idx.pages
}
