package scrape

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ciscoinsights/device-insights/internal/alerts"
	"github.com/ciscoinsights/device-insights/internal/archive"
	"github.com/ciscoinsights/device-insights/internal/logging"
	"github.com/ciscoinsights/device-insights/internal/metrics"
)

// Link markers distinguishing bulletin and notice anchors on listing pages.
const (
	eolLinkMarker = "eol.html"
	fnLinkMarker  = "field-notices"
)

// Fetcher retrieves support pages. Implementations pace and bound their
// own requests.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Parser extracts alert records from fetched page bodies.
type Parser interface {
	GeneralDates(body []byte) alerts.GeneralDates
	EOLEntry(pageURL string, body []byte) (alerts.EndOfLifeEntry, error)
	Notice(pageURL string, body []byte) (alerts.Notice, error)
	ListingLinks(body []byte, marker string) []string
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// JobConfig carries the scrape job's tunables.
type JobConfig struct {
	// ProductsURL is the products index page used to discover the
	// catalog when no catalog file exists yet.
	ProductsURL string
	// CatalogPath is the catalog file location.
	CatalogPath string
	// SeriesSuffix is the trailing segment of family support pages,
	// replaced to derive the bulletin and notice listing URLs.
	SeriesSuffix     string
	EOLListingSuffix string
	FNListingSuffix  string
	// Concurrency bounds the number of families scraped at once.
	Concurrency int
}

// Job scrapes every catalog family's support pages into one staged
// archive generation and finalizes it. Families fail independently: a
// family that cannot be scraped is logged and skipped, and the archive
// ships with the rest.
type Job struct {
	fetcher Fetcher
	parser  Parser
	builder *archive.Builder
	ids     IDGenerator
	cfg     JobConfig
	logger  *zap.Logger
}

// NewJob wires a scrape job over the fetcher, parser, and archive builder.
func NewJob(fetcher Fetcher, parser Parser, builder *archive.Builder, ids IDGenerator, cfg JobConfig, logger *zap.Logger) *Job {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return &Job{
		fetcher: fetcher,
		parser:  parser,
		builder: builder,
		ids:     ids,
		cfg:     cfg,
		logger:  logging.WithComponent(logger, "scrape"),
	}
}

// Run executes one full scrape: load or discover the catalog, scrape
// every family concurrently, and finalize the staged archive. A run in
// which every family failed leaves the previous archive in place.
func (j *Job) Run(ctx context.Context) error {
	runID, err := j.ids.NewID()
	if err != nil {
		return fmt.Errorf("failed to generate run id: %w", err)
	}
	log := j.logger.With(zap.String("run_id", runID))

	catalog, err := j.loadCatalog(ctx, log)
	if err != nil {
		return err
	}

	type familyTask struct {
		category string
		family   Product
	}
	var tasks []familyTask
	for category, families := range catalog {
		for _, family := range families {
			tasks = append(tasks, familyTask{category: category, family: family})
		}
	}
	log.Info("scrape started",
		zap.Int("categories", len(catalog)),
		zap.Int("families", len(tasks)))

	var staged, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(j.cfg.Concurrency)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return nil
			}
			page, err := j.scrapeFamily(ctx, task.family, log)
			if err != nil {
				log.Warn("family skipped",
					zap.String("category", task.category),
					zap.String("family", task.family.Name),
					zap.Error(err))
				metrics.ObserveScrapePage("error")
				failed.Add(1)
				return nil
			}
			unit := path.Join(PathSegment(task.category), PathSegment(task.family.Name), "eol.json")
			if err := j.builder.Stage(unit, page); err != nil {
				log.Error("failed to stage family",
					zap.String("unit", unit),
					zap.Error(err))
				metrics.ObserveScrapePage("error")
				failed.Add(1)
				return nil
			}
			metrics.ObserveScrapePage("success")
			staged.Add(1)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if staged.Load() == 0 && len(tasks) > 0 {
		return fmt.Errorf("all %d families failed, keeping previous archive", len(tasks))
	}
	if err := j.builder.Finalize(ctx); err != nil {
		return fmt.Errorf("failed to finalize alert archive: %w", err)
	}
	log.Info("alert archive built",
		zap.Int64("families", staged.Load()),
		zap.Int64("skipped", failed.Load()))
	return nil
}

// loadCatalog reads the catalog file, discovering and saving a fresh
// one when none exists yet.
func (j *Job) loadCatalog(ctx context.Context, log *zap.Logger) (Catalog, error) {
	catalog, err := LoadCatalog(j.cfg.CatalogPath)
	if err == nil {
		return catalog, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	log.Info("catalog file missing, discovering", zap.String("path", j.cfg.CatalogPath))
	catalog, err = DiscoverCatalog(ctx, j.fetcher, j.cfg.ProductsURL, j.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to discover catalog: %w", err)
	}
	if err := SaveCatalog(j.cfg.CatalogPath, catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

// scrapeFamily assembles one family's product page: general lifecycle
// dates from the support page, then every bulletin and notice linked
// from the family's listing pages. Individual bulletin or notice pages
// fail softly.
func (j *Job) scrapeFamily(ctx context.Context, family Product, log *zap.Logger) (alerts.ProductPage, error) {
	page, err := j.fetcher.Fetch(ctx, family.URL)
	if err != nil {
		return alerts.ProductPage{}, fmt.Errorf("failed to fetch family page: %w", err)
	}
	if !scrapeable(page.StatusCode) {
		return alerts.ProductPage{}, fmt.Errorf("family page returned status %d", page.StatusCode)
	}

	famLog := log.With(zap.String("family", family.Name))
	out := alerts.ProductPage{
		EOLs: []alerts.EndOfLifeEntry{},
		FNs:  []alerts.Notice{},
	}
	dates := j.parser.GeneralDates(page.Body)
	out.SeriesReleaseDate = dates.SeriesReleaseDate
	out.EndOfSaleDate = dates.EndOfSaleDate
	out.EndOfSupportDate = dates.EndOfSupportDate

	// Bulletin listings live under /products/, notice listings under the
	// family's own support path.
	eolListing := strings.Replace(family.URL, "/support/", "/products/", 1)
	eolListing = strings.Replace(eolListing, j.cfg.SeriesSuffix, j.cfg.EOLListingSuffix, 1)
	for _, link := range j.listingLinks(ctx, eolListing, eolLinkMarker, famLog) {
		body, ok := j.fetchPage(ctx, link, famLog)
		if !ok {
			continue
		}
		entry, err := j.parser.EOLEntry(link, body)
		if err != nil {
			famLog.Warn("bulletin skipped", zap.String("url", link), zap.Error(err))
			continue
		}
		out.EOLs = append(out.EOLs, entry)
	}

	fnListing := strings.Replace(family.URL, j.cfg.SeriesSuffix, j.cfg.FNListingSuffix, 1)
	for _, link := range j.listingLinks(ctx, fnListing, fnLinkMarker, famLog) {
		body, ok := j.fetchPage(ctx, link, famLog)
		if !ok {
			continue
		}
		notice, err := j.parser.Notice(link, body)
		if err != nil {
			famLog.Debug("notice skipped", zap.String("url", link), zap.Error(err))
			continue
		}
		out.FNs = append(out.FNs, notice)
	}
	return out, nil
}

// listingLinks fetches a listing page and extracts its alert links. A
// listing that cannot be fetched yields no links.
func (j *Job) listingLinks(ctx context.Context, listingURL, marker string, log *zap.Logger) []string {
	body, ok := j.fetchPage(ctx, listingURL, log)
	if !ok {
		return nil
	}
	return j.parser.ListingLinks(body, marker)
}

// fetchPage retrieves one page body, reporting pages that failed or
// came back with an unusable status.
func (j *Job) fetchPage(ctx context.Context, pageURL string, log *zap.Logger) ([]byte, bool) {
	page, err := j.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		log.Warn("page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return nil, false
	}
	if !scrapeable(page.StatusCode) {
		log.Warn("page status not scrapeable",
			zap.String("url", pageURL),
			zap.Int("status", page.StatusCode))
		return nil, false
	}
	return page.Body, true
}

// scrapeable reports whether a status code carries usable page content.
// The support site serves some alert pages behind a 403.
func scrapeable(status int) bool {
	return status == http.StatusOK || status == http.StatusForbidden
}
