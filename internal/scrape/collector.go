// Package scrape turns Cisco support pages into product alert records
// and stages them into archive generations.
package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/logging"
)

// Page is one fetched support page.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Config controls the collector's pacing and identity.
type Config struct {
	AllowedDomains []string
	UserAgent      string
	Concurrency    int
	Delay          time.Duration
	Timeout        time.Duration
}

// Collector fetches support pages through a shared colly backend, one
// cloned collector per request so pacing rules apply across all of them.
// Error statuses still deliver their bodies: the support site serves
// some bulletin pages behind a 403.
type Collector struct {
	base   *colly.Collector
	logger *zap.Logger
}

// NewCollector builds a collector limited to cfg.AllowedDomains with a
// single pacing rule shared by every request.
func NewCollector(cfg Config, logger *zap.Logger) (*Collector, error) {
	base := colly.NewCollector(
		colly.AllowedDomains(cfg.AllowedDomains...),
		colly.UserAgent(cfg.UserAgent),
		colly.ParseHTTPErrorResponse(),
	)
	base.AllowURLRevisit = true
	if cfg.Timeout > 0 {
		base.SetRequestTimeout(cfg.Timeout)
	}
	parallelism := cfg.Concurrency
	if parallelism <= 0 {
		parallelism = 1
	}
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure collector limits: %w", err)
	}
	return &Collector{
		base:   base,
		logger: logging.WithComponent(logger, "collector"),
	}, nil
}

// Fetch retrieves a single page. The returned page keeps the final URL
// after redirects and the raw body regardless of HTTP status.
func (c *Collector) Fetch(ctx context.Context, pageURL string) (Page, error) {
	collector := c.base.Clone()

	var (
		page     Page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		c.logger.Debug("fetch abandoned", zap.String("url", pageURL))
		return Page{}, fmt.Errorf("fetch %s: %w", pageURL, ctx.Err())
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil {
			return Page{}, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
		}
	}
	return page, nil
}
