package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ciscoinsights/device-insights/internal/logging"
)

// Product is one catalog entry: a product family name and its series
// support page URL.
type Product struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Catalog maps device categories to their product families. It is the
// scrape job's work list.
type Catalog map[string][]Product

// Families returns the total family count across all categories.
func (c Catalog) Families() int {
	var n int
	for _, products := range c {
		n += len(products)
	}
	return n
}

// LoadCatalog reads a catalog file from disk.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}
	return catalog, nil
}

// SaveCatalog writes the catalog to disk, creating parent directories
// as needed.
func SaveCatalog(path string, catalog Catalog) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	data, err := json.MarshalIndent(catalog, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write catalog %s: %w", path, err)
	}
	return nil
}

// DiscoverCatalog walks the products index page and each category page
// it links to, collecting every supported product family. A category
// page that cannot be fetched leaves its category empty rather than
// failing the discovery.
func DiscoverCatalog(ctx context.Context, fetcher Fetcher, productsURL string, logger *zap.Logger) (Catalog, error) {
	log := logging.WithComponent(logger, "catalog")
	base, err := url.Parse(productsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse products url %q: %w", productsURL, err)
	}

	page, err := fetcher.Fetch(ctx, productsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product index: %w", err)
	}
	if page.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product index returned status %d", page.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse product index: %w", err)
	}

	var categories []Product
	doc.Find(`div[data-config-metrics-title="Products by Category"] a[href]`).Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if name == "" || href == "" {
			return
		}
		categories = append(categories, Product{Name: name, URL: resolveURL(base, href)})
	})

	catalog := make(Catalog, len(categories))
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		families, err := discoverFamilies(ctx, fetcher, base, category.URL)
		if err != nil {
			log.Warn("category discovery failed",
				zap.String("category", category.Name),
				zap.Error(err))
		}
		if families == nil {
			families = []Product{}
		}
		catalog[category.Name] = families
	}
	log.Info("catalog discovered",
		zap.Int("categories", len(catalog)),
		zap.Int("families", catalog.Families()))
	return catalog, nil
}

func discoverFamilies(ctx context.Context, fetcher Fetcher, base *url.URL, categoryURL string) ([]Product, error) {
	page, err := fetcher.Fetch(ctx, categoryURL)
	if err != nil {
		return nil, err
	}
	if page.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("category page returned status %d", page.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, err
	}
	var families []Product
	doc.Find("div#allSupportedProducts a[href]").Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if name == "" || href == "" {
			return
		}
		families = append(families, Product{Name: name, URL: resolveURL(base, href)})
	})
	return families, nil
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
