package scrape

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const productsIndexHTML = `<html><body>
<div data-config-metrics-title="Products by Category">
  <a href="/c/en/us/support/switches/index.html">Switches</a>
  <a href="/c/en/us/support/routers/index.html">Routers</a>
</div>
<a href="/c/en/us/support/unrelated.html">Unrelated</a>
</body></html>`

const switchesCategoryHTML = `<html><body>
<div id="allSupportedProducts">
  <a href="/c/en/us/support/switches/catalyst-9300-series-switches/series.html">Catalyst 9300 Series Switches</a>
  <a href="/c/en/us/support/switches/catalyst-9500-series-switches/series.html">Catalyst 9500 Series Switches</a>
</div>
<div id="other"><a href="/c/en/us/support/switches/ignored/series.html">Ignored</a></div>
</body></html>`

func TestDiscoverCatalog(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://www.cisco.com/c/en/us/support/all-products.html", 200, productsIndexHTML)
	f.add("https://www.cisco.com/c/en/us/support/switches/index.html", 200, switchesCategoryHTML)
	// The routers category page is left unfetchable on purpose.

	catalog, err := DiscoverCatalog(context.Background(), f, "https://www.cisco.com/c/en/us/support/all-products.html", zap.NewNop())
	require.NoError(t, err)
	require.Len(t, catalog, 2)

	require.Equal(t, []Product{
		{Name: "Catalyst 9300 Series Switches", URL: "https://www.cisco.com/c/en/us/support/switches/catalyst-9300-series-switches/series.html"},
		{Name: "Catalyst 9500 Series Switches", URL: "https://www.cisco.com/c/en/us/support/switches/catalyst-9500-series-switches/series.html"},
	}, catalog["Switches"])

	require.NotNil(t, catalog["Routers"])
	require.Empty(t, catalog["Routers"])
	require.Equal(t, 2, catalog.Families())
}

func TestDiscoverCatalog_IndexUnavailable(t *testing.T) {
	f := newFakeFetcher()

	_, err := DiscoverCatalog(context.Background(), f, "https://www.cisco.com/c/en/us/support/all-products.html", zap.NewNop())
	require.Error(t, err)
}

func TestDiscoverCatalog_IndexBadStatus(t *testing.T) {
	f := newFakeFetcher()
	f.add("https://www.cisco.com/c/en/us/support/all-products.html", 500, "oops")

	_, err := DiscoverCatalog(context.Background(), f, "https://www.cisco.com/c/en/us/support/all-products.html", zap.NewNop())
	require.ErrorContains(t, err, "status 500")
}

func TestCatalog_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogs", "products_by_category.json")
	catalog := Catalog{
		"Switches": {{Name: "Catalyst 9300 Series Switches", URL: "https://www.cisco.com/series.html"}},
		"Routers":  {},
	}

	require.NoError(t, SaveCatalog(path, catalog))

	loaded, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, catalog, loaded)
}

func TestLoadCatalog_Missing(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}
