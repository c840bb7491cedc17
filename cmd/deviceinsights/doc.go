// Package main hosts the device insights service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, status, and the
//     /api/v1 query routes. Product alert queries (field notices, end-of-life
//     bulletins, software types) run against an immutable in-memory snapshot;
//     feature queries (features, platforms, releases) read the feature archive
//     through a bounded LRU cache. All list responses are paginated.
//   - Alert pipeline: internal/scrape walks the Cisco support site from the
//     product catalog (discovered once and cached on disk), scrapes each
//     product family's EOL bulletins and field notices with a Colly collector
//     and goquery parsing, and stages one JSON document per family into a
//     gzip tar archive via internal/archive.Builder. Finalize is atomic, so
//     readers only ever see complete archive generations.
//   - Feature pipeline: internal/features fetches the Feature Navigator
//     catalog over its JSON API, deduplicates feature records behind BLAKE2b
//     hashes, and stages per platform/release members plus the shared lookup
//     tables into a second archive.
//   - Serving: internal/index flattens the alert archive into filterable
//     record lists and swaps snapshots atomically on refresh. The refresh
//     scheduler cycles both serving services on an interval; a failed cycle
//     keeps the previous generation live. Build jobs trigger an immediate
//     refresh when they finish.
//   - Configuration & plumbing: Viper populates config from files and
//     DEVICEINSIGHTS_* env vars (with optional .env loading); zap provides
//     structured logging; Prometheus counters and histograms cover HTTP
//     traffic, scrape outcomes, archive builds, refresh cycles, and the
//     feature cache.
//
// Operational notes:
//   - Concurrency model: scrape and feature jobs fan out over bounded
//     errgroups; outbound requests are paced per host. Shutdown is
//     coordinated via context cancellation from main through the jobs.
//   - The server reacts to SIGINT/SIGTERM with a graceful drain bounded by
//     server.shutdown_timeout. Archives and the catalog live under data.dir,
//     which is the only state the process keeps between runs.
//
// Run locally: go run ./cmd/deviceinsights -config config.yaml (or rely
// solely on DEVICEINSIGHTS_* env overrides).
package main
