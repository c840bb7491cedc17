// Package metrics exposes Prometheus collectors for the device insights service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	refreshCyclesTotal         *prometheus.CounterVec
	refreshDurationSeconds     *prometheus.HistogramVec
	archiveBuildTotal          *prometheus.CounterVec
	archiveMembers             *prometheus.GaugeVec
	indexRecords               *prometheus.GaugeVec
	memberDecodeFailuresTotal  prometheus.Counter
	featureCacheEventsTotal    *prometheus.CounterVec
	scrapePagesTotal           *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deviceinsights_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deviceinsights_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		refreshCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deviceinsights_refresh_cycles_total",
				Help: "Total number of refresh cycles, labeled by refresher and status.",
			},
			[]string{"refresher", "status"},
		)

		refreshDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deviceinsights_refresh_duration_seconds",
				Help:    "Histogram of refresh cycle durations, labeled by refresher.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"refresher"},
		)

		archiveBuildTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deviceinsights_archive_build_total",
				Help: "Total number of archive finalizations, labeled by archive and status.",
			},
			[]string{"archive", "status"},
		)

		archiveMembers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deviceinsights_archive_members",
				Help: "Number of members written in the last archive finalization.",
			},
			[]string{"archive"},
		)

		indexRecords = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deviceinsights_index_records",
				Help: "Records held by the current index snapshot, labeled by kind.",
			},
			[]string{"kind"},
		)

		memberDecodeFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "deviceinsights_member_decode_failures_total",
				Help: "Total archive members skipped because their JSON failed to decode.",
			},
		)

		featureCacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deviceinsights_feature_cache_events_total",
				Help: "Feature extraction cache events, labeled by event (hit, miss, evict).",
			},
			[]string{"event"},
		)

		scrapePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deviceinsights_scrape_pages_total",
				Help: "Total number of support-site pages scraped, labeled by status.",
			},
			[]string{"status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRefresh records one refresh cycle for the named refresher.
func ObserveRefresh(refresher, status string, duration time.Duration) {
	Init()
	refreshCyclesTotal.WithLabelValues(refresher, status).Inc()
	refreshDurationSeconds.WithLabelValues(refresher).Observe(duration.Seconds())
}

// ObserveArchiveBuild records one archive finalization.
func ObserveArchiveBuild(archive, status string, members int) {
	Init()
	archiveBuildTotal.WithLabelValues(archive, status).Inc()
	if members >= 0 {
		archiveMembers.WithLabelValues(archive).Set(float64(members))
	}
}

// SetIndexRecords updates the record gauge for the given kind.
func SetIndexRecords(kind string, count int) {
	Init()
	indexRecords.WithLabelValues(kind).Set(float64(count))
}

// ObserveMemberDecodeFailure counts an archive member skipped on decode.
func ObserveMemberDecodeFailure() {
	Init()
	memberDecodeFailuresTotal.Inc()
}

// ObserveFeatureCache counts a feature cache event (hit, miss, evict).
func ObserveFeatureCache(event string) {
	Init()
	featureCacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveScrapePage counts a scraped page by outcome status.
func ObserveScrapePage(status string) {
	Init()
	scrapePagesTotal.WithLabelValues(status).Inc()
}
