// Package metrics exposes Prometheus collectors for the stock service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

// Outcome labels shared by attempt and run counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	refreshAttemptsTotal       *prometheus.CounterVec
	refreshRunsTotal           *prometheus.CounterVec
	refreshDurationSeconds     prometheus.Histogram
	fetchBytesTotal            prometheus.Counter
	lastSuccessTimestamp       prometheus.Gauge
	stockItems                 *prometheus.GaugeVec
	snapshotChangesTotal       *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	headlessRendersTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		refreshAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_refresh_attempts_total",
				Help: "Fetch/parse attempts, labeled by outcome and failure reason.",
			},
			[]string{"outcome", "reason"},
		)

		refreshRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_refresh_runs_total",
				Help: "Completed refresh runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		refreshDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stock_refresh_duration_seconds",
				Help:    "Histogram of refresh run durations including retries.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stock_fetch_bytes_total",
				Help: "Total number of page bytes fetched from the source.",
			},
		)

		lastSuccessTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stock_last_success_timestamp_seconds",
				Help: "Unix time of the most recently published snapshot.",
			},
		)

		stockItems = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stock_items",
				Help: "Number of items in the published snapshot, labeled by category.",
			},
			[]string{"category"},
		)

		snapshotChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_snapshot_publishes_total",
				Help: "Published snapshots, labeled by whether the stock differed from the previous one.",
			},
			[]string{"changed"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stock_fetch_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		headlessRendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_headless_renders_total",
				Help: "Challenge pages re-fetched through the headless browser, labeled by outcome and failure reason.",
			},
			[]string{"outcome", "reason"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAttempt records one fetch/parse attempt. A nil err counts as success.
func ObserveAttempt(err error, bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
	if err == nil {
		refreshAttemptsTotal.WithLabelValues(OutcomeSuccess, "").Inc()
		return
	}
	refreshAttemptsTotal.WithLabelValues(OutcomeFailure, string(stock.ReasonOf(err))).Inc()
}

// ObserveRefresh records a finished refresh run.
func ObserveRefresh(outcome string, duration time.Duration) {
	Init()
	refreshRunsTotal.WithLabelValues(outcome).Inc()
	refreshDurationSeconds.Observe(duration.Seconds())
}

// ObservePublished updates the gauges describing the live snapshot.
func ObservePublished(published stock.Published) {
	Init()
	lastSuccessTimestamp.Set(float64(published.FetchedAt.Unix()))
	for _, category := range stock.Categories {
		section, _ := published.Section(category)
		stockItems.WithLabelValues(string(category)).Set(float64(len(section.Items)))
	}
}

// ObserveSnapshotChange counts a publish as changed or unchanged stock.
func ObserveSnapshotChange(changed bool) {
	Init()
	snapshotChangesTotal.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

// ObserveRateLimitDelay records time spent waiting for a fetch token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHeadlessRender records one headless re-fetch of a challenged attempt.
func ObserveHeadlessRender(err error) {
	Init()
	if err == nil {
		headlessRendersTotal.WithLabelValues(OutcomeSuccess, "").Inc()
		return
	}
	headlessRendersTotal.WithLabelValues(OutcomeFailure, string(stock.ReasonOf(err))).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
