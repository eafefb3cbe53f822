// Package metrics exports Prometheus metrics for scrape runs and the post store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xpulse"

// Metrics holds all xpulse Prometheus metrics
type Metrics struct {
	ScrapeRuns     *prometheus.CounterVec
	ScrapedPosts   prometheus.Counter
	ScrapeDuration prometheus.Histogram
	StoreInserted  prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the metrics with reg. Pass a fresh registry in tests to
// avoid duplicate registration against the default one.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ScrapeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_runs_total",
			Help:      "Scrape runs by outcome reason",
		}, []string{"reason"}),
		ScrapedPosts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_posts_total",
			Help:      "Posts returned by successful scrapes",
		}),
		ScrapeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Wall time of a scrape run",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
		StoreInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_inserted_total",
			Help:      "Posts newly written to the store",
		}),
		gatherer: reg,
	}
}

// RecordScrape records a finished scrape. reason is "ok" on success.
func (m *Metrics) RecordScrape(reason string, posts int, d time.Duration) {
	m.ScrapeRuns.WithLabelValues(reason).Inc()
	m.ScrapedPosts.Add(float64(posts))
	m.ScrapeDuration.Observe(d.Seconds())
}

// RecordInserted records posts newly written to the store
func (m *Metrics) RecordInserted(n int) {
	m.StoreInserted.Add(float64(n))
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
