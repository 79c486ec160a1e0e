package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the capture loop.
type Metrics struct {
	Registry         *prometheus.Registry
	ListingsTotal    *prometheus.CounterVec
	DecodeDuration   prometheus.Histogram
	RecordsTotal     prometheus.Counter
	CaptureMisses    prometheus.Counter
	ScrollsTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	NavigationsTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	listings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_listings_total",
			Help: "Listings processed by the capture loop, by outcome.",
		},
		[]string{"outcome"},
	)
	decodeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_decode_duration_seconds",
			Help:    "Time spent scanning and decoding captured exchanges.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Total number of listing records appended to the table.",
		},
	)
	misses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_capture_misses_total",
			Help: "Listings whose settle window produced no matching payload.",
		},
	)
	scrolls := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_scrolls_total",
			Help: "Total number of scroll-to-bottom pagination steps.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of capture errors by kind.",
		},
		[]string{"error_type"},
	)
	navigations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_back_navigations_total",
			Help: "Total number of navigate-back actions.",
		},
	)

	registry.MustRegister(listings, decodeDuration, records, misses, scrolls, errorsTotal, navigations)

	return &Metrics{
		Registry:         registry,
		ListingsTotal:    listings,
		DecodeDuration:   decodeDuration,
		RecordsTotal:     records,
		CaptureMisses:    misses,
		ScrollsTotal:     scrolls,
		ErrorsTotal:      errorsTotal,
		NavigationsTotal: navigations,
	}
}

// IncListing increments the listings counter for an outcome.
func (m *Metrics) IncListing(outcome string) {
	if m == nil {
		return
	}
	m.ListingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDecode records the time spent decoding captured traffic.
func (m *Metrics) ObserveDecode(d time.Duration) {
	if m == nil {
		return
	}
	m.DecodeDuration.Observe(d.Seconds())
}

// IncRecords increments the appended records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncMiss increments the capture misses counter.
func (m *Metrics) IncMiss() {
	if m == nil {
		return
	}
	m.CaptureMisses.Inc()
}

// IncScroll increments the pagination counter.
func (m *Metrics) IncScroll() {
	if m == nil {
		return
	}
	m.ScrollsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncBack increments the navigate-back counter.
func (m *Metrics) IncBack() {
	if m == nil {
		return
	}
	m.NavigationsTotal.Inc()
}
