// internal/monitoring/metrics.go
package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/propertylens/propertylens/internal/scraper"
	"github.com/propertylens/propertylens/pkg/types"
)

const (
	metricsNamespace = "propertylens"
	metricsSubsystem = "scraper"
)

// Metrics holds the Prometheus instruments for crawl runs. It
// satisfies the driver's Observer interface, so wiring it into a run
// is one argument. Each Metrics owns its registry, which keeps
// parallel instances (and tests) from colliding on registration.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	listingsPerRun *prometheus.HistogramVec
	activeRuns     prometheus.Gauge

	roundsTotal      *prometheus.CounterVec
	cardsDiscovered  *prometheus.CounterVec
	cardsValid       *prometheus.CounterVec
	recordsExtracted *prometheus.CounterVec
	recordsDropped   *prometheus.CounterVec
	fieldMisses      *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec

	recordsWritten *prometheus.CounterVec
	flushDuration  *prometheus.HistogramVec
}

var _ scraper.Observer = (*Metrics)(nil)

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{registry: registry}

	m.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "runs_total",
			Help:      "Total crawl runs by final status",
		},
		[]string{"site", "status"},
	)

	m.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "run_duration_seconds",
			Help:      "Crawl run duration in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"site"},
	)

	m.listingsPerRun = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "listings_per_run",
			Help:      "Valid listings extracted per run",
			Buckets:   []float64{0, 10, 25, 50, 100, 200, 400},
		},
		[]string{"site"},
	)

	m.activeRuns = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_runs",
			Help:      "Crawl runs currently in progress",
		},
	)

	m.roundsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rounds_total",
			Help:      "Card collection rounds by locator strategy",
		},
		[]string{"site", "strategy"},
	)

	m.cardsDiscovered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cards_discovered_total",
			Help:      "New listing cards discovered across rounds",
		},
		[]string{"site"},
	)

	m.cardsValid = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cards_valid_total",
			Help:      "Cards that passed the validity predicate",
		},
		[]string{"site"},
	)

	m.recordsExtracted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "records_extracted_total",
			Help:      "Listing records that passed validation",
		},
		[]string{"site"},
	)

	m.recordsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "records_dropped_total",
			Help:      "Listing records dropped by reason",
		},
		[]string{"site", "reason"},
	)

	m.fieldMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "field_misses_total",
			Help:      "Record fields that came up empty during extraction",
		},
		[]string{"site", "field"},
	)

	m.errorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "errors_total",
			Help:      "Crawl errors by kind",
		},
		[]string{"site", "kind"},
	)

	m.recordsWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "records_written_total",
			Help:      "Records flushed to output sinks",
		},
		[]string{"site"},
	)

	m.flushDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "flush_duration_seconds",
			Help:      "Output flush duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"site"},
	)

	return m
}

// Observer callbacks, invoked by the crawl driver.

func (m *Metrics) RoundCompleted(site, strategy string, newCards, validCards int) {
	m.roundsTotal.WithLabelValues(site, strategy).Inc()
	m.cardsDiscovered.WithLabelValues(site).Add(float64(newCards))
	m.cardsValid.WithLabelValues(site).Add(float64(validCards))
}

func (m *Metrics) RecordExtracted(site string) {
	m.recordsExtracted.WithLabelValues(site).Inc()
}

func (m *Metrics) RecordDropped(site, reason string) {
	m.recordsDropped.WithLabelValues(site, reason).Inc()
}

func (m *Metrics) FieldMissed(site, field string) {
	m.fieldMisses.WithLabelValues(site, field).Inc()
}

func (m *Metrics) ErrorObserved(site, kind string) {
	m.errorsTotal.WithLabelValues(site, kind).Inc()
}

// Run lifecycle, invoked by the command layer around each driver run.

func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

func (m *Metrics) RunFinished(summary types.RunSummary) {
	m.activeRuns.Dec()
	m.runsTotal.WithLabelValues(string(summary.Site), string(summary.Status)).Inc()
	m.runDuration.WithLabelValues(string(summary.Site)).Observe(summary.Duration().Seconds())
	m.listingsPerRun.WithLabelValues(string(summary.Site)).Observe(float64(summary.RecordsExtracted))
}

func (m *Metrics) RecordsFlushed(site types.Site, count int, took time.Duration) {
	m.recordsWritten.WithLabelValues(string(site)).Add(float64(count))
	m.flushDuration.WithLabelValues(string(site)).Observe(took.Seconds())
}

// Handler serves this instance's registry in Prometheus exposition
// format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics on its own listener until the context
// is cancelled. Used when metrics.listen is configured without the
// dashboard.
func (m *Metrics) StartServer(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{Addr: address, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Combine fans driver events out to several observers, so metrics and
// the run tracker can both watch one run.
func Combine(observers ...scraper.Observer) scraper.Observer {
	return multiObserver(observers)
}

type multiObserver []scraper.Observer

func (m multiObserver) RoundCompleted(site, strategy string, newCards, validCards int) {
	for _, o := range m {
		o.RoundCompleted(site, strategy, newCards, validCards)
	}
}

func (m multiObserver) RecordExtracted(site string) {
	for _, o := range m {
		o.RecordExtracted(site)
	}
}

func (m multiObserver) RecordDropped(site, reason string) {
	for _, o := range m {
		o.RecordDropped(site, reason)
	}
}

func (m multiObserver) FieldMissed(site, field string) {
	for _, o := range m {
		o.FieldMissed(site, field)
	}
}

func (m multiObserver) ErrorObserved(site, kind string) {
	for _, o := range m {
		o.ErrorObserved(site, kind)
	}
}
