package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry  *prometheus.Registry
	namespace string

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Canvas mutation metrics
	CardsCreated prometheus.Counter
	CardsRemoved prometheus.Counter
	EdgesCreated prometheus.Counter
	EdgesRemoved prometheus.Counter

	// Regeneration metrics
	RegenerationRuns     *prometheus.CounterVec
	RegenerationCards    *prometheus.CounterVec
	RegenerationDuration *prometheus.HistogramVec

	// Index sync metrics
	IndexSyncOps *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	// Create a new registry for this collector
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	cardsCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_created_total",
			Help:      "Total number of cards created",
		},
	)

	cardsRemoved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cards_removed_total",
			Help:      "Total number of cards removed",
		},
	)

	edgesCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Total number of edges created",
		},
	)

	edgesRemoved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_removed_total",
			Help:      "Total number of edges removed",
		},
	)

	regenerationRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regeneration_runs_total",
			Help:      "Total number of batch regeneration runs",
		},
		[]string{"outcome"},
	)

	regenerationCards := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regeneration_cards_total",
			Help:      "Total number of cards processed by regeneration runs",
		},
		[]string{"status"},
	)

	regenerationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "regeneration_duration_seconds",
			Help:      "Duration of batch regeneration runs in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	indexSyncOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_sync_operations_total",
			Help:      "Total number of search index sync operations",
		},
		[]string{"operation", "status"},
	)

	// Register all metrics with the registry
	registry.MustRegister(
		httpRequests,
		httpDuration,
		cardsCreated,
		cardsRemoved,
		edgesCreated,
		edgesRemoved,
		regenerationRuns,
		regenerationCards,
		regenerationDuration,
		indexSyncOps,
	)

	globalCollector = &Collector{
		registry:             registry,
		namespace:            namespace,
		HTTPRequests:         httpRequests,
		HTTPDuration:         httpDuration,
		CardsCreated:         cardsCreated,
		CardsRemoved:         cardsRemoved,
		EdgesCreated:         edgesCreated,
		EdgesRemoved:         edgesRemoved,
		RegenerationRuns:     regenerationRuns,
		RegenerationCards:    regenerationCards,
		RegenerationDuration: regenerationDuration,
		IndexSyncOps:         indexSyncOps,
	}

	return globalCollector
}

// ResetForTesting resets the global collector for testing purposes
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}

// ObserveHTTPRequest records one completed HTTP request.
func (c *Collector) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRegenerationRun records the outcome and duration of one regeneration run.
func (c *Collector) ObserveRegenerationRun(outcome string, duration time.Duration) {
	c.RegenerationRuns.WithLabelValues(outcome).Inc()
	c.RegenerationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// CanvasGauges is one open canvas's point-in-time gauge sample.
type CanvasGauges struct {
	CanvasID   string
	StaleCards int
	UndoDepth  int
	RedoDepth  int
}

// canvasGaugeCollector samples per-canvas gauges from the live engine
// registry at scrape time. Canvases that close simply stop appearing,
// so no label cleanup is needed.
type canvasGaugeCollector struct {
	source    func() []CanvasGauges
	staleDesc *prometheus.Desc
	undoDesc  *prometheus.Desc
	redoDesc  *prometheus.Desc
}

func (g *canvasGaugeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- g.staleDesc
	ch <- g.undoDesc
	ch <- g.redoDesc
}

func (g *canvasGaugeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, sample := range g.source() {
		ch <- prometheus.MustNewConstMetric(g.staleDesc, prometheus.GaugeValue, float64(sample.StaleCards), sample.CanvasID)
		ch <- prometheus.MustNewConstMetric(g.undoDesc, prometheus.GaugeValue, float64(sample.UndoDepth), sample.CanvasID)
		ch <- prometheus.MustNewConstMetric(g.redoDesc, prometheus.GaugeValue, float64(sample.RedoDepth), sample.CanvasID)
	}
}

// RegisterCanvasGauges registers a pull-through collector for the
// per-canvas gauges: stale card count and undo/redo depth. Call once
// per collector, after the engine registry exists.
func (c *Collector) RegisterCanvasGauges(source func() []CanvasGauges) {
	c.registry.MustRegister(&canvasGaugeCollector{
		source: source,
		staleDesc: prometheus.NewDesc(
			prometheus.BuildFQName(c.namespace, "", "stale_cards"),
			"Number of stale cards on an open canvas",
			[]string{"canvas"}, nil,
		),
		undoDesc: prometheus.NewDesc(
			prometheus.BuildFQName(c.namespace, "", "history_undo_depth"),
			"Undo steps available on an open canvas",
			[]string{"canvas"}, nil,
		),
		redoDesc: prometheus.NewDesc(
			prometheus.BuildFQName(c.namespace, "", "history_redo_depth"),
			"Redo steps available on an open canvas",
			[]string{"canvas"}, nil,
		),
	})
}
