package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ObserversConnected tracks live event channel observers.
	ObserversConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "torrentify_observers_connected",
		Help: "Number of connected event observers",
	})

	// EventsPublished counts events handed to the broadcaster, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrentify_events_published_total",
		Help: "Progress events broadcast, by event type",
	}, []string{"type"})

	// EventsDropped counts per-observer deliveries dropped on a full queue.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torrentify_events_dropped_total",
		Help: "Per-observer event deliveries dropped because the observer queue was full",
	})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrentify_jobs_finished_total",
		Help: "Jobs that reached a terminal status",
	}, []string{"status"})

	ItemsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrentify_items_handled_total",
		Help: "Work items handled by the pipeline, by outcome",
	}, []string{"outcome"})

	ItemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "torrentify_item_duration_seconds",
		Help:    "Wall-clock time spent on one work item",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"kind"})

	InventoryScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrentify_inventory_scans_total",
		Help: "Inventory scans, split by cache hit or filesystem walk",
	}, []string{"source"})

	MetadataLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrentify_metadata_lookups_total",
		Help: "Metadata lookups, by result",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torrentify_http_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "route", "status"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
