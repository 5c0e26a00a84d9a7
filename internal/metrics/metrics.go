package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dessert_market",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dessert_market",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dessert_market",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	cartOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dessert_market",
			Subsystem: "cart",
			Name:      "operations_total",
			Help:      "Cart reservation operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	bids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dessert_market",
			Subsystem: "bidding",
			Name:      "bids_total",
			Help:      "Bids received, labelled accepted or the rejection reason.",
		},
		[]string{"result"},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dessert_market",
			Subsystem: "realtime",
			Name:      "connected_clients",
			Help:      "Currently connected auction WebSocket clients.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		cartOps,
		bids,
		wsClients,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request; path should be the route template.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func InFlightInc() { httpInFlight.Inc() }
func InFlightDec() { httpInFlight.Dec() }

// RecordCartOp counts a cart mutation; outcome is "ok" or an error kind.
func RecordCartOp(op, outcome string) {
	cartOps.WithLabelValues(op, outcome).Inc()
}

// RecordBid counts a bid by result ("accepted" or the rejection reason).
func RecordBid(result string) {
	bids.WithLabelValues(result).Inc()
}

func ClientConnected()    { wsClients.Inc() }
func ClientDisconnected() { wsClients.Dec() }
