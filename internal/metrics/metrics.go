// Package metrics drží Prometheus metriky sdílené službami.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RTDBSubscriptions: počet aktivních callbacků na realtime stromu podle backendu.
	RTDBSubscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aqimonitor_rtdb_subscriptions",
		Help: "Active realtime tree subscriptions by backend.",
	}, []string{"backend"})

	// RTDBPushes: počet doručených snapshotů podle backendu.
	RTDBPushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aqimonitor_rtdb_pushes_total",
		Help: "Snapshots delivered from the realtime tree by backend.",
	}, []string{"backend"})

	// FeedActive: běžící readery (live, history, alerts).
	FeedActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aqimonitor_feed_active",
		Help: "Readers currently subscribed, by reader kind.",
	}, []string{"reader"})

	// FeedUpdates: počet přepočítaných view-modelů.
	FeedUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aqimonitor_feed_updates_total",
		Help: "View models recomputed after a push, by reader kind.",
	}, []string{"reader"})

	// StreamSessions: otevřené WebSocket streamy podle pohledu.
	StreamSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aqimonitor_stream_sessions",
		Help: "Open WebSocket push streams by view.",
	}, []string{"view"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aqimonitor_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aqimonitor_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		RTDBSubscriptions,
		RTDBPushes,
		FeedActive,
		FeedUpdates,
		StreamSessions,
		httpRequests,
		httpDuration,
	)
}

// Handler vrací endpoint /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Instrument obalí handler měřením počtu a doby requestů.
// route je pevný název (ne URL), aby nevznikaly labely pro každé ID zařízení.
func Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}
