package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector 触发管线的运行指标
type Collector struct {
	reg *prometheus.Registry

	EventsReceived prometheus.Counter
	EventsDropped  *prometheus.CounterVec // reason label: error|foreign|stale|disabled|kind|schedule|cooldown|fields

	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter

	Resyncs        prometheus.Counter
	ResyncFailures prometheus.Counter

	FeedFailures      prometheus.Counter
	RegisteredRegions prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwayalert_geofence_events_received_total",
			Help: "Total geofence events received from the device.",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subwayalert_geofence_events_dropped_total",
			Help: "Geofence events dropped before notification dispatch.",
		}, []string{"reason"}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwayalert_notifications_sent_total",
			Help: "Total notifications dispatched to the device.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwayalert_notifications_failed_total",
			Help: "Total notification dispatch failures.",
		}),
		Resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwayalert_geofence_resyncs_total",
			Help: "Total geofence resync attempts.",
		}),
		ResyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwayalert_geofence_resync_failures_total",
			Help: "Total geofence resync failures.",
		}),
		FeedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subwayalert_feed_empty_results_total",
			Help: "Arrival feed queries that yielded no records.",
		}),
		RegisteredRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subwayalert_registered_regions",
			Help: "Number of geofence regions currently registered.",
		}),
	}

	reg.MustRegister(
		c.EventsReceived, c.EventsDropped,
		c.NotificationsSent, c.NotificationsFailed,
		c.Resyncs, c.ResyncFailures,
		c.FeedFailures, c.RegisteredRegions,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve 在指定地址暴露 /metrics
func (c *Collector) Serve(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	logger.Info("Metrics server listening", zap.String("addr", addr))
	return srv
}
