package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus instruments on a private registry
// so tests can build isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	TickDuration    prometheus.Histogram
	TicksTotal      prometheus.Counter
	QuotesRefreshed prometheus.Counter
	FeedFailures    prometheus.Counter
	StaleSkips      prometheus.Counter
	OrdersFilled    prometheus.Counter
	OrdersRejected  prometheus.Counter
	AlertsTriggered prometheus.Counter
	NotifyFailures  prometheus.Counter
	EventsPublished prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_tick_duration_seconds",
			Help:    "Wall time of one full scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Completed scheduler ticks.",
		}),
		QuotesRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_quotes_refreshed_total",
			Help: "Quotes successfully refreshed from the feed.",
		}),
		FeedFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_feed_failures_total",
			Help: "Per-symbol feed fetch failures.",
		}),
		StaleSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_stale_quote_skips_total",
			Help: "Matching/evaluation skips caused by stale quotes.",
		}),
		OrdersFilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_filled_total",
			Help: "Orders filled by the matching pass.",
		}),
		OrdersRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Orders rejected at fill time.",
		}),
		AlertsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_alerts_triggered_total",
			Help: "Price alerts transitioned to triggered.",
		}),
		NotifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_notify_failures_total",
			Help: "Notification deliveries that exhausted retries.",
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "engine_events_published_total",
			Help: "Fill/alert events handed to the broker.",
		}),
	}
}
