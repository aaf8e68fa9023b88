package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Trajectories       prometheus.Gauge
	ActiveTrajectories prometheus.Gauge
	TickCounter        prometheus.Gauge

	Messages *prometheus.CounterVec // action label: PUT|DELETE|CLEAR

	Published     prometheus.Counter
	PublishErrs   prometheus.Counter
	BrokerConnect prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	PublishInterval prometheus.Gauge // seconds
	LoopSpan        prometheus.Gauge // seconds
}

func NewCollector(publishInterval time.Duration, loopSpan float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Trajectories: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_trajectories",
			Help: "Number of trajectories in the loaded dataset.",
		}),
		ActiveTrajectories: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_active_trajectories",
			Help: "Number of trajectories currently shown in timeloop mode.",
		}),
		TickCounter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_tick_counter",
			Help: "Current timeloop tick counter.",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_messages_total",
			Help: "Track messages handed to the publisher.",
		}, []string{"action"}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_broker_published_total",
			Help: "Total broker messages published.",
		}),
		PublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_broker_publish_errors_total",
			Help: "Total broker publish errors.",
		}),
		BrokerConnect: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_broker_connected",
			Help: "1 if the broker connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_tick_duration_seconds",
			Help:    "Duration of one sweep over all trajectories.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_publish_duration_seconds",
			Help:    "Duration to marshal and publish a broker message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PublishInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_publish_interval_seconds",
			Help: "Tick interval in seconds.",
		}),
		LoopSpan: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_loop_span_seconds",
			Help: "Length of the timeloop window in seconds.",
		}),
	}

	reg.MustRegister(
		c.Trajectories, c.ActiveTrajectories, c.TickCounter,
		c.Messages,
		c.Published, c.PublishErrs, c.BrokerConnect,
		c.TickDuration, c.PublishDuration,
		c.PublishInterval, c.LoopSpan,
	)

	c.PublishInterval.Set(publishInterval.Seconds())
	c.LoopSpan.Set(loopSpan)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
