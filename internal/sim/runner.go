package sim

import (
	"context"
	"log"
	"time"

	mmetrics "trackreplay/internal/metrics"
	"trackreplay/internal/publisher"
)

// Runner drives a Sampler from a fixed-rate ticker and forwards every message
// to a publisher. Ticks that fire while a sweep is still running are dropped
// by the ticker rather than queued.
type Runner struct {
	sampler  *Sampler
	pub      publisher.Publisher
	router   publisher.Router
	interval time.Duration
	metrics  *mmetrics.Collector
}

func NewRunner(sampler *Sampler, pub publisher.Publisher, router publisher.Router, interval time.Duration, metrics *mmetrics.Collector) *Runner {
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{
		sampler:  sampler,
		pub:      pub,
		router:   router,
		interval: interval,
		metrics:  metrics,
	}
}

// Run clears the feed and then ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.Clear()
	tick := time.NewTicker(r.interval)
	defer tick.Stop()
	log.Printf("replay started (interval %s)", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("replay stopped")
			return ctx.Err()
		case now := <-tick.C:
			r.Step(now)
		}
	}
}

// Clear publishes the CLEAR control message.
func (r *Runner) Clear() {
	msg := publisher.ClearMessage()
	if err := r.pub.Publish(r.router.Control(), msg); err != nil {
		log.Printf("publish clear error: %v", err)
		return
	}
	r.count(msg.Action)
}

// Step runs one sweep at wall-clock time now.
func (r *Runner) Step(now time.Time) {
	tickStart := time.Now()
	r.sampler.Sweep(float64(now.Unix()), func(msg publisher.TrackMessage) {
		if err := r.pub.Publish(r.router.Data(msg), msg); err != nil {
			log.Printf("publish error for %s: %v", msg.ID, err)
			return
		}
		r.count(msg.Action)
	})
	if r.metrics != nil {
		r.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
		r.metrics.ActiveTrajectories.Set(float64(r.sampler.Active()))
		r.metrics.TickCounter.Set(r.sampler.Tick())
	}
}

func (r *Runner) count(a publisher.Action) {
	if r.metrics != nil {
		r.metrics.Messages.WithLabelValues(string(a)).Inc()
	}
}
