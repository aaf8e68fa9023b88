package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"trackreplay/internal/config"
	"trackreplay/internal/db"
	"trackreplay/internal/metrics"
	"trackreplay/internal/publisher"
	"trackreplay/internal/sim"
	"trackreplay/internal/track"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := track.Options{IDProperty: cfg.Replay.IDProperty, HeadingsProperty: cfg.Replay.HeadingsProperty}
	ds, err := loadDataset(ctx, cfg, opts)
	if err != nil {
		log.Fatalf("dataset error: %v", err)
	}
	logStats(ds)

	mode, err := sim.ParseMode(cfg.Replay.Mode)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	sampler := sim.NewSampler(ds, sim.Config{
		Mode:             mode,
		HeadingsProperty: cfg.Replay.HeadingsProperty,
		Window: sim.Window{
			Auto:  cfg.Replay.Time.Auto,
			Start: cfg.Replay.Time.Start,
			End:   cfg.Replay.Time.End,
		},
	})
	if mode == sim.ModeTimeloop {
		log.Printf("timeloop window span %.0fs", sampler.Span())
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.PublishInterval, sampler.Span())
		mcol.Trajectories.Set(float64(len(ds.Trajectories)))
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	instance := "trackreplay-" + uuid.NewString()
	pub, err := newPublisher(cfg, instance, wrapPublisherMetrics(mcol))
	if err != nil {
		log.Fatalf("%s error: %v", cfg.Transport, err)
	}
	defer pub.Close()
	log.Printf("connected to %s as %s", cfg.Transport, instance)

	router := publisher.Router{Service: cfg.ServiceName, RouteProperties: cfg.RouteProperties}
	runner := sim.NewRunner(sampler, pub, router, cfg.PublishInterval, mcol)
	log.Println("starting track generator, Control+C to stop")
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("runner error: %v", err)
	}
	log.Println("shutdown complete")
}

func loadDataset(ctx context.Context, cfg *config.Config, opts track.Options) (*track.Dataset, error) {
	if cfg.Source != "postgres" {
		log.Printf("loading tracks from %s", cfg.TracksFile)
		return track.LoadFile(cfg.TracksFile, opts)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, &track.LoadError{Source: "postgres", Err: err}
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		return nil, &track.LoadError{Source: "postgres", Err: err}
	}
	name := cfg.Dataset
	if name == "" {
		name, err = db.ResolveLatestDataset(ctx, sqlDB, "")
		if err != nil {
			return nil, &track.LoadError{Source: "postgres", Err: err}
		}
	}
	log.Printf("loading tracks from dataset %q", name)
	features, err := db.FetchFeatures(ctx, sqlDB, name)
	if err != nil {
		return nil, &track.LoadError{Source: "dataset " + name, Err: err}
	}
	return track.DecodeFeatures(features, opts)
}

func logStats(ds *track.Dataset) {
	st := ds.Stats
	log.Printf("features: %d", st.Features)
	log.Printf("features simplified: %d (skipped %d)", st.Retained, st.Skipped)
	log.Printf("points: %d", st.Points)
	log.Printf("points simplified: %d", st.SimplifiedPoints)
	log.Printf("minTime: %.0f", ds.Bounds.Min)
	log.Printf("maxTime: %.0f", ds.Bounds.Max)
	log.Printf("extent: [%.4f %.4f] - [%.4f %.4f]", ds.Extent.Min.X(), ds.Extent.Min.Y(), ds.Extent.Max.X(), ds.Extent.Max.Y())
}

func newPublisher(cfg *config.Config, instance string, m publisher.PublisherMetrics) (publisher.Publisher, error) {
	switch cfg.Transport {
	case "kafka":
		return publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, instance, cfg.LogSubjects, m), nil
	case "stomp":
		return publisher.NewSTOMPPublisher(cfg.STOMPAddr, cfg.STOMPUser, cfg.STOMPPassword, cfg.TopicSeparator, cfg.LogSubjects, m)
	default:
		return publisher.NewNATSPublisher(cfg.NATSURL, instance, cfg.LogSubjects, m)
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) PublishedInc()                  { p.c.Published.Inc() }
func (p *pubMetrics) PublishErrInc()                 { p.c.PublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) SetConnected(b bool) {
	if b {
		p.c.BrokerConnect.Set(1)
	} else {
		p.c.BrokerConnect.Set(0)
	}
}
