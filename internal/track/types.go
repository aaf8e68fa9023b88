// Package track holds the replayable trajectory dataset: its data model, the
// GeoJSON loader that simplifies it and the bracket search used to locate a
// time inside a trajectory.
package track

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trackreplay/internal/geodesy"
)

// TimestampsProperty and HeadingsProperty are the time-series property keys.
const (
	TimestampsProperty = "timestamps"
	HeadingsProperty   = "headings"
)

type Sample struct {
	Time       float64 // epoch seconds, floored
	Coord      geodesy.Coordinate
	Heading    float64 // degrees, valid when HasHeading
	HasHeading bool
}

type Trajectory struct {
	ID         string
	Samples    []Sample           // strictly ascending Time
	Properties geojson.Properties // original properties minus the time series

	times []float64
}

// Times returns the sample timestamps, in order.
func (t *Trajectory) Times() []float64 {
	if len(t.times) != len(t.Samples) {
		t.times = make([]float64, len(t.Samples))
		for i, s := range t.Samples {
			t.times[i] = s.Time
		}
	}
	return t.times
}

func (t *Trajectory) First() Sample { return t.Samples[0] }
func (t *Trajectory) Last() Sample  { return t.Samples[len(t.Samples)-1] }

// Path is the horizontal polyline of the samples.
func (t *Trajectory) Path() orb.LineString {
	ls := make(orb.LineString, len(t.Samples))
	for i, s := range t.Samples {
		ls[i] = s.Coord.Point()
	}
	return ls
}

// Bounds is a closed time interval in epoch seconds.
type Bounds struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (b Bounds) Span() float64 { return b.Max - b.Min }

func (b Bounds) empty() bool { return math.IsNaN(b.Min) }

func (b *Bounds) include(v float64) {
	if b.empty() {
		b.Min, b.Max = v, v
		return
	}
	if v < b.Min {
		b.Min = v
	}
	if v > b.Max {
		b.Max = v
	}
}

// Stats summarises a load.
type Stats struct {
	Features         int // features in the input
	Retained         int // trajectories kept after id filtering
	Skipped          int // malformed features
	Points           int // raw samples
	SimplifiedPoints int // samples after per-second dedup
}

// Dataset is the immutable set of trajectories replayed by the sampler.
type Dataset struct {
	Trajectories []*Trajectory
	Bounds       Bounds    // over the raw, pre-simplification timestamps
	Extent       orb.Bound // over the retained samples
	Stats        Stats
}
