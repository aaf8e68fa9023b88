package sim

import (
	"fmt"
	"log"
	"math"

	"github.com/paulmach/orb/geojson"

	"trackreplay/internal/geodesy"
	"trackreplay/internal/publisher"
	"trackreplay/internal/track"
)

type Mode string

const (
	// ModeCircle loops every trajectory on its own period, its last timestamp.
	ModeCircle Mode = "circle"
	// ModeTimeloop replays all trajectories on one clock over a fixed window.
	ModeTimeloop Mode = "timeloop"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCircle, ModeTimeloop:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown replay mode %q", s)
}

// Window is the timeloop replay interval in epoch seconds. With Auto set the
// dataset's time bounds are used instead of Start and End.
type Window struct {
	Auto  bool
	Start float64
	End   float64
}

type Config struct {
	Mode             Mode
	HeadingsProperty string // empty: headings are computed from the path
	Window           Window
}

type RangeStatus int

const (
	InRange RangeStatus = iota
	BeforeStart
	AfterEnd
)

func (s RangeStatus) String() string {
	switch s {
	case InRange:
		return "in-range"
	case BeforeStart:
		return "before-start"
	case AfterEnd:
		return "after-end"
	}
	return "unknown"
}

// State is the visibility of a trajectory on the feed in timeloop mode.
type State int

const (
	Inactive State = iota
	Active
)

type SampleResult struct {
	Point   geodesy.Coordinate
	Heading float64 // bearing of the bracket, degrees in [0, 360)
	Status  RangeStatus
	Index   int // left index of the bracket
}

// Sampler turns a dataset into track messages, one sweep per tick. It is not
// safe for concurrent use.
type Sampler struct {
	ds               *track.Dataset
	mode             Mode
	headingsProperty string
	start            float64
	span             float64

	tick    float64
	states  map[string]State
	skipped map[string]bool
}

func NewSampler(ds *track.Dataset, cfg Config) *Sampler {
	w := cfg.Window
	if w.Auto {
		w.Start, w.End = ds.Bounds.Min, ds.Bounds.Max
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeCircle
	}
	return &Sampler{
		ds:               ds,
		mode:             mode,
		headingsProperty: cfg.HeadingsProperty,
		start:            w.Start,
		span:             w.End - w.Start,
		states:           make(map[string]State, len(ds.Trajectories)),
		skipped:          make(map[string]bool),
	}
}

// Span is the timeloop window length in seconds.
func (s *Sampler) Span() float64 { return s.span }

// Tick is the timeloop offset the next sweep samples at, in [0, Span).
// It stays 0 for an empty window.
func (s *Sampler) Tick() float64 {
	if s.span <= 0 {
		return 0
	}
	return math.Mod(s.tick, s.span)
}

// Active counts trajectories currently shown on the feed.
func (s *Sampler) Active() int {
	n := 0
	for _, st := range s.states {
		if st == Active {
			n++
		}
	}
	return n
}

// Sweep samples every trajectory once and calls emit for each resulting
// message. now is the wall-clock time in epoch seconds; it is only used in
// circle mode, timeloop mode follows the internal tick counter.
func (s *Sampler) Sweep(now float64, emit func(publisher.TrackMessage)) {
	if s.span > 0 {
		s.tick = math.Mod(s.tick, s.span)
	} else {
		s.tick = 0
	}
	for _, tr := range s.ds.Trajectories {
		if tr == nil || len(tr.Samples) == 0 {
			if tr != nil && !s.skipped[tr.ID] {
				log.Printf("skip trajectory %q: no samples", tr.ID)
				s.skipped[tr.ID] = true
			}
			continue
		}
		if msg, ok := s.step(tr, now); ok {
			emit(msg)
		}
	}
	s.tick++
}

func (s *Sampler) step(tr *track.Trajectory, now float64) (publisher.TrackMessage, bool) {
	var res SampleResult
	action := publisher.ActionPut
	if s.mode == ModeCircle {
		res = SampleCircle(tr, now)
	} else {
		res = SampleTimeloop(tr, s.tick+s.start)
		next, act, ok := transition(s.states[tr.ID], res.Status)
		s.states[tr.ID] = next
		if !ok {
			return publisher.TrackMessage{}, false
		}
		action = act
	}

	msg := publisher.TrackMessage{
		Action:     action,
		ID:         tr.ID,
		Properties: s.properties(tr, res),
	}
	if action == publisher.ActionPut {
		msg.Geometry = publisher.PointGeometry(res.Point.Slice())
	}
	return msg, true
}

// transition applies one sampling result to a trajectory's visibility.
func transition(prev State, status RangeStatus) (State, publisher.Action, bool) {
	if status == InRange {
		return Active, publisher.ActionPut, true
	}
	if prev == Active {
		return Inactive, publisher.ActionDelete, true
	}
	return Inactive, "", false
}

func (s *Sampler) properties(tr *track.Trajectory, res SampleResult) geojson.Properties {
	props := make(geojson.Properties, len(tr.Properties)+1)
	for k, v := range tr.Properties {
		props[k] = v
	}
	heading := res.Heading
	if s.headingsProperty != "" && res.Index < len(tr.Samples) {
		if smp := tr.Samples[res.Index]; smp.HasHeading {
			heading = smp.Heading
		}
	}
	props["heading"] = heading
	return props
}

// SampleCircle samples tr at t reduced modulo its last timestamp. The
// bracket after the last sample wraps around to the first one.
func SampleCircle(tr *track.Trajectory, t float64) SampleResult {
	ts := tr.Times()
	local := t
	if period := ts[len(ts)-1]; period > 0 {
		local = math.Mod(t, period)
		if local < 0 {
			local += period
		}
	}
	i := track.SearchIndex(local, ts)
	j := (i + 1) % len(ts)
	left, right := ts[i], ts[j]
	if j < i {
		right += ts[len(ts)-1]
	}
	return interpolate(tr, local, i, j, left, right)
}

// SampleTimeloop samples tr at the absolute time t. Outside the trajectory's
// own time range the nearest endpoint is reported with no heading.
func SampleTimeloop(tr *track.Trajectory, t float64) SampleResult {
	ts := tr.Times()
	last := len(ts) - 1
	switch {
	case t < ts[0]:
		return SampleResult{Point: tr.First().Coord, Status: BeforeStart, Index: 0}
	case t > ts[last]:
		return SampleResult{Point: tr.Last().Coord, Status: AfterEnd, Index: last}
	}
	i := track.SearchIndex(t, ts)
	j := i + 1
	if j > last {
		j = last
	}
	return interpolate(tr, t, i, j, ts[i], ts[j])
}

func interpolate(tr *track.Trajectory, t float64, i, j int, left, right float64) SampleResult {
	a := tr.Samples[i].Coord
	if right == left {
		return SampleResult{Point: a, Status: InRange, Index: i}
	}
	b := tr.Samples[j].Coord
	ratio := (t - left) / (right - left)
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	return SampleResult{
		Point:   geodesy.PointOnGreatCircle(a, b, ratio),
		Heading: geodesy.ForwardAzimuth2D(a, b),
		Status:  InRange,
		Index:   i,
	}
}
