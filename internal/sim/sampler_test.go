package sim

import (
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackreplay/internal/geodesy"
	"trackreplay/internal/publisher"
	"trackreplay/internal/track"
)

func newTrajectory(id string, times ...float64) *track.Trajectory {
	tr := &track.Trajectory{
		ID:         id,
		Properties: geojson.Properties{"flight": id, "from": "MAD", "to": "CDG"},
	}
	for i, ts := range times {
		tr.Samples = append(tr.Samples, track.Sample{
			Time:       ts,
			Coord:      geodesy.NewCoordinateAlt(float64(i), float64(i), 1000),
			Heading:    float64(10 * (i + 1)),
			HasHeading: true,
		})
	}
	return tr
}

func newDataset(trs ...*track.Trajectory) *track.Dataset {
	ds := &track.Dataset{Trajectories: trs}
	for i, tr := range trs {
		ts := tr.Times()
		if i == 0 || ts[0] < ds.Bounds.Min {
			ds.Bounds.Min = ts[0]
		}
		if i == 0 || ts[len(ts)-1] > ds.Bounds.Max {
			ds.Bounds.Max = ts[len(ts)-1]
		}
	}
	return ds
}

type recorder struct{ msgs []publisher.TrackMessage }

func (r *recorder) emit(m publisher.TrackMessage) { r.msgs = append(r.msgs, m) }

func (r *recorder) take() []publisher.TrackMessage {
	out := r.msgs
	r.msgs = nil
	return out
}

func TestTimeloopVisibilityLifecycle(t *testing.T) {
	tr := newTrajectory("IB3166", 100, 200)
	s := NewSampler(newDataset(tr), Config{
		Mode:   ModeTimeloop,
		Window: Window{Start: 50, End: 1000},
	})
	rec := &recorder{}

	// logical time 50: before start, never active
	s.tick = 0
	s.Sweep(0, rec.emit)
	assert.Empty(t, rec.take())
	assert.Equal(t, 0, s.Active())

	// logical time 150: in range
	s.tick = 100
	s.Sweep(0, rec.emit)
	msgs := rec.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, publisher.ActionPut, msgs[0].Action)
	assert.Equal(t, "IB3166", msgs[0].ID)
	require.NotNil(t, msgs[0].Geometry)
	assert.Equal(t, "Point", msgs[0].Geometry.Type)
	assert.Equal(t, Active, s.states["IB3166"])

	// logical time 250: after end, exactly one DELETE
	s.tick = 200
	s.Sweep(0, rec.emit)
	msgs = rec.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, publisher.ActionDelete, msgs[0].Action)
	assert.Nil(t, msgs[0].Geometry)
	assert.Equal(t, "MAD", msgs[0].Properties["from"])
	assert.Equal(t, Inactive, s.states["IB3166"])

	// logical time 300: still after end, nothing more
	s.tick = 250
	s.Sweep(0, rec.emit)
	assert.Empty(t, rec.take())
}

func TestTimeloopContinuousSweeps(t *testing.T) {
	tr := newTrajectory("AF1001", 100, 200)
	s := NewSampler(newDataset(tr), Config{
		Mode:   ModeTimeloop,
		Window: Window{Start: 50, End: 1000},
	})
	rec := &recorder{}
	puts, deletes := 0, 0
	for k := 0; k < 300; k++ {
		s.Sweep(0, rec.emit)
		for _, m := range rec.take() {
			switch m.Action {
			case publisher.ActionPut:
				puts++
				assert.GreaterOrEqual(t, k, 50)
				assert.LessOrEqual(t, k, 150)
			case publisher.ActionDelete:
				deletes++
				assert.Equal(t, 151, k)
			}
		}
	}
	assert.Equal(t, 101, puts)
	assert.Equal(t, 1, deletes)
}

func TestTimeloopCounterWrapsAndDeletesBeforeStart(t *testing.T) {
	tr := newTrajectory("LH42", 1, 2)
	s := NewSampler(newDataset(tr), Config{
		Mode:   ModeTimeloop,
		Window: Window{Start: 0, End: 3},
	})
	rec := &recorder{}

	var actions []publisher.Action
	var ticks []float64
	for k := 0; k < 5; k++ {
		s.Sweep(0, rec.emit)
		ticks = append(ticks, s.Tick())
		msgs := rec.take()
		if len(msgs) == 0 {
			actions = append(actions, "")
			continue
		}
		require.Len(t, msgs, 1)
		actions = append(actions, msgs[0].Action)
	}
	// times 0,1,2,0,1: the wrap back to 0 hides the track again
	assert.Equal(t, []publisher.Action{"", publisher.ActionPut, publisher.ActionPut, publisher.ActionDelete, publisher.ActionPut}, actions)
	assert.Equal(t, []float64{1, 2, 0, 1, 2}, ticks)
}

func TestTimeloopAutoWindow(t *testing.T) {
	ds := newDataset(newTrajectory("a", 100, 160), newTrajectory("b", 120, 220))
	s := NewSampler(ds, Config{Mode: ModeTimeloop, Window: Window{Auto: true, Start: 1, End: 2}})
	assert.Equal(t, 120.0, s.Span())

	rec := &recorder{}
	s.Sweep(0, rec.emit)
	msgs := rec.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].ID)
}

const decodedTracks = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0,0],[3,0]]},
   "properties": {"flight": "a", "timestamps": [100, 103]}},
  {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[5,5],[5,8]]},
   "properties": {"flight": "b", "timestamps": [102, 105]}}
]}`

func TestTimeloopAutoWindowFromDecodedDataset(t *testing.T) {
	ds, err := track.Decode(strings.NewReader(decodedTracks), track.Options{IDProperty: "flight"})
	require.NoError(t, err)
	s := NewSampler(ds, Config{Mode: ModeTimeloop, Window: Window{Auto: true}})
	require.Equal(t, 5.0, s.Span())

	rec := &recorder{}
	var ticks []float64
	var actions []publisher.Action
	var coords [][]float64
	for k := 0; k < 6; k++ {
		s.Sweep(0, rec.emit)
		ticks = append(ticks, s.Tick())
		for _, m := range rec.take() {
			if m.ID != "a" {
				continue
			}
			actions = append(actions, m.Action)
			if m.Geometry != nil {
				coords = append(coords, m.Geometry.Coordinates)
			}
		}
	}
	// times 100..104 then the loop restarts at 100
	assert.Equal(t, []float64{1, 2, 3, 4, 0, 1}, ticks)
	assert.Equal(t, []publisher.Action{
		publisher.ActionPut, publisher.ActionPut, publisher.ActionPut, publisher.ActionPut,
		publisher.ActionDelete, publisher.ActionPut,
	}, actions)
	require.Len(t, coords, 5)
	assert.NotEqual(t, coords[0], coords[1])
	assert.Equal(t, coords[0], coords[4])
}

func TestTimeloopZeroSpanKeepsCounter(t *testing.T) {
	s := NewSampler(newDataset(newTrajectory("a", 5)), Config{Mode: ModeTimeloop, Window: Window{Start: 5, End: 5}})
	rec := &recorder{}
	for k := 0; k < 3; k++ {
		s.Sweep(0, rec.emit)
		msgs := rec.take()
		require.Len(t, msgs, 1)
		assert.Equal(t, publisher.ActionPut, msgs[0].Action)
		// a single sample is its own degenerate bracket
		assert.Equal(t, []float64{0, 0, 1000}, msgs[0].Geometry.Coordinates)
		assert.Zero(t, s.Tick())
	}
}

func TestSampleTimeloopRegions(t *testing.T) {
	tr := newTrajectory("x", 100, 200, 300)

	res := SampleTimeloop(tr, 99)
	assert.Equal(t, BeforeStart, res.Status)
	assert.Equal(t, tr.First().Coord, res.Point)
	assert.Equal(t, 0.0, res.Heading)

	res = SampleTimeloop(tr, 301)
	assert.Equal(t, AfterEnd, res.Status)
	assert.Equal(t, tr.Last().Coord, res.Point)
	assert.Equal(t, 2, res.Index)

	res = SampleTimeloop(tr, 200)
	assert.Equal(t, InRange, res.Status)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, tr.Samples[1].Coord, res.Point)

	res = SampleTimeloop(tr, 300)
	assert.Equal(t, InRange, res.Status)
	assert.Equal(t, tr.Last().Coord, res.Point)

	res = SampleTimeloop(tr, 150)
	assert.Equal(t, 0, res.Index)
	a, b := tr.Samples[0].Coord, tr.Samples[1].Coord
	assert.InDelta(t, geodesy.GreatCircleDistance(a, b)/2, geodesy.GreatCircleDistance(a, res.Point), 1)
	assert.InDelta(t, geodesy.ForwardAzimuth2D(a, b), res.Heading, 1e-12)
	assert.InDelta(t, 1400.0, res.Point.Alt, 1e-9)
}

func TestSampleCirclePeriodicWrap(t *testing.T) {
	tr := newTrajectory("c", 0, 30, 60)
	at0 := SampleCircle(tr, 0)
	at60 := SampleCircle(tr, 60)
	assert.Equal(t, at0.Index, at60.Index)
	assert.Equal(t, at0.Point, at60.Point)
	assert.Equal(t, InRange, at60.Status)

	// 60040 mod 60 = 40, inside the [30, 60) bracket
	assert.Equal(t, 1, SampleCircle(tr, 60040).Index)
}

func TestSampleCircleBeforeFirstHoldsFirstSample(t *testing.T) {
	tr := newTrajectory("c", 20, 40, 60)
	res := SampleCircle(tr, 10)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, tr.First().Coord, res.Point)
}

func TestCircleModeAlwaysPuts(t *testing.T) {
	ds := newDataset(newTrajectory("a", 0, 30, 60), newTrajectory("b", 10, 20))
	s := NewSampler(ds, Config{Mode: ModeCircle})
	rec := &recorder{}
	for now := 1_700_000_000.0; now < 1_700_000_200; now++ {
		s.Sweep(now, rec.emit)
		msgs := rec.take()
		require.Len(t, msgs, 2)
		for _, m := range msgs {
			assert.Equal(t, publisher.ActionPut, m.Action)
		}
	}
	assert.Equal(t, 0, s.Active())
}

func TestSweepSkipsTrajectoriesWithoutSamples(t *testing.T) {
	for _, cfg := range []Config{
		{Mode: ModeCircle},
		{Mode: ModeTimeloop, Window: Window{Start: 0, End: 10}},
	} {
		ds := &track.Dataset{Trajectories: []*track.Trajectory{{ID: "empty"}, newTrajectory("ok", 0, 10)}}
		s := NewSampler(ds, cfg)
		rec := &recorder{}
		assert.NotPanics(t, func() { s.Sweep(5, rec.emit) }, cfg.Mode)
		msgs := rec.take()
		require.Len(t, msgs, 1, cfg.Mode)
		assert.Equal(t, "ok", msgs[0].ID)
		assert.Equal(t, publisher.ActionPut, msgs[0].Action)
	}
}

func TestHeadingSource(t *testing.T) {
	tr := newTrajectory("h", 100, 200)
	ds := newDataset(tr)
	rec := &recorder{}

	withProp := NewSampler(ds, Config{Mode: ModeTimeloop, HeadingsProperty: "headings", Window: Window{Start: 150, End: 500}})
	withProp.Sweep(0, rec.emit)
	msgs := rec.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, 10.0, msgs[0].Properties["heading"])

	computed := NewSampler(ds, Config{Mode: ModeTimeloop, Window: Window{Start: 150, End: 500}})
	computed.Sweep(0, rec.emit)
	msgs = rec.take()
	require.Len(t, msgs, 1)
	want := geodesy.ForwardAzimuth2D(tr.Samples[0].Coord, tr.Samples[1].Coord)
	assert.InDelta(t, want, msgs[0].Properties["heading"], 1e-12)

	// the trajectory's own properties are left untouched
	assert.NotContains(t, tr.Properties, "heading")
}

func TestTransition(t *testing.T) {
	cases := []struct {
		prev   State
		status RangeStatus
		next   State
		action publisher.Action
		emit   bool
	}{
		{Inactive, InRange, Active, publisher.ActionPut, true},
		{Active, InRange, Active, publisher.ActionPut, true},
		{Active, AfterEnd, Inactive, publisher.ActionDelete, true},
		{Active, BeforeStart, Inactive, publisher.ActionDelete, true},
		{Inactive, AfterEnd, Inactive, "", false},
		{Inactive, BeforeStart, Inactive, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			next, action, emit := transition(tc.prev, tc.status)
			assert.Equal(t, tc.next, next)
			assert.Equal(t, tc.action, action)
			assert.Equal(t, tc.emit, emit)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("timeloop")
	require.NoError(t, err)
	assert.Equal(t, ModeTimeloop, m)
	_, err = ParseMode("spiral")
	assert.Error(t, err)
}
