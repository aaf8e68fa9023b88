package track

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trackreplay/internal/geodesy"
)

// Options selects which feature properties identify a trajectory and carry
// its headings.
type Options struct {
	IDProperty       string
	HeadingsProperty string // empty: no headings series
}

// LoadError reports a dataset that could not be read or parsed. No partial
// dataset is ever returned alongside it.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Source, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type rawFeature struct {
	ID         any                `json:"id"`
	Geometry   *rawGeometry       `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
}

type rawGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// LoadFile reads a GeoJSON FeatureCollection from path. Files ending in
// ".zst" are zstd-decompressed on the fly.
func LoadFile(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, &LoadError{Source: path, Err: fmt.Errorf("zstd: %w", err)}
		}
		defer zr.Close()
		r = zr
	}
	ds, err := Decode(r, opts)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Source = path
		}
		return nil, err
	}
	return ds, nil
}

// Decode parses a FeatureCollection and builds the simplified dataset.
func Decode(r io.Reader, opts Options) (*Dataset, error) {
	var fc rawCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, &LoadError{Source: "feature collection", Err: err}
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, &LoadError{Source: "feature collection", Err: fmt.Errorf("unexpected type %q", fc.Type)}
	}
	return DecodeFeatures(fc.Features, opts)
}

// DecodeFeatures builds a dataset from individually encoded GeoJSON features.
// A malformed feature is skipped and counted; it never fails the load.
func DecodeFeatures(features []json.RawMessage, opts Options) (*Dataset, error) {
	if opts.IDProperty == "" {
		return nil, &LoadError{Source: "options", Err: fmt.Errorf("id property is required")}
	}
	ds := &Dataset{Bounds: Bounds{Min: math.NaN(), Max: math.NaN()}}
	seen := make(map[string]struct{}, len(features))
	for i, raw := range features {
		ds.Stats.Features++
		var f rawFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			log.Printf("skip feature %d: %v", i, err)
			ds.Stats.Skipped++
			continue
		}
		times, ok := floatSeries(f.Properties[TimestampsProperty])
		if !ok || len(times) == 0 {
			log.Printf("skip feature %d: missing %s", i, TimestampsProperty)
			ds.Stats.Skipped++
			continue
		}
		for _, v := range times {
			ds.Bounds.include(v)
		}
		if f.Geometry != nil {
			ds.Stats.Points += len(f.Geometry.Coordinates)
		}

		tr, err := simplify(f, times, opts)
		if err != nil {
			log.Printf("skip feature %d: %v", i, err)
			ds.Stats.Skipped++
			continue
		}
		ds.Stats.SimplifiedPoints += len(tr.Samples)

		if tr.ID == "" {
			continue
		}
		if _, dup := seen[tr.ID]; dup {
			continue
		}
		seen[tr.ID] = struct{}{}
		ds.Trajectories = append(ds.Trajectories, tr)
		ds.Extent = extend(ds.Extent, len(ds.Trajectories) == 1, tr.Path().Bound())
	}
	if ds.Bounds.empty() {
		ds.Bounds = Bounds{}
	}
	ds.Stats.Retained = len(ds.Trajectories)
	return ds, nil
}

// simplify keeps the first sample of every distinct floored second.
func simplify(f rawFeature, times []float64, opts Options) (*Trajectory, error) {
	if f.Geometry == nil || f.Geometry.Type != "LineString" {
		return nil, fmt.Errorf("geometry must be a LineString")
	}
	coords := f.Geometry.Coordinates
	n := len(times)
	if len(coords) < n {
		n = len(coords)
	}
	var headings []any
	if opts.HeadingsProperty != "" {
		headings, _ = f.Properties[opts.HeadingsProperty].([]any)
	}

	id, ok := f.Properties[opts.IDProperty]
	if !ok {
		id = f.ID
	}
	tr := &Trajectory{
		ID:         idString(id),
		Properties: f.Properties.Clone(),
	}
	delete(tr.Properties, TimestampsProperty)
	delete(tr.Properties, HeadingsProperty)
	if opts.HeadingsProperty != "" {
		delete(tr.Properties, opts.HeadingsProperty)
	}

	for i := 0; i < n; i++ {
		ts := math.Floor(times[i])
		if len(tr.Samples) > 0 && ts <= tr.Samples[len(tr.Samples)-1].Time {
			continue
		}
		c, err := geodesy.FromSlice(coords[i])
		if err != nil {
			return nil, fmt.Errorf("coordinate %d: %w", i, err)
		}
		s := Sample{Time: ts, Coord: c}
		if i < len(headings) {
			s.Heading, s.HasHeading = headings[i].(float64)
		}
		tr.Samples = append(tr.Samples, s)
	}
	if len(tr.Samples) == 0 {
		return nil, fmt.Errorf("no usable samples")
	}
	tr.Times()
	return tr, nil
}

func floatSeries(v any) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(arr))
	for _, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// idString renders string and numeric ids; anything else yields "".
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func extend(b orb.Bound, first bool, other orb.Bound) orb.Bound {
	if first {
		return other
	}
	return b.Union(other)
}
