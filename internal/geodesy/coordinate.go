package geodesy

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Coordinate is a longitude/latitude pair in degrees with an optional
// altitude in meters.
type Coordinate struct {
	Lon    float64
	Lat    float64
	Alt    float64
	HasAlt bool
}

// NewCoordinate returns a 2D coordinate.
func NewCoordinate(lon, lat float64) Coordinate {
	return Coordinate{Lon: lon, Lat: lat}
}

// NewCoordinateAlt returns a coordinate carrying an altitude.
func NewCoordinateAlt(lon, lat, alt float64) Coordinate {
	return Coordinate{Lon: lon, Lat: lat, Alt: alt, HasAlt: true}
}

// FromSlice converts a GeoJSON position ([lon, lat] or [lon, lat, alt]).
// Extra elements beyond the third are ignored.
func FromSlice(v []float64) (Coordinate, error) {
	switch {
	case len(v) < 2:
		return Coordinate{}, fmt.Errorf("position needs at least 2 elements, got %d", len(v))
	case len(v) == 2:
		return NewCoordinate(v[0], v[1]), nil
	default:
		return NewCoordinateAlt(v[0], v[1], v[2]), nil
	}
}

// Slice returns the GeoJSON position for c.
func (c Coordinate) Slice() []float64 {
	if c.HasAlt {
		return []float64{c.Lon, c.Lat, c.Alt}
	}
	return []float64{c.Lon, c.Lat}
}

// Point drops the altitude.
func (c Coordinate) Point() orb.Point { return orb.Point{c.Lon, c.Lat} }
