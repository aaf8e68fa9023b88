// Package geodesy holds the spherical-earth helpers used to interpolate
// between trajectory samples.
package geodesy

import "math"

// EarthRadius is the sphere radius in meters.
const EarthRadius = 6371100.0

// ratioEpsilon is how close a ratio must be to 0 or 1 to return an endpoint as is.
const ratioEpsilon = 1e-12

// climbBump is the extra altitude in meters added at the middle of a segment.
const climbBump = 400.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// ForwardAzimuth2D returns the initial bearing from p1 toward p2 in degrees,
// in [0, 360).
func ForwardAzimuth2D(p1, p2 Coordinate) float64 {
	lon1, lat1 := toRadians(p1.Lon), toRadians(p1.Lat)
	lon2, lat2 := toRadians(p2.Lon), toRadians(p2.Lat)
	dlon := lon2 - lon1
	base := math.Atan2(math.Sin(lat1)*math.Cos(dlon)-math.Cos(lat1)*math.Tan(lat2), math.Sin(dlon))
	az := math.Pi/2 + base
	if az < 0 {
		az += 2 * math.Pi
	}
	deg := toDegrees(az)
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// GreatCircleDistance returns the haversine distance in meters.
func GreatCircleDistance(p1, p2 Coordinate) float64 {
	return EarthRadius * centralAngle(p1, p2)
}

// centralAngle is the angle in radians subtended by p1 and p2.
func centralAngle(p1, p2 Coordinate) float64 {
	sinDlat := math.Sin(toRadians(p2.Lat-p1.Lat) / 2)
	sinDlon := math.Sin(toRadians(p2.Lon-p1.Lon) / 2)
	h := sinDlat*sinDlat + math.Cos(toRadians(p1.Lat))*math.Cos(toRadians(p2.Lat))*sinDlon*sinDlon
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h))
}

// PointOnGreatCircle returns the point at fraction ratio of the great-circle
// path from p1 to p2. Ratios within 1e-12 of 0 or 1 return p1 or p2 unchanged.
//
// When both endpoints have an altitude the result's altitude is linearly
// interpolated plus a 400*sin(pi*ratio) meter bump, a simple climb/descent
// profile peaking halfway.
func PointOnGreatCircle(p1, p2 Coordinate, ratio float64) Coordinate {
	if math.Abs(ratio) < ratioEpsilon {
		return p1
	}
	if math.Abs(ratio-1) < ratioEpsilon {
		return p2
	}

	dist := ratio * centralAngle(p1, p2)
	az := toRadians(ForwardAzimuth2D(p1, p2))
	sinDist, cosDist := math.Sin(dist), math.Cos(dist)
	sinLat, cosLat := math.Sin(toRadians(p1.Lat)), math.Cos(toRadians(p1.Lat))

	sinPhi := math.Cos(az)*cosLat*sinDist + cosDist*sinLat
	phi := math.Asin(sinPhi)
	sinDlon := math.Sin(az) * sinDist
	cosDlon := (cosDist - sinLat*sinPhi) / cosLat
	dlon := toDegrees(math.Atan2(sinDlon, cosDlon))

	out := NewCoordinate(p1.Lon+dlon, toDegrees(phi))
	if p1.HasAlt && p2.HasAlt {
		out.Alt = p1.Alt + (p2.Alt-p1.Alt)*ratio + climbBump*math.Sin(math.Pi*ratio)
		out.HasAlt = true
	}
	return out
}
