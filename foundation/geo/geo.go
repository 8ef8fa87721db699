// Package geo provides geographic primitives for track block classification
package geo

import (
	"math"
)

// earthRadiusMeters is the mean earth radius used by Distance
const earthRadiusMeters = 6371000.0

// Point is a single vertex of a track block polygon
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PointInPolygon reports whether the location at lat,lon falls inside polygon
// using an even-odd ray cast eastward from the point. Polygons with fewer than
// three vertices contain nothing. Horizontal edges are skipped so a vertex row
// at the exact latitude of the point cannot divide by zero.
func PointInPolygon(lat float64, lon float64, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		a := polygon[i]
		b := polygon[j]
		if a.Lat == b.Lat {
			continue
		}
		if (a.Lat > lat) != (b.Lat > lat) {
			crossLon := a.Lon + (lat-a.Lat)/(b.Lat-a.Lat)*(b.Lon-a.Lon)
			if lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// Distance returns the great-circle distance in meters between two locations
// using the haversine formula
func Distance(lat1 float64, lon1 float64, lat2 float64, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	deltaPhi := toRadians(lat2 - lat1)
	deltaLambda := toRadians(lon2 - lon1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Bearing returns the initial compass bearing in degrees, normalized to
// [0,360), when traveling from the first location to the second
func Bearing(lat1 float64, lon1 float64, lat2 float64, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	deltaLambda := toRadians(lon2 - lon1)

	y := math.Sin(deltaLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)
	theta := math.Atan2(y, x)
	return math.Mod(toDegrees(theta)+360, 360)
}

// BearingDifference returns the smallest angle in degrees between two compass
// bearings. The result is always in [0,180]
func BearingDifference(b1 float64, b2 float64) float64 {
	d := math.Mod(math.Abs(b1-b2), 360)
	return math.Min(d, 360-d)
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func toDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}
