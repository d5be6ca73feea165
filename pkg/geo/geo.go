package geo

import (
	"math"
	"strconv"
	"strings"
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point is a usable WGS84 coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	const R = 6371000 // Earth radius in meters
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLng := (p2.Lng - p1.Lng) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

// DistanceKm calculates the Haversine distance between two points in kilometers.
func DistanceKm(p1, p2 Point) float64 {
	return Distance(p1, p2) / 1000
}

// DestinationPoint calculates the destination point from a start point, given
// distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	const R = 6371000 // Earth radius in meters
	lat1 := start.Lat * (math.Pi / 180.0)
	lng1 := start.Lng * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/R) +
		math.Cos(lat1)*math.Sin(distMeters/R)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(math.Sin(brng)*math.Sin(distMeters/R)*math.Cos(lat1),
		math.Cos(distMeters/R)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lng: lng2 * (180.0 / math.Pi),
	}
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLng := (p2.Lng - p1.Lng) * (math.Pi / 180.0)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

var compassNames = []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

// CompassDirection converts a bearing in degrees to a compass direction name.
func CompassDirection(bearing float64) string {
	idx := int(math.Mod(bearing+22.5, 360) / 45)
	return compassNames[idx]
}

// CoordKey returns the deduplication key for a coordinate pair: latitude and
// longitude truncated (never rounded) to four decimal places, comma joined.
// Truncation means 42.34999 and 42.35001 key differently even though they
// round to the same value; two observers at the "same" pin stay merged only
// when eBird reports identical coordinates down to ~11m.
func CoordKey(lat, lng float64) string {
	return truncate4(lat) + "," + truncate4(lng)
}

// truncate4 formats v with exactly four decimal places, truncating toward
// zero. Formatting at 8 decimals first absorbs binary float artifacts
// (42.35 stored as 42.34999999999999 must key as "42.3500", not "42.3499").
func truncate4(v float64) string {
	s := strconv.FormatFloat(v, 'f', 8, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	return s[:dot+5]
}
