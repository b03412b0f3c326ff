package geo

import (
	"math"

	"github.com/sealtrack/sealtrack-backend/pkg/types"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distance.
const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two
// coordinates, computed with the haversine formula.
func Distance(a, b types.Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// IsWithinFence reports whether reported lies within radiusMeters of target.
// The boundary is inclusive: a point at exactly radiusMeters is inside.
func IsWithinFence(reported, target types.Coordinate, radiusMeters float64) bool {
	if radiusMeters < 0 {
		return false
	}
	return Distance(reported, target) <= radiusMeters
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
