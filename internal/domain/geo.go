package domain

import "math"

// earthRadiusMiles matches the radius the ledger store uses for its own
// radius queries, so in-process distance checks agree with SQL ones.
const earthRadiusMiles = 3959.0

// DistanceMiles returns the great-circle distance between two coordinate
// pairs using the haversine formula.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
