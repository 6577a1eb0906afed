package relay

import "math"

// Location is one position sample as reported by a member's device.
// Immutable value: a newer sample replaces the previous one, never merged.
type Location struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// MemberLocation pairs a member id with their last reported position, as
// carried in allLocations / locationUpdate payloads.
type MemberLocation struct {
	UID      string   `json:"uid"`
	Location Location `json:"location"`
}

const earthRadiusMeters = 6371e3

// Distance returns the great-circle distance between two samples in meters,
// haversine formulation.
func Distance(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}
