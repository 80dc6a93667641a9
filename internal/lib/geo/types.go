package geo

import "math"

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// Valid reports whether the point has finite, in-range coordinates.
// Non-finite values (NaN, ±Inf) are rejected before they can poison
// any downstream distance computation.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) ||
		math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Polyline is an ordered sequence of points approximating a path.
type Polyline struct {
	Points []Point `json:"points"`
}

// Valid reports whether every point of the polyline is valid and the
// polyline has at least two points.
func (l Polyline) Valid() bool {
	if len(l.Points) < 2 {
		return false
	}
	for _, p := range l.Points {
		if !p.Valid() {
			return false
		}
	}
	return true
}

// Reverse returns a copy of the polyline with point order reversed.
func (l Polyline) Reverse() Polyline {
	rev := make([]Point, len(l.Points))
	for i, p := range l.Points {
		rev[len(l.Points)-1-i] = p
	}
	return Polyline{Points: rev}
}

// First returns the first point of the polyline.
func (l Polyline) First() Point { return l.Points[0] }

// Last returns the last point of the polyline.
func (l Polyline) Last() Point { return l.Points[len(l.Points)-1] }

// BoundingBox is a lat/lon axis-aligned rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}
