package geo

import "math"

// earthRadius is the mean Earth radius in meters.
const earthRadius = 6371000

// Haversine calculates great-circle distance between two points in meters.
// Inputs are assumed valid; callers validate event coordinates once at the
// pipeline boundary.
func Haversine(p1, p2 Point) float64 {
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0
	}

	lat1 := p1.Latitude * math.Pi / 180
	lon1 := p1.Longitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	lon2 := p2.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Bearing calculates the initial spherical bearing from one point to
// another, in degrees normalized to [0, 360).
func Bearing(from, to Point) float64 {
	lat1 := from.Latitude * math.Pi / 180
	lon1 := from.Longitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	lon2 := to.Longitude * math.Pi / 180

	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	deg := math.Atan2(y, x) * 180 / math.Pi

	deg = math.Mod(deg+360, 360)
	if deg == 360 {
		deg = 0
	}
	return deg
}

// Destination projects a point along a bearing (degrees) for a distance
// (meters) on the great circle.
func Destination(p Point, bearingDeg, distanceMeters float64) Point {
	lat1 := p.Latitude * math.Pi / 180
	lon1 := p.Longitude * math.Pi / 180
	brg := bearingDeg * math.Pi / 180
	d := distanceMeters / earthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{
		Latitude:  lat2 * 180 / math.Pi,
		Longitude: math.Mod(lon2*180/math.Pi+540, 360) - 180,
	}
}

// PointToSegment calculates the distance in meters from a point to a
// great-circle segment using the cross-track formula, falling back to the
// nearest endpoint when the projection lies beyond the segment.
func PointToSegment(point, segStart, segEnd Point) float64 {
	if segStart.Latitude == segEnd.Latitude && segStart.Longitude == segEnd.Longitude {
		return Haversine(point, segStart)
	}

	distToStart := Haversine(point, segStart)
	distToEnd := Haversine(point, segEnd)
	segLength := Haversine(segStart, segEnd)

	// Cross-track math degenerates on near-zero segments.
	if segLength < 1 {
		return math.Min(distToStart, distToEnd)
	}

	d13 := distToStart / earthRadius
	bearing13 := Bearing(segStart, point) * math.Pi / 180
	bearing12 := Bearing(segStart, segEnd) * math.Pi / 180

	dxt := math.Asin(math.Sin(d13) * math.Sin(bearing13-bearing12))
	crossTrack := math.Abs(dxt) * earthRadius

	// Along-track distance decides whether the projection falls on the
	// segment at all.
	dat := math.Acos(math.Cos(d13) / math.Cos(dxt))
	alongTrack := dat * earthRadius

	if math.IsNaN(alongTrack) || alongTrack > segLength {
		return math.Min(distToStart, distToEnd)
	}
	if math.Cos(bearing13-bearing12) < 0 {
		// Projection falls behind the segment start.
		return distToStart
	}

	return crossTrack
}

// PointToPolyline calculates the minimum distance in meters from a point to
// any segment of a polyline.
func PointToPolyline(point Point, line Polyline) float64 {
	if len(line.Points) == 0 {
		return math.Inf(1)
	}
	if len(line.Points) == 1 {
		return Haversine(point, line.Points[0])
	}

	minDist := math.Inf(1)
	for i := 0; i < len(line.Points)-1; i++ {
		d := PointToSegment(point, line.Points[i], line.Points[i+1])
		if d < minDist {
			minDist = d
		}
	}
	return minDist
}

// PathLength returns the cumulative length of a polyline in meters.
func PathLength(line Polyline) float64 {
	total := 0.0
	for i := 0; i < len(line.Points)-1; i++ {
		total += Haversine(line.Points[i], line.Points[i+1])
	}
	return total
}

// DedupeConsecutive removes consecutive identical points from a point
// sequence. External providers routinely repeat vertices at way joints.
func DedupeConsecutive(points []Point) []Point {
	if len(points) == 0 {
		return points
	}
	out := points[:1]
	for _, p := range points[1:] {
		last := out[len(out)-1]
		if p.Latitude == last.Latitude && p.Longitude == last.Longitude {
			continue
		}
		out = append(out, p)
	}
	return out
}

// BoundsAround computes a bounding box covering the given points, expanded
// by paddingMeters on every side.
func BoundsAround(points []Point, paddingMeters float64) BoundingBox {
	b := BoundingBox{
		MinLat: math.Inf(1), MinLon: math.Inf(1),
		MaxLat: math.Inf(-1), MaxLon: math.Inf(-1),
	}
	for _, p := range points {
		b.MinLat = math.Min(b.MinLat, p.Latitude)
		b.MinLon = math.Min(b.MinLon, p.Longitude)
		b.MaxLat = math.Max(b.MaxLat, p.Latitude)
		b.MaxLon = math.Max(b.MaxLon, p.Longitude)
	}
	if paddingMeters <= 0 {
		return b
	}

	latPad := paddingMeters / earthRadius * 180 / math.Pi
	midLat := (b.MinLat + b.MaxLat) / 2 * math.Pi / 180
	lonPad := latPad / math.Max(math.Cos(midLat), 0.01)

	b.MinLat -= latPad
	b.MaxLat += latPad
	b.MinLon -= lonPad
	b.MaxLon += lonPad
	return b
}
