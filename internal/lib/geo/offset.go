package geo

import "math"

// Offset renders a parallel line by displacing every vertex perpendicular to
// the local tangent bearing. sideDeg is +90 for the right-hand side of the
// direction of travel, -90 for the left.
func Offset(line Polyline, offsetMeters, sideDeg float64) Polyline {
	n := len(line.Points)
	if n < 2 {
		return line
	}

	out := make([]Point, n)
	for i, p := range line.Points {
		out[i] = Destination(p, tangentBearing(line, i)+sideDeg, offsetMeters)
	}
	return Polyline{Points: out}
}

// Carriageways synthesizes the two directional carriageways of an undirected
// centerline. Under US right-hand traffic the carriageway traveling in the
// polyline's point order sits to the right of the centerline and the
// opposing carriageway to the left; the opposing line is returned reversed
// so each result runs in its own direction of travel.
func Carriageways(center Polyline, offsetMeters float64) (with, against Polyline) {
	with = Offset(center, offsetMeters, 90)
	against = Offset(center, offsetMeters, -90).Reverse()
	return with, against
}

// tangentBearing estimates the direction of travel at vertex i. Interior
// vertices average the bearings of the two adjacent segments so the offset
// does not kink on corners.
func tangentBearing(line Polyline, i int) float64 {
	n := len(line.Points)
	switch {
	case i == 0:
		return Bearing(line.Points[0], line.Points[1])
	case i == n-1:
		return Bearing(line.Points[n-2], line.Points[n-1])
	default:
		in := Bearing(line.Points[i-1], line.Points[i])
		out := Bearing(line.Points[i], line.Points[i+1])
		return meanBearing(in, out)
	}
}

// meanBearing averages two bearings on the circle, handling the 359/1
// wraparound.
func meanBearing(a, b float64) float64 {
	ar := a * math.Pi / 180
	br := b * math.Pi / 180
	y := math.Sin(ar) + math.Sin(br)
	x := math.Cos(ar) + math.Cos(br)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
