package snap

import (
	"github.com/openroads/corridor/internal/lib/geo"
)

// Simplify reduces the point count of a polyline with the recursive
// Douglas-Peucker algorithm. The first and last points are always retained
// and no dropped point deviates from its bracketing retained segment by
// more than epsilonMeters. Simplify(line, 0) returns the input unchanged
// apart from exactly collinear interior points.
func Simplify(line geo.Polyline, epsilonMeters float64) geo.Polyline {
	if len(line.Points) <= 2 {
		return line
	}
	return geo.Polyline{Points: douglasPeucker(line.Points, epsilonMeters)}
}

func douglasPeucker(points []geo.Point, epsilon float64) []geo.Point {
	if len(points) <= 2 {
		return points
	}

	// Find the interior point with maximum deviation from the chord.
	dmax := 0.0
	index := 0
	end := len(points) - 1
	for i := 1; i < end; i++ {
		d := geo.PointToSegment(points[i], points[0], points[end])
		if d > dmax {
			index = i
			dmax = d
		}
	}

	if dmax > epsilon {
		left := douglasPeucker(points[:index+1], epsilon)
		right := douglasPeucker(points[index:], epsilon)

		// The split point appears in both halves; keep one copy.
		result := make([]geo.Point, 0, len(left)+len(right)-1)
		result = append(result, left[:len(left)-1]...)
		result = append(result, right...)
		return result
	}

	return []geo.Point{points[0], points[end]}
}
