package snap

import (
	"math"

	"github.com/openroads/corridor/internal/lib/geo"
)

// shapeWeight scales the path-straightness penalty so that a detour ratio
// of 2x on a 1km event costs about as much as a 1km endpoint miss.
const shapeWeight = 1.0

// ExtractBest evaluates every (start, end) candidate pair against a single
// polyline and returns the sub-path with the lowest score. The score is a
// weighted combination of start-point distance, end-point distance, and the
// deviation of the path-length-to-straight-line ratio from 1. Pairs whose
// sub-path has fewer than 2 points are rejected.
func ExtractBest(line geo.Polyline, startCands, endCands []Candidate, start, end geo.Point) (geo.Polyline, bool) {
	straight := geo.Haversine(start, end)

	best := geo.Polyline{}
	bestScore := math.Inf(1)

	for _, sc := range startCands {
		for _, ec := range endCands {
			sub := subPath(line, sc.Index, ec.Index)
			if len(sub.Points) < 2 {
				continue
			}

			score := sc.Distance + ec.Distance
			if straight > 0 {
				ratio := geo.PathLength(sub) / straight
				score += shapeWeight * math.Abs(ratio-1) * straight
			}

			if score < bestScore {
				bestScore = score
				best = sub
			}
		}
	}

	if math.IsInf(bestScore, 1) {
		return geo.Polyline{}, false
	}
	return best, true
}

// subPath extracts the vertex range [from, to] of the polyline, reversing
// when the start index lies after the end index so the result always runs
// start to end.
func subPath(line geo.Polyline, from, to int) geo.Polyline {
	if from > to {
		return subPath(line, to, from).Reverse()
	}
	points := make([]geo.Point, to-from+1)
	copy(points, line.Points[from:to+1])
	return geo.Polyline{Points: points}
}
