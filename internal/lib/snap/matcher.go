// Package snap holds the pure algorithms that turn a two-point event
// location into a road-following polyline: nearest-vertex matching,
// sub-path extraction, fragment stitching, and line simplification.
package snap

import (
	"sort"

	"github.com/openroads/corridor/internal/lib/geo"
)

// Candidate is a polyline vertex within tolerance of a target coordinate.
type Candidate struct {
	Index    int
	Distance float64 // meters
}

// FindCandidates returns every vertex of the polyline within
// toleranceMeters of the target, sorted ascending by distance. An empty
// result means "no match at this tolerance"; retrying with a larger
// tolerance is the caller's explicit decision, never done here.
func FindCandidates(line geo.Polyline, target geo.Point, toleranceMeters float64) []Candidate {
	var candidates []Candidate
	for i, p := range line.Points {
		d := geo.Haversine(target, p)
		if d <= toleranceMeters {
			candidates = append(candidates, Candidate{Index: i, Distance: d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	return candidates
}
