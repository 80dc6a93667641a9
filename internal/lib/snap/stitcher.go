package snap

import (
	"math"

	"github.com/openroads/corridor/internal/lib/geo"
)

// DefaultJoinThreshold is the connectivity threshold in meters for
// attaching a fragment to a growing chain. Linear-referenced national
// datasets split corridors into many short segments that rarely share
// exact endpoints.
const DefaultJoinThreshold = 500.0

// Stitch greedily grows one continuous polyline out of disjoint candidate
// fragments. It seeds the chain with the fragment closest to the event's
// endpoints, then repeatedly attaches any unused fragment whose nearest
// endpoint lies within joinThresholdMeters of the chain's head or tail,
// reversing the fragment when needed, until nothing more attaches.
//
// The second return is false when no fragment has at least 2 points.
func Stitch(fragments []geo.Polyline, start, end geo.Point, joinThresholdMeters float64) (geo.Polyline, bool) {
	var usable []geo.Polyline
	for _, f := range fragments {
		if len(f.Points) >= 2 {
			usable = append(usable, f)
		}
	}
	if len(usable) == 0 {
		return geo.Polyline{}, false
	}

	seed := 0
	seedDist := math.Inf(1)
	for i, f := range usable {
		d := endpointAffinity(f, start, end)
		if d < seedDist {
			seedDist = d
			seed = i
		}
	}

	chain := make([]geo.Point, len(usable[seed].Points))
	copy(chain, usable[seed].Points)
	used := map[int]bool{seed: true}

	for {
		attached := false
		for i, f := range usable {
			if used[i] {
				continue
			}

			joined, ok := attach(chain, f, joinThresholdMeters)
			if !ok {
				continue
			}
			chain = joined
			used[i] = true
			attached = true
		}
		if !attached || len(used) == len(usable) {
			break
		}
	}

	return geo.Polyline{Points: chain}, true
}

// attach tries to connect a fragment to either end of the chain. The
// fragment's joining endpoint is treated as the same vertex as the chain's
// head or tail and is dropped, so a successful join never duplicates the
// shared joint.
func attach(chain []geo.Point, f geo.Polyline, threshold float64) ([]geo.Point, bool) {
	head := chain[0]
	tail := chain[len(chain)-1]

	type option struct {
		dist    float64
		atTail  bool
		reverse bool
	}
	options := []option{
		{geo.Haversine(tail, f.First()), true, false},
		{geo.Haversine(tail, f.Last()), true, true},
		{geo.Haversine(head, f.Last()), false, false},
		{geo.Haversine(head, f.First()), false, true},
	}

	best := option{dist: math.Inf(1)}
	for _, o := range options {
		if o.dist < best.dist {
			best = o
		}
	}
	if best.dist > threshold {
		return chain, false
	}

	seg := f
	if best.reverse {
		seg = f.Reverse()
	}

	if best.atTail {
		return append(chain, seg.Points[1:]...), true
	}
	joined := make([]geo.Point, 0, len(seg.Points)-1+len(chain))
	joined = append(joined, seg.Points[:len(seg.Points)-1]...)
	joined = append(joined, chain...)
	return joined, true
}

// endpointAffinity scores how well a fragment's endpoints line up with the
// event's endpoints; lower is better.
func endpointAffinity(f geo.Polyline, start, end geo.Point) float64 {
	forward := geo.Haversine(f.First(), start) + geo.Haversine(f.Last(), end)
	backward := geo.Haversine(f.First(), end) + geo.Haversine(f.Last(), start)
	return math.Min(forward, backward)
}
