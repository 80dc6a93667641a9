// Package direction handles cardinal-direction classification for traffic
// events: parsing free-form stated directions, classifying bearings,
// route-parity axis lookup, and heuristic correction of mismatched
// directions with a confidence score.
package direction

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/openroads/corridor/internal/lib/geo"
)

// Direction is one of the four cardinal directions or undirected.
type Direction string

const (
	North      Direction = "N"
	East       Direction = "E"
	South      Direction = "S"
	West       Direction = "W"
	Undirected Direction = "undirected"
)

// Valid reports whether d is one of the five enumerated values.
func (d Direction) Valid() bool {
	switch d {
	case North, East, South, West, Undirected:
		return true
	}
	return false
}

// Opposite returns the opposing cardinal direction; undirected maps to
// itself.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	}
	return d
}

// Axis is the cardinal pair a route runs along.
type Axis int

const (
	AxisUnknown Axis = iota
	AxisNS
	AxisEW
)

// Contains reports whether the direction travels along the axis.
func (a Axis) Contains(d Direction) bool {
	switch a {
	case AxisNS:
		return d == North || d == South
	case AxisEW:
		return d == East || d == West
	}
	return false
}

var statedAliases = map[string]Direction{
	"N": North, "NB": North, "NORTH": North, "NORTHBOUND": North,
	"E": East, "EB": East, "EAST": East, "EASTBOUND": East,
	"S": South, "SB": South, "SOUTH": South, "SOUTHBOUND": South,
	"W": West, "WB": West, "WEST": West, "WESTBOUND": West,
	"BOTH": Undirected, "B": Undirected, "BI": Undirected,
	"BIDIRECTIONAL": Undirected, "UNDIRECTED": Undirected, "ALL": Undirected,
}

// ParseStated maps a free-form stated direction ("WB", "westbound", "both",
// ...) onto the system encoding. The second return is false when the text
// carries no recognizable direction.
func ParseStated(s string) (Direction, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.Trim(key, ".")
	d, ok := statedAliases[key]
	return d, ok
}

// Classify maps a bearing in degrees to a cardinal direction. Boundaries:
// [315,360)∪[0,45) → N, [45,135) → E, [135,225) → S, [225,315) → W.
func Classify(bearingDeg float64) Direction {
	b := math.Mod(bearingDeg, 360)
	if b < 0 {
		b += 360
	}
	switch {
	case b < 45 || b >= 315:
		return North
	case b < 135:
		return East
	case b < 225:
		return South
	default:
		return West
	}
}

var routeNumber = regexp.MustCompile(`(\d+)\s*$`)

// RouteAxis infers the cardinal pair of a named route from the US numbering
// convention: even route numbers run east-west, odd run north-south. The
// convention has known exceptions among spur and auxiliary routes, so
// explicit per-route overrides always win and callers must treat a parity
// mismatch as a review flag, not an error.
func RouteAxis(routeName string, overrides map[string]Axis) Axis {
	if a, ok := overrides[strings.ToUpper(strings.TrimSpace(routeName))]; ok {
		return a
	}

	m := routeNumber.FindStringSubmatch(routeName)
	if m == nil {
		return AxisUnknown
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return AxisUnknown
	}
	// Three-digit auxiliary routes inherit the parent's parity (I-280
	// follows I-80).
	if n >= 100 {
		n %= 100
	}
	if n%2 == 0 {
		return AxisEW
	}
	return AxisNS
}

// Correction is the outcome of reconciling a stated direction with the
// bearing classification of the event's endpoints.
type Correction struct {
	Direction  Direction
	Corrected  bool
	Confidence float64
}

// correctionThreshold is the minimum confidence at which a disagreeing
// stated direction is overwritten by the bearing classification.
const correctionThreshold = 0.5

// Reconcile compares a stated direction string against the bearing-derived
// classification of the start→end pair. On disagreement the classified
// value wins when confidence is high enough; short or boundary-straddling
// segments keep the stated value because a two-point bearing is a poor
// proxy for carriageway identity there.
func Reconcile(stated string, start, end geo.Point) Correction {
	bearing := geo.Bearing(start, end)
	classified := Classify(bearing)
	confidence := classificationConfidence(bearing, geo.Haversine(start, end))

	parsed, ok := ParseStated(stated)
	if !ok {
		// Nothing stated: adopt the classification without flagging a
		// correction.
		return Correction{Direction: classified, Confidence: confidence}
	}
	if parsed == Undirected {
		return Correction{Direction: Undirected, Confidence: 1}
	}
	if parsed == classified {
		return Correction{Direction: parsed, Confidence: confidence}
	}
	if confidence >= correctionThreshold {
		return Correction{Direction: classified, Corrected: true, Confidence: confidence}
	}
	return Correction{Direction: parsed, Confidence: confidence}
}

// classificationConfidence scores how trustworthy a two-point bearing
// classification is: longer segments and bearings far from a 45° class
// boundary score higher.
func classificationConfidence(bearingDeg, distanceMeters float64) float64 {
	// Angular margin to the nearest classification boundary, 0..45.
	b := math.Mod(bearingDeg+360, 360)
	margin := 45.0
	for _, boundary := range []float64{45, 135, 225, 315, 360, 0} {
		d := math.Abs(b - boundary)
		if d < margin {
			margin = d
		}
	}

	lengthFactor := math.Min(distanceMeters/2000, 1)
	return lengthFactor * (margin / 45)
}

// SelectNearest picks the candidate polyline closest to the event, measured
// as the mean of the start and end perpendicular distances. Returns -1 when
// there are no candidates. Used to choose among parallel directional
// corridors of the same named route.
func SelectNearest(start, end geo.Point, candidates []geo.Polyline) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, line := range candidates {
		if len(line.Points) == 0 {
			continue
		}
		d := (geo.PointToPolyline(start, line) + geo.PointToPolyline(end, line)) / 2
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best, bestDist
}
