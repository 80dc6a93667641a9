package snap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openroads/corridor/internal/lib/geo"
)

func TestExtractBest(t *testing.T) {
	origin := geo.Point{Latitude: 41.6611, Longitude: -91.5302}
	line := corridorEastFrom(origin, 100, 100) // ~10km

	start := geo.Destination(line.Points[20], 0, 50)
	end := geo.Destination(line.Points[60], 0, 50)

	startCands := FindCandidates(line, start, 500)
	endCands := FindCandidates(line, end, 500)
	require.NotEmpty(t, startCands)
	require.NotEmpty(t, endCands)

	sub, ok := ExtractBest(line, startCands, endCands, start, end)
	require.True(t, ok)

	// Sub-path spans vertices 20..60
	assert.Len(t, sub.Points, 41)
	assert.Equal(t, line.Points[20], sub.First())
	assert.Equal(t, line.Points[60], sub.Last())
}

func TestExtractBest_ReversedIndices(t *testing.T) {
	origin := geo.Point{Latitude: 41.6611, Longitude: -91.5302}
	line := corridorEastFrom(origin, 100, 100)

	// Event runs against the corridor's point order
	start := geo.Destination(line.Points[60], 0, 50)
	end := geo.Destination(line.Points[20], 0, 50)

	sub, ok := ExtractBest(line,
		FindCandidates(line, start, 500),
		FindCandidates(line, end, 500),
		start, end)
	require.True(t, ok)

	// Result runs start to end, so the extracted range is reversed
	assert.Equal(t, line.Points[60], sub.First())
	assert.Equal(t, line.Points[20], sub.Last())
}

func TestExtractBest_RejectsSinglePointSubPath(t *testing.T) {
	origin := geo.Point{Latitude: 41.6611, Longitude: -91.5302}
	line := corridorEastFrom(origin, 10, 100)

	// Both endpoints match only vertex 5
	cands := []Candidate{{Index: 5, Distance: 10}}
	_, ok := ExtractBest(line, cands, cands, line.Points[5], line.Points[5])
	assert.False(t, ok, "a one-point sub-path is not a usable geometry")
}

func TestExtractBest_PrefersDirectPath(t *testing.T) {
	origin := geo.Point{Latitude: 41.6611, Longitude: -91.5302}
	line := corridorEastFrom(origin, 50, 100)

	start := line.Points[10]
	end := line.Points[20]

	// Give the start two candidates: the true vertex and a vertex far down
	// the corridor whose sub-path would be wildly longer than the straight
	// line distance.
	startCands := []Candidate{
		{Index: 10, Distance: 40},
		{Index: 45, Distance: 30},
	}
	endCands := []Candidate{{Index: 20, Distance: 10}}

	sub, ok := ExtractBest(line, startCands, endCands, start, end)
	require.True(t, ok)

	// The slightly-worse endpoint match with a sane path shape wins over
	// the closer match that produces a 2.5x detour.
	assert.Equal(t, line.Points[10], sub.First())
}

func TestSubPathCopyIsIndependent(t *testing.T) {
	origin := geo.Point{Latitude: 41.6611, Longitude: -91.5302}
	line := corridorEastFrom(origin, 10, 100)

	sub := subPath(line, 2, 5)
	sub.Points[0].Latitude = 0

	assert.NotEqual(t, 0.0, line.Points[2].Latitude, "extraction must not alias the source polyline")
}
