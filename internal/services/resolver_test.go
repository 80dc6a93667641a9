package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openroads/corridor/internal/cache"
	"github.com/openroads/corridor/internal/clients"
	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/lib/event"
	"github.com/openroads/corridor/internal/lib/geo"
	"github.com/openroads/corridor/internal/store"
)

// corridorOrigin sits just west of the test events so corridors built from
// it bracket the event endpoints.
var corridorOrigin = geo.Point{Latitude: 41.6611, Longitude: -91.5302}

// eastCorridor builds an eastbound polyline of n points spaced evenly.
func eastCorridor(n int, spacingMeters float64) geo.Polyline {
	points := make([]geo.Point, n)
	points[0] = corridorOrigin
	for i := 1; i < n; i++ {
		points[i] = geo.Destination(points[i-1], 90, spacingMeters)
	}
	return geo.Polyline{Points: points}
}

type fakeSource struct {
	name  string
	lines []geo.Polyline
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, bounds geo.BoundingBox, hint string) ([]geo.Polyline, error) {
	f.calls++
	return f.lines, f.err
}

type fakeRouter struct {
	line  geo.Polyline
	err   error
	calls int
}

func (f *fakeRouter) Route(ctx context.Context, start, end geo.Point) (geo.Polyline, error) {
	f.calls++
	return f.line, f.err
}

func openSeededStore(t *testing.T, corridors ...store.Corridor) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, c := range corridors {
		require.NoError(t, s.Upsert(logging.EnsureLogger(context.Background()), c))
	}
	return s
}

func newResolver(st *store.Store, c *cache.GeometryCache, sources []GeometrySource, router Router) *Resolver {
	return NewResolver(st, c, sources, router, DefaultSnapConfig(), nil, NewMetricsForTesting())
}

// eventAlong places an event's endpoints near interior vertices of a
// corridor, nudged slightly off the line the way real reports arrive.
func eventAlong(line geo.Polyline, startIdx, endIdx int, stated string) event.Location {
	nudge := func(p geo.Point) geo.Point {
		return geo.Destination(p, 0, 40)
	}
	return event.Location{
		ID:              "evt-1",
		CorridorName:    "I-80",
		StatedDirection: stated,
		Start:           nudge(line.Points[startIdx]),
		End:             nudge(line.Points[endIdx]),
	}
}

func TestResolve_CorridorStoreTier(t *testing.T) {
	corridor := eastCorridor(20, 500)
	st := openSeededStore(t, store.Corridor{
		Name:      "I-80",
		Direction: direction.East,
		Line:      corridor,
		Bounds:    geo.BoundsAround(corridor.Points, 0),
		Source:    "test",
	})

	src := &fakeSource{name: "overpass"}
	r := newResolver(st, cache.NewMemory(), []GeometrySource{src}, &fakeRouter{})

	loc := eventAlong(corridor, 3, 12, "EB")
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)

	assert.Equal(t, event.SourceCorridorStore, res.GeometrySource)
	assert.Equal(t, direction.East, res.Direction)
	assert.False(t, res.DirectionCorrected)
	assert.Zero(t, src.calls, "stored corridor satisfies the event without external calls")

	lines := event.GeometryLines(res.Geometry)
	require.Len(t, lines, 1)
	// The extracted span covers vertices 3..12 and follows the corridor, so
	// its length is close to 9 x 500m.
	assert.InDelta(t, 4500, geo.PathLength(lines[0]), 100)
}

func TestResolve_FallsBackToNearestVariant(t *testing.T) {
	// Only the eastbound carriageway is stored. A westbound event has no
	// corridor under its own direction and must fall back to the nearest
	// stored variant of the route.
	eb := eastCorridor(20, 500)
	st := openSeededStore(t,
		store.Corridor{Name: "I-80", Direction: direction.East, Line: eb, Source: "test"},
	)
	r := newResolver(st, cache.NewMemory(), nil, nil)

	loc := event.Location{
		ID:           "evt-wb",
		CorridorName: "I-80",
		Start:        geo.Destination(eb.Points[12], 0, 20),
		End:          geo.Destination(eb.Points[3], 0, 20),
	}
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)
	assert.Equal(t, event.SourceCorridorStore, res.GeometrySource)
	assert.Equal(t, direction.West, res.Direction)

	lines := event.GeometryLines(res.Geometry)
	require.Len(t, lines, 1)
	// The extracted span runs in travel order, east to west.
	assert.InDelta(t, 270, geo.Bearing(lines[0].First(), lines[0].Last()), 5)
}

func TestResolve_ExternalSourceTier(t *testing.T) {
	corridor := eastCorridor(20, 500)
	// Two fragments split mid-corridor, sharing a joint within the stitch
	// threshold.
	fragA := geo.Polyline{Points: corridor.Points[:10]}
	fragB := geo.Polyline{Points: corridor.Points[9:]}

	src := &fakeSource{name: "overpass", lines: []geo.Polyline{fragB, fragA}}
	r := newResolver(nil, cache.NewMemory(), []GeometrySource{src}, &fakeRouter{})

	loc := eventAlong(corridor, 2, 16, "EB")
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)

	assert.Equal(t, event.SourceExternal, res.GeometrySource)
	assert.False(t, res.RateLimited)

	lines := event.GeometryLines(res.Geometry)
	require.Len(t, lines, 1)
	assert.InDelta(t, 7000, geo.PathLength(lines[0]), 150)
}

func TestResolve_SourcePriorityOrder(t *testing.T) {
	corridor := eastCorridor(20, 500)
	first := &fakeSource{name: "overpass", lines: []geo.Polyline{corridor}}
	second := &fakeSource{name: "arcgis", lines: []geo.Polyline{corridor}}

	r := newResolver(nil, cache.NewMemory(), []GeometrySource{first, second}, nil)
	_, err := r.Resolve(logging.EnsureLogger(context.Background()), eventAlong(corridor, 2, 10, "EB"))
	require.NoError(t, err)

	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls, "later providers run only when earlier ones fail")
}

func TestResolve_RoutingTier(t *testing.T) {
	corridor := eastCorridor(20, 500)
	empty := &fakeSource{name: "overpass"}
	failing := &fakeSource{name: "arcgis", err: errors.New("upstream 500")}
	router := &fakeRouter{line: geo.Polyline{Points: corridor.Points[2:13]}}

	r := newResolver(nil, cache.NewMemory(), []GeometrySource{empty, failing}, router)

	res, err := r.Resolve(logging.EnsureLogger(context.Background()), eventAlong(corridor, 2, 12, "EB"))
	require.NoError(t, err)

	assert.Equal(t, event.SourceRouting, res.GeometrySource)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, router.calls)
}

func TestResolve_FallbackTier(t *testing.T) {
	r := newResolver(nil, cache.NewMemory(), nil, nil)

	loc := event.Location{
		ID:              "evt-f",
		CorridorName:    "I-80",
		StatedDirection: "WB",
		Start:           geo.Point{Latitude: 41.6611, Longitude: -91.5302},
		End:             geo.Point{Latitude: 41.6544, Longitude: -91.4891},
	}
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)

	assert.Equal(t, event.SourceFallback, res.GeometrySource)
	lines := event.GeometryLines(res.Geometry)
	require.Len(t, lines, 1)
	assert.Len(t, lines[0].Points, 2, "fallback is the straight start-end segment")
}

func TestResolve_UndirectedRendersCarriageways(t *testing.T) {
	corridor := eastCorridor(20, 500)
	st := openSeededStore(t, store.Corridor{
		Name: "I-80", Direction: direction.East, Line: corridor, Source: "test",
	})
	r := newResolver(st, cache.NewMemory(), nil, nil)

	res, err := r.Resolve(logging.EnsureLogger(context.Background()), eventAlong(corridor, 3, 12, "both"))
	require.NoError(t, err)

	assert.Equal(t, direction.Undirected, res.Direction)
	lines := event.GeometryLines(res.Geometry)
	require.Len(t, lines, 2, "undirected events carry both carriageways")

	// The two carriageways run in opposite directions.
	b1 := geo.Bearing(lines[0].First(), lines[0].Last())
	b2 := geo.Bearing(lines[1].First(), lines[1].Last())
	assert.InDelta(t, 180, angleBetween(b1, b2), 10)
}

// angleBetween returns the absolute angular difference of two bearings,
// normalized to [0, 180].
func angleBetween(a, b float64) float64 {
	d := a - b
	for d < 0 {
		d += 360
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

func TestResolve_CacheHitSkipsTiers(t *testing.T) {
	corridor := eastCorridor(20, 500)
	src := &fakeSource{name: "overpass", lines: []geo.Polyline{corridor}}
	r := newResolver(nil, cache.NewMemory(), []GeometrySource{src}, nil)

	loc := eventAlong(corridor, 2, 10, "EB")
	first, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)
	assert.Equal(t, event.SourceExternal, first.GeometrySource)

	second, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)
	assert.Equal(t, event.SourceCache, second.GeometrySource)
	assert.Equal(t, 1, src.calls, "second resolve must not refetch")

	// Cached geometry matches the original resolution.
	assert.Equal(t,
		event.GeometryLines(first.Geometry),
		event.GeometryLines(second.Geometry))
}

func TestResolve_FallbackIsCached(t *testing.T) {
	c := cache.NewMemory()
	r := newResolver(nil, c, nil, nil)

	loc := event.Location{
		ID:    "evt-f",
		Start: geo.Point{Latitude: 41.6611, Longitude: -91.5302},
		End:   geo.Point{Latitude: 41.6544, Longitude: -91.4891},
	}
	first, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)
	assert.Equal(t, event.SourceFallback, first.GeometrySource)
	assert.Equal(t, 1, c.Len())

	second, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)
	assert.Equal(t, event.SourceCache, second.GeometrySource)
}

func TestResolve_RateLimitedPropagates(t *testing.T) {
	limited := &fakeSource{name: "overpass", err: clients.ErrRateLimited}
	r := newResolver(nil, cache.NewMemory(), []GeometrySource{limited}, nil)

	loc := event.Location{
		ID:    "evt-rl",
		Start: geo.Point{Latitude: 41.6611, Longitude: -91.5302},
		End:   geo.Point{Latitude: 41.6544, Longitude: -91.4891},
	}
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)
	assert.True(t, res.RateLimited)
	assert.Equal(t, event.SourceFallback, res.GeometrySource)
}

func TestResolve_DirectionCorrection(t *testing.T) {
	r := newResolver(nil, cache.NewMemory(), nil, nil)

	// Stated eastbound, but the endpoints run 3.4km due west.
	start := geo.Point{Latitude: 41.6611, Longitude: -91.4891}
	end := geo.Destination(start, 270, 3400)
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), event.Location{
		ID: "evt-d", CorridorName: "I-80", StatedDirection: "EB",
		Start: start, End: end,
	})
	require.NoError(t, err)

	assert.Equal(t, direction.West, res.Direction)
	assert.True(t, res.DirectionCorrected)
	assert.GreaterOrEqual(t, res.DirectionConfidence, 0.5)
}

func TestResolve_ParityMismatchFlag(t *testing.T) {
	r := newResolver(nil, cache.NewMemory(), nil, nil)

	// I-80 is an even (east-west) route; a northbound event on it is
	// suspicious and gets flagged.
	start := geo.Point{Latitude: 41.6611, Longitude: -91.5302}
	end := geo.Destination(start, 0, 3000)
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), event.Location{
		ID: "evt-p", CorridorName: "I-80", StatedDirection: "NB",
		Start: start, End: end,
	})
	require.NoError(t, err)

	assert.Equal(t, direction.North, res.Direction)
	assert.True(t, res.ParityMismatch)
}

func TestResolve_ParityOverride(t *testing.T) {
	overrides := map[string]direction.Axis{"I-80": direction.AxisNS}
	r := NewResolver(nil, cache.NewMemory(), nil, nil,
		DefaultSnapConfig(), overrides, NewMetricsForTesting())

	start := geo.Point{Latitude: 41.6611, Longitude: -91.5302}
	end := geo.Destination(start, 0, 3000)
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), event.Location{
		ID: "evt-o", CorridorName: "I-80", StatedDirection: "NB",
		Start: start, End: end,
	})
	require.NoError(t, err)
	assert.False(t, res.ParityMismatch, "explicit overrides beat the numbering convention")
}

func TestResolve_InvalidInput(t *testing.T) {
	r := newResolver(nil, cache.NewMemory(), nil, nil)

	_, err := r.Resolve(logging.EnsureLogger(context.Background()), event.Location{
		ID:    "evt-bad",
		Start: geo.Point{Latitude: 95, Longitude: 0},
		End:   geo.Point{Latitude: 41.65, Longitude: -91.49},
	})
	assert.Error(t, err)
}

func TestResolve_RetryToleranceCoversOffsetEvents(t *testing.T) {
	corridor := eastCorridor(20, 500)
	st := openSeededStore(t, store.Corridor{
		Name: "I-80", Direction: direction.East, Line: corridor, Source: "test",
	})
	r := newResolver(st, cache.NewMemory(), nil, nil)

	// Endpoints 3km off the corridor: outside the 2km match tolerance but
	// inside the 5km retry tolerance.
	loc := event.Location{
		ID:              "evt-off",
		CorridorName:    "I-80",
		StatedDirection: "EB",
		Start:           geo.Destination(corridor.Points[3], 0, 3000),
		End:             geo.Destination(corridor.Points[12], 0, 3000),
	}
	res, err := r.Resolve(logging.EnsureLogger(context.Background()), loc)
	require.NoError(t, err)
	assert.Equal(t, event.SourceCorridorStore, res.GeometrySource)
}

func TestResnapper_Run(t *testing.T) {
	corridor := eastCorridor(20, 500)
	st := openSeededStore(t, store.Corridor{
		Name: "I-80", Direction: direction.East, Line: corridor, Source: "test",
	})
	r := newResolver(st, cache.NewMemory(), nil, nil)
	job := NewResnapper(r, 0, 0)

	locations := []event.Location{
		eventAlong(corridor, 2, 8, "EB"),
		eventAlong(corridor, 4, 14, "EB"),
		{ID: "bad", Start: geo.Point{Latitude: 99}, End: geo.Point{Latitude: 41.65, Longitude: -91.49}},
	}

	resolved, summary, err := job.Run(logging.EnsureLogger(context.Background()), locations)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Failures)
	assert.Len(t, resolved, 2)
	assert.Equal(t, 2, summary.BySource[event.SourceCorridorStore])
}

func TestResnapper_BacksOffOnRateLimit(t *testing.T) {
	limited := &fakeSource{name: "overpass", err: clients.ErrRateLimited}
	r := newResolver(nil, cache.NewMemory(), []GeometrySource{limited}, nil)
	job := NewResnapper(r, 0, time.Millisecond)

	loc := event.Location{
		ID:    "evt-rl",
		Start: geo.Point{Latitude: 41.6611, Longitude: -91.5302},
		End:   geo.Point{Latitude: 41.6544, Longitude: -91.4891},
	}
	_, summary, err := job.Run(logging.EnsureLogger(context.Background()), []event.Location{loc})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RateLimitPauses)
	assert.Equal(t, 2, limited.calls, "rate-limited items are retried once after the backoff")
}

func TestResnapper_StopsOnCancel(t *testing.T) {
	r := newResolver(nil, cache.NewMemory(), nil, nil)
	job := NewResnapper(r, time.Minute, 0)

	ctx, cancel := context.WithCancel(logging.EnsureLogger(context.Background()))
	cancel()

	loc := event.Location{
		ID:    "evt-c",
		Start: geo.Point{Latitude: 41.6611, Longitude: -91.5302},
		End:   geo.Point{Latitude: 41.6544, Longitude: -91.4891},
	}
	resolved, _, err := job.Run(ctx, []event.Location{loc, loc})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, resolved, 1, "the in-flight item finishes, the rest are skipped")
}
