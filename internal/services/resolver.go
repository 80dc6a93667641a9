package services

import (
	"context"
	"errors"

	"github.com/go-spatial/geom/encoding/geojson"

	"github.com/dpup/prefab/logging"
	"github.com/jonboulle/clockwork"

	"github.com/openroads/corridor/internal/cache"
	"github.com/openroads/corridor/internal/clients"
	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/lib/event"
	"github.com/openroads/corridor/internal/lib/geo"
	"github.com/openroads/corridor/internal/lib/snap"
	"github.com/openroads/corridor/internal/store"
)

// GeometrySource fetches road geometry fragments from an external provider
// within a bounding box, optionally filtered by route name.
type GeometrySource interface {
	Name() string
	Fetch(ctx context.Context, bounds geo.BoundingBox, routeHint string) ([]geo.Polyline, error)
}

// Router computes a road-following path between two points.
type Router interface {
	Route(ctx context.Context, start, end geo.Point) (geo.Polyline, error)
}

// SnapConfig carries the tolerances of the snapping pipeline. Distances are
// meters.
type SnapConfig struct {
	MatchTolerance  float64
	RetryTolerance  float64
	StitchThreshold float64
	SimplifyEpsilon float64
	OffsetMeters    float64
	BBoxPadding     float64
}

// DefaultSnapConfig returns tolerances tuned for interstate-scale events.
func DefaultSnapConfig() SnapConfig {
	return SnapConfig{
		MatchTolerance:  2000,
		RetryTolerance:  5000,
		StitchThreshold: snap.DefaultJoinThreshold,
		SimplifyEpsilon: 10,
		OffsetMeters:    11,
		BBoxPadding:     1500,
	}
}

// Resolver turns event coordinate pairs into road-following geometries by
// walking a tiered pipeline: cached result, stored corridor, external
// geometry providers, routing engine, and finally a straight-line fallback.
// Every tier failure degrades silently to the next tier; Resolve only errors
// on invalid input.
type Resolver struct {
	store   *store.Store
	cache   *cache.GeometryCache
	sources []GeometrySource
	router  Router
	cfg     SnapConfig
	parity  map[string]direction.Axis
	metrics *Metrics
	clock   clockwork.Clock
}

// NewResolver wires up a resolver. store, cache, sources, and router may each
// be nil/empty, which skips the corresponding tier.
func NewResolver(st *store.Store, c *cache.GeometryCache, sources []GeometrySource,
	router Router, cfg SnapConfig, parity map[string]direction.Axis, metrics *Metrics) *Resolver {
	return &Resolver{
		store:   st,
		cache:   c,
		sources: sources,
		router:  router,
		cfg:     cfg,
		parity:  parity,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock swaps the wall clock, for tests.
func (r *Resolver) SetClock(clock clockwork.Clock) { r.clock = clock }

// Resolve produces the geometry-enriched record for an event location.
func (r *Resolver) Resolve(ctx context.Context, loc event.Location) (event.Resolved, error) {
	started := r.clock.Now()
	defer func() {
		r.metrics.ResolveDuration.Observe(r.clock.Since(started).Seconds())
	}()

	if err := loc.Validate(); err != nil {
		r.metrics.ResolveFailures.Inc()
		return event.Resolved{}, err
	}

	resolved := event.Resolved{Location: loc}
	r.reconcileDirection(&resolved)

	key := cache.Key(loc.Start, loc.End, resolved.Direction)
	if r.cache != nil {
		if entry, ok := r.cache.Get(key); ok {
			r.metrics.CacheLookups.WithLabelValues("hit").Inc()
			r.metrics.Resolutions.WithLabelValues(string(event.SourceCache)).Inc()
			resolved.Geometry = entry.Geometry
			resolved.GeometrySource = event.SourceCache
			return resolved, nil
		}
		r.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	line, source, rateLimited := r.resolveLine(ctx, loc, resolved.Direction)
	resolved.RateLimited = rateLimited
	resolved.GeometrySource = source
	resolved.Geometry = r.renderGeometry(line, resolved.Direction)
	r.metrics.Resolutions.WithLabelValues(string(source)).Inc()

	if r.cache != nil {
		if err := r.cache.Put(ctx, key, cache.Entry{
			Geometry: resolved.Geometry,
			Source:   source,
		}); err != nil {
			logging.Warnw(ctx, "Failed to persist geometry cache entry",
				"event", loc.ID, "error", err)
		}
	}

	return resolved, nil
}

// reconcileDirection fills the direction fields and the parity flag.
func (r *Resolver) reconcileDirection(resolved *event.Resolved) {
	corr := direction.Reconcile(resolved.StatedDirection, resolved.Start, resolved.End)
	resolved.Direction = corr.Direction
	resolved.DirectionCorrected = corr.Corrected
	resolved.DirectionConfidence = corr.Confidence

	_, hadStated := direction.ParseStated(resolved.StatedDirection)
	switch {
	case corr.Direction == direction.Undirected:
		r.metrics.DirectionOutcomes.WithLabelValues("undirected").Inc()
	case corr.Corrected:
		r.metrics.DirectionOutcomes.WithLabelValues("corrected").Inc()
	case hadStated:
		r.metrics.DirectionOutcomes.WithLabelValues("stated").Inc()
	default:
		r.metrics.DirectionOutcomes.WithLabelValues("classified").Inc()
	}

	axis := direction.RouteAxis(resolved.CorridorName, r.parity)
	if axis != direction.AxisUnknown &&
		resolved.Direction != direction.Undirected &&
		!axis.Contains(resolved.Direction) {
		resolved.ParityMismatch = true
		r.metrics.ParityMismatches.Inc()
	}
}

// resolveLine walks tiers 2 through 5 and returns the centerline plus its
// provenance.
func (r *Resolver) resolveLine(ctx context.Context, loc event.Location, dir direction.Direction) (geo.Polyline, event.Source, bool) {
	if line, ok := r.fromCorridorStore(ctx, loc, dir); ok {
		return line, event.SourceCorridorStore, false
	}

	line, ok, rateLimited := r.fromExternalSources(ctx, loc)
	if ok {
		return line, event.SourceExternal, rateLimited
	}

	routed, routedOK, routeLimited := r.fromRouter(ctx, loc)
	rateLimited = rateLimited || routeLimited
	if routedOK {
		return routed, event.SourceRouting, rateLimited
	}

	logging.Infow(ctx, "All geometry tiers exhausted, using straight-line fallback",
		"event", loc.ID, "corridor", loc.CorridorName)
	fallback := geo.Polyline{Points: []geo.Point{loc.Start, loc.End}}
	return fallback, event.SourceFallback, rateLimited
}

// fromCorridorStore snaps the event onto a stored corridor polyline. Directed
// events prefer the corridor stored under their direction; otherwise the
// nearest variant of the named route is used.
func (r *Resolver) fromCorridorStore(ctx context.Context, loc event.Location, dir direction.Direction) (geo.Polyline, bool) {
	if r.store == nil || loc.CorridorName == "" {
		return geo.Polyline{}, false
	}

	if dir != direction.Undirected {
		if c, err := r.store.Get(ctx, loc.CorridorName, dir); err == nil {
			if line, ok := r.snapToLine(c.Line, loc.Start, loc.End); ok {
				return line, true
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			logging.Warnw(ctx, "Corridor store lookup failed",
				"event", loc.ID, "corridor", loc.CorridorName, "error", err)
			return geo.Polyline{}, false
		}
	}

	variants, err := r.store.Variants(ctx, loc.CorridorName)
	if err != nil {
		logging.Warnw(ctx, "Corridor variant lookup failed",
			"event", loc.ID, "corridor", loc.CorridorName, "error", err)
		return geo.Polyline{}, false
	}
	lines := make([]geo.Polyline, len(variants))
	for i, v := range variants {
		lines[i] = v.Line
	}

	idx, _ := direction.SelectNearest(loc.Start, loc.End, lines)
	if idx < 0 {
		return geo.Polyline{}, false
	}
	return r.snapToLine(lines[idx], loc.Start, loc.End)
}

// fromExternalSources queries each provider in priority order, stitches the
// returned fragments, and snaps the event onto the result.
func (r *Resolver) fromExternalSources(ctx context.Context, loc event.Location) (geo.Polyline, bool, bool) {
	if len(r.sources) == 0 {
		return geo.Polyline{}, false, false
	}

	bounds := geo.BoundsAround([]geo.Point{loc.Start, loc.End}, r.cfg.BBoxPadding)
	rateLimited := false

	for _, src := range r.sources {
		fragments, err := src.Fetch(ctx, bounds, loc.CorridorName)
		switch {
		case errors.Is(err, clients.ErrRateLimited):
			r.metrics.ProviderRequests.WithLabelValues(src.Name(), "rate_limited").Inc()
			rateLimited = true
			continue
		case err != nil:
			r.metrics.ProviderRequests.WithLabelValues(src.Name(), "error").Inc()
			logging.Warnw(ctx, "Geometry provider failed",
				"provider", src.Name(), "event", loc.ID, "error", err)
			continue
		case len(fragments) == 0:
			r.metrics.ProviderRequests.WithLabelValues(src.Name(), "empty").Inc()
			continue
		}
		r.metrics.ProviderRequests.WithLabelValues(src.Name(), "success").Inc()

		stitched, ok := snap.Stitch(fragments, loc.Start, loc.End, r.cfg.StitchThreshold)
		if !ok {
			continue
		}
		if line, ok := r.snapToLine(stitched, loc.Start, loc.End); ok {
			return line, true, rateLimited
		}
	}
	return geo.Polyline{}, false, rateLimited
}

func (r *Resolver) fromRouter(ctx context.Context, loc event.Location) (geo.Polyline, bool, bool) {
	if r.router == nil {
		return geo.Polyline{}, false, false
	}

	line, err := r.router.Route(ctx, loc.Start, loc.End)
	switch {
	case errors.Is(err, clients.ErrRateLimited):
		return geo.Polyline{}, false, true
	case err != nil:
		logging.Warnw(ctx, "Routing engine failed", "event", loc.ID, "error", err)
		return geo.Polyline{}, false, false
	case !line.Valid():
		return geo.Polyline{}, false, false
	}
	return snap.Simplify(line, r.cfg.SimplifyEpsilon), true, false
}

// snapToLine extracts the portion of a centerline between the event
// endpoints. When neither endpoint matches at the normal tolerance, a single
// retry at the relaxed tolerance covers events reported slightly off the
// corridor.
func (r *Resolver) snapToLine(line geo.Polyline, start, end geo.Point) (geo.Polyline, bool) {
	startCands := snap.FindCandidates(line, start, r.cfg.MatchTolerance)
	endCands := snap.FindCandidates(line, end, r.cfg.MatchTolerance)
	if len(startCands) == 0 || len(endCands) == 0 {
		startCands = snap.FindCandidates(line, start, r.cfg.RetryTolerance)
		endCands = snap.FindCandidates(line, end, r.cfg.RetryTolerance)
	}
	if len(startCands) == 0 || len(endCands) == 0 {
		return geo.Polyline{}, false
	}

	best, ok := snap.ExtractBest(line, startCands, endCands, start, end)
	if !ok {
		return geo.Polyline{}, false
	}
	return snap.Simplify(best, r.cfg.SimplifyEpsilon), true
}

// renderGeometry converts a centerline to the output geometry. Undirected
// events render as two carriageways offset either side of the centerline so
// the dashboard shows the closure affecting both directions.
func (r *Resolver) renderGeometry(line geo.Polyline, dir direction.Direction) geojson.Geometry {
	if dir == direction.Undirected && len(line.Points) >= 2 {
		with, against := geo.Carriageways(line, r.cfg.OffsetMeters)
		return event.MultiLineGeometry(with, against)
	}
	return event.LineGeometry(line)
}
