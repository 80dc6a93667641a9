// Package event defines the records exchanged with the ingestion and
// dashboard collaborators: the raw event location coming in and the
// geometry-enriched record going out.
package event

import (
	"errors"
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"

	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/lib/geo"
)

// Source is the provenance tag recording which resolution tier produced a
// geometry.
type Source string

const (
	SourceCache         Source = "cache"
	SourceCorridorStore Source = "corridor-store"
	SourceExternal      Source = "external-source"
	SourceRouting       Source = "routing-engine"
	SourceFallback      Source = "fallback"
)

// Location is an event record as delivered by the normalization collaborator.
type Location struct {
	ID              string    `json:"id"`
	CorridorName    string    `json:"corridorName"`
	StatedDirection string    `json:"statedDirection,omitempty"`
	Start           geo.Point `json:"startCoordinate"`
	End             geo.Point `json:"endCoordinate"`

	// ExistingGeometry is whatever geometry the event carried in. It is
	// accepted for contract compatibility but never trusted: resolution
	// always derives a fresh geometry so that stale shapes from earlier
	// pipeline versions get replaced.
	ExistingGeometry *geojson.Geometry `json:"existingGeometry,omitempty"`
}

// Validate rejects records whose coordinates would poison distance math.
func (l Location) Validate() error {
	if l.ID == "" {
		return errors.New("event id is required")
	}
	if !l.Start.Valid() {
		return fmt.Errorf("event %s: invalid start coordinate", l.ID)
	}
	if !l.End.Valid() {
		return fmt.Errorf("event %s: invalid end coordinate", l.ID)
	}
	return nil
}

// Resolved is the event record augmented with a road-following geometry.
type Resolved struct {
	Location

	// Geometry is a GeoJSON LineString, or a MultiLineString for
	// undirected events rendered as two offset carriageways.
	Geometry       geojson.Geometry `json:"geometry"`
	GeometrySource Source           `json:"geometrySource"`

	Direction           direction.Direction `json:"direction,omitempty"`
	DirectionCorrected  bool                `json:"directionCorrected,omitempty"`
	DirectionConfidence float64             `json:"directionConfidence,omitempty"`

	// ParityMismatch flags events whose resolved direction runs against
	// the route's numbering-convention axis; surfaced for manual review
	// rather than silently trusted either way.
	ParityMismatch bool `json:"parityMismatch,omitempty"`

	// RateLimited notes that an external provider answered with a
	// rate-limit response during resolution. Batch jobs use it to pace
	// themselves; it is not part of the output contract.
	RateLimited bool `json:"-"`
}

// LineGeometry wraps a polyline as a GeoJSON LineString geometry.
// GeoJSON positions are (longitude, latitude) ordered.
func LineGeometry(line geo.Polyline) geojson.Geometry {
	ls := make(geom.LineString, len(line.Points))
	for i, p := range line.Points {
		ls[i] = [2]float64{p.Longitude, p.Latitude}
	}
	return geojson.Geometry{Geometry: ls}
}

// MultiLineGeometry wraps several polylines as a GeoJSON MultiLineString.
func MultiLineGeometry(lines ...geo.Polyline) geojson.Geometry {
	mls := make(geom.MultiLineString, len(lines))
	for i, line := range lines {
		part := make([][2]float64, len(line.Points))
		for j, p := range line.Points {
			part[j] = [2]float64{p.Longitude, p.Latitude}
		}
		mls[i] = part
	}
	return geojson.Geometry{Geometry: mls}
}

// GeometryLines converts a GeoJSON geometry back into polylines. Used by
// the cache round trip and by tests; unsupported geometry types yield nil.
func GeometryLines(g geojson.Geometry) []geo.Polyline {
	switch gg := g.Geometry.(type) {
	case geom.LineString:
		return []geo.Polyline{lineFromCoords(gg)}
	case geom.MultiLineString:
		lines := make([]geo.Polyline, len(gg))
		for i, part := range gg {
			lines[i] = lineFromCoords(part)
		}
		return lines
	}
	return nil
}

func lineFromCoords(coords [][2]float64) geo.Polyline {
	points := make([]geo.Point, len(coords))
	for i, c := range coords {
		points[i] = geo.Point{Latitude: c[1], Longitude: c[0]}
	}
	return geo.Polyline{Points: points}
}
