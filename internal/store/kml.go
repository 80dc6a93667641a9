package store

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	kml "github.com/twpayne/go-kml/v2"

	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/lib/geo"
)

// State DOT corridor feeds arrive as KML documents of LineString
// placemarks, one per corridor carriageway, with the direction carried as a
// trailing token of the placemark name ("I-80 WB"). go-kml only writes
// KML, so the import side is a minimal xml decode of the handful of
// elements the feeds actually use.

type kmlFile struct {
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlFolder struct {
	Folders    []kmlFolder    `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name       string `xml:"name"`
	LineString *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"LineString"`
}

// ImportKML parses corridor placemarks out of a KML feed. Placemarks
// without a LineString or with fewer than 2 points are skipped. The source
// tag is stamped on every imported corridor.
func ImportKML(r io.Reader, source string) ([]Corridor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read KML: %w", err)
	}

	var doc kmlFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}

	now := time.Now().UTC()
	var corridors []Corridor

	var walk func(placemarks []kmlPlacemark, folders []kmlFolder)
	walk = func(placemarks []kmlPlacemark, folders []kmlFolder) {
		for _, p := range placemarks {
			if c, ok := corridorFromPlacemark(p, source, now); ok {
				corridors = append(corridors, c)
			}
		}
		for _, f := range folders {
			walk(f.Placemarks, f.Folders)
		}
	}
	walk(doc.Document.Placemarks, doc.Document.Folders)

	return corridors, nil
}

func corridorFromPlacemark(p kmlPlacemark, source string, now time.Time) (Corridor, bool) {
	if p.LineString == nil {
		return Corridor{}, false
	}

	points := geo.DedupeConsecutive(parseCoordinates(p.LineString.Coordinates))
	if len(points) < 2 {
		return Corridor{}, false
	}

	name, dir := splitDirectedName(p.Name)
	if name == "" {
		return Corridor{}, false
	}

	return Corridor{
		Name:      name,
		Direction: dir,
		Line:      geo.Polyline{Points: points},
		Bounds:    geo.BoundsAround(points, 0),
		Source:    source,
		UpdatedAt: now,
	}, true
}

// parseCoordinates decodes the KML "lon,lat[,alt]" whitespace-separated
// coordinate list, dropping malformed tuples.
func parseCoordinates(s string) []geo.Point {
	var points []geo.Point
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(parts[0], 64)
		lat, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		p := geo.Point{Latitude: lat, Longitude: lon}
		if p.Valid() {
			points = append(points, p)
		}
	}
	return points
}

// splitDirectedName separates a trailing direction token from a placemark
// name: "I-80 WB" → ("I-80", W). Names without a direction token import as
// undirected.
func splitDirectedName(name string) (string, direction.Direction) {
	name = strings.TrimSpace(name)
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return name, direction.Undirected
	}

	last := fields[len(fields)-1]
	if d, ok := direction.ParseStated(last); ok {
		return strings.Join(fields[:len(fields)-1], " "), d
	}
	return name, direction.Undirected
}

// ExportKML writes corridors as a KML document, one LineString placemark
// per corridor, for inspection in mapping tools.
func ExportKML(w io.Writer, corridors []Corridor) error {
	var placemarks []kml.Element
	for _, c := range corridors {
		coords := make([]kml.Coordinate, len(c.Line.Points))
		for i, p := range c.Line.Points {
			coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
		}

		name := c.Name
		if c.Direction != direction.Undirected {
			name = fmt.Sprintf("%s %s", c.Name, c.Direction)
		}

		placemarks = append(placemarks, kml.Placemark(
			kml.Name(name),
			kml.Description(fmt.Sprintf("source: %s", c.Source)),
			kml.LineString(kml.Coordinates(coords...)),
		))
	}

	doc := kml.KML(kml.Document(placemarks...))
	return doc.WriteIndent(w, "", "  ")
}
