// Package arcgis queries the federal linear-referenced road dataset
// (ArcGIS REST feature service) for route geometry by identifier and
// bounding box. The service returns many short, disjoint path fragments;
// the caller is expected to stitch them.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/openroads/corridor/internal/clients"
	"github.com/openroads/corridor/internal/lib/geo"
)

// Client queries one layer of an ArcGIS REST feature service.
type Client struct {
	baseURL    string
	routeField string
	httpClient *http.Client
}

// NewClient creates an ArcGIS client for a feature-layer query endpoint,
// e.g. ".../FeatureServer/0/query". routeField is the attribute holding the
// route identifier ("ROUTE_NAME" on most state HPMS layers).
func NewClient(baseURL, routeField string, timeout time.Duration) *Client {
	if routeField == "" {
		routeField = "ROUTE_NAME"
	}
	return &Client{
		baseURL:    baseURL,
		routeField: routeField,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "arcgis" }

type queryResponse struct {
	Features []struct {
		Geometry struct {
			Paths [][][2]float64 `json:"paths"`
		} `json:"geometry"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch returns route fragments intersecting the bounding box. Fragments
// come back in arbitrary order and are usually short; empty results,
// timeouts and in-band throttle errors all yield an empty slice.
func (c *Client) Fetch(ctx context.Context, bounds geo.BoundingBox, routeHint string) ([]geo.Polyline, error) {
	params := url.Values{
		"f":              {"json"},
		"geometryType":   {"esriGeometryEnvelope"},
		"geometry":       {fmt.Sprintf("%f,%f,%f,%f", bounds.MinLon, bounds.MinLat, bounds.MaxLon, bounds.MaxLat)},
		"inSR":           {"4326"},
		"outSR":          {"4326"},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"returnGeometry": {"true"},
		"outFields":      {c.routeField},
	}
	if routeHint != "" {
		params.Set("where", fmt.Sprintf("UPPER(%s) LIKE UPPER('%%%s%%')", c.routeField, escapeSQL(routeHint)))
	} else {
		params.Set("where", "1=1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if clients.IsTimeout(err) {
			logging.Infow(ctx, "ArcGIS query timed out, treating as empty", "route", routeHint)
			return nil, nil
		}
		return nil, fmt.Errorf("arcgis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, clients.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arcgis HTTP error %d", resp.StatusCode)
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode arcgis response: %w", err)
	}
	if parsed.Error != nil {
		// ArcGIS reports throttling in-band with HTTP 200.
		if parsed.Error.Code == 429 || parsed.Error.Code == 503 {
			return nil, clients.ErrRateLimited
		}
		logging.Warnw(ctx, "ArcGIS query error, treating as empty",
			"code", parsed.Error.Code, "message", parsed.Error.Message)
		return nil, nil
	}

	var lines []geo.Polyline
	for _, f := range parsed.Features {
		for _, path := range f.Geometry.Paths {
			points := make([]geo.Point, 0, len(path))
			for _, c := range path {
				// Esri paths are (x, y) = (lon, lat)
				points = append(points, geo.Point{Latitude: c[1], Longitude: c[0]})
			}
			points = geo.DedupeConsecutive(points)
			if len(points) >= 2 {
				lines = append(lines, geo.Polyline{Points: points})
			}
		}
	}
	return lines, nil
}

// escapeSQL doubles single quotes for the where clause; the service rejects
// parameterized queries.
func escapeSQL(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(out)
}
