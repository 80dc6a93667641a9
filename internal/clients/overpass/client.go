// Package overpass queries the crowd-sourced road-network service for way
// geometries by bounding box and route reference.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/openroads/corridor/internal/clients"
	"github.com/openroads/corridor/internal/lib/geo"
)

// DefaultBaseURL is the public Overpass API endpoint.
const DefaultBaseURL = "https://overpass-api.de/api/interpreter"

// Client queries the Overpass API. The HTTP timeout is injected rather
// than ambient; Overpass queries for a dense corridor can run long.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an Overpass client with the given endpoint and timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the adapter in logs and provenance breakdowns.
func (c *Client) Name() string { return "overpass" }

type overpassResponse struct {
	Elements []struct {
		Type     string `json:"type"`
		Geometry []struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"geometry"`
	} `json:"elements"`
}

// Fetch returns the way geometries of the named route inside the bounding
// box. Timeouts and empty result sets return an empty slice; a rate-limit
// response returns clients.ErrRateLimited.
func (c *Client) Fetch(ctx context.Context, bounds geo.BoundingBox, routeHint string) ([]geo.Polyline, error) {
	query := buildQuery(bounds, routeHint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(url.Values{"data": {query}}.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if clients.IsTimeout(err) {
			logging.Infow(ctx, "Overpass query timed out, treating as empty", "route", routeHint)
			return nil, nil
		}
		return nil, fmt.Errorf("overpass request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, clients.ErrRateLimited
	case resp.StatusCode == http.StatusGatewayTimeout:
		logging.Infow(ctx, "Overpass gateway timeout, treating as empty", "route", routeHint)
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("overpass HTTP error %d", resp.StatusCode)
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}

	var lines []geo.Polyline
	for _, el := range parsed.Elements {
		if el.Type != "way" {
			continue
		}
		points := make([]geo.Point, 0, len(el.Geometry))
		for _, g := range el.Geometry {
			points = append(points, geo.Point{Latitude: g.Lat, Longitude: g.Lon})
		}
		points = geo.DedupeConsecutive(points)
		if len(points) >= 2 {
			lines = append(lines, geo.Polyline{Points: points})
		}
	}
	return lines, nil
}

var refNumber = regexp.MustCompile(`\d+`)

// buildQuery assembles an Overpass QL query for highway ways in the box,
// filtered by route ref when the hint carries a route number.
func buildQuery(b geo.BoundingBox, routeHint string) string {
	bbox := fmt.Sprintf("%f,%f,%f,%f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)

	refFilter := ""
	if num := refNumber.FindString(routeHint); num != "" {
		// Match "I 80", "US 80;I 80" and similar ref tag variants.
		refFilter = fmt.Sprintf(`["ref"~"(^|;| )%s($|;)"]`, num)
	}

	return fmt.Sprintf(
		`[out:json][timeout:25];way["highway"~"motorway|trunk|primary|secondary"]%s(%s);out geom;`,
		refFilter, bbox)
}
