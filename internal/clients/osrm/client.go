// Package osrm requests road-following driving paths between two points
// from a turn-by-turn routing service.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/twpayne/go-polyline"

	"github.com/openroads/corridor/internal/clients"
	"github.com/openroads/corridor/internal/lib/geo"
)

// DefaultBaseURL is the public OSRM demo server. Production deployments
// point this at a self-hosted instance.
const DefaultBaseURL = "https://router.project-osrm.org"

// Client requests driving routes from an OSRM-compatible service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a routing client with the given endpoint and timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "osrm" }

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry string `json:"geometry"`
	} `json:"routes"`
}

// Route returns the driving path between start and end as decoded from the
// service's encoded polyline. The path is already road-following and is
// accepted verbatim by the pipeline. No-route, timeout and rate-limit
// conditions yield an empty polyline; rate limits additionally surface
// clients.ErrRateLimited.
func (c *Client) Route(ctx context.Context, start, end geo.Point) (geo.Polyline, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=polyline",
		c.baseURL, start.Longitude, start.Latitude, end.Longitude, end.Latitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return geo.Polyline{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if clients.IsTimeout(err) {
			logging.Infow(ctx, "Routing request timed out, treating as empty")
			return geo.Polyline{}, nil
		}
		return geo.Polyline{}, fmt.Errorf("routing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return geo.Polyline{}, clients.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return geo.Polyline{}, fmt.Errorf("routing HTTP error %d", resp.StatusCode)
	}

	var parsed routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return geo.Polyline{}, fmt.Errorf("failed to decode routing response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return geo.Polyline{}, nil
	}

	coords, _, err := polyline.DecodeCoords([]byte(parsed.Routes[0].Geometry))
	if err != nil {
		return geo.Polyline{}, fmt.Errorf("failed to decode route polyline: %w", err)
	}

	points := make([]geo.Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, geo.Point{Latitude: c[0], Longitude: c[1]})
	}
	points = geo.DedupeConsecutive(points)
	if len(points) < 2 {
		return geo.Polyline{}, nil
	}
	return geo.Polyline{Points: points}, nil
}
