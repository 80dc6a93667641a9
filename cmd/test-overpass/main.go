package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/openroads/corridor/internal/clients/overpass"
	"github.com/openroads/corridor/internal/lib/geo"
)

// Manual check against the live Overpass API. Fetches road geometry around a
// coordinate pair and prints fragment stats.
func main() {
	lat1 := flag.Float64("lat1", 41.6611, "Latitude of first point")
	lon1 := flag.Float64("lon1", -91.5302, "Longitude of first point")
	lat2 := flag.Float64("lat2", 41.6544, "Latitude of second point")
	lon2 := flag.Float64("lon2", -91.4891, "Longitude of second point")
	route := flag.String("route", "I-80", "Route name hint")
	padding := flag.Float64("padding", 1500, "Bounding box padding in meters")
	flag.Parse()

	points := []geo.Point{
		{Latitude: *lat1, Longitude: *lon1},
		{Latitude: *lat2, Longitude: *lon2},
	}
	bounds := geo.BoundsAround(points, *padding)

	client := overpass.NewClient("", 60*time.Second)
	fmt.Printf("Querying Overpass for %q in [%.4f,%.4f,%.4f,%.4f]...\n",
		*route, bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	fragments, err := client.Fetch(ctx, bounds, *route)
	if err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
	if len(fragments) == 0 {
		fmt.Println("No fragments returned (timeout, throttle, or nothing matched)")
		return
	}

	total := 0.0
	for i, f := range fragments {
		length := geo.PathLength(f)
		total += length
		fmt.Printf("  fragment %d: %d points, %.0f m\n", i, len(f.Points), length)
	}
	fmt.Printf("%d fragments, %.1f km total\n", len(fragments), total/1000)
}
