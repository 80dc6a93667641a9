package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/openroads/corridor/internal/lib/direction"
	"github.com/openroads/corridor/internal/lib/geo"
)

// Manual check tool for the geo primitives. Not part of the service.
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "distance":
		handleDistance()
	case "bearing":
		handleBearing()
	case "classify":
		handleClassify()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func parsePoints(fs *flag.FlagSet) (geo.Point, geo.Point) {
	lat1 := fs.Float64("lat1", 0, "Latitude of first point")
	lon1 := fs.Float64("lon1", 0, "Longitude of first point")
	lat2 := fs.Float64("lat2", 0, "Latitude of second point")
	lon2 := fs.Float64("lon2", 0, "Longitude of second point")
	fs.Parse(os.Args[2:])
	return geo.Point{Latitude: *lat1, Longitude: *lon1},
		geo.Point{Latitude: *lat2, Longitude: *lon2}
}

func handleDistance() {
	fs := flag.NewFlagSet("distance", flag.ExitOnError)
	p1, p2 := parsePoints(fs)
	fmt.Printf("Distance: %.1f meters\n", geo.Haversine(p1, p2))
}

func handleBearing() {
	fs := flag.NewFlagSet("bearing", flag.ExitOnError)
	p1, p2 := parsePoints(fs)
	fmt.Printf("Bearing: %.1f degrees\n", geo.Bearing(p1, p2))
}

func handleClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	p1, p2 := parsePoints(fs)
	b := geo.Bearing(p1, p2)
	fmt.Printf("Bearing %.1f classifies as %s\n", b, direction.Classify(b))
}

func printUsage() {
	fmt.Println("Usage: test-geo <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  distance   Haversine distance between two points")
	fmt.Println("  bearing    Initial bearing from the first point to the second")
	fmt.Println("  classify   Cardinal direction of the bearing between two points")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  test-geo distance --lat1 41.6611 --lon1 -91.5302 --lat2 41.6544 --lon2 -91.4891")
}
