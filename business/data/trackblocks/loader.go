package trackblocks

import (
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/openrailtools/railcast/foundation/geo"
)

var (
	digitRunRegexp  = regexp.MustCompile(`[0-9]+`)
	altBlockRegexp  = regexp.MustCompile(`\+([0-9]+)`)
	routeListRegexp = regexp.MustCompile(`\[([^\]]*)\]`)
	priorityRegexp  = regexp.MustCompile(`[A-Za-z]{3,}`)
	bearingRegexp   = regexp.MustCompile(`^(-?[0-9]+(?:\.[0-9]+)?)deg$`)
)

// kml document skeleton holding only the elements the loader reads.
// Folders nest, so the container is recursive.
type kmlRoot struct {
	Document kmlContainer `xml:"Document"`
}

type kmlContainer struct {
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlContainer `xml:"Folder"`
}

type kmlPlacemark struct {
	Name        string   `xml:"name"`
	Description string   `xml:"description"`
	Coordinates []string `xml:"Polygon>outerBoundaryIs>LinearRing>coordinates"`
}

// LoadFile reads the KML track block file at path into a TrackBlockMap
func LoadFile(log *log.Logger, path string) (*TrackBlockMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open track block file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	blockMap, err := Load(log, file)
	if err != nil {
		return nil, fmt.Errorf("unable to load track block file %s: %w", path, err)
	}
	return blockMap, nil
}

// Load parses KML from r and returns the TrackBlockMap in canonical order.
// Placemarks that cannot be understood are skipped with a warning, only a
// malformed document is an error.
func Load(log *log.Logger, r io.Reader) (*TrackBlockMap, error) {
	var root kmlRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("unable to parse track block kml: %w", err)
	}

	var blocks []*TrackBlock
	seen := make(map[int]bool)
	for _, placemark := range collectPlacemarks(root.Document) {
		block := buildTrackBlock(log, placemark)
		if block == nil {
			continue
		}
		if seen[block.BlockNumber] {
			log.Printf("ignoring duplicate block number %d from placemark %q\n",
				block.BlockNumber, placemark.Name)
			continue
		}
		seen[block.BlockNumber] = true
		blocks = append(blocks, block)
	}

	blockMap := MakeTrackBlockMap(blocks)
	warnSuspectPlatforms(log, blockMap)
	return blockMap, nil
}

// collectPlacemarks flattens placemarks out of arbitrarily nested folders
func collectPlacemarks(container kmlContainer) []kmlPlacemark {
	placemarks := container.Placemarks
	for _, folder := range container.Folders {
		placemarks = append(placemarks, collectPlacemarks(folder)...)
	}
	return placemarks
}

// buildTrackBlock turns one placemark into a TrackBlock, or nil when the name
// carries no block number
func buildTrackBlock(log *log.Logger, placemark kmlPlacemark) *TrackBlock {
	name := strings.TrimSpace(placemark.Name)
	numberText := digitRunRegexp.FindString(name)
	if numberText == "" {
		log.Printf("skipping placemark %q: no block number in name\n", name)
		return nil
	}
	blockNumber, err := strconv.Atoi(numberText)
	if err != nil {
		log.Printf("skipping placemark %q: unusable block number %q\n", name, numberText)
		return nil
	}

	block := TrackBlock{
		BlockNumber: blockNumber,
		Name:        name,
		Priority:    priorityRegexp.MatchString(name),
	}
	if match := altBlockRegexp.FindStringSubmatch(name); match != nil {
		if altNumber, altErr := strconv.Atoi(match[1]); altErr == nil {
			block.AltBlock = &altNumber
		}
	}
	if match := routeListRegexp.FindStringSubmatch(name); match != nil {
		block.Routes = splitRouteList(match[1])
	}

	if len(placemark.Coordinates) > 0 {
		block.Polygon = parsePolygon(log, name, placemark.Coordinates[0])
	}
	if len(block.Polygon) < 3 {
		log.Printf("placemark %q has no usable polygon, block %d will never match a position\n",
			name, blockNumber)
	}

	for _, line := range strings.Split(placemark.Description, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		if platform := parsePlatformLine(log, name, line); platform != nil {
			block.Platforms = append(block.Platforms, *platform)
		}
	}
	return &block
}

// parsePolygon reads space-separated "lon,lat[,alt]" tuples
func parsePolygon(log *log.Logger, name string, text string) []geo.Point {
	var polygon []geo.Point
	for _, tuple := range strings.Fields(text) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			log.Printf("placemark %q: skipping malformed coordinate %q\n", name, tuple)
			continue
		}
		lon, lonErr := strconv.ParseFloat(parts[0], 64)
		lat, latErr := strconv.ParseFloat(parts[1], 64)
		if lonErr != nil || latErr != nil {
			log.Printf("placemark %q: skipping malformed coordinate %q\n", name, tuple)
			continue
		}
		polygon = append(polygon, geo.Point{Lat: lat, Lon: lon})
	}
	return polygon
}

// parsePlatformLine reads one description line into a Platform. The first
// comma-separated field carries the platform block number, the remaining
// fields are recognized by shape: quoted or semicolon-separated stop ids, the
// literal Default, a bearing ending in "deg", or a [route,route] list.
func parsePlatformLine(log *log.Logger, name string, line string) *Platform {
	fields := splitOutsideBrackets(line)
	if len(fields) == 0 {
		return nil
	}

	numberText := digitRunRegexp.FindString(fields[0])
	if numberText == "" {
		log.Printf("placemark %q: skipping platform line %q: no block number\n", name, line)
		return nil
	}
	blockNumber, err := strconv.Atoi(numberText)
	if err != nil {
		log.Printf("placemark %q: skipping platform line %q: unusable block number\n", name, line)
		return nil
	}
	platform := Platform{BlockNumber: blockNumber}

	for _, field := range fields[1:] {
		field = strings.TrimSpace(field)
		switch {
		case field == "Default":
			platform.IsDefault = true
		case strings.HasPrefix(field, "["):
			if match := routeListRegexp.FindStringSubmatch(field); match != nil {
				platform.Routes = splitRouteList(match[1])
			}
		case bearingRegexp.MatchString(field):
			match := bearingRegexp.FindStringSubmatch(field)
			bearing, bearingErr := strconv.ParseFloat(match[1], 64)
			if bearingErr == nil {
				bearing = math.Mod(bearing, 360)
				if bearing < 0 {
					bearing += 360
				}
				platform.Bearing = &bearing
			}
		case strings.ContainsAny(field, `";`):
			platform.StopIDs = append(platform.StopIDs, splitStopIDs(field)...)
		}
	}
	return &platform
}

// splitOutsideBrackets splits line on commas that are not inside [...]
func splitOutsideBrackets(line string) []string {
	var fields []string
	depth := 0
	start := 0
	for i, c := range line {
		switch c {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				fields = append(fields, line[start:i])
				start = i + 1
			}
		}
	}
	fields = append(fields, line[start:])
	return fields
}

func splitRouteList(text string) []string {
	var routes []string
	for _, route := range strings.Split(text, ",") {
		route = strings.TrimSpace(route)
		if route != "" {
			routes = append(routes, route)
		}
	}
	return routes
}

func splitStopIDs(field string) []string {
	var stopIDs []string
	for _, stopID := range strings.Split(strings.ReplaceAll(field, `"`, ""), ";") {
		stopID = strings.TrimSpace(stopID)
		if stopID != "" {
			stopIDs = append(stopIDs, stopID)
		}
	}
	return stopIDs
}

// warnSuspectPlatforms logs platform definitions that usually indicate a
// drawing mistake in the KML: bearings within one block that are neither
// equal nor opposite, and platform numbers that collide with another block's
// main number.
func warnSuspectPlatforms(log *log.Logger, blockMap *TrackBlockMap) {
	for _, block := range blockMap.Ordered() {
		for i := 0; i < len(block.Platforms); i++ {
			for j := i + 1; j < len(block.Platforms); j++ {
				a := block.Platforms[i].Bearing
				b := block.Platforms[j].Bearing
				if a == nil || b == nil {
					continue
				}
				diff := geo.BearingDifference(*a, *b)
				if diff > 0.001 && math.Abs(diff-180) > 0.001 {
					log.Printf("block %d platforms %d and %d have bearings %.1f and %.1f, expected equal or opposite\n",
						block.BlockNumber, block.Platforms[i].BlockNumber, block.Platforms[j].BlockNumber, *a, *b)
				}
			}
		}
		for i := range block.Platforms {
			owner := blockMap.Get(block.Platforms[i].BlockNumber)
			if owner != nil && owner != block {
				log.Printf("block %d platform number %d collides with block %d\n",
					block.BlockNumber, block.Platforms[i].BlockNumber, owner.BlockNumber)
			}
		}
	}
}
