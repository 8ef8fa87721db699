package ltm

import (
	logger "log"
	"strings"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
	"github.com/openrailtools/railcast/foundation/geo"
)

type testLogWriter struct {
	logLines []string
	log      *logger.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	log := logger.New(&logWriter, "LTM_SERVER : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	logWriter.log = log
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func (t *testLogWriter) containsLine(part string) bool {
	for _, line := range t.logLines {
		if strings.Contains(line, part) {
			return true
		}
	}
	return false
}

func float64Ptr(f float64) *float64 {
	return &f
}

//trainEntity builds a position feed entity the way vendor feeds shape them
func trainEntity(vehicleID string, lat, lon float64, speed, bearing *float64,
	route string, timestamp int64) *gtfsrt.Entity {
	return &gtfsrt.Entity{
		ID: vehicleID,
		Vehicle: &gtfsrt.VehiclePosition{
			Trip:      &gtfsrt.TripDescriptor{TripID: "trip-" + vehicleID, RouteID: route},
			Position:  &gtfsrt.Position{Latitude: lat, Longitude: lon, Speed: speed, Bearing: bearing},
			Vehicle:   &gtfsrt.VehicleDescriptor{ID: vehicleID},
			Timestamp: gtfsrt.FlexInt64(timestamp),
		},
	}
}

//squarePolygon builds an axis aligned polygon between two corners
func squarePolygon(latMin, lonMin, latMax, lonMax float64) []geo.Point {
	return []geo.Point{
		{Lat: latMin, Lon: lonMin},
		{Lat: latMin, Lon: lonMax},
		{Lat: latMax, Lon: lonMax},
		{Lat: latMax, Lon: lonMin},
	}
}
