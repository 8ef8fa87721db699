// Package stops loads the static GTFS stops.txt subset a network serves over
// its inspection api
package stops

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
)

// Stop is one stop location from a GTFS stops.txt file
type Stop struct {
	StopID   string  `json:"stopId"`
	StopCode string  `json:"stopCode,omitempty"`
	Name     string  `json:"name,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// StopsMap holds every loaded stop keyed by stop id
type StopsMap map[string]*Stop

// LoadFile reads the stops.txt file at path
func LoadFile(log *log.Logger, path string) (StopsMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open stops file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	stopsMap, err := Load(log, file)
	if err != nil {
		return nil, fmt.Errorf("unable to load stops file %s: %w", path, err)
	}
	return stopsMap, nil
}

// Load reads GTFS stops.txt rows from r. Rows with unusable coordinates are
// skipped with a warning, a missing required header is an error.
func Load(log *log.Logger, r io.Reader) (StopsMap, error) {
	csvReader := csv.NewReader(r)

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read stops header: %v", err)
	}
	removeBOMIfPresent(headers)

	idIndex := indexOf("stop_id", headers)
	latIndex := indexOf("stop_lat", headers)
	lonIndex := indexOf("stop_lon", headers)
	codeIndex := indexOf("stop_code", headers)
	nameIndex := indexOf("stop_name", headers)
	if idIndex < 0 || latIndex < 0 || lonIndex < 0 {
		return nil, fmt.Errorf("stops file is missing one of the required headers stop_id, stop_lat, stop_lon")
	}

	stopsMap := make(StopsMap)
	line := 1
	for {
		records, readErr := csvReader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("unable to read stops line %d: %v", line+1, readErr)
		}
		line++

		stop := Stop{StopID: records[idIndex]}
		if stop.StopID == "" {
			log.Printf("skipping stops line %d: empty stop_id\n", line)
			continue
		}
		stop.Lat, err = strconv.ParseFloat(records[latIndex], 64)
		if err == nil {
			stop.Lon, err = strconv.ParseFloat(records[lonIndex], 64)
		}
		if err != nil {
			log.Printf("skipping stop %s on line %d: unusable coordinates: %v\n", stop.StopID, line, err)
			continue
		}
		if codeIndex >= 0 {
			stop.StopCode = records[codeIndex]
		}
		if nameIndex >= 0 {
			stop.Name = records[nameIndex]
		}
		stopsMap[stop.StopID] = &stop
	}
	return stopsMap, nil
}

func removeBOMIfPresent(headers []string) {
	if len(headers) < 1 {
		return
	}
	firstHeader := headers[0]
	if len(firstHeader) < 1 {
		return
	}
	runes := []rune(firstHeader)
	if runes[0] == '\uFEFF' {
		headers[0] = string(runes[1:])
	}
}

// indexOf finds the position of name, returns -1 if not found
func indexOf(name string, elements []string) int {
	for i, value := range elements {
		if name == value {
			return i
		}
	}
	return -1
}
