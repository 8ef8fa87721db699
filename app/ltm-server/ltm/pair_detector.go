package ltm

import (
	"fmt"
	logger "log"
	"math"
	"time"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
	"github.com/openrailtools/railcast/foundation/geo"
)

//TrainPair records two vehicles travelling coupled as one physical train.
//VehicleIDs are kept sorted and the remaining fields are a diagnostic
//snapshot of the moment the pair was detected.
type TrainPair struct {
	Key        string     `json:"key"`
	VehicleIDs [2]string  `json:"vehicleIds"`
	DetectedAt int64      `json:"detectedAt"`
	DistanceM  float64    `json:"distanceMeters"`
	Speeds     [2]float64 `json:"speeds"`
	Bearings   [2]float64 `json:"bearings"`
	Routes     [2]string  `json:"routes"`
}

//Contains returns true when vehicleID is one of the pair's two vehicles
func (p *TrainPair) Contains(vehicleID string) bool {
	return p.VehicleIDs[0] == vehicleID || p.VehicleIDs[1] == vehicleID
}

//pairDetector maintains the set of coupled train pairs across cycles
type pairDetector struct {
	log    *logger.Logger
	config PairDetectionConfig
	pairs  []*TrainPair
}

func makePairDetector(log *logger.Logger, config PairDetectionConfig) *pairDetector {
	return &pairDetector{
		log:    log,
		config: config,
	}
}

//currentPairs returns the pair slice for cache persistence and inspection
func (d *pairDetector) currentPairs() []*TrainPair {
	return d.pairs
}

//restore replaces the pair state, used when loading a cache file
func (d *pairDetector) restore(pairs []*TrainPair) {
	if pairs == nil {
		return
	}
	d.pairs = pairs
}

//update runs the break phase over existing pairs and the detect phase over
//the remaining trains, then returns the vehicle ids to hide this cycle
func (d *pairDetector) update(now time.Time, trains []*gtfsrt.Entity) map[string]bool {
	trainsByID := make(map[string]*gtfsrt.Entity)
	for _, train := range trains {
		trainsByID[train.VehicleID()] = train
	}

	excluded := d.breakPairs(trainsByID)
	d.detectPairs(now, trains, excluded)
	return d.invisibleIDs(trainsByID)
}

//breakPairs removes pairs whose vehicles have drifted beyond the break
//distance. Every vehicle belonging to a surviving or broken pair is
//excluded from new-pair detection this cycle.
func (d *pairDetector) breakPairs(trainsByID map[string]*gtfsrt.Entity) map[string]bool {
	excluded := make(map[string]bool)
	kept := d.pairs[:0]
	for _, pair := range d.pairs {
		excluded[pair.VehicleIDs[0]] = true
		excluded[pair.VehicleIDs[1]] = true

		first, firstPresent := trainsByID[pair.VehicleIDs[0]]
		second, secondPresent := trainsByID[pair.VehicleIDs[1]]
		if firstPresent && secondPresent && first.HasCoordinates() && second.HasCoordinates() {
			distance := geo.Distance(first.Vehicle.Position.Latitude, first.Vehicle.Position.Longitude,
				second.Vehicle.Position.Latitude, second.Vehicle.Position.Longitude)
			if distance > d.config.BreakDistanceMeters {
				d.log.Printf("removing train pair %s. distance %.1fm exceeds break distance %.1fm\n",
					pair.Key, distance, d.config.BreakDistanceMeters)
				continue
			}
		}
		kept = append(kept, pair)
	}
	d.pairs = kept
	return excluded
}

//detectPairs finds new coupled pairs among trains that are moving, recently
//reported and not already paired. Pairing is greedy, a vehicle joins at
//most one pair per cycle.
func (d *pairDetector) detectPairs(now time.Time, trains []*gtfsrt.Entity, excluded map[string]bool) {
	var candidates []*gtfsrt.Entity
	for _, train := range trains {
		if excluded[train.VehicleID()] {
			continue
		}
		if d.isCandidate(now, train) {
			candidates = append(candidates, train)
		}
	}

	used := make(map[string]bool)
	for i := 0; i < len(candidates); i++ {
		first := candidates[i]
		if used[first.VehicleID()] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			second := candidates[j]
			if used[second.VehicleID()] {
				continue
			}
			distance, coupled := d.coupled(first, second)
			if !coupled {
				continue
			}
			pair := makeTrainPair(first, second, distance, now.Unix())
			d.pairs = append(d.pairs, pair)
			used[first.VehicleID()] = true
			used[second.VehicleID()] = true
			d.log.Printf("detected coupled train pair %s at %.1fm\n", pair.Key, distance)
			break
		}
	}
}

//isCandidate returns true when a train is eligible for pair detection this
//cycle
func (d *pairDetector) isCandidate(now time.Time, train *gtfsrt.Entity) bool {
	if !train.HasCoordinates() {
		return false
	}
	speed := train.Vehicle.Position.Speed
	if speed == nil || *speed < d.config.MinSpeedMS {
		return false
	}
	age := now.Unix() - train.Timestamp()
	return age <= int64(d.config.PositionAgeSeconds)
}

//coupled applies the pairing rules to two candidate trains, returning the
//haversine distance between them and whether they travel as one train
func (d *pairDetector) coupled(first, second *gtfsrt.Entity) (float64, bool) {
	distance := geo.Distance(first.Vehicle.Position.Latitude, first.Vehicle.Position.Longitude,
		second.Vehicle.Position.Latitude, second.Vehicle.Position.Longitude)

	//reported positions on one consist can sit up to two train lengths apart
	adjusted := math.Max(distance-2*d.config.TrainLengthMeters, 0)
	if adjusted > 2*d.config.TrainLengthMeters {
		return distance, false
	}

	dt := first.Timestamp() - second.Timestamp()
	if dt < 0 {
		dt = -dt
	}
	if dt == 0 {
		if adjusted > 0 {
			return distance, false
		}
	} else if adjusted/float64(dt) > d.config.MaxSpeedMS {
		return distance, false
	}

	if math.Abs(*first.Vehicle.Position.Speed-*second.Vehicle.Position.Speed) > d.config.MaxSpeedDiffMS {
		return distance, false
	}

	firstBearing := first.Vehicle.Position.Bearing
	secondBearing := second.Vehicle.Position.Bearing
	if firstBearing == nil || secondBearing == nil {
		return distance, false
	}
	if geo.BearingDifference(*firstBearing, *secondBearing) > d.config.MaxBearingDiffDeg {
		return distance, false
	}

	firstRoute := first.RouteID()
	secondRoute := second.RouteID()
	if firstRoute != "" && secondRoute != "" && firstRoute != secondRoute {
		return distance, false
	}
	return distance, true
}

//invisibleIDs designates one vehicle of every pair to hide this cycle,
//preferring the vehicle without a route id
func (d *pairDetector) invisibleIDs(trainsByID map[string]*gtfsrt.Entity) map[string]bool {
	invisible := make(map[string]bool)
	for _, pair := range d.pairs {
		firstRoute := routeOf(trainsByID, pair.VehicleIDs[0])
		secondRoute := routeOf(trainsByID, pair.VehicleIDs[1])
		switch {
		case firstRoute == "" && secondRoute != "":
			invisible[pair.VehicleIDs[0]] = true
		default:
			invisible[pair.VehicleIDs[1]] = true
		}
	}
	return invisible
}

func routeOf(trainsByID map[string]*gtfsrt.Entity, vehicleID string) string {
	if train, present := trainsByID[vehicleID]; present {
		return train.RouteID()
	}
	return ""
}

func makeTrainPair(first, second *gtfsrt.Entity, distance float64, detectedAt int64) *TrainPair {
	if first.VehicleID() > second.VehicleID() {
		first, second = second, first
	}
	pair := TrainPair{
		Key:        fmt.Sprintf("%s-%s", first.VehicleID(), second.VehicleID()),
		VehicleIDs: [2]string{first.VehicleID(), second.VehicleID()},
		DetectedAt: detectedAt,
		DistanceM:  distance,
		Routes:     [2]string{first.RouteID(), second.RouteID()},
	}
	if first.Vehicle.Position.Speed != nil {
		pair.Speeds[0] = *first.Vehicle.Position.Speed
	}
	if second.Vehicle.Position.Speed != nil {
		pair.Speeds[1] = *second.Vehicle.Position.Speed
	}
	if first.Vehicle.Position.Bearing != nil {
		pair.Bearings[0] = *first.Vehicle.Position.Bearing
	}
	if second.Vehicle.Position.Bearing != nil {
		pair.Bearings[1] = *second.Vehicle.Position.Bearing
	}
	return &pair
}
