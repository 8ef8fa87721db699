package ltm

import (
	"time"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
	"github.com/openrailtools/railcast/foundation/geo"
)

//RouteOutOfService marks a roster train whose feed entity carries no route id
const RouteOutOfService = "OUT-OF-SERVICE"

//bearing updates are suppressed outside this reported or computed speed
//range to avoid jitter from stationary or implausible fixes
const (
	bearingMinSpeedMS = 4.0
	bearingMaxSpeedMS = 55.0
)

//StopDeparture is one upcoming stop of a tracked train
type StopDeparture struct {
	StopID        string `json:"stopId"`
	DepartureTime int64  `json:"departureTime"`
}

//TrainInfo is the tracked state of one train on the map. CurrentBlock and
//PreviousBlock are nil until block assignment places the train, and
//PreviousBlock carries 0 when the predecessor block is unknown.
type TrainInfo struct {
	TrainID       string          `json:"trainId"`
	Lat           float64         `json:"lat"`
	Lon           float64         `json:"lon"`
	Timestamp     int64           `json:"timestamp"`
	Speed         *float64        `json:"speed,omitempty"`
	Bearing       *float64        `json:"bearing,omitempty"`
	CurrentBlock  *int            `json:"currentBlock,omitempty"`
	PreviousBlock *int            `json:"previousBlock,omitempty"`
	Route         string          `json:"route"`
	TripID        string          `json:"tripId,omitempty"`
	Stops         []StopDeparture `json:"stops,omitempty"`
}

//tracker maintains the roster of trains built from filtered feed entities
type tracker struct {
	smoothingFactor   float64
	smoothingMaxSpeed float64
	stopsWindow       time.Duration
	roster            []*TrainInfo
	byID              map[string]*TrainInfo
}

func makeTracker(smoothingFactor, smoothingMaxSpeed float64, stopsWindowMinutes int) *tracker {
	return &tracker{
		smoothingFactor:   smoothingFactor,
		smoothingMaxSpeed: smoothingMaxSpeed,
		stopsWindow:       time.Duration(stopsWindowMinutes) * time.Minute,
		byID:              make(map[string]*TrainInfo),
	}
}

//trains returns the roster in insertion order
func (t *tracker) trains() []*TrainInfo {
	return t.roster
}

func (t *tracker) size() int {
	return len(t.roster)
}

//sync folds the filtered train entities into the roster and drops roster
//entries whose vehicle id is no longer present
func (t *tracker) sync(now time.Time, trains []*gtfsrt.Entity) {
	seen := make(map[string]bool, len(trains))
	for _, entity := range trains {
		trainID := entity.VehicleID()
		if trainID == "" {
			continue
		}
		seen[trainID] = true
		if !entity.HasCoordinates() {
			continue
		}
		if train, present := t.byID[trainID]; present {
			t.updateTrain(now, train, entity)
			continue
		}
		t.addTrain(now, trainID, entity)
	}
	t.dropMissing(seen)
}

func (t *tracker) addTrain(now time.Time, trainID string, entity *gtfsrt.Entity) {
	position := entity.Vehicle.Position
	train := &TrainInfo{
		TrainID:   trainID,
		Lat:       position.Latitude,
		Lon:       position.Longitude,
		Timestamp: entity.Timestamp(),
		Speed:     copyFloat(position.Speed),
		Bearing:   copyFloat(position.Bearing),
		Route:     routeOrSentinel(entity),
		TripID:    entity.TripID(),
	}
	if entity.TripUpdate != nil {
		train.Stops = mergeStops(now, nil, entity.TripUpdate.StopTimeUpdates, t.stopsWindow)
	}
	t.roster = append(t.roster, train)
	t.byID[trainID] = train
}

func (t *tracker) updateTrain(now time.Time, train *TrainInfo, entity *gtfsrt.Entity) {
	position := entity.Vehicle.Position
	reportedSpeed := position.Speed
	moved := position.Latitude != train.Lat || position.Longitude != train.Lon

	if moved {
		//computed movement is taken from the stored position before it is
		//replaced below
		movedDistance := geo.Distance(train.Lat, train.Lon, position.Latitude, position.Longitude)
		movedBearing := geo.Bearing(train.Lat, train.Lon, position.Latitude, position.Longitude)

		var computedSpeed *float64
		if reportedSpeed == nil {
			if dt := entity.Timestamp() - train.Timestamp; dt > 0 {
				speed := movedDistance / float64(dt)
				computedSpeed = &speed
			}
		}

		if t.isStationary(reportedSpeed, train.Speed) {
			//a stationary train only jitters, blend the fix instead of jumping
			train.Lat = t.smoothingFactor*train.Lat + (1-t.smoothingFactor)*position.Latitude
			train.Lon = t.smoothingFactor*train.Lon + (1-t.smoothingFactor)*position.Longitude
		} else {
			train.Lat = position.Latitude
			train.Lon = position.Longitude
		}

		effectiveSpeed := reportedSpeed
		if effectiveSpeed == nil {
			effectiveSpeed = computedSpeed
		}
		if effectiveSpeed != nil && *effectiveSpeed > bearingMinSpeedMS && *effectiveSpeed < bearingMaxSpeedMS {
			if position.Bearing != nil {
				train.Bearing = copyFloat(position.Bearing)
			} else {
				train.Bearing = &movedBearing
			}
		}

		if computedSpeed != nil {
			train.Speed = computedSpeed
		}
	}

	if reportedSpeed != nil {
		train.Speed = copyFloat(reportedSpeed)
	}
	train.Timestamp = entity.Timestamp()
	train.Route = routeOrSentinel(entity)
	train.TripID = entity.TripID()
	if entity.TripUpdate != nil {
		train.Stops = mergeStops(now, train.Stops, entity.TripUpdate.StopTimeUpdates, t.stopsWindow)
	}
}

//isStationary reports whether both the newly reported speed and the stored
//one sit at or below the smoothing speed ceiling
func (t *tracker) isStationary(reported, stored *float64) bool {
	return reported != nil && *reported <= t.smoothingMaxSpeed &&
		stored != nil && *stored <= t.smoothingMaxSpeed
}

func (t *tracker) dropMissing(seen map[string]bool) {
	kept := t.roster[:0]
	for _, train := range t.roster {
		if seen[train.TrainID] {
			kept = append(kept, train)
			continue
		}
		delete(t.byID, train.TrainID)
	}
	t.roster = kept
}

//mergeStops upserts stop time updates into the stop list by stop id,
//keeping the later departure time, and prunes departures older than the
//window. A departure time of 0 never expires.
func mergeStops(now time.Time, current []StopDeparture, updates []gtfsrt.StopTimeUpdate, window time.Duration) []StopDeparture {
	departures := make(map[string]int64, len(current)+len(updates))
	order := make([]string, 0, len(current)+len(updates))
	for _, stop := range current {
		departures[stop.StopID] = stop.DepartureTime
		order = append(order, stop.StopID)
	}
	for _, update := range updates {
		if update.StopID == "" {
			continue
		}
		departure := departureTime(update)
		existing, present := departures[update.StopID]
		if !present {
			departures[update.StopID] = departure
			order = append(order, update.StopID)
			continue
		}
		if departure > existing {
			departures[update.StopID] = departure
		}
	}

	cutoff := now.Add(-window).Unix()
	merged := make([]StopDeparture, 0, len(order))
	for _, stopID := range order {
		departure := departures[stopID]
		if departure != 0 && departure < cutoff {
			continue
		}
		merged = append(merged, StopDeparture{StopID: stopID, DepartureTime: departure})
	}
	return merged
}

//departureTime reads the departure time of a stop time update, falling back
//to the arrival time when the feed omits the departure
func departureTime(update gtfsrt.StopTimeUpdate) int64 {
	if update.Departure != nil {
		return int64(update.Departure.Time)
	}
	if update.Arrival != nil {
		return int64(update.Arrival.Time)
	}
	return 0
}

func routeOrSentinel(entity *gtfsrt.Entity) string {
	if route := entity.RouteID(); route != "" {
		return route
	}
	return RouteOutOfService
}

func copyFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
