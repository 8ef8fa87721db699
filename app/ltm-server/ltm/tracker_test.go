package ltm

import (
	"math"
	"testing"
	"time"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
)

func Test_tracker_sync_adds_updates_and_drops(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)
	tracker := makeTracker(0.95, 0, 60)

	tracker.sync(now, []*gtfsrt.Entity{
		trainEntity("59321", -36.8500, 174.7633, float64Ptr(12), float64Ptr(45), "WEST", now.Unix()),
		trainEntity("59322", -36.8600, 174.7700, float64Ptr(0), nil, "EAST", now.Unix()),
	})
	if tracker.size() != 2 {
		t.Fatalf("size() = %d, want 2", tracker.size())
	}

	//an entity without coordinates keeps the train alive but changes nothing
	bare := &gtfsrt.Entity{
		ID:      "59321",
		Vehicle: &gtfsrt.VehiclePosition{Vehicle: &gtfsrt.VehicleDescriptor{ID: "59321"}},
	}
	tracker.sync(now.Add(30*time.Second), []*gtfsrt.Entity{
		bare,
		trainEntity("59322", -36.8600, 174.7700, float64Ptr(0), nil, "EAST", now.Unix()+30),
	})
	if tracker.size() != 2 {
		t.Fatalf("size() after keep-alive = %d, want 2", tracker.size())
	}
	if tracker.trains()[0].Timestamp != now.Unix() {
		t.Errorf("keep-alive changed timestamp to %d, want %d", tracker.trains()[0].Timestamp, now.Unix())
	}

	//a train absent from the feed is dropped from the roster
	tracker.sync(now.Add(time.Minute), []*gtfsrt.Entity{
		trainEntity("59322", -36.8600, 174.7700, float64Ptr(0), nil, "EAST", now.Unix()+60),
	})
	if tracker.size() != 1 {
		t.Fatalf("size() after drop = %d, want 1", tracker.size())
	}
	if tracker.trains()[0].TrainID != "59322" {
		t.Errorf("remaining train = %s, want 59322", tracker.trains()[0].TrainID)
	}
}

func Test_tracker_smooths_stationary_jitter(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)
	tracker := makeTracker(0.95, 0, 60)

	tracker.sync(now, []*gtfsrt.Entity{
		trainEntity("59321", -36.8500, 174.7633, float64Ptr(0), nil, "WEST", now.Unix()),
	})
	tracker.sync(now.Add(30*time.Second), []*gtfsrt.Entity{
		trainEntity("59321", -36.8510, 174.7640, float64Ptr(0), nil, "WEST", now.Unix()+30),
	})

	train := tracker.trains()[0]
	wantLat := 0.95*-36.8500 + 0.05*-36.8510
	wantLon := 0.95*174.7633 + 0.05*174.7640
	if math.Abs(train.Lat-wantLat) > 1e-9 || math.Abs(train.Lon-wantLon) > 1e-9 {
		t.Errorf("smoothed position = (%v,%v), want (%v,%v)", train.Lat, train.Lon, wantLat, wantLon)
	}

	//a moving train takes the reported position unchanged
	tracker.sync(now.Add(time.Minute), []*gtfsrt.Entity{
		trainEntity("59321", -36.8520, 174.7650, float64Ptr(8), nil, "WEST", now.Unix()+60),
	})
	train = tracker.trains()[0]
	if train.Lat != -36.8520 || train.Lon != 174.7650 {
		t.Errorf("moving position = (%v,%v), want (-36.8520,174.7650)", train.Lat, train.Lon)
	}
}

func Test_tracker_smoothing_speed_ceiling(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)
	//crawling at 0.4 m/s counts as stationary when the ceiling is raised
	tracker := makeTracker(0.95, 0.5, 60)

	tracker.sync(now, []*gtfsrt.Entity{
		trainEntity("59321", -36.8500, 174.7633, float64Ptr(0.4), nil, "WEST", now.Unix()),
	})
	tracker.sync(now.Add(30*time.Second), []*gtfsrt.Entity{
		trainEntity("59321", -36.8510, 174.7640, float64Ptr(0.3), nil, "WEST", now.Unix()+30),
	})

	train := tracker.trains()[0]
	wantLat := 0.95*-36.8500 + 0.05*-36.8510
	if math.Abs(train.Lat-wantLat) > 1e-9 {
		t.Errorf("Lat = %v, want smoothed %v with speeds under the ceiling", train.Lat, wantLat)
	}

	//a fix above the ceiling is applied unchanged
	tracker.sync(now.Add(time.Minute), []*gtfsrt.Entity{
		trainEntity("59321", -36.8520, 174.7650, float64Ptr(0.6), nil, "WEST", now.Unix()+60),
	})
	if train.Lat != -36.8520 {
		t.Errorf("Lat = %v, want the reported -36.8520 above the ceiling", train.Lat)
	}
}

func Test_tracker_computes_speed_when_not_reported(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)
	tracker := makeTracker(0.95, 0, 60)

	tracker.sync(now, []*gtfsrt.Entity{
		trainEntity("59321", -36.8500, 174.7633, nil, nil, "WEST", now.Unix()),
	})
	//0.0009 degrees of latitude in 10 seconds is close to 10 m/s due north
	tracker.sync(now.Add(10*time.Second), []*gtfsrt.Entity{
		trainEntity("59321", -36.8500+0.0009, 174.7633, nil, nil, "WEST", now.Unix()+10),
	})

	train := tracker.trains()[0]
	if train.Speed == nil {
		t.Fatal("Speed = nil, want computed speed")
	}
	if math.Abs(*train.Speed-10.0) > 0.1 {
		t.Errorf("Speed = %v, want about 10.0", *train.Speed)
	}
	if train.Bearing == nil {
		t.Fatal("Bearing = nil, want computed bearing")
	}
	if *train.Bearing != 0 {
		t.Errorf("Bearing = %v, want 0 for movement due north", *train.Bearing)
	}
}

func Test_tracker_bearing_speed_gate(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		speed       float64
		feedBearing *float64
		wantBearing float64
	}{
		{name: "below the gate keeps the old bearing", speed: 3, feedBearing: float64Ptr(120), wantBearing: 45},
		{name: "at the lower bound keeps the old bearing", speed: 4, feedBearing: float64Ptr(120), wantBearing: 45},
		{name: "inside the gate takes the feed bearing", speed: 10, feedBearing: float64Ptr(120), wantBearing: 120},
		{name: "inside the gate without a feed bearing computes one", speed: 10, feedBearing: nil, wantBearing: 0},
		{name: "at the upper bound keeps the old bearing", speed: 55, feedBearing: float64Ptr(120), wantBearing: 45},
		{name: "above the gate keeps the old bearing", speed: 60, feedBearing: float64Ptr(120), wantBearing: 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := makeTracker(0.95, 0, 60)
			tracker.sync(now, []*gtfsrt.Entity{
				trainEntity("59321", -36.8500, 174.7633, float64Ptr(10), float64Ptr(45), "WEST", now.Unix()),
			})
			tracker.sync(now.Add(10*time.Second), []*gtfsrt.Entity{
				trainEntity("59321", -36.8500+0.0009, 174.7633, float64Ptr(tt.speed), tt.feedBearing, "WEST", now.Unix()+10),
			})
			train := tracker.trains()[0]
			if train.Bearing == nil {
				t.Fatal("Bearing = nil, want a value")
			}
			if *train.Bearing != tt.wantBearing {
				t.Errorf("Bearing = %v, want %v", *train.Bearing, tt.wantBearing)
			}
		})
	}
}

func Test_tracker_route_sentinel(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)
	tracker := makeTracker(0.95, 0, 60)

	tracker.sync(now, []*gtfsrt.Entity{
		trainEntity("59321", -36.8500, 174.7633, nil, nil, "", now.Unix()),
		trainEntity("59322", -36.8600, 174.7700, nil, nil, "WEST", now.Unix()),
	})

	if tracker.trains()[0].Route != RouteOutOfService {
		t.Errorf("Route = %s, want %s", tracker.trains()[0].Route, RouteOutOfService)
	}
	if tracker.trains()[1].Route != "WEST" {
		t.Errorf("Route = %s, want WEST", tracker.trains()[1].Route)
	}
}

func Test_mergeStops(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)
	window := 60 * time.Minute

	current := []StopDeparture{
		{StopID: "S1", DepartureTime: now.Add(-70 * time.Minute).Unix()},
		{StopID: "S2", DepartureTime: now.Add(5 * time.Minute).Unix()},
		{StopID: "S3", DepartureTime: 0},
	}
	updates := []gtfsrt.StopTimeUpdate{
		{StopID: "S2", Departure: &gtfsrt.StopTimeEvent{Time: gtfsrt.FlexInt64(now.Add(10 * time.Minute).Unix())}},
		{StopID: "S2", Departure: &gtfsrt.StopTimeEvent{Time: gtfsrt.FlexInt64(now.Add(3 * time.Minute).Unix())}},
		{StopID: "S4", Arrival: &gtfsrt.StopTimeEvent{Time: gtfsrt.FlexInt64(now.Add(15 * time.Minute).Unix())}},
		{StopID: "S5"},
		{StopID: ""},
	}

	merged := mergeStops(now, current, updates, window)

	want := []StopDeparture{
		{StopID: "S2", DepartureTime: now.Add(10 * time.Minute).Unix()},
		{StopID: "S3", DepartureTime: 0},
		{StopID: "S4", DepartureTime: now.Add(15 * time.Minute).Unix()},
		{StopID: "S5", DepartureTime: 0},
	}
	if len(merged) != len(want) {
		t.Fatalf("mergeStops() returned %d stops, want %d. got %v", len(merged), len(want), merged)
	}
	for i, stop := range merged {
		if stop != want[i] {
			t.Errorf("mergeStops()[%d] = %v, want %v", i, stop, want[i])
		}
	}
}

func Test_tracker_merges_stops_from_trip_updates(t *testing.T) {
	now := time.Date(2022, 5, 22, 12, 0, 0, 0, time.UTC)
	tracker := makeTracker(0.95, 0, 60)

	entity := trainEntity("59321", -36.8500, 174.7633, nil, nil, "WEST", now.Unix())
	entity.TripUpdate = &gtfsrt.TripUpdate{
		StopTimeUpdates: []gtfsrt.StopTimeUpdate{
			{StopID: "S1", Departure: &gtfsrt.StopTimeEvent{Time: gtfsrt.FlexInt64(now.Add(2 * time.Minute).Unix())}},
		},
	}
	tracker.sync(now, []*gtfsrt.Entity{entity})

	train := tracker.trains()[0]
	if len(train.Stops) != 1 || train.Stops[0].StopID != "S1" {
		t.Fatalf("Stops = %v, want the single S1 departure", train.Stops)
	}
}
