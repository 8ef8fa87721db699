// Package gtfsrt contains the GTFS-realtime feed entity model, decoders for
// the json and protobuf transports vendors serve it over, and the train
// filter applied to raw feeds.
//
// Vendor json feeds disagree on field name casing and sometimes ship numeric
// timestamps as strings. The types here absorb both so nothing downstream of
// the decode boundary deals with untyped data.
package gtfsrt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt64 is an int64 that also accepts json string encodings, which some
// vendor feeds use for timestamp fields
type FlexInt64 int64

// UnmarshalJSON accepts a json number, a quoted number, or null
func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	text := strings.Trim(string(data), `"`)
	if text == "" || text == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// a few feeds format whole second timestamps as floats
		asFloat, floatErr := strconv.ParseFloat(text, 64)
		if floatErr != nil {
			return fmt.Errorf("unable to parse %q as integer", text)
		}
		n = int64(asFloat)
	}
	*f = FlexInt64(n)
	return nil
}

// Position is a vehicle location report
type Position struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// TripDescriptor identifies the trip a vehicle is serving
type TripDescriptor struct {
	TripID  string `json:"trip_id,omitempty"`
	RouteID string `json:"route_id,omitempty"`
}

// UnmarshalJSON also accepts the camel case field names some vendors emit
func (t *TripDescriptor) UnmarshalJSON(data []byte) error {
	type alias TripDescriptor
	aux := struct {
		*alias
		TripIDAlt  *string `json:"tripId"`
		RouteIDAlt *string `json:"routeId"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TripIDAlt != nil {
		t.TripID = *aux.TripIDAlt
	}
	if aux.RouteIDAlt != nil {
		t.RouteID = *aux.RouteIDAlt
	}
	return nil
}

// VehicleDescriptor identifies the physical vehicle
type VehicleDescriptor struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// VehiclePosition is the vehicle part of a feed entity
type VehiclePosition struct {
	Trip      *TripDescriptor    `json:"trip,omitempty"`
	Position  *Position          `json:"position,omitempty"`
	Vehicle   *VehicleDescriptor `json:"vehicle,omitempty"`
	Timestamp FlexInt64          `json:"timestamp,omitempty"`
}

// StopTimeEvent carries the predicted time of a stop time update
type StopTimeEvent struct {
	Time FlexInt64 `json:"time,omitempty"`
}

// StopTimeUpdate is one upcoming stop prediction of a trip update
type StopTimeUpdate struct {
	StopID    string         `json:"stop_id,omitempty"`
	Arrival   *StopTimeEvent `json:"arrival,omitempty"`
	Departure *StopTimeEvent `json:"departure,omitempty"`
}

// UnmarshalJSON also accepts the camel case stopId some vendors emit
func (s *StopTimeUpdate) UnmarshalJSON(data []byte) error {
	type alias StopTimeUpdate
	aux := struct {
		*alias
		StopIDAlt *string `json:"stopId"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.StopIDAlt != nil {
		s.StopID = *aux.StopIDAlt
	}
	return nil
}

// TripUpdate is the trip update part of a feed entity
type TripUpdate struct {
	Trip            *TripDescriptor  `json:"trip,omitempty"`
	StopTimeUpdates []StopTimeUpdate `json:"stop_time_update,omitempty"`
}

// UnmarshalJSON also accepts the camel case stopTimeUpdate list
func (t *TripUpdate) UnmarshalJSON(data []byte) error {
	type alias TripUpdate
	aux := struct {
		*alias
		StopTimeUpdatesAlt []StopTimeUpdate `json:"stopTimeUpdate"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.StopTimeUpdatesAlt != nil {
		t.StopTimeUpdates = aux.StopTimeUpdatesAlt
	}
	return nil
}

// Entity is one feed entity. Optional parts are pointers and nil when the
// feed omitted them.
type Entity struct {
	ID         string           `json:"id"`
	IsDeleted  bool             `json:"is_deleted,omitempty"`
	Vehicle    *VehiclePosition `json:"vehicle,omitempty"`
	TripUpdate *TripUpdate      `json:"trip_update,omitempty"`
}

// UnmarshalJSON also accepts the camel case isDeleted and tripUpdate names
func (e *Entity) UnmarshalJSON(data []byte) error {
	type alias Entity
	aux := struct {
		*alias
		IsDeletedAlt  *bool       `json:"isDeleted"`
		TripUpdateAlt *TripUpdate `json:"tripUpdate"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.IsDeletedAlt != nil {
		e.IsDeleted = *aux.IsDeletedAlt
	}
	if aux.TripUpdateAlt != nil {
		e.TripUpdate = aux.TripUpdateAlt
	}
	return nil
}

// VehicleID returns the vehicle descriptor id, empty when the entity carries
// no identifiable vehicle
func (e *Entity) VehicleID() string {
	if e.Vehicle == nil || e.Vehicle.Vehicle == nil {
		return ""
	}
	return e.Vehicle.Vehicle.ID
}

// TripID returns the trip id from the vehicle trip, falling back to the trip
// update trip
func (e *Entity) TripID() string {
	if e.Vehicle != nil && e.Vehicle.Trip != nil && e.Vehicle.Trip.TripID != "" {
		return e.Vehicle.Trip.TripID
	}
	if e.TripUpdate != nil && e.TripUpdate.Trip != nil {
		return e.TripUpdate.Trip.TripID
	}
	return ""
}

// RouteID returns the route id from the vehicle trip, falling back to the
// trip update trip
func (e *Entity) RouteID() string {
	if e.Vehicle != nil && e.Vehicle.Trip != nil && e.Vehicle.Trip.RouteID != "" {
		return e.Vehicle.Trip.RouteID
	}
	if e.TripUpdate != nil && e.TripUpdate.Trip != nil {
		return e.TripUpdate.Trip.RouteID
	}
	return ""
}

// HasCoordinates reports whether the entity carries a position report
func (e *Entity) HasCoordinates() bool {
	return e.Vehicle != nil && e.Vehicle.Position != nil
}

// Timestamp returns the vehicle report time in epoch seconds, 0 when absent
func (e *Entity) Timestamp() int64 {
	if e.Vehicle == nil {
		return 0
	}
	return int64(e.Vehicle.Timestamp)
}

// FeedHeader is the feed level header, only the timestamp is read
type FeedHeader struct {
	Timestamp FlexInt64 `json:"timestamp,omitempty"`
}

// FeedMessage is one decoded GTFS-realtime feed
type FeedMessage struct {
	Header *FeedHeader `json:"header,omitempty"`
	Entity []*Entity   `json:"entity"`
}
