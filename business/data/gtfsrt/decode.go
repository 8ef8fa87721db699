package gtfsrt

import (
	"encoding/json"
	"fmt"

	gtfsrtproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// FormatFeedMessage is the format value for feeds that serve a plain GTFS
// FeedMessage. Any other value names a vendor envelope with the FeedMessage
// under a response field.
const FormatFeedMessage = "FeedMessage"

// DecodeJSON parses a json feed body according to the configured format
func DecodeJSON(data []byte, format string) (*FeedMessage, error) {
	if format == "" || format == FormatFeedMessage {
		var feed FeedMessage
		if err := json.Unmarshal(data, &feed); err != nil {
			return nil, fmt.Errorf("unable to decode FeedMessage json: %w", err)
		}
		return &feed, nil
	}

	var envelope struct {
		Response *FeedMessage `json:"response"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unable to decode %s json envelope: %w", format, err)
	}
	if envelope.Response == nil {
		return nil, fmt.Errorf("%s json envelope has no response field", format)
	}
	return envelope.Response, nil
}

/*
DecodeProtobuf parses a binary feed body with the standard GTFS-realtime
bindings and loads it into the non-protocol buffer model. Any changes to the
GTFS-realtime protocol or generated code can be handled here and not
elsewhere in the program.
*/
func DecodeProtobuf(data []byte) (*FeedMessage, error) {
	feedMessage := gtfsrtproto.FeedMessage{}
	if err := proto.Unmarshal(data, &feedMessage); err != nil {
		return nil, fmt.Errorf("unable to unmarshal FeedMessage: %w", err)
	}

	feed := FeedMessage{}
	if feedMessage.Header != nil && feedMessage.Header.Timestamp != nil {
		feed.Header = &FeedHeader{Timestamp: FlexInt64(*feedMessage.Header.Timestamp)}
	}
	for _, protoEntity := range feedMessage.Entity {
		entity := Entity{
			ID:        protoEntity.GetId(),
			IsDeleted: protoEntity.GetIsDeleted(),
		}
		if protoVehicle := protoEntity.Vehicle; protoVehicle != nil {
			entity.Vehicle = convertVehicle(protoVehicle)
		}
		if protoTripUpdate := protoEntity.TripUpdate; protoTripUpdate != nil {
			entity.TripUpdate = convertTripUpdate(protoTripUpdate)
		}
		feed.Entity = append(feed.Entity, &entity)
	}
	return &feed, nil
}

func convertVehicle(protoVehicle *gtfsrtproto.VehiclePosition) *VehiclePosition {
	vehicle := VehiclePosition{
		Timestamp: FlexInt64(protoVehicle.GetTimestamp()),
	}
	if protoVehicle.Trip != nil {
		vehicle.Trip = convertTrip(protoVehicle.Trip)
	}
	if protoVehicle.Vehicle != nil {
		vehicle.Vehicle = &VehicleDescriptor{
			ID:    protoVehicle.Vehicle.GetId(),
			Label: protoVehicle.Vehicle.GetLabel(),
		}
	}
	if protoPosition := protoVehicle.Position; protoPosition != nil {
		position := Position{
			Latitude:  float64(protoPosition.GetLatitude()),
			Longitude: float64(protoPosition.GetLongitude()),
		}
		if protoPosition.Bearing != nil {
			bearing := float64(*protoPosition.Bearing)
			position.Bearing = &bearing
		}
		if protoPosition.Speed != nil {
			speed := float64(*protoPosition.Speed)
			position.Speed = &speed
		}
		vehicle.Position = &position
	}
	return &vehicle
}

func convertTripUpdate(protoTripUpdate *gtfsrtproto.TripUpdate) *TripUpdate {
	tripUpdate := TripUpdate{}
	if protoTripUpdate.Trip != nil {
		tripUpdate.Trip = convertTrip(protoTripUpdate.Trip)
	}
	for _, protoUpdate := range protoTripUpdate.StopTimeUpdate {
		update := StopTimeUpdate{StopID: protoUpdate.GetStopId()}
		if protoUpdate.Arrival != nil {
			update.Arrival = &StopTimeEvent{Time: FlexInt64(protoUpdate.Arrival.GetTime())}
		}
		if protoUpdate.Departure != nil {
			update.Departure = &StopTimeEvent{Time: FlexInt64(protoUpdate.Departure.GetTime())}
		}
		tripUpdate.StopTimeUpdates = append(tripUpdate.StopTimeUpdates, update)
	}
	return &tripUpdate
}

func convertTrip(protoTrip *gtfsrtproto.TripDescriptor) *TripDescriptor {
	return &TripDescriptor{
		TripID:  protoTrip.GetTripId(),
		RouteID: protoTrip.GetRouteId(),
	}
}
