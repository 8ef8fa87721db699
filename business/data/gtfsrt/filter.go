package gtfsrt

import (
	"strconv"
	"strings"
)

// TrainFilterConfig selects which feed entities are trains the network
// tracks. The two modes are mutually exclusive in practice: a numeric range
// on the entity id, or substring lists against the trip id.
type TrainFilterConfig struct {
	EntityID *EntityIDRange `json:"entityID,omitempty"`
	TripID   *TripIDFilter  `json:"trip_ID,omitempty"`
}

// EntityIDRange keeps entities whose numeric id falls in the closed range
type EntityIDRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TripIDFilter keeps entities by trip id substrings. Excludes are checked
// first. An empty includes list keeps every non-excluded entity.
type TripIDFilter struct {
	Includes []string `json:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty"`
}

// Keep reports whether entity passes the filter. A nil config keeps
// everything.
func (c *TrainFilterConfig) Keep(entity *Entity) bool {
	if c == nil {
		return true
	}
	if c.EntityID != nil {
		n, err := strconv.Atoi(entity.ID)
		if err != nil {
			return false
		}
		if n < c.EntityID.Start || n > c.EntityID.End {
			return false
		}
	}
	if c.TripID != nil {
		tripID := entity.TripID()
		for _, exclude := range c.TripID.Excludes {
			if strings.Contains(tripID, exclude) {
				return false
			}
		}
		if len(c.TripID.Includes) > 0 {
			included := false
			for _, include := range c.TripID.Includes {
				if strings.Contains(tripID, include) {
					included = true
					break
				}
			}
			if !included {
				return false
			}
		}
	}
	return true
}

// Filter returns the entities that pass config, preserving order
func Filter(entities []*Entity, config *TrainFilterConfig) []*Entity {
	if config == nil {
		return entities
	}
	filtered := make([]*Entity, 0, len(entities))
	for _, entity := range entities {
		if config.Keep(entity) {
			filtered = append(filtered, entity)
		}
	}
	return filtered
}
