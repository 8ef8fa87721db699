package ltm

import (
	"sort"
	"time"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
)

//entityStore accumulates the most recent vehicle entity seen for every
//vehicle id across fetch cycles
type entityStore struct {
	entities map[string]*gtfsrt.Entity
}

func makeEntityStore() *entityStore {
	return &entityStore{
		entities: make(map[string]*gtfsrt.Entity),
	}
}

//update folds freshly fetched entities into the store. When a vehicle id
//appears more than once the newest vehicle timestamp wins, and entities
//marked deleted are removed.
func (s *entityStore) update(fresh []*gtfsrt.Entity) {
	for _, entity := range fresh {
		vehicleID := entity.VehicleID()
		if vehicleID == "" {
			continue
		}
		if entity.IsDeleted {
			delete(s.entities, vehicleID)
			continue
		}
		current, present := s.entities[vehicleID]
		if present && current.Timestamp() > entity.Timestamp() {
			continue
		}
		s.entities[vehicleID] = entity
	}
}

//removeStale drops entities whose vehicle timestamp in milliseconds is
//older than maxAgeHours before now, returning the number removed
func (s *entityStore) removeStale(now time.Time, maxAgeHours float64) int {
	if maxAgeHours <= 0 {
		return 0
	}
	cutoffMs := now.UnixMilli() - int64(maxAgeHours*float64(time.Hour/time.Millisecond))
	removed := 0
	for vehicleID, entity := range s.entities {
		if entity.Timestamp()*1000 < cutoffMs {
			delete(s.entities, vehicleID)
			removed++
		}
	}
	return removed
}

func (s *entityStore) size() int {
	return len(s.entities)
}

//all returns the stored entities ordered by vehicle id so callers see a
//stable listing
func (s *entityStore) all() []*gtfsrt.Entity {
	vehicleIDs := make([]string, 0, len(s.entities))
	for vehicleID := range s.entities {
		vehicleIDs = append(vehicleIDs, vehicleID)
	}
	sort.Strings(vehicleIDs)
	entities := make([]*gtfsrt.Entity, 0, len(vehicleIDs))
	for _, vehicleID := range vehicleIDs {
		entities = append(entities, s.entities[vehicleID])
	}
	return entities
}

//snapshot returns the internal map for cache persistence
func (s *entityStore) snapshot() map[string]*gtfsrt.Entity {
	return s.entities
}

//restore replaces the store contents, used when loading a cache file
func (s *entityStore) restore(entities map[string]*gtfsrt.Entity) {
	if entities == nil {
		return
	}
	s.entities = entities
}
