package ltm

import (
	logger "log"
	"path/filepath"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
	"github.com/openrailtools/railcast/foundation/cachefile"
)

const (
	entitiesCacheName   = "entities.json.gz"
	trainPairsCacheName = "trainPairs.json.gz"
)

//networkCache saves and restores a network's feed entities and train pairs
//so a restart does not start tracking from nothing
type networkCache struct {
	log *logger.Logger
	dir string
}

func makeNetworkCache(log *logger.Logger, cacheDir, networkID string) *networkCache {
	return &networkCache{
		log: log,
		dir: filepath.Join(cacheDir, networkID),
	}
}

//save writes both snapshots. The cache is advisory, failures are logged and
//the caller carries on.
func (c *networkCache) save(entities map[string]*gtfsrt.Entity, pairs []*TrainPair) {
	if err := cachefile.Save(filepath.Join(c.dir, entitiesCacheName), entities); err != nil {
		c.log.Printf("error saving entities cache: %v\n", err)
	}
	if err := cachefile.Save(filepath.Join(c.dir, trainPairsCacheName), pairs); err != nil {
		c.log.Printf("error saving train pairs cache: %v\n", err)
	}
}

//restoreEntities loads the entity snapshot, nil when no cache exists yet
func (c *networkCache) restoreEntities() map[string]*gtfsrt.Entity {
	var entities map[string]*gtfsrt.Entity
	found, err := cachefile.Restore(filepath.Join(c.dir, entitiesCacheName), &entities)
	if err != nil {
		c.log.Printf("error restoring entities cache: %v\n", err)
		return nil
	}
	if !found {
		return nil
	}
	c.log.Printf("restored %d entities from cache\n", len(entities))
	return entities
}

//restorePairs loads the train pair snapshot, nil when no cache exists yet
func (c *networkCache) restorePairs() []*TrainPair {
	var pairs []*TrainPair
	found, err := cachefile.Restore(filepath.Join(c.dir, trainPairsCacheName), &pairs)
	if err != nil {
		c.log.Printf("error restoring train pairs cache: %v\n", err)
		return nil
	}
	if !found {
		return nil
	}
	c.log.Printf("restored %d train pairs from cache\n", len(pairs))
	return pairs
}
