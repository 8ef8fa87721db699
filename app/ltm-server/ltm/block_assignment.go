package ltm

import (
	"sort"
	"time"

	"github.com/openrailtools/railcast/business/data/trackblocks"
	"github.com/openrailtools/railcast/foundation/geo"
)

//platform bearings within this many degrees of the train bearing are
//considered facing the same direction
const platformBearingToleranceDeg = 90.0

//blockChange records a train arriving on a different block this cycle.
//Previous is 0 when the train had no block before.
type blockChange struct {
	train    *TrainInfo
	previous int
	current  int
}

//assignBlocks walks the roster through the staleness, sticky, search and
//alt-block passes. Block fields are updated in place, trains hidden by the
//alt-block pass are added to invisible, and every block arrival is returned.
func assignBlocks(now time.Time, trains []*TrainInfo, blocks *trackblocks.TrackBlockMap, displayThreshold int, invisible map[string]bool) []blockChange {
	cutoff := now.Unix() - int64(displayThreshold)

	var active []*TrainInfo
	for _, train := range trains {
		if (train.Lat == 0 && train.Lon == 0) || train.Timestamp < cutoff {
			train.CurrentBlock = nil
			train.PreviousBlock = nil
			continue
		}
		active = append(active, train)
	}

	var changes []blockChange
	for _, train := range active {
		if stickyHolds(train, blocks) {
			train.PreviousBlock = intPtr(*train.CurrentBlock)
			continue
		}
		if change, assigned := searchBlock(train, blocks); assigned {
			changes = append(changes, change)
		}
	}

	changes = append(changes, altBlockPass(active, blocks, invisible)...)
	return changes
}

//stickyHolds reports whether a train may keep its current block. The block
//number is resolved to its owning track block so platform and alt numbers
//stay sticky through the owner's polygon.
func stickyHolds(train *TrainInfo, blocks *trackblocks.TrackBlockMap) bool {
	if train.CurrentBlock == nil {
		return false
	}
	owner := blocks.Resolve(*train.CurrentBlock)
	if owner == nil {
		return false
	}
	return owner.Contains(train.Lat, train.Lon) && owner.RouteAllowed(train.Route)
}

//searchBlock scans the track blocks in canonical order for the first block
//that contains the train and admits its route. Both block fields are
//cleared when no block matches.
func searchBlock(train *TrainInfo, blocks *trackblocks.TrackBlockMap) (blockChange, bool) {
	upcoming := make(map[string]bool, len(train.Stops))
	for _, stop := range train.Stops {
		upcoming[stop.StopID] = true
	}

	for _, block := range blocks.Ordered() {
		if !block.Contains(train.Lat, train.Lon) || !block.RouteAllowed(train.Route) {
			continue
		}
		blockNumber := block.BlockNumber
		if len(block.Platforms) > 0 {
			platform := selectPlatform(block.Platforms, train, upcoming)
			if platform == nil {
				continue
			}
			blockNumber = platform.BlockNumber
		}

		previous := 0
		if train.CurrentBlock != nil {
			previous = *train.CurrentBlock
		}
		train.PreviousBlock = intPtr(previous)
		train.CurrentBlock = intPtr(blockNumber)
		return blockChange{train: train, previous: previous, current: blockNumber}, true
	}

	train.CurrentBlock = nil
	train.PreviousBlock = nil
	return blockChange{}, false
}

//selectPlatform picks the platform of a block for a train. Platforms whose
//route filter rejects the train are never considered. Preference order:
//a platform serving one of the train's upcoming stops, then a default
//platform facing the train's bearing, then a default platform without one.
func selectPlatform(platforms []trackblocks.Platform, train *TrainInfo, upcoming map[string]bool) *trackblocks.Platform {
	admitted := make([]*trackblocks.Platform, 0, len(platforms))
	for i := range platforms {
		if platforms[i].RouteAllowed(train.Route) {
			admitted = append(admitted, &platforms[i])
		}
	}

	for _, platform := range admitted {
		for _, stopID := range platform.StopIDs {
			if upcoming[stopID] {
				return platform
			}
		}
	}
	if train.Bearing != nil {
		for _, platform := range admitted {
			if platform.IsDefault && platform.Bearing != nil &&
				geo.BearingDifference(*platform.Bearing, *train.Bearing) <= platformBearingToleranceDeg {
				return platform
			}
		}
	}
	for _, platform := range admitted {
		if platform.IsDefault && platform.Bearing == nil {
			return platform
		}
	}
	return nil
}

//altBlockPass enforces one visible train per block. Excess occupants of a
//block move to its alt block when it has one, further occupants are hidden.
//Alt block numbers are then deduped the same way so each shows at most one
//visible train.
func altBlockPass(trains []*TrainInfo, blocks *trackblocks.TrackBlockMap, invisible map[string]bool) []blockChange {
	var changes []blockChange
	for _, block := range blocks.Ordered() {
		occupants := visibleOn(trains, block.BlockNumber, invisible)
		if len(occupants) < 2 {
			continue
		}
		sortByRoute(occupants)
		for i, train := range occupants[1:] {
			if i == 0 && block.AltBlock != nil {
				previous := 0
				if train.CurrentBlock != nil {
					previous = *train.CurrentBlock
				}
				train.CurrentBlock = intPtr(*block.AltBlock)
				changes = append(changes, blockChange{train: train, previous: previous, current: *block.AltBlock})
				continue
			}
			invisible[train.TrainID] = true
		}
	}

	for _, block := range blocks.Ordered() {
		if block.AltBlock == nil {
			continue
		}
		occupants := visibleOn(trains, *block.AltBlock, invisible)
		if len(occupants) < 2 {
			continue
		}
		sortByRoute(occupants)
		for _, train := range occupants[1:] {
			invisible[train.TrainID] = true
		}
	}
	return changes
}

func visibleOn(trains []*TrainInfo, blockNumber int, invisible map[string]bool) []*TrainInfo {
	var occupants []*TrainInfo
	for _, train := range trains {
		if invisible[train.TrainID] || train.CurrentBlock == nil || *train.CurrentBlock != blockNumber {
			continue
		}
		occupants = append(occupants, train)
	}
	return occupants
}

//sortByRoute orders trains by route ascending with out of service trains
//last, keeping roster order between equals
func sortByRoute(trains []*TrainInfo) {
	sort.SliceStable(trains, func(i, j int) bool {
		if trains[i].Route == RouteOutOfService || trains[j].Route == RouteOutOfService {
			return trains[j].Route == RouteOutOfService && trains[i].Route != RouteOutOfService
		}
		return trains[i].Route < trains[j].Route
	})
}

func intPtr(value int) *int {
	return &value
}
