package ltm

import (
	logger "log"
	"math/rand"
	"sync"
	"time"

	"github.com/openrailtools/railcast/business/data/ledwire"
)

//LEDRailsAPI builds and publishes the LED board payload for one board
//revision of a network. The published output is replaced as a whole at the
//end of a cycle so readers never observe a partial payload.
type LEDRailsAPI struct {
	Version             string
	URL                 string
	RouteToColorID      map[string]int
	Colors              map[int]ledwire.RGB
	BlockRemap          []ledwire.RemapRule
	DisplayThreshold    int
	UpdateInterval      int
	RandomizeTimeOffset bool

	log  *logger.Logger
	rand *rand.Rand

	mu            sync.RWMutex
	output        *ledwire.Output
	lastTimestamp int64
}

func makeLEDRailsAPI(log *logger.Logger, config *LEDRailsAPIConfig, version APIVersionConfig,
	displayThreshold, updateInterval int) *LEDRailsAPI {
	return &LEDRailsAPI{
		Version:             version.Version,
		URL:                 "/" + version.Version + ".json",
		RouteToColorID:      config.Colors.RouteColorIDs(),
		Colors:              config.Colors.ColorsByID(),
		BlockRemap:          version.BlockRemap,
		DisplayThreshold:    displayThreshold,
		UpdateInterval:      updateInterval,
		RandomizeTimeOffset: config.RandomizeTimeOffset,
		log:                 log,
		rand:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

//generate rebuilds the payload from the roster. Trains that are stale,
//hidden, unplaced or on a route without a configured color are left out.
func (api *LEDRailsAPI) generate(now time.Time, trains []*TrainInfo, invisible map[string]bool) {
	nowSeconds := ceilSeconds(now)
	displayCutoff := nowSeconds - int64(api.DisplayThreshold)
	updateTime := nowSeconds - int64(api.UpdateInterval)

	updates := make([]ledwire.Update, 0, len(trains))
	for _, train := range trains {
		if train.Timestamp < displayCutoff || invisible[train.TrainID] {
			continue
		}
		if train.CurrentBlock == nil || train.PreviousBlock == nil {
			continue
		}
		colorID, known := api.RouteToColorID[train.Route]
		if !known {
			api.log.Printf("error: no color configured for route %s, dropping train %s from %s output\n",
				train.Route, train.TrainID, api.Version)
			continue
		}
		updates = append(updates, ledwire.Update{
			B: [2]int{
				ledwire.Remap(api.BlockRemap, *train.PreviousBlock),
				ledwire.Remap(api.BlockRemap, *train.CurrentBlock),
			},
			C: colorID,
			T: api.timeOffset(train, updateTime),
		})
	}

	api.publish(nowSeconds, updates)
}

//timeOffset computes the seconds into the board refresh window at which a
//transition should render
func (api *LEDRailsAPI) timeOffset(train *TrainInfo, updateTime int64) int {
	if api.RandomizeTimeOffset {
		if *train.PreviousBlock == *train.CurrentBlock {
			return 0
		}
		if api.UpdateInterval < 2 {
			return 0
		}
		return 1 + api.rand.Intn(api.UpdateInterval-1)
	}
	offset := train.Timestamp - updateTime
	if offset < 0 {
		return 0
	}
	return int(offset)
}

//publish swaps in the new output under the write lock. The payload
//timestamp never moves backwards for a revision.
func (api *LEDRailsAPI) publish(nowSeconds int64, updates []ledwire.Update) {
	api.mu.Lock()
	defer api.mu.Unlock()
	if nowSeconds < api.lastTimestamp {
		nowSeconds = api.lastTimestamp
	}
	api.lastTimestamp = nowSeconds
	api.output = &ledwire.Output{
		Version:   api.Version,
		Timestamp: nowSeconds,
		Update:    api.UpdateInterval,
		Colors:    api.Colors,
		Updates:   updates,
	}
}

//Output returns the most recently published payload, nil before the first
//completed cycle
func (api *LEDRailsAPI) Output() *ledwire.Output {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return api.output
}

//ceilSeconds converts a time to epoch seconds rounding any fraction up
func ceilSeconds(now time.Time) int64 {
	ms := now.UnixMilli()
	return (ms + 999) / 1000
}
