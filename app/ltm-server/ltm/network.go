package ltm

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
	"github.com/openrailtools/railcast/business/data/ledwire"
	"github.com/openrailtools/railcast/business/data/stops"
	"github.com/openrailtools/railcast/business/data/trackblocks"
	"github.com/openrailtools/railcast/business/data/transitions"
)

//Network tracks the trains of one rail network and publishes an LED payload
//per board revision. A single goroutine drives the update cycle, web
//handlers read only the snapshots published at the end of a cycle.
type Network struct {
	ID string

	log      *logger.Logger
	config   *NetworkConfig
	fetcher  *fetcher
	store    *entityStore
	detector *pairDetector
	tracker  *tracker
	blocks   *trackblocks.TrackBlockMap
	stops    stops.StopsMap
	cache    *networkCache
	recorder tickRecorder
	apis     []*LEDRailsAPI

	started      time.Time
	lastEviction time.Time
	tickRunning  int32

	mu             sync.RWMutex
	entitySnapshot []*gtfsrt.Entity
	trainSnapshot  []*gtfsrt.Entity
	rosterSnapshot []TrainInfo
	lastAttempt    time.Time
	lastError      string
	ticked         bool
}

//makeNetwork builds a Network from its config directory. The feed API key
//is taken from the environment variable named after the network id.
func makeNetwork(log *logger.Logger, networkID, dir, cacheDir string, recorder tickRecorder) (*Network, error) {
	config, err := loadNetworkConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to load config for network %s: %w", networkID, err)
	}

	network := &Network{
		ID:       networkID,
		log:      log,
		config:   config,
		fetcher:  makeFetcher(log, config.GTFSRealtimeAPI, os.Getenv(networkID)),
		store:    makeEntityStore(),
		detector: makePairDetector(log, *config.ProcessingOptions.PairDetection),
		tracker: makeTracker(config.ProcessingOptions.SmoothingFactor,
			config.ProcessingOptions.SmoothingMaxSpeedMS,
			config.ProcessingOptions.StopsDepartureWindowMinutes),
		cache:    makeNetworkCache(log, cacheDir, networkID),
		recorder: recorder,
		started:  time.Now(),
	}
	network.lastEviction = network.started

	if config.TrackBlocks != nil {
		blocks, err := trackblocks.LoadFile(log, networkFile(dir, config.TrackBlocks.FileName))
		if err != nil {
			return nil, fmt.Errorf("unable to load track blocks for network %s: %w", networkID, err)
		}
		network.blocks = blocks
		log.Printf("%s: loaded %d track blocks\n", networkID, blocks.Len())
	}
	if config.Stops != nil {
		stopsMap, err := stops.LoadFile(log, networkFile(dir, config.Stops.FileName))
		if err != nil {
			return nil, fmt.Errorf("unable to load stops for network %s: %w", networkID, err)
		}
		network.stops = stopsMap
		log.Printf("%s: loaded %d stops\n", networkID, len(stopsMap))
	}
	if config.LEDRailsAPI != nil {
		for _, version := range config.LEDRailsAPI.APIVersions {
			network.apis = append(network.apis, makeLEDRailsAPI(log, config.LEDRailsAPI, version,
				config.ProcessingOptions.DisplayThreshold, config.GTFSRealtimeAPI.FetchIntervalSeconds))
		}
	}

	if config.ProcessingOptions.CacheGTFS {
		network.store.restore(network.cache.restoreEntities())
		network.detector.restore(network.cache.restorePairs())
	}
	return network, nil
}

//networkFile resolves a configured file name against the network directory
func networkFile(dir, fileName string) string {
	if filepath.IsAbs(fileName) {
		return fileName
	}
	return filepath.Join(dir, fileName)
}

//MountPath returns the url prefix the network's endpoints are served under
func (n *Network) MountPath() string {
	return "/" + strings.ToLower(n.ID) + "-ltm"
}

//runUpdateLoop drives the network's periodic update cycle until shutdown is
//signalled. The cache timer runs in the same loop so saves never race a
//cycle.
func (n *Network) runUpdateLoop(wg *sync.WaitGroup, shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	fetchInterval := time.Duration(n.config.GTFSRealtimeAPI.FetchIntervalSeconds) * time.Second
	ticker := time.NewTicker(fetchInterval)
	defer ticker.Stop()

	var cacheChan <-chan time.Time
	if n.config.ProcessingOptions.CacheGTFS {
		cacheTicker := time.NewTicker(time.Duration(n.config.ProcessingOptions.CacheIntervalSeconds) * time.Second)
		defer cacheTicker.Stop()
		cacheChan = cacheTicker.C
	}

	n.log.Printf("%s: starting update loop, fetching every %s\n", n.ID, fetchInterval)
	n.runTick(time.Now())

	for {
		select {
		case <-shutdownSignal:
			n.log.Printf("%s: exiting update loop on shutdown signal\n", n.ID)
			if n.config.ProcessingOptions.CacheGTFS {
				n.cache.save(n.store.snapshot(), n.detector.currentPairs())
			}
			return
		case now := <-ticker.C:
			n.runTick(now)
		case <-cacheChan:
			n.cache.save(n.store.snapshot(), n.detector.currentPairs())
		}
	}
}

//runTick runs one full update cycle, reporting whether it completed. A
//cycle still in flight makes the next one a no-op instead of running two
//concurrently.
func (n *Network) runTick(now time.Time) bool {
	if !atomic.CompareAndSwapInt32(&n.tickRunning, 0, 1) {
		n.log.Printf("%s: previous update cycle still running, skipping\n", n.ID)
		return false
	}
	defer atomic.StoreInt32(&n.tickRunning, 0)
	defer func() {
		if r := recover(); r != nil {
			n.log.Printf("%s: recovered from panic during update cycle: %v\n", n.ID, r)
		}
	}()

	n.noteAttempt(now)
	start := time.Now()

	positions, err := n.fetcher.fetchPositions(context.Background())
	if err != nil {
		n.noteFailure(err.Error())
		n.log.Printf("%s: %v\n", n.ID, err)
		return false
	}
	mergeTripUpdates(positions, n.fetcher.fetchTripUpdates(context.Background()))

	n.store.update(positions)
	n.evictWhenDue(now)

	entities := n.store.all()
	trains := gtfsrt.Filter(entities, n.config.TrainFilter)

	invisible := make(map[string]bool)
	if n.config.ProcessingOptions.PairTrains {
		invisible = n.detector.update(now, trains)
	}

	n.tracker.sync(now, trains)
	roster := n.tracker.trains()

	var changes []blockChange
	if n.blocks != nil {
		changes = assignBlocks(now, roster, n.blocks, n.config.ProcessingOptions.DisplayThreshold, invisible)
	}

	outputs := make([]*ledwire.Output, 0, len(n.apis))
	for _, api := range n.apis {
		api.generate(now, roster, invisible)
		outputs = append(outputs, api.Output())
	}

	var records []*transitions.BlockTransition
	if n.config.ProcessingOptions.RecordTransitions {
		records = n.transitionRecords(now, changes)
	}
	if n.recorder != nil {
		n.recorder.recordTickResults(n.ID, outputs, records)
	}

	n.publishSnapshots(entities, trains, roster)
	n.log.Printf("%s: update cycle took %s. %d entities, %d trains, %d tracked\n",
		n.ID, time.Since(start).Round(time.Millisecond), len(entities), len(trains), len(roster))
	return true
}

//evictWhenDue drops stale entities from the store once per eviction
//interval
func (n *Network) evictWhenDue(now time.Time) {
	maxAgeHours := n.config.ProcessingOptions.RemoveStaleVehiclesHours
	if maxAgeHours <= 0 {
		return
	}
	interval := time.Duration(maxAgeHours * float64(time.Hour))
	if now.Sub(n.lastEviction) < interval {
		return
	}
	n.lastEviction = now
	if removed := n.store.removeStale(now, maxAgeHours); removed > 0 {
		n.log.Printf("%s: evicted %d stale entities from store\n", n.ID, removed)
	}
}

//transitionRecords converts the cycle's block changes into rows for the
//transitions recorder. Color ids follow the first board revision's table.
func (n *Network) transitionRecords(now time.Time, changes []blockChange) []*transitions.BlockTransition {
	if len(changes) == 0 {
		return nil
	}
	var colorIDs map[string]int
	if len(n.apis) > 0 {
		colorIDs = n.apis[0].RouteToColorID
	}
	records := make([]*transitions.BlockTransition, 0, len(changes))
	for _, change := range changes {
		colorID := -1
		if id, present := colorIDs[change.train.Route]; present {
			colorID = id
		}
		records = append(records, &transitions.BlockTransition{
			NetworkID:     n.ID,
			TrainID:       change.train.TrainID,
			RouteID:       change.train.Route,
			PreviousBlock: change.previous,
			CurrentBlock:  change.current,
			ColorID:       colorID,
			ObservedTime:  now,
		})
	}
	return records
}

//publishSnapshots replaces the data the web handlers read. The roster is
//copied by value so later cycles never mutate what a reader holds.
func (n *Network) publishSnapshots(entities, trains []*gtfsrt.Entity, roster []*TrainInfo) {
	rosterCopy := make([]TrainInfo, 0, len(roster))
	for _, train := range roster {
		rosterCopy = append(rosterCopy, *train)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entitySnapshot = entities
	n.trainSnapshot = trains
	n.rosterSnapshot = rosterCopy
	n.ticked = true
	n.lastError = ""
}

func (n *Network) noteAttempt(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastAttempt = now
}

func (n *Network) noteFailure(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastError = reason
}

//ready reports whether an update cycle has completed yet, with the failure
//reason and last attempt time while none has
func (n *Network) ready() (bool, string, time.Time) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	reason := n.lastError
	if reason == "" {
		reason = "no update cycle has completed yet"
	}
	return n.ticked, reason, n.lastAttempt
}

//networkStatus is the body of the status endpoint
type networkStatus struct {
	Status          string `json:"status"`
	Epoch           int64  `json:"epoch"`
	Uptime          string `json:"uptime"`
	RefreshInterval int    `json:"refreshInterval"`
	TrackBlocks     int    `json:"trackBlocks"`
	Entities        int    `json:"entities"`
	TrackedTrains   int    `json:"trackedTrains"`
}

func (n *Network) status() networkStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	status := "OK"
	if !n.ticked {
		status = "initializing"
	}
	blockCount := 0
	if n.blocks != nil {
		blockCount = n.blocks.Len()
	}
	return networkStatus{
		Status:          status,
		Epoch:           n.started.Unix(),
		Uptime:          time.Since(n.started).Round(time.Second).String(),
		RefreshInterval: n.config.GTFSRealtimeAPI.FetchIntervalSeconds,
		TrackBlocks:     blockCount,
		Entities:        len(n.entitySnapshot),
		TrackedTrains:   len(n.rosterSnapshot),
	}
}

//vehicles returns the raw entity snapshot of the last completed cycle
func (n *Network) vehicles() []*gtfsrt.Entity {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.entitySnapshot
}

//trainEntities returns the filtered train entity snapshot
func (n *Network) trainEntities() []*gtfsrt.Entity {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trainSnapshot
}

//trackedTrains returns the roster snapshot
func (n *Network) trackedTrains() []TrainInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.rosterSnapshot
}

//stopsMap returns the loaded stops, nil when the network has none configured
func (n *Network) stopsMap() stops.StopsMap {
	return n.stops
}

//ledAPIs returns the network's board revisions
func (n *Network) ledAPIs() []*LEDRailsAPI {
	return n.apis
}
