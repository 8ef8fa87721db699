package ltm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openrailtools/railcast/business/data/gtfsrt"
	"github.com/openrailtools/railcast/business/data/ledwire"
)

const (
	defaultFetchIntervalSeconds = 20
	defaultDisplayThreshold     = 300
	defaultCacheIntervalSeconds = 30
	defaultSmoothingFactor      = 0.95
	defaultStopsWindowMinutes   = 10

	defaultTrainLengthMeters   = 72.0
	defaultBreakDistanceMeters = 2000.0
	defaultMinSpeedMS          = 3.0
	defaultMaxSpeedMS          = 35.0
	defaultMaxSpeedDiffMS      = 3.0
	defaultMaxBearingDiffDeg   = 5.0
	defaultPositionAgeSeconds  = 30
)

// GTFSRealtimeAPIConfig describes where and how a network's realtime feeds
// are fetched
type GTFSRealtimeAPIConfig struct {
	URL                  []string `json:"url"`
	TripsURL             []string `json:"tripsUrl,omitempty"`
	KeyHeader            string   `json:"keyHeader,omitempty"`
	FetchIntervalSeconds int      `json:"fetchIntervalSeconds,omitempty"`
	Format               string   `json:"format,omitempty"`
	Protocol             string   `json:"protocol,omitempty"`
}

// PairDetectionConfig tunes the coupled train detector. Zero values fall back
// to the defaults above.
type PairDetectionConfig struct {
	TrainLengthMeters   float64 `json:"trainLengthMeters,omitempty"`
	BreakDistanceMeters float64 `json:"breakDistanceMeters,omitempty"`
	MinSpeedMS          float64 `json:"minSpeedMS,omitempty"`
	MaxSpeedMS          float64 `json:"maxSpeedMS,omitempty"`
	MaxSpeedDiffMS      float64 `json:"maxSpeedDiffMS,omitempty"`
	MaxBearingDiffDeg   float64 `json:"maxBearingDiffDeg,omitempty"`
	PositionAgeSeconds  int     `json:"positionAgeSeconds,omitempty"`
}

// ProcessingOptions holds the per network tuning knobs. SmoothingMaxSpeedMS
// is the reported speed at or below which a position fix counts as
// stationary jitter and gets blended instead of applied, 0 means only exact
// zero speeds are smoothed.
type ProcessingOptions struct {
	PairTrains                  bool                 `json:"pairTrains,omitempty"`
	CacheGTFS                   bool                 `json:"cacheGTFS,omitempty"`
	CacheIntervalSeconds        int                  `json:"cacheIntervalSeconds,omitempty"`
	DisplayThreshold            int                  `json:"displayThreshold,omitempty"`
	RemoveStaleVehiclesHours    float64              `json:"removeStaleVehiclesHours,omitempty"`
	SmoothingFactor             float64              `json:"smoothingFactor,omitempty"`
	SmoothingMaxSpeedMS         float64              `json:"smoothingMaxSpeedMS,omitempty"`
	StopsDepartureWindowMinutes int                  `json:"stopsDepartureWindowMinutes,omitempty"`
	RecordTransitions           bool                 `json:"recordTransitions,omitempty"`
	PairDetection               *PairDetectionConfig `json:"pairDetection,omitempty"`
}

// FileRef points at a data file relative to the network's config directory
type FileRef struct {
	FileName string `json:"fileName"`
}

// APIVersionConfig is one LED board hardware revision
type APIVersionConfig struct {
	Version    string              `json:"version"`
	BlockRemap []ledwire.RemapRule `json:"blockRemap,omitempty"`
}

// LEDRailsAPIConfig configures the LED outputs of a network
type LEDRailsAPIConfig struct {
	APIVersions         []APIVersionConfig `json:"APIVersions"`
	RandomizeTimeOffset bool               `json:"randomizeTimeOffset,omitempty"`
	Colors              ledwire.ColorTable `json:"colors"`
}

// NetworkConfig is one railNetworks/<ID>/config.json
type NetworkConfig struct {
	GTFSRealtimeAPI   GTFSRealtimeAPIConfig     `json:"GTFSRealtimeAPI"`
	TrainFilter       *gtfsrt.TrainFilterConfig `json:"trainFilter,omitempty"`
	ProcessingOptions ProcessingOptions         `json:"processingOptions,omitempty"`
	Stops             *FileRef                  `json:"stops,omitempty"`
	TrackBlocks       *FileRef                  `json:"trackBlocks,omitempty"`
	LEDRailsAPI       *LEDRailsAPIConfig        `json:"LEDRailsAPI,omitempty"`
}

// loadNetworkConfig reads config.json from the network directory and applies
// defaults
func loadNetworkConfig(dir string) (*NetworkConfig, error) {
	path := filepath.Join(dir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read network config %s: %w", path, err)
	}
	var config NetworkConfig
	if err = json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse network config %s: %w", path, err)
	}
	if len(config.GTFSRealtimeAPI.URL) == 0 {
		return nil, fmt.Errorf("network config %s has no GTFSRealtimeAPI.url entries", path)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *NetworkConfig) applyDefaults() {
	if c.GTFSRealtimeAPI.FetchIntervalSeconds <= 0 {
		c.GTFSRealtimeAPI.FetchIntervalSeconds = defaultFetchIntervalSeconds
	}
	options := &c.ProcessingOptions
	if options.DisplayThreshold <= 0 {
		options.DisplayThreshold = defaultDisplayThreshold
	}
	if options.CacheIntervalSeconds <= 0 {
		options.CacheIntervalSeconds = defaultCacheIntervalSeconds
	}
	if options.SmoothingFactor <= 0 || options.SmoothingFactor >= 1 {
		options.SmoothingFactor = defaultSmoothingFactor
	}
	if options.StopsDepartureWindowMinutes <= 0 {
		options.StopsDepartureWindowMinutes = defaultStopsWindowMinutes
	}
	if options.PairDetection == nil {
		options.PairDetection = &PairDetectionConfig{}
	}
	pd := options.PairDetection
	if pd.TrainLengthMeters <= 0 {
		pd.TrainLengthMeters = defaultTrainLengthMeters
	}
	if pd.BreakDistanceMeters <= 0 {
		pd.BreakDistanceMeters = defaultBreakDistanceMeters
	}
	if pd.MinSpeedMS <= 0 {
		pd.MinSpeedMS = defaultMinSpeedMS
	}
	if pd.MaxSpeedMS <= 0 {
		pd.MaxSpeedMS = defaultMaxSpeedMS
	}
	if pd.MaxSpeedDiffMS <= 0 {
		pd.MaxSpeedDiffMS = defaultMaxSpeedDiffMS
	}
	if pd.MaxBearingDiffDeg <= 0 {
		pd.MaxBearingDiffDeg = defaultMaxBearingDiffDeg
	}
	if pd.PositionAgeSeconds <= 0 {
		pd.PositionAgeSeconds = defaultPositionAgeSeconds
	}
}
