// Package trackblocks contains the geographic track block model used to place
// trains onto LED board positions, and the KML loader that builds it.
package trackblocks

import (
	"sort"
	"strings"

	"github.com/openrailtools/railcast/foundation/geo"
)

// Platform is a disambiguation target inside a TrackBlock. When a block holds
// more than one physical track the platforms decide which block number a train
// is placed on, by upcoming stop, by bearing, or as a default.
type Platform struct {
	BlockNumber int      `json:"blockNumber"`
	StopIDs     []string `json:"stopIds,omitempty"`
	IsDefault   bool     `json:"isDefault,omitempty"`
	Bearing     *float64 `json:"bearing,omitempty"`
	Routes      []string `json:"routes,omitempty"`
}

// RouteAllowed reports whether the platform accepts a train on route.
// An empty route list accepts everything.
func (p *Platform) RouteAllowed(route string) bool {
	return routeAllowed(p.Routes, route)
}

// TrackBlock is one polygon of track mapped to an LED position. Blocks are
// immutable once loaded.
type TrackBlock struct {
	BlockNumber int         `json:"blockNumber"`
	AltBlock    *int        `json:"altBlock,omitempty"`
	Name        string      `json:"name"`
	Priority    bool        `json:"priority,omitempty"`
	Routes      []string    `json:"routes,omitempty"`
	Polygon     []geo.Point `json:"polygon"`
	Platforms   []Platform  `json:"platforms,omitempty"`
}

// Contains reports whether the location falls inside the block polygon
func (b *TrackBlock) Contains(lat float64, lon float64) bool {
	return geo.PointInPolygon(lat, lon, b.Polygon)
}

// RouteAllowed reports whether the block accepts a train on route.
// An empty route list accepts everything.
func (b *TrackBlock) RouteAllowed(route string) bool {
	return routeAllowed(b.Routes, route)
}

// routeAllowed applies the substring route filter shared by blocks and
// platforms. Any configured entry appearing inside route admits the train.
func routeAllowed(routes []string, route string) bool {
	if len(routes) == 0 {
		return true
	}
	for _, r := range routes {
		if strings.Contains(route, r) {
			return true
		}
	}
	return false
}

// TrackBlockMap holds every track block of a network in its canonical
// iteration order: blocks with route filters first, then priority blocks,
// then the rest, preserving load order within each group. Assignment searches
// depend on this order.
type TrackBlockMap struct {
	byNumber map[int]*TrackBlock
	ordered  []*TrackBlock
}

// MakeTrackBlockMap builds a TrackBlockMap from blocks, sorting them into the
// canonical iteration order
func MakeTrackBlockMap(blocks []*TrackBlock) *TrackBlockMap {
	m := &TrackBlockMap{
		byNumber: make(map[int]*TrackBlock, len(blocks)),
	}
	for _, block := range blocks {
		if _, present := m.byNumber[block.BlockNumber]; present {
			continue
		}
		m.byNumber[block.BlockNumber] = block
		m.ordered = append(m.ordered, block)
	}
	m.sortCanonical()
	return m
}

func (m *TrackBlockMap) sortCanonical() {
	rank := func(b *TrackBlock) int {
		r := 0
		if len(b.Routes) == 0 {
			r += 2
		}
		if !b.Priority {
			r++
		}
		return r
	}
	// stable sort keeps load order inside each rank group
	sort.SliceStable(m.ordered, func(i, j int) bool {
		return rank(m.ordered[i]) < rank(m.ordered[j])
	})
}

// Get returns the block whose main number is blockNumber, or nil
func (m *TrackBlockMap) Get(blockNumber int) *TrackBlock {
	return m.byNumber[blockNumber]
}

// Ordered returns every block in canonical iteration order. Callers must not
// modify the returned slice.
func (m *TrackBlockMap) Ordered() []*TrackBlock {
	return m.ordered
}

// Len returns the number of blocks in the map
func (m *TrackBlockMap) Len() int {
	return len(m.ordered)
}

// Resolve returns the block that owns blockNumber, whether it appears as a
// main block number, one of a block's platform numbers, or an alt number.
// Returns nil when no block owns it.
func (m *TrackBlockMap) Resolve(blockNumber int) *TrackBlock {
	if block, present := m.byNumber[blockNumber]; present {
		return block
	}
	for _, block := range m.ordered {
		for i := range block.Platforms {
			if block.Platforms[i].BlockNumber == blockNumber {
				return block
			}
		}
	}
	for _, block := range m.ordered {
		if block.AltBlock != nil && *block.AltBlock == blockNumber {
			return block
		}
	}
	return nil
}
