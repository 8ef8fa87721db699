// Package ledwire contains the compact json payload consumed by LED display
// boards and the color and block remap tables used to produce it.
package ledwire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RGB is a single color as the [R,G,B] int tuple the boards expect
type RGB [3]int

// Update is one train movement on the board. B holds the previous and current
// block number, C the color index of the route, and T the seconds offset
// within the update window when the board should show the movement.
type Update struct {
	B [2]int `json:"b"`
	C int    `json:"c"`
	T int    `json:"t"`
}

// Output is the payload published to a board revision. Field names are fixed
// by the board firmware and must not change.
type Output struct {
	Version   string      `json:"version"`
	Timestamp int64       `json:"timestamp"`
	Update    int         `json:"update"`
	Colors    map[int]RGB `json:"colors"`
	Updates   []Update    `json:"updates"`
}

// ColorEntry pairs a route with its display color
type ColorEntry struct {
	Route string
	RGB   RGB
}

// ColorTable holds the configured route colors in declaration order. Order
// matters because color indices are assigned sequentially from it.
type ColorTable struct {
	entries []ColorEntry
}

// UnmarshalJSON reads a {"route":[R,G,B]} object preserving the order routes
// are declared in, which encoding/json map decoding would lose.
func (t *ColorTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("colors must be a json object")
	}
	t.entries = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		route, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v in colors", keyTok)
		}
		var rgb RGB
		if err = dec.Decode(&rgb); err != nil {
			return fmt.Errorf("invalid color for route %s: %w", route, err)
		}
		t.entries = append(t.entries, ColorEntry{Route: route, RGB: rgb})
	}
	return nil
}

// MarshalJSON writes the table back out in declaration order
func (t ColorTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range t.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Route)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(entry.RGB)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Entries returns the color entries in declaration order
func (t ColorTable) Entries() []ColorEntry {
	return t.entries
}

// Len returns the number of configured colors
func (t ColorTable) Len() int {
	return len(t.entries)
}

// RouteColorIDs assigns each route a dense color index 0..n-1 following
// declaration order
func (t ColorTable) RouteColorIDs() map[string]int {
	ids := make(map[string]int, len(t.entries))
	for i, entry := range t.entries {
		ids[entry.Route] = i
	}
	return ids
}

// ColorsByID returns the color index to RGB table published in Output.Colors
func (t ColorTable) ColorsByID() map[int]RGB {
	colors := make(map[int]RGB, len(t.entries))
	for i, entry := range t.entries {
		colors[i] = entry.RGB
	}
	return colors
}

// RemapRule shifts block numbers in the closed range [Start,End] by Offset.
// Boards of different hardware revisions index their LEDs differently, the
// rules translate the canonical block numbers into board positions.
type RemapRule struct {
	Start  int `json:"start"`
	End    int `json:"end"`
	Offset int `json:"offset"`
}

// Remap applies the first rule whose range contains block. Blocks outside
// every rule pass through unchanged.
func Remap(rules []RemapRule, block int) int {
	for _, rule := range rules {
		if block >= rule.Start && block <= rule.End {
			return block + rule.Offset
		}
	}
	return block
}
