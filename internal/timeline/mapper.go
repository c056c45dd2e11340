// Package timeline maps between the telemetry timeline and an external
// media timeline using a sparse table of correspondence anchors.
//
// The anchor table is loaded once and immutable afterwards. An empty or
// unreadable source yields an unavailable mapper whose queries miss;
// callers fall back to fixed-offset arithmetic. Mapping is therefore a
// soft feature and loading never returns an error.
package timeline

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/aeroview-data/flight.report/internal/monitoring"
)

// Anchor is one correspondence point between the two timelines, in
// seconds on each axis.
type Anchor struct {
	TelemetryTime float64 `json:"telemetry_time"`
	ExternalTime  float64 `json:"external_time"`
}

// Mapper interpolates between anchors in both directions. It keeps two
// sorted projections of the same pair set: one ordered by telemetry
// time, one by external time.
type Mapper struct {
	anchors []Anchor

	// byTelemetry: keys[i] pairs with vals[i].
	telemetryKeys []float64
	externalVals  []float64

	// byExternal projection.
	externalKeys  []float64
	telemetryVals []float64
}

// Load reads an anchor table from a JSON file. Any failure (missing
// file, bad JSON, no anchors) yields an unavailable mapper, never an
// error: the mapping is optional and callers must keep working without
// it.
func Load(path string) *Mapper {
	if path == "" {
		return &Mapper{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		monitoring.Logf("timeline: no anchor table at %s: %v", path, err)
		return &Mapper{}
	}
	var anchors []Anchor
	if err := json.Unmarshal(data, &anchors); err != nil {
		monitoring.Logf("timeline: malformed anchor table %s: %v", path, err)
		return &Mapper{}
	}
	return New(anchors)
}

// New builds a mapper from an unordered anchor set.
func New(anchors []Anchor) *Mapper {
	m := &Mapper{anchors: anchors}
	n := len(anchors)
	if n == 0 {
		return m
	}

	byTelemetry := make([]Anchor, n)
	copy(byTelemetry, anchors)
	sort.SliceStable(byTelemetry, func(i, j int) bool {
		return byTelemetry[i].TelemetryTime < byTelemetry[j].TelemetryTime
	})

	byExternal := make([]Anchor, n)
	copy(byExternal, anchors)
	sort.SliceStable(byExternal, func(i, j int) bool {
		return byExternal[i].ExternalTime < byExternal[j].ExternalTime
	})

	m.telemetryKeys = make([]float64, n)
	m.externalVals = make([]float64, n)
	m.externalKeys = make([]float64, n)
	m.telemetryVals = make([]float64, n)
	for i := 0; i < n; i++ {
		m.telemetryKeys[i] = byTelemetry[i].TelemetryTime
		m.externalVals[i] = byTelemetry[i].ExternalTime
		m.externalKeys[i] = byExternal[i].ExternalTime
		m.telemetryVals[i] = byExternal[i].TelemetryTime
	}
	return m
}

// Available reports whether the mapper holds any anchors.
func (m *Mapper) Available() bool {
	return len(m.telemetryKeys) > 0
}

// Len returns the number of anchors.
func (m *Mapper) Len() int {
	return len(m.telemetryKeys)
}

// Anchors returns up to max anchors sorted by telemetry time, for
// client-side caching. max <= 0 returns all.
func (m *Mapper) Anchors(max int) []Anchor {
	n := len(m.telemetryKeys)
	if max > 0 && max < n {
		n = max
	}
	out := make([]Anchor, n)
	for i := 0; i < n; i++ {
		out[i] = Anchor{TelemetryTime: m.telemetryKeys[i], ExternalTime: m.externalVals[i]}
	}
	return out
}

// ToExternal converts a telemetry time to external time. The second
// return is false when no mapping is loaded.
func (m *Mapper) ToExternal(telemetryTime float64) (float64, bool) {
	return interpolate(m.telemetryKeys, m.externalVals, telemetryTime)
}

// ToTelemetry converts an external time to telemetry time. The second
// return is false when no mapping is loaded.
func (m *Mapper) ToTelemetry(externalTime float64) (float64, bool) {
	return interpolate(m.externalKeys, m.telemetryVals, externalTime)
}

// interpolate maps t through the piecewise-linear function defined by
// the parallel (keys, vals) arrays. Outside the key range the boundary
// value is returned (clamping, no extrapolation). Exact key hits return
// the paired value directly to avoid division noise; a degenerate
// duplicate key segment returns its left value.
func interpolate(keys, vals []float64, t float64) (float64, bool) {
	n := len(keys)
	if n == 0 {
		return 0, false
	}

	p := sort.SearchFloat64s(keys, t)
	if p == 0 {
		return vals[0], true
	}
	if p == n {
		return vals[n-1], true
	}

	k0, v0 := keys[p-1], vals[p-1]
	k1, v1 := keys[p], vals[p]
	if t == k0 {
		return v0, true
	}
	if t == k1 {
		return v1, true
	}
	if k1 == k0 {
		return v0, true
	}
	return v0 + (t-k0)/(k1-k0)*(v1-v0), true
}
