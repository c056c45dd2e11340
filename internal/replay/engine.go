// Package replay ties the telemetry store, the external-timeline mapper
// and the playback scheduler into the engine surface consumed by the
// HTTP and WebSocket layers.
package replay

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/aeroview-data/flight.report/internal/monitoring"
	"github.com/aeroview-data/flight.report/internal/playback"
	"github.com/aeroview-data/flight.report/internal/telemetry"
	"github.com/aeroview-data/flight.report/internal/timeline"
)

// maxPathSpan bounds a single PathRange response.
const maxPathSpan = 10000

var (
	// ErrNotInitialized is returned for operations that need a loaded
	// telemetry store before Initialize has succeeded.
	ErrNotInitialized = errors.New("replay: telemetry data not initialized")

	// ErrOutOfRange is returned for index or timestamp queries outside
	// the loaded timeline.
	ErrOutOfRange = errors.New("replay: index out of range")
)

// Summary describes a freshly initialized store.
type Summary struct {
	Count   int      `json:"data_count"`
	Columns []string `json:"data_columns"`
}

// Bounds is the bounding box of the flight path.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// PathPoint is one point of a path slice response.
type PathPoint struct {
	Index int     `json:"index"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"alt"`
}

// Columnar holds the whole-timeline extractions computed once at
// Initialize so path and attitude charts never re-walk the store.
type Columnar struct {
	Lats    []float64 `json:"lats"`
	Lons    []float64 `json:"lons"`
	Alts    []float64 `json:"alts"`
	Yaws    []float64 `json:"yaws"`
	Pitches []float64 `json:"pitches"`
	Rolls   []float64 `json:"rolls"`
	Bounds  *Bounds   `json:"bounds"`
}

// dataset bundles a store with its derived columnar extractions. The
// engine swaps the whole bundle through one atomic pointer so no reader
// ever observes a store paired with another store's derivations.
type dataset struct {
	store   *telemetry.Store
	columns Columnar
}

// Engine is the core facade: an atomically replaceable dataset, the
// external-timeline mapper, the playback scheduler, and the fixed-offset
// fallback used when no anchor table is available.
type Engine struct {
	data          atomic.Pointer[dataset]
	mapper        *timeline.Mapper
	sched         *playback.Scheduler
	dataFile      string
	offsetSeconds float64
}

// NewEngine creates an engine with no data loaded. dataFile is the
// default telemetry source for InitializeConfigured. The scheduler is
// constructed by the caller (it needs the sink set) against the source
// returned by Source.
func NewEngine(dataFile string, mapper *timeline.Mapper, offsetSeconds float64) *Engine {
	return &Engine{
		mapper:        mapper,
		dataFile:      dataFile,
		offsetSeconds: offsetSeconds,
	}
}

// Offset returns the fixed fallback offset in seconds.
func (e *Engine) Offset() float64 {
	return e.offsetSeconds
}

// AttachScheduler wires the playback scheduler. Must be called once
// during bootstrap, before any control operation.
func (e *Engine) AttachScheduler(s *playback.Scheduler) {
	e.sched = s
}

// Source returns the scheduler's view of the engine's current store.
func (e *Engine) Source() playback.Source {
	return storeView{e}
}

// storeView adapts the atomic dataset pointer to playback.Source. An
// engine with no data behaves as an empty timeline.
type storeView struct {
	e *Engine
}

func (v storeView) Count() int {
	if d := v.e.data.Load(); d != nil {
		return d.store.Count()
	}
	return 0
}

func (v storeView) At(i int) (telemetry.Sample, bool) {
	if d := v.e.data.Load(); d != nil {
		return d.store.At(i)
	}
	return telemetry.Sample{}, false
}

// InitializeConfigured loads the override path when non-empty and the
// configured default data file otherwise.
func (e *Engine) InitializeConfigured(override string) (Summary, error) {
	path := override
	if path == "" {
		path = e.dataFile
	}
	return e.Initialize(path)
}

// Initialize loads the telemetry source at path, computes the columnar
// extractions, and installs both as one atomic swap. On failure the
// previous dataset (if any) stays installed untouched.
func (e *Engine) Initialize(path string) (Summary, error) {
	store, err := telemetry.LoadCSV(path)
	if err != nil {
		return Summary{}, fmt.Errorf("initialize: %w", err)
	}

	lats, lons, alts := store.Positions()
	yaws, pitches, rolls := store.Attitudes()
	cols := Columnar{
		Lats:    lats,
		Lons:    lons,
		Alts:    alts,
		Yaws:    yaws,
		Pitches: pitches,
		Rolls:   rolls,
		Bounds:  boundsOf(lats, lons),
	}

	e.data.Store(&dataset{store: store, columns: cols})

	first, _ := store.First()
	last, _ := store.Last()
	monitoring.Logf("replay: loaded %d samples spanning %.2fs to %.2fs",
		store.Count(), first.Seconds(), last.Seconds())

	return Summary{Count: store.Count(), Columns: store.Columns()}, nil
}

func boundsOf(lats, lons []float64) *Bounds {
	if len(lats) == 0 {
		return nil
	}
	b := &Bounds{MinLat: lats[0], MaxLat: lats[0], MinLon: lons[0], MaxLon: lons[0]}
	for i := 1; i < len(lats); i++ {
		if lats[i] < b.MinLat {
			b.MinLat = lats[i]
		}
		if lats[i] > b.MaxLat {
			b.MaxLat = lats[i]
		}
		if lons[i] < b.MinLon {
			b.MinLon = lons[i]
		}
		if lons[i] > b.MaxLon {
			b.MaxLon = lons[i]
		}
	}
	return b
}

// Initialized reports whether a dataset is loaded.
func (e *Engine) Initialized() bool {
	return e.data.Load() != nil
}

// Count returns the number of loaded samples (0 when uninitialized).
func (e *Engine) Count() int {
	if d := e.data.Load(); d != nil {
		return d.store.Count()
	}
	return 0
}

// SampleAt returns the sample at index.
func (e *Engine) SampleAt(index int) (telemetry.Sample, error) {
	d := e.data.Load()
	if d == nil {
		return telemetry.Sample{}, ErrNotInitialized
	}
	s, ok := d.store.At(index)
	if !ok {
		return telemetry.Sample{}, ErrOutOfRange
	}
	return s, nil
}

// NearestIndex returns the index of the sample closest to the given
// telemetry time in seconds.
func (e *Engine) NearestIndex(seconds float64) (int, error) {
	d := e.data.Load()
	if d == nil {
		return 0, ErrNotInitialized
	}
	idx := d.store.NearestIndex(int64(seconds * 1e9))
	if idx < 0 {
		return 0, ErrOutOfRange
	}
	return idx, nil
}

// PathRange returns path points for [start, end], silently truncating
// the span to maxPathSpan and the end to the last valid index. The
// returned int is the effective end index.
func (e *Engine) PathRange(start, end int) ([]PathPoint, int, error) {
	d := e.data.Load()
	if d == nil {
		return nil, 0, ErrNotInitialized
	}

	if end-start > maxPathSpan {
		end = start + maxPathSpan
	}

	var points []PathPoint
	for i := start; i <= end; i++ {
		s, ok := d.store.At(i)
		if !ok {
			continue
		}
		points = append(points, PathPoint{Index: i, Lat: s.Lat, Lon: s.Lon, Alt: s.Alt})
	}

	last := d.store.Count() - 1
	if end > last {
		end = last
	}
	return points, end, nil
}

// FullColumns returns the columnar extractions computed at Initialize.
func (e *Engine) FullColumns() (Columnar, error) {
	d := e.data.Load()
	if d == nil {
		return Columnar{}, ErrNotInitialized
	}
	return d.columns, nil
}

// ToExternalTime converts a telemetry timestamp (seconds) to external
// time. The bool reports whether the fixed-offset fallback was used
// because no anchor table is available.
func (e *Engine) ToExternalTime(telemetrySeconds float64) (float64, bool) {
	if v, ok := e.mapper.ToExternal(telemetrySeconds); ok {
		return v, false
	}
	v := telemetrySeconds - e.offsetSeconds
	if v < 0 {
		v = 0
	}
	return v, true
}

// ToTelemetryTime converts an external timestamp (seconds) to telemetry
// time, with the same fallback convention as ToExternalTime.
func (e *Engine) ToTelemetryTime(externalSeconds float64) (float64, bool) {
	if v, ok := e.mapper.ToTelemetry(externalSeconds); ok {
		return v, false
	}
	return externalSeconds + e.offsetSeconds, true
}

// Mapper exposes the timeline mapper for availability checks and anchor
// dumps.
func (e *Engine) Mapper() *timeline.Mapper {
	return e.mapper
}

// SampleForExternalTime composes ToTelemetryTime, NearestIndex and
// SampleAt: the sample that was being captured at the given external
// time. Also returns the resolved telemetry timestamp in seconds.
func (e *Engine) SampleForExternalTime(externalSeconds float64) (telemetry.Sample, float64, error) {
	telemetrySeconds, _ := e.ToTelemetryTime(externalSeconds)
	idx, err := e.NearestIndex(telemetrySeconds)
	if err != nil {
		return telemetry.Sample{}, telemetrySeconds, err
	}
	s, err := e.SampleAt(idx)
	return s, telemetrySeconds, err
}

// Start resumes or begins playback. Fails distinctly when no data is
// loaded; an out-of-range start index is accepted and finishes on the
// next tick.
func (e *Engine) Start(req playback.StartRequest) error {
	if !e.Initialized() {
		return ErrNotInitialized
	}
	e.sched.Start(req)
	return nil
}

// Pause halts playback, keeping the cursor.
func (e *Engine) Pause() error {
	if !e.Initialized() {
		return ErrNotInitialized
	}
	e.sched.Pause()
	return nil
}

// Seek repositions the playback cursor.
func (e *Engine) Seek(index int) error {
	if !e.Initialized() {
		return ErrNotInitialized
	}
	e.sched.Seek(index)
	return nil
}

// SetSpeed adjusts the playback rate, returning the clamped value.
func (e *Engine) SetSpeed(multiplier float64) float64 {
	return e.sched.SetSpeed(multiplier)
}

// Status returns the scheduler state.
func (e *Engine) Status() playback.Snapshot {
	return e.sched.Snapshot()
}
