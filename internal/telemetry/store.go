package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"

	"github.com/aeroview-data/flight.report/internal/monitoring"
)

// ErrNoValidTimestamps is returned when every row of the source fails
// timestamp parsing. Individual bad rows are dropped silently.
var ErrNoValidTimestamps = errors.New("telemetry: no rows with a parseable timestamp")

// Columns the loader expects in the source header (case-insensitive).
// The mode column is optional.
var requiredColumns = []string{
	"timestamp",
	"lat", "lon", "alt",
	"north", "east", "down",
	"x_vehicle", "y_vehicle", "z_vehicle", "w_vehicle",
	"x_helmet", "y_helmet", "z_helmet", "w_helmet",
}

// Store is an immutable, timestamp-ordered sequence of derived samples.
// It is safe for concurrent readers without locking; replacing a store is
// done by swapping the whole value atomically at a higher layer.
type Store struct {
	samples []Sample
	// timestamps is a parallel slice of samples[i].TimestampNs kept for
	// the nearest-neighbour binary search.
	timestamps []int64
	columns    []string
}

// LoadCSV builds a store from a CSV telemetry file.
func LoadCSV(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("telemetry: read header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("telemetry: read rows: %w", err)
	}

	return Build(header, rows)
}

// Build constructs a store from a header row and data rows. Rows whose
// timestamp cannot be parsed are dropped; remaining rows are stably
// sorted by timestamp (source order breaks ties) and densely re-indexed.
func Build(header []string, rows [][]string) (*Store, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("telemetry: missing required column %q", name)
		}
	}
	modeCol, hasMode := cols["mode"]

	samples := make([]Sample, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		if len(row) < len(header) {
			dropped++
			continue
		}
		tsNs, err := parseTimestampNs(row[cols["timestamp"]])
		if err != nil {
			dropped++
			continue
		}

		vn := parseFloatOrZero(row[cols["north"]])
		ve := parseFloatOrZero(row[cols["east"]])
		vd := parseFloatOrZero(row[cols["down"]])

		vehicleQ := quatFromXYZW(
			parseFloatOrZero(row[cols["x_vehicle"]]),
			parseFloatOrZero(row[cols["y_vehicle"]]),
			parseFloatOrZero(row[cols["z_vehicle"]]),
			parseFloatOrZero(row[cols["w_vehicle"]]),
		)
		headsetRelQ := quatFromXYZW(
			parseFloatOrZero(row[cols["x_helmet"]]),
			parseFloatOrZero(row[cols["y_helmet"]]),
			parseFloatOrZero(row[cols["z_helmet"]]),
			parseFloatOrZero(row[cols["w_helmet"]]),
		)

		mode := 0
		if hasMode {
			mode = parseIntOrZero(row[modeCol])
		}

		samples = append(samples, Sample{
			TimestampNs: tsNs,
			Lat:         parseFloatOrZero(row[cols["lat"]]),
			Lon:         parseFloatOrZero(row[cols["lon"]]),
			Alt:         parseFloatOrZero(row[cols["alt"]]),
			VelNorth:    vn,
			VelEast:     ve,
			VelDown:     vd,
			GroundSpeed: floats.Norm([]float64{vn, ve, vd}, 2),
			VehicleQ:    vehicleQ,
			// world_from_headset = world_from_vehicle * vehicle_from_headset
			HeadsetQ: quat.Mul(vehicleQ, headsetRelQ),
			Mode:     mode,
		})
	}

	if len(samples) == 0 {
		return nil, ErrNoValidTimestamps
	}
	if dropped > 0 {
		monitoring.Logf("telemetry: dropped %d of %d rows with unparseable timestamps", dropped, len(rows))
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].TimestampNs < samples[j].TimestampNs
	})

	timestamps := make([]int64, len(samples))
	for i := range samples {
		samples[i].Index = i
		timestamps[i] = samples[i].TimestampNs
	}

	return &Store{
		samples:    samples,
		timestamps: timestamps,
		columns:    header,
	}, nil
}

// Count returns the number of samples in the store.
func (st *Store) Count() int {
	return len(st.samples)
}

// Columns returns the source header columns.
func (st *Store) Columns() []string {
	return st.columns
}

// At returns the sample at index i, or false if i is outside [0, N).
func (st *Store) At(i int) (Sample, bool) {
	if i < 0 || i >= len(st.samples) {
		return Sample{}, false
	}
	return st.samples[i], true
}

// First and Last return the boundary samples; ok is false for an empty
// store.
func (st *Store) First() (Sample, bool) { return st.At(0) }

func (st *Store) Last() (Sample, bool) { return st.At(len(st.samples) - 1) }

// NearestIndex returns the index of the sample whose timestamp is
// closest to tNs. Exact ties between two neighbours resolve to the
// earlier index. Returns -1 only for an empty store.
func (st *Store) NearestIndex(tNs int64) int {
	n := len(st.timestamps)
	if n == 0 {
		return -1
	}

	p := sort.Search(n, func(i int) bool {
		return st.timestamps[i] >= tNs
	})

	switch {
	case p == 0:
		return 0
	case p == n:
		return n - 1
	}

	before := tNs - st.timestamps[p-1]
	after := st.timestamps[p] - tNs
	if before <= after {
		return p - 1
	}
	return p
}

// Positions extracts latitude, longitude and altitude for the whole
// timeline in a single pass.
func (st *Store) Positions() (lats, lons, alts []float64) {
	n := len(st.samples)
	lats = make([]float64, n)
	lons = make([]float64, n)
	alts = make([]float64, n)
	for i, s := range st.samples {
		lats[i] = s.Lat
		lons[i] = s.Lon
		alts[i] = s.Alt
	}
	return lats, lons, alts
}

// Attitudes extracts yaw, pitch and roll (degrees) for the whole
// timeline from the vehicle orientation in a single pass.
func (st *Store) Attitudes() (yaws, pitches, rolls []float64) {
	n := len(st.samples)
	yaws = make([]float64, n)
	pitches = make([]float64, n)
	rolls = make([]float64, n)
	for i, s := range st.samples {
		r, p, y := eulerXYZ(s.VehicleQ)
		rolls[i] = r
		pitches[i] = p
		yaws[i] = y
	}
	return yaws, pitches, rolls
}
