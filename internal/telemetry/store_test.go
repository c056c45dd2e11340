package telemetry

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testHeader = []string{
	"timestamp", "lat", "lon", "alt",
	"north", "east", "down",
	"x_vehicle", "y_vehicle", "z_vehicle", "w_vehicle",
	"x_helmet", "y_helmet", "z_helmet", "w_helmet",
	"mode",
}

// testRow builds a row with identity quaternions and the given scalar
// fields, matching testHeader's column order.
func testRow(ts string, lat, lon, alt, vn, ve, vd float64, mode string) []string {
	f := func(v float64) string { return fmt.Sprintf("%v", v) }
	return []string{
		ts, f(lat), f(lon), f(alt),
		f(vn), f(ve), f(vd),
		"0", "0", "0", "1",
		"0", "0", "0", "1",
		mode,
	}
}

func TestBuildSortsAndReindexes(t *testing.T) {
	rows := [][]string{
		testRow("30", 3, 0, 0, 0, 0, 0, "4"),
		testRow("10", 1, 0, 0, 0, 0, 0, "4"),
		testRow("20", 2, 0, 0, 0, 0, 0, "4"),
	}

	st, err := Build(testHeader, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if st.Count() != 3 {
		t.Fatalf("Count = %d, want 3", st.Count())
	}

	var gotLats []float64
	var gotIdx []int
	for i := 0; i < st.Count(); i++ {
		s, ok := st.At(i)
		if !ok {
			t.Fatalf("At(%d) not ok", i)
		}
		gotLats = append(gotLats, s.Lat)
		gotIdx = append(gotIdx, s.Index)
	}
	if diff := cmp.Diff([]float64{1, 2, 3}, gotLats); diff != "" {
		t.Errorf("lat order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, gotIdx); diff != "" {
		t.Errorf("indices not dense (-want +got):\n%s", diff)
	}

	first, _ := st.First()
	last, _ := st.Last()
	if first.TimestampNs != 10_000_000_000 || last.TimestampNs != 30_000_000_000 {
		t.Errorf("bounds = [%d, %d]", first.TimestampNs, last.TimestampNs)
	}
}

func TestBuildStableSortPreservesDuplicateOrder(t *testing.T) {
	rows := [][]string{
		testRow("10", 1, 0, 0, 0, 0, 0, "0"),
		testRow("10", 2, 0, 0, 0, 0, 0, "0"),
		testRow("10", 3, 0, 0, 0, 0, 0, "0"),
	}
	st, err := Build(testHeader, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, want := range []float64{1, 2, 3} {
		s, _ := st.At(i)
		if s.Lat != want {
			t.Errorf("At(%d).Lat = %v, want %v", i, s.Lat, want)
		}
	}
}

func TestBuildDropsUnparseableRows(t *testing.T) {
	rows := [][]string{
		testRow("bogus", 1, 0, 0, 0, 0, 0, "0"),
		testRow("10", 2, 0, 0, 0, 0, 0, "0"),
		{"short-row"},
	}
	st, err := Build(testHeader, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if st.Count() != 1 {
		t.Fatalf("Count = %d, want 1", st.Count())
	}
	s, _ := st.At(0)
	if s.Lat != 2 {
		t.Errorf("surviving row Lat = %v, want 2", s.Lat)
	}
}

func TestBuildNoValidTimestamps(t *testing.T) {
	rows := [][]string{
		testRow("bogus", 1, 0, 0, 0, 0, 0, "0"),
	}
	_, err := Build(testHeader, rows)
	if !errors.Is(err, ErrNoValidTimestamps) {
		t.Fatalf("err = %v, want ErrNoValidTimestamps", err)
	}
}

func TestBuildMissingColumn(t *testing.T) {
	header := []string{"timestamp", "lat", "lon"}
	_, err := Build(header, nil)
	if err == nil {
		t.Fatal("want error for missing columns")
	}
}

func TestBuildDerivesGroundSpeed(t *testing.T) {
	rows := [][]string{
		testRow("10", 0, 0, 0, 3, 4, 0, "0"),
	}
	st, err := Build(testHeader, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, _ := st.At(0)
	if math.Abs(s.GroundSpeed-5) > 1e-12 {
		t.Errorf("GroundSpeed = %v, want 5", s.GroundSpeed)
	}
}

func TestBuildComposesHeadsetOrientation(t *testing.T) {
	// Vehicle rotated 90 about z, headset a further 90 about z relative
	// to the vehicle: world headset orientation is 180 about z.
	half := fmt.Sprintf("%v", math.Sin(math.Pi/4))
	row := []string{
		"10", "0", "0", "0",
		"0", "0", "0",
		"0", "0", half, half,
		"0", "0", half, half,
		"0",
	}
	st, err := Build(testHeader, [][]string{row})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, _ := st.At(0)
	if math.Abs(s.HeadsetQ.Kmag-1) > 1e-9 || math.Abs(s.HeadsetQ.Real) > 1e-9 {
		t.Errorf("HeadsetQ = %+v, want 180 about z", s.HeadsetQ)
	}
}

func TestNearestIndex(t *testing.T) {
	rows := [][]string{
		testRow("10", 0, 0, 0, 0, 0, 0, "0"),
		testRow("20", 0, 0, 0, 0, 0, 0, "0"),
		testRow("30", 0, 0, 0, 0, 0, 0, "0"),
	}
	st, err := Build(testHeader, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sec := func(s float64) int64 { return int64(s * 1e9) }
	tests := []struct {
		name string
		tNs  int64
		want int
	}{
		{"before first", sec(1), 0},
		{"exact first", sec(10), 0},
		{"closer to left", sec(12), 0},
		{"midpoint resolves earlier", sec(15), 0},
		{"closer to right", sec(18), 1},
		{"exact middle", sec(20), 1},
		{"exact last", sec(30), 2},
		{"after last", sec(99), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := st.NearestIndex(tt.tNs); got != tt.want {
				t.Errorf("NearestIndex(%d) = %d, want %d", tt.tNs, got, tt.want)
			}
		})
	}
}

func TestNearestIndexEmpty(t *testing.T) {
	st := &Store{}
	if got := st.NearestIndex(0); got != -1 {
		t.Errorf("NearestIndex on empty store = %d, want -1", got)
	}
}

func TestAtOutOfRange(t *testing.T) {
	st := &Store{}
	if _, ok := st.At(0); ok {
		t.Error("At(0) on empty store reported ok")
	}
	if _, ok := st.At(-1); ok {
		t.Error("At(-1) reported ok")
	}
}

func TestPositionsAndAttitudes(t *testing.T) {
	rows := [][]string{
		testRow("10", 1, 2, 3, 0, 0, 0, "0"),
		testRow("20", 4, 5, 6, 0, 0, 0, "0"),
	}
	st, err := Build(testHeader, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	lats, lons, alts := st.Positions()
	if diff := cmp.Diff([]float64{1, 4}, lats); diff != "" {
		t.Errorf("lats (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{2, 5}, lons); diff != "" {
		t.Errorf("lons (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{3, 6}, alts); diff != "" {
		t.Errorf("alts (-want +got):\n%s", diff)
	}

	yaws, pitches, rolls := st.Attitudes()
	for i := range yaws {
		if yaws[i] != 0 || pitches[i] != 0 || rolls[i] != 0 {
			t.Errorf("attitude[%d] = (%v, %v, %v), want zeros for identity", i, yaws[i], pitches[i], rolls[i])
		}
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flight.csv")
	data := "timestamp,lat,lon,alt,north,east,down,x_vehicle,y_vehicle,z_vehicle,w_vehicle,x_helmet,y_helmet,z_helmet,w_helmet,mode\n" +
		"00:00:10,51.5,-0.1,120,3,4,0,0,0,0,1,0,0,0,1,4\n" +
		"00:00:20,51.6,-0.2,130,0,0,0,0,0,0,1,0,0,0,1,4\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if st.Count() != 2 {
		t.Fatalf("Count = %d, want 2", st.Count())
	}
	s, _ := st.At(0)
	if s.TimestampNs != 10_000_000_000 || s.Lat != 51.5 || s.Mode != 4 {
		t.Errorf("first sample = %+v", s)
	}
	if math.Abs(s.GroundSpeed-5) > 1e-12 {
		t.Errorf("GroundSpeed = %v, want 5", s.GroundSpeed)
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestSampleAPIWireNames(t *testing.T) {
	rows := [][]string{
		testRow("2643.02", 51.5, -0.1, 120, 3, 4, 0, "4"),
	}
	st, err := Build(testHeader, rows)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, _ := st.At(0)
	api := s.API()

	if api.Index != 0 {
		t.Errorf("Index = %d", api.Index)
	}
	if math.Abs(api.TimestampSeconds-2643.02) > 1e-9 {
		t.Errorf("TimestampSeconds = %v", api.TimestampSeconds)
	}
	if api.VQW != 1 || api.VQX != 0 {
		t.Errorf("vehicle quaternion = (%v %v %v %v)", api.VQX, api.VQY, api.VQZ, api.VQW)
	}
	if api.VLAT != 51.5 || api.VALT != 120 || api.VINS != 4 {
		t.Errorf("scalars: VLAT=%v VALT=%v VINS=%d", api.VLAT, api.VALT, api.VINS)
	}
	if math.Abs(api.GSPEED-5) > 1e-12 {
		t.Errorf("GSPEED = %v", api.GSPEED)
	}
}
