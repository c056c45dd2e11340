// Package testutil provides shared fixtures for packages that need a
// telemetry source on disk.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CSVHeader is the canonical telemetry source header.
const CSVHeader = "timestamp,lat,lon,alt,north,east,down," +
	"x_vehicle,y_vehicle,z_vehicle,w_vehicle," +
	"x_helmet,y_helmet,z_helmet,w_helmet,mode"

// WriteTelemetryCSV writes an n-row telemetry fixture into a fresh temp
// directory and returns its path. Rows are one second apart starting at
// t=10s, with identity orientations and a slow north-east walk.
func WriteTelemetryCSV(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteByte('\n')
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%g,%g,%g,3,4,0,0,0,0,1,0,0,0,1,4\n",
			10+i, 50+float64(i)*0.001, float64(i)*0.001, 100+float64(i))
	}
	path := filepath.Join(t.TempDir(), "flight.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
