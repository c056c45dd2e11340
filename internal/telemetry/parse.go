package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseTimestampNs parses a timestamp field into nanoseconds. Accepted
// forms, tried in order:
//
//   - Go duration strings ("44m3.12s", "1h13m20s")
//   - clock-style durations ("00:44:03.12", "1 days 00:44:03.12")
//   - bare numeric seconds ("2643.02")
//
// The clock form mirrors how the capture pipeline serialises elapsed
// time; the numeric form is the fallback for re-exported data.
func parseTimestampNs(field string) (int64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	if d, err := time.ParseDuration(field); err == nil {
		return d.Nanoseconds(), nil
	}

	if ns, err := parseClockDuration(field); err == nil {
		return ns, nil
	}

	sec, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable timestamp %q", field)
	}
	return int64(sec * 1e9), nil
}

// parseClockDuration parses "[D days ]HH:MM:SS[.frac]" into nanoseconds.
func parseClockDuration(field string) (int64, error) {
	var days int64
	rest := field

	if i := strings.Index(field, "days"); i >= 0 {
		d, err := strconv.ParseInt(strings.TrimSpace(field[:i]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad day count in %q", field)
		}
		days = d
		rest = strings.TrimSpace(field[i+len("days"):])
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("not a clock duration: %q", field)
	}

	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad hours in %q", field)
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad minutes in %q", field)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("bad seconds in %q", field)
	}

	total := float64(days*86400+hours*3600+minutes*60) + seconds
	return int64(total * 1e9), nil
}

// parseFloatOrZero parses a float column, returning 0 for blank or
// malformed values so a single bad cell does not drop the whole row.
func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseIntOrZero parses an integer column, tolerating float-formatted
// values ("4.0") the way the source sometimes emits mode codes.
func parseIntOrZero(s string) int {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}
