// Package markers persists named timestamp markers (takeoff, test
// manoeuvres, landing) used for jump-to-marker navigation.
package markers

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Marker is a labelled point on the telemetry timeline.
type Marker struct {
	ID      int64   `json:"id"`
	Label   string  `json:"label"`
	Seconds float64 `json:"t_seconds"`
}

// DB wraps the marker store.
type DB struct {
	*sql.DB
}

// New opens (creating if necessary) the marker database at path. Use
// ":memory:" for an ephemeral store.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS markers (
			marker_id         INTEGER PRIMARY KEY,
			label             TEXT NOT NULL,
			t_seconds         DOUBLE NOT NULL,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("markers: create schema: %w", err)
	}

	return &DB{db}, nil
}

// Seed inserts the given markers only when the table is empty, so a
// fresh deployment starts with the recorded flight-test marker set
// without clobbering operator edits on later boots.
func (db *DB) Seed(defaults []Marker) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM markers`).Scan(&n); err != nil {
		return fmt.Errorf("markers: count: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("markers: begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, m := range defaults {
		if _, err := tx.Exec(
			`INSERT INTO markers (marker_id, label, t_seconds) VALUES (?, ?, ?)`,
			m.ID, m.Label, m.Seconds,
		); err != nil {
			return fmt.Errorf("markers: seed %q: %w", m.Label, err)
		}
	}
	return tx.Commit()
}

// List returns all markers ordered by timestamp.
func (db *DB) List() ([]Marker, error) {
	rows, err := db.Query(`SELECT marker_id, label, t_seconds FROM markers ORDER BY t_seconds`)
	if err != nil {
		return nil, fmt.Errorf("markers: list: %w", err)
	}
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(&m.ID, &m.Label, &m.Seconds); err != nil {
			return nil, fmt.Errorf("markers: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get returns the marker with the given id; ok is false when absent.
func (db *DB) Get(id int64) (Marker, bool, error) {
	var m Marker
	err := db.QueryRow(
		`SELECT marker_id, label, t_seconds FROM markers WHERE marker_id = ?`, id,
	).Scan(&m.ID, &m.Label, &m.Seconds)
	if err == sql.ErrNoRows {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, fmt.Errorf("markers: get %d: %w", id, err)
	}
	return m, true, nil
}

// Put inserts or replaces a marker.
func (db *DB) Put(m Marker) error {
	_, err := db.Exec(
		`INSERT OR REPLACE INTO markers (marker_id, label, t_seconds) VALUES (?, ?, ?)`,
		m.ID, m.Label, m.Seconds,
	)
	if err != nil {
		return fmt.Errorf("markers: put %d: %w", m.ID, err)
	}
	return nil
}

// Delete removes a marker by id. Deleting an absent marker is not an
// error.
func (db *DB) Delete(id int64) error {
	if _, err := db.Exec(`DELETE FROM markers WHERE marker_id = ?`, id); err != nil {
		return fmt.Errorf("markers: delete %d: %w", id, err)
	}
	return nil
}

// Defaults is the recorded flight-test marker set from the source
// capture session.
func Defaults() []Marker {
	return []Marker{
		{ID: 0, Label: "Takeoff", Seconds: 2643.0},
		{ID: 1, Label: "Test 1 - head movement", Seconds: 2888.0},
		{ID: 2, Label: "Test 2 - 90 turn left", Seconds: 3190.0},
		{ID: 3, Label: "Test 2 - 90 turn right", Seconds: 3242.0},
		{ID: 4, Label: "Test 2 - 360", Seconds: 3299.0},
		{ID: 5, Label: "Test 3 - 5 up", Seconds: 3451.0},
		{ID: 6, Label: "Test 3 - 10 up", Seconds: 3466.0},
		{ID: 7, Label: "Test 3 - 15 up", Seconds: 3495.0},
		{ID: 8, Label: "Test 3 - 5 down", Seconds: 3519.0},
		{ID: 9, Label: "Test 3 - 10 down", Seconds: 3539.0},
		{ID: 10, Label: "Test 5 - climb turn", Seconds: 3605.0},
		{ID: 11, Label: "Test 5 - descend turn", Seconds: 3712.0},
		{ID: 12, Label: "Landing", Seconds: 4823.02},
	}
}
