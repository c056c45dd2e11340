// Package config loads the server configuration file. Every field is
// optional; omitted fields keep their defaults so a minimal deployment
// can run with an empty or absent file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// fileConfig mirrors the JSON schema with pointer-typed optional fields
// so "absent" and "zero" stay distinguishable during the merge.
type fileConfig struct {
	Listen                *string  `json:"listen,omitempty"`
	DataFile              *string  `json:"data_file,omitempty"`
	SyncFile              *string  `json:"sync_file,omitempty"`
	MarkerDB              *string  `json:"marker_db,omitempty"`
	StaticDir             *string  `json:"static_dir,omitempty"`
	BridgeAddr            *string  `json:"bridge_addr,omitempty"`
	ExternalOffsetSeconds *float64 `json:"external_offset_seconds,omitempty"`
}

// Config is the resolved server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string

	// DataFile is the bulk telemetry CSV path.
	DataFile string

	// SyncFile is the optional timeline anchor table path.
	SyncFile string

	// MarkerDB is the sqlite marker store path.
	MarkerDB string

	// StaticDir is the frontend asset directory.
	StaticDir string

	// BridgeAddr is the legacy datagram consumer endpoint; empty
	// disables the datagram bridge.
	BridgeAddr string

	// ExternalOffsetSeconds is the fixed telemetry-to-external offset
	// used when no anchor table is available.
	ExternalOffsetSeconds float64
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:                ":8080",
		DataFile:              "merged_data.csv",
		SyncFile:              "video_timestamps.json",
		MarkerDB:              "markers.db",
		StaticDir:             "./static",
		BridgeAddr:            "127.0.0.1:1991",
		ExternalOffsetSeconds: 0,
	}
}

// Load reads path and merges it over the defaults. A missing file is
// not an error; malformed JSON is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Listen != nil {
		cfg.Listen = *fc.Listen
	}
	if fc.DataFile != nil {
		cfg.DataFile = *fc.DataFile
	}
	if fc.SyncFile != nil {
		cfg.SyncFile = *fc.SyncFile
	}
	if fc.MarkerDB != nil {
		cfg.MarkerDB = *fc.MarkerDB
	}
	if fc.StaticDir != nil {
		cfg.StaticDir = *fc.StaticDir
	}
	if fc.BridgeAddr != nil {
		cfg.BridgeAddr = *fc.BridgeAddr
	}
	if fc.ExternalOffsetSeconds != nil {
		cfg.ExternalOffsetSeconds = *fc.ExternalOffsetSeconds
	}

	return cfg, nil
}
