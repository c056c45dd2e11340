// Package telemetry loads recorded flight telemetry into an immutable,
// index-addressable timeline of derived samples.
//
// A Store is built once from a tabular source and is read-only afterwards.
// Derived fields (world-frame orientations, ground speed) are computed
// eagerly at build time so that the playback hot path never touches the
// raw source columns.
package telemetry

import (
	"gonum.org/v1/gonum/num/quat"
)

// Sample is a single recorded telemetry instant. Samples are immutable
// once the store is built.
type Sample struct {
	// Index is the dense ordinal position of the sample in the timeline.
	Index int

	// TimestampNs is the capture time in nanoseconds, the primary key of
	// the timeline. Timestamps are non-decreasing across the store.
	TimestampNs int64

	// Position (WGS84-like semantics inherited from the source).
	Lat float64
	Lon float64
	Alt float64

	// Velocity components in the local NED frame, m/s.
	VelNorth float64
	VelEast  float64
	VelDown  float64

	// GroundSpeed is the Euclidean norm of the NED velocity, derived at
	// build time.
	GroundSpeed float64

	// VehicleQ is the vehicle orientation in the world frame.
	VehicleQ quat.Number

	// HeadsetQ is the headset orientation in the world frame, composed as
	// world_from_headset = world_from_vehicle * vehicle_from_headset.
	HeadsetQ quat.Number

	// Mode is the INS/flight-mode code, 0 when absent from the source.
	Mode int
}

// Seconds returns the capture time in floating-point seconds.
func (s Sample) Seconds() float64 {
	return float64(s.TimestampNs) / 1e9
}

// SampleAPI is the wire representation of a sample. Field names match the
// legacy consumer contract (VQ*/HQ* quaternions, VLAT/VLON/VALT position).
// Without this struct the response would expose internal field names; we
// control the output format here.
type SampleAPI struct {
	Index            int     `json:"index"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	TimestampNs      int64   `json:"timestamp_ns"`

	VQX float64 `json:"VQX"`
	VQY float64 `json:"VQY"`
	VQZ float64 `json:"VQZ"`
	VQW float64 `json:"VQW"`

	HQX float64 `json:"HQX"`
	HQY float64 `json:"HQY"`
	HQZ float64 `json:"HQZ"`
	HQW float64 `json:"HQW"`

	VLAT   float64 `json:"VLAT"`
	VLON   float64 `json:"VLON"`
	VALT   float64 `json:"VALT"`
	VVN    float64 `json:"VVN"`
	VVE    float64 `json:"VVE"`
	VVD    float64 `json:"VVD"`
	VINS   int     `json:"VINS"`
	GSPEED float64 `json:"GSPEED"`
}

// API converts a sample to its wire representation.
func (s Sample) API() SampleAPI {
	return SampleAPI{
		Index:            s.Index,
		TimestampSeconds: s.Seconds(),
		TimestampNs:      s.TimestampNs,
		VQX:              s.VehicleQ.Imag,
		VQY:              s.VehicleQ.Jmag,
		VQZ:              s.VehicleQ.Kmag,
		VQW:              s.VehicleQ.Real,
		HQX:              s.HeadsetQ.Imag,
		HQY:              s.HeadsetQ.Jmag,
		HQZ:              s.HeadsetQ.Kmag,
		HQW:              s.HeadsetQ.Real,
		VLAT:             s.Lat,
		VLON:             s.Lon,
		VALT:             s.Alt,
		VVN:              s.VelNorth,
		VVE:              s.VelEast,
		VVD:              s.VelDown,
		VINS:             s.Mode,
		GSPEED:           s.GroundSpeed,
	}
}
