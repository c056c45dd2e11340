// Package playback drives real-time replay of the telemetry timeline,
// emitting samples to a set of sinks at the recorded cadence scaled by a
// controllable speed multiplier.
package playback

import (
	"github.com/aeroview-data/flight.report/internal/telemetry"
)

// Sink consumes emitted samples. Implementations must be best-effort:
// they may not block the scheduler and must swallow their own transport
// errors (an absent or broken consumer never affects other sinks).
type Sink interface {
	// Emit hands a sample to the sink.
	Emit(s telemetry.Sample)

	// EmitFinished signals that the timeline has been exhausted.
	EmitFinished()
}

// SinkSet is the fan-out target of the scheduler. Always sinks receive
// every emitted sample; WhileRunning sinks receive a sample only when
// the scheduler is still running at emission time, so a pause requested
// concurrently with a tick suppresses that forwarding.
type SinkSet struct {
	Always       []Sink
	WhileRunning []Sink
}

func (ss SinkSet) emit(s telemetry.Sample, running bool) {
	for _, sink := range ss.Always {
		sink.Emit(s)
	}
	if !running {
		return
	}
	for _, sink := range ss.WhileRunning {
		sink.Emit(s)
	}
}

func (ss SinkSet) emitFinished() {
	for _, sink := range ss.Always {
		sink.EmitFinished()
	}
	for _, sink := range ss.WhileRunning {
		sink.EmitFinished()
	}
}

// BridgePayload is the reduced sample forwarded to the simulation
// bridges: world-frame orientations plus ground speed and altitude.
// Field names match the legacy datagram consumer.
type BridgePayload struct {
	VQX float64 `json:"VQX"`
	VQY float64 `json:"VQY"`
	VQZ float64 `json:"VQZ"`
	VQW float64 `json:"VQW"`

	HQX float64 `json:"HQX"`
	HQY float64 `json:"HQY"`
	HQZ float64 `json:"HQZ"`
	HQW float64 `json:"HQW"`

	GSPEED float64 `json:"GSPEED"`
	VALT   float64 `json:"VALT"`
}

// BridgePayloadFrom extracts the bridge payload from a sample.
func BridgePayloadFrom(s telemetry.Sample) BridgePayload {
	return BridgePayload{
		VQX:    s.VehicleQ.Imag,
		VQY:    s.VehicleQ.Jmag,
		VQZ:    s.VehicleQ.Kmag,
		VQW:    s.VehicleQ.Real,
		HQX:    s.HeadsetQ.Imag,
		HQY:    s.HeadsetQ.Jmag,
		HQZ:    s.HeadsetQ.Kmag,
		HQW:    s.HeadsetQ.Real,
		GSPEED: s.GroundSpeed,
		VALT:   s.Alt,
	}
}
