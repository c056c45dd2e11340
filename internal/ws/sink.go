package ws

import (
	"github.com/aeroview-data/flight.report/internal/playback"
	"github.com/aeroview-data/flight.report/internal/telemetry"
)

// frameSink broadcasts every emitted sample to all viewers as a "frame"
// event.
type frameSink struct {
	hub *Hub
}

// FrameSink returns the playback sink that feeds the UI broadcast.
func FrameSink(h *Hub) playback.Sink {
	return frameSink{hub: h}
}

func (fs frameSink) Emit(s telemetry.Sample) {
	fs.hub.Broadcast("frame", s.API())
}

func (fs frameSink) EmitFinished() {
	fs.hub.Broadcast("finished", nil)
}

// bridgeSink broadcasts the reduced simulation payload as a
// "bridge_state" event, for browser-hosted simulation clients that
// cannot receive datagrams.
type bridgeSink struct {
	hub *Hub
}

// BridgeSink returns the playback sink carrying the duplex simulation
// bridge payload.
func BridgeSink(h *Hub) playback.Sink {
	return bridgeSink{hub: h}
}

func (bs bridgeSink) Emit(s telemetry.Sample) {
	bs.hub.Broadcast("bridge_state", playback.BridgePayloadFrom(s))
}

func (bs bridgeSink) EmitFinished() {}
