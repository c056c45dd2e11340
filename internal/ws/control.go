package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aeroview-data/flight.report/internal/monitoring"
	"github.com/aeroview-data/flight.report/internal/playback"
	"github.com/aeroview-data/flight.report/internal/replay"
)

// Control message payloads.
type seekRequest struct {
	Index int `json:"index"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

// handleControl dispatches one inbound client message. A malformed or
// rejected control is reported back to the sending client only; it never
// disturbs the hub or other viewers.
func (c *client) handleControl(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.sendDirect("error", map[string]string{"message": "malformed message"})
		return
	}

	switch env.Event {
	case "start":
		var req playback.StartRequest
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &req); err != nil {
				c.sendDirect("error", map[string]string{"message": "malformed start request"})
				return
			}
		}
		if err := c.hub.engine.Start(req); err != nil {
			c.sendControlError(err)
			return
		}
		c.hub.Broadcast("started", c.hub.engine.Status())

	case "pause":
		if err := c.hub.engine.Pause(); err != nil {
			c.sendControlError(err)
			return
		}
		c.hub.Broadcast("paused", c.hub.engine.Status())

	case "seek":
		var req seekRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.sendDirect("error", map[string]string{"message": "malformed seek request"})
			return
		}
		if err := c.hub.engine.Seek(req.Index); err != nil {
			c.sendControlError(err)
			return
		}
		c.hub.Broadcast("seeked", c.hub.engine.Status())

	case "set_speed":
		var req speedRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.sendDirect("error", map[string]string{"message": "malformed speed request"})
			return
		}
		applied := c.hub.engine.SetSpeed(req.Speed)
		c.hub.Broadcast("speed", map[string]float64{"speed": applied})

	case "status":
		c.sendDirect("status", c.hub.engine.Status())

	default:
		monitoring.Logf("ws: client %s sent unknown event %q", c.id, env.Event)
		c.sendDirect("error", map[string]string{"message": fmt.Sprintf("unknown event %q", env.Event)})
	}
}

func (c *client) sendControlError(err error) {
	if errors.Is(err, replay.ErrNotInitialized) {
		c.sendDirect("error", map[string]string{"message": "data not initialized"})
		return
	}
	c.sendDirect("error", map[string]string{"message": err.Error()})
}
