package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aeroview-data/flight.report/internal/playback"
	"github.com/aeroview-data/flight.report/internal/replay"
	"github.com/aeroview-data/flight.report/internal/telemetry"
	"github.com/aeroview-data/flight.report/internal/testutil"
	"github.com/aeroview-data/flight.report/internal/timeline"
	"github.com/aeroview-data/flight.report/internal/timeutil"
)

func newTestEngine(t *testing.T, initialized bool) *replay.Engine {
	t.Helper()
	engine := replay.NewEngine(testutil.WriteTelemetryCSV(t, 5), timeline.New(nil), 0)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	engine.AttachScheduler(playback.NewSchedulerWithClock(engine.Source(), playback.SinkSet{}, clock))
	if initialized {
		if _, err := engine.InitializeConfigured(""); err != nil {
			t.Fatal(err)
		}
	}
	return engine
}

// dialTestHub starts a hub over the engine, connects one client, and
// consumes the initial "connected" event.
func dialTestHub(t *testing.T, engine *replay.Engine) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub(engine)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(hub.Handler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		server.Close()
		cancel()
	})

	env := readEnvelope(t, conn)
	if env.Event != "connected" {
		t.Fatalf("first event = %q, want connected", env.Event)
	}
	return hub, conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", msg, err)
	}
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatal(err)
		}
		raw = b
	}
	if err := conn.WriteJSON(Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, conn := dialTestHub(t, newTestEngine(t, true))

	hub.Broadcast("frame", map[string]int{"index": 3})
	env := readEnvelope(t, conn)
	if env.Event != "frame" {
		t.Fatalf("event = %q", env.Event)
	}
	var data map[string]int
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["index"] != 3 {
		t.Errorf("data = %v", data)
	}
}

func TestClientCount(t *testing.T) {
	hub, conn := dialTestHub(t, newTestEngine(t, true))

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount = %d, want 1", got)
	}

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestControlRoundTrip(t *testing.T) {
	engine := newTestEngine(t, true)
	_, conn := dialTestHub(t, engine)

	sendEnvelope(t, conn, "start", playback.StartRequest{})
	env := readEnvelope(t, conn)
	if env.Event != "started" {
		t.Fatalf("event = %q", env.Event)
	}
	if !engine.Status().Running {
		t.Error("engine not running after start control")
	}

	sendEnvelope(t, conn, "seek", seekRequest{Index: 2})
	env = readEnvelope(t, conn)
	if env.Event != "seeked" {
		t.Fatalf("event = %q", env.Event)
	}
	var snap playback.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Cursor != 2 {
		t.Errorf("cursor = %d", snap.Cursor)
	}

	sendEnvelope(t, conn, "set_speed", speedRequest{Speed: 9})
	env = readEnvelope(t, conn)
	if env.Event != "speed" {
		t.Fatalf("event = %q", env.Event)
	}
	var speed map[string]float64
	if err := json.Unmarshal(env.Data, &speed); err != nil {
		t.Fatal(err)
	}
	if speed["speed"] != playback.MaxSpeed {
		t.Errorf("speed = %v, want capped to %v", speed["speed"], playback.MaxSpeed)
	}

	sendEnvelope(t, conn, "pause", nil)
	env = readEnvelope(t, conn)
	if env.Event != "paused" {
		t.Fatalf("event = %q", env.Event)
	}
	if engine.Status().Running {
		t.Error("engine still running after pause control")
	}

	sendEnvelope(t, conn, "status", nil)
	env = readEnvelope(t, conn)
	if env.Event != "status" {
		t.Fatalf("event = %q", env.Event)
	}
}

func TestControlErrors(t *testing.T) {
	_, conn := dialTestHub(t, newTestEngine(t, false))

	sendEnvelope(t, conn, "start", nil)
	env := readEnvelope(t, conn)
	if env.Event != "error" {
		t.Fatalf("event = %q", env.Event)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["message"] != "data not initialized" {
		t.Errorf("message = %q", data["message"])
	}

	sendEnvelope(t, conn, "no_such_event", nil)
	env = readEnvelope(t, conn)
	if env.Event != "error" {
		t.Fatalf("event = %q", env.Event)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	env = readEnvelope(t, conn)
	if env.Event != "error" {
		t.Fatalf("event = %q", env.Event)
	}
}

func TestFrameSink(t *testing.T) {
	hub, conn := dialTestHub(t, newTestEngine(t, true))
	sink := FrameSink(hub)

	sample := telemetry.Sample{Index: 7, TimestampNs: 12_000_000_000}
	sample.VehicleQ.Real = 1
	sample.HeadsetQ.Real = 1
	sink.Emit(sample)

	env := readEnvelope(t, conn)
	if env.Event != "frame" {
		t.Fatalf("event = %q", env.Event)
	}
	var api telemetry.SampleAPI
	if err := json.Unmarshal(env.Data, &api); err != nil {
		t.Fatal(err)
	}
	if api.Index != 7 || api.TimestampSeconds != 12 || api.VQW != 1 {
		t.Errorf("frame = %+v", api)
	}

	sink.EmitFinished()
	env = readEnvelope(t, conn)
	if env.Event != "finished" {
		t.Fatalf("event = %q", env.Event)
	}
}

func TestBridgeSink(t *testing.T) {
	hub, conn := dialTestHub(t, newTestEngine(t, true))
	sink := BridgeSink(hub)

	sample := telemetry.Sample{Alt: 120, GroundSpeed: 5}
	sample.VehicleQ.Real = 1
	sample.HeadsetQ.Real = 1
	sink.Emit(sample)

	env := readEnvelope(t, conn)
	if env.Event != "bridge_state" {
		t.Fatalf("event = %q", env.Event)
	}
	var payload playback.BridgePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.VQW != 1 || payload.GSPEED != 5 || payload.VALT != 120 {
		t.Errorf("payload = %+v", payload)
	}

	// No finish frame on the bridge channel.
	sink.EmitFinished()
	hub.Broadcast("sentinel", nil)
	env = readEnvelope(t, conn)
	if env.Event != "sentinel" {
		t.Fatalf("event after bridge finish = %q, want sentinel only", env.Event)
	}
}
