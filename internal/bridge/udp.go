// Package bridge forwards reduced playback state to the legacy
// simulation consumer over UDP datagrams.
//
// The consumer is an optional external process that may not be running;
// every failure here is swallowed. Forwarding is asynchronous through a
// bounded channel so a slow or dead socket can never stall the playback
// scheduler.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/aeroview-data/flight.report/internal/monitoring"
	"github.com/aeroview-data/flight.report/internal/playback"
	"github.com/aeroview-data/flight.report/internal/telemetry"
)

// DefaultAddr is the fixed local endpoint the legacy consumer listens
// on.
const DefaultAddr = "127.0.0.1:1991"

const sendBuffer = 256

// Sink is a best-effort UDP emitter of bridge payloads. The zero-value
// disabled sink (no consumer configured) is a safe no-op.
type Sink struct {
	conn        *net.UDPConn
	addr        string
	ch          chan []byte
	logInterval time.Duration
}

// New dials the consumer endpoint. Dialling UDP cannot detect an absent
// consumer; sends to nowhere simply vanish, which is the intended
// contract.
func New(addr string) (*Sink, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bridge: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", addr, err)
	}
	return &Sink{
		conn:        conn,
		addr:        addr,
		ch:          make(chan []byte, sendBuffer),
		logInterval: time.Minute,
	}, nil
}

// Disabled returns a sink that drops everything, for deployments with
// no datagram consumer.
func Disabled() *Sink {
	return &Sink{}
}

// Enabled reports whether the sink has a live socket.
func (s *Sink) Enabled() bool {
	return s != nil && s.conn != nil
}

// Start launches the writer goroutine. Write errors are counted and
// surfaced in the log at most once per interval; they are never
// propagated.
func (s *Sink) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	go func() {
		dropped := 0
		var lastErr error
		ticker := time.NewTicker(s.logInterval)
		defer ticker.Stop()
		defer s.conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-s.ch:
				if _, err := s.conn.Write(payload); err != nil {
					dropped++
					lastErr = err
				}
			case <-ticker.C:
				if dropped > 0 {
					monitoring.Logf("bridge: dropped %d datagrams to %s (latest: %v)", dropped, s.addr, lastErr)
					dropped = 0
					lastErr = nil
				}
			}
		}
	}()

	monitoring.Logf("bridge: forwarding playback state to %s", s.addr)
}

// Emit implements playback.Sink. The payload is queued without blocking;
// when the writer is behind, the datagram is dropped.
func (s *Sink) Emit(sample telemetry.Sample) {
	if !s.Enabled() {
		return
	}

	payload, err := json.Marshal(playback.BridgePayloadFrom(sample))
	if err != nil {
		return
	}

	select {
	case s.ch <- payload:
	default:
	}
}

// EmitFinished implements playback.Sink. The legacy consumer has no
// finish frame, so this is a no-op.
func (s *Sink) EmitFinished() {}
