package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aeroview-data/flight.report/internal/monitoring"
	"github.com/aeroview-data/flight.report/internal/telemetry"
	"github.com/aeroview-data/flight.report/internal/timeutil"
)

// MaxSpeed is the highest accepted speed multiplier. It mirrors the
// maximum supported rate of the driving external video stream; requests
// above it are capped, not rejected.
const MaxSpeed = 2.0

const (
	// defaultDelay paces the first tick after a start, seek or timeline
	// discontinuity, when no previous emitted timestamp applies.
	defaultDelay = 10 * time.Millisecond

	// minDelay floors the pacing sleep so fine-grained or duplicate
	// timestamps cannot spin the loop.
	minDelay = time.Millisecond

	// maxDelay caps the pacing sleep so coarse data cannot stall
	// playback for seconds at a time.
	maxDelay = 100 * time.Millisecond

	// gapLimit is the sample-timestamp gap beyond which a delta is
	// treated as a jump rather than genuine capture cadence.
	gapLimit = 10 * time.Second

	// idlePoll is how often a paused loop re-checks its run state.
	idlePoll = 100 * time.Millisecond
)

// ErrLoopActive is returned by Run when a scheduling loop is already
// active. Exactly one loop may drive playback per scheduler.
var ErrLoopActive = errors.New("playback: scheduling loop already active")

// Source is the scheduler's read-only view of the telemetry timeline.
// *telemetry.Store satisfies it; the engine layer supplies a view that
// dereferences an atomically swappable store so a reload is observed as
// a single unit.
type Source interface {
	Count() int
	At(i int) (telemetry.Sample, bool)
}

// StartRequest carries the optional parameters of a Start control.
type StartRequest struct {
	// Index, when set, repositions the cursor before resuming. No bounds
	// clamping: an out-of-range index simply finishes on the next tick.
	Index *int `json:"index,omitempty"`

	// Speed, when set, is clamped to (0, MaxSpeed].
	Speed *float64 `json:"speed,omitempty"`
}

// Snapshot is a point-in-time copy of the playback state.
type Snapshot struct {
	Cursor   int     `json:"cursor"`
	Running  bool    `json:"running"`
	Speed    float64 `json:"speed"`
	Finished bool    `json:"finished"`
}

// Scheduler walks the telemetry timeline in real time, pacing itself by
// the spacing of the recorded timestamps scaled by the speed multiplier,
// and fans each sample out to the sink set.
//
// All mutable state lives behind one mutex and is re-read fresh every
// tick, so control operations from concurrent callers take effect on the
// next iteration at the latest.
type Scheduler struct {
	src   Source
	sinks SinkSet
	clock timeutil.Clock

	mu               sync.Mutex
	cursor           int
	running          bool
	speed            float64
	lastTSNs         int64
	lastTSValid      bool
	finishedNotified bool
	loopActive       bool
}

// NewScheduler creates a scheduler over the given source and sinks,
// using the real clock. Initial speed is MaxSpeed, matching the default
// rate of the driving video player.
func NewScheduler(src Source, sinks SinkSet) *Scheduler {
	return NewSchedulerWithClock(src, sinks, timeutil.RealClock{})
}

// NewSchedulerWithClock is NewScheduler with an injectable clock for
// tests.
func NewSchedulerWithClock(src Source, sinks SinkSet, clock timeutil.Clock) *Scheduler {
	return &Scheduler{
		src:   src,
		sinks: sinks,
		clock: clock,
		speed: MaxSpeed,
	}
}

// clampSpeed applies the (0, MaxSpeed] bound. Non-positive requests are
// rejected by returning the current value unchanged.
func clampSpeed(requested, current float64) float64 {
	if requested <= 0 {
		return current
	}
	if requested > MaxSpeed {
		monitoring.Logf("playback: speed %.2fx capped to %.2fx", requested, MaxSpeed)
		return MaxSpeed
	}
	return requested
}

// Start begins or resumes playback. Safe to call while already running:
// it only updates cursor and speed; the single persistent loop picks the
// new state up on its next tick.
func (s *Scheduler) Start(req StartRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Index != nil {
		s.cursor = *req.Index
		// Repositioning is a timeline discontinuity; the next tick must
		// not pace against the pre-start timestamp.
		s.lastTSValid = false
	}
	if req.Speed != nil {
		s.speed = clampSpeed(*req.Speed, s.speed)
	}
	s.finishedNotified = false
	s.running = true
}

// Pause stops emission without moving the cursor or discarding pacing
// state, so playback can resume where it left off.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Seek repositions the cursor. The next tick treats the jump as a
// discontinuity instead of computing a pacing delta across it.
func (s *Scheduler) Seek(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = index
	s.lastTSValid = false
	s.finishedNotified = false
}

// SetSpeed adjusts the speed multiplier on the fly. It affects the next
// computed pacing delay, not the one already sleeping.
func (s *Scheduler) SetSpeed(multiplier float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = clampSpeed(multiplier, s.speed)
	return s.speed
}

// Snapshot returns a copy of the current playback state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Cursor:   s.cursor,
		Running:  s.running,
		Speed:    s.speed,
		Finished: s.finishedNotified,
	}
}

// Run executes the scheduling loop until ctx is cancelled. There is
// exactly one loop per scheduler: a concurrent second call returns
// ErrLoopActive immediately. The loop persists across pause and finish;
// run state is a flag it re-reads every tick, never a reason to spawn a
// replacement loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.loopActive {
		s.mu.Unlock()
		return ErrLoopActive
	}
	s.loopActive = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loopActive = false
		s.mu.Unlock()
	}()

	monitoring.Logf("playback: scheduling loop started")
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("playback: scheduling loop stopped: %v", ctx.Err())
			return ctx.Err()
		default:
		}
		s.tick()
	}
}

// tick performs one scheduling iteration. A fault in a single tick is
// logged and skipped; it must not take down the loop, since restarting
// the loop is externally visible.
func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("playback: tick panic recovered: %v", r)
			s.clock.Sleep(idlePoll)
		}
	}()

	s.mu.Lock()
	running := s.running
	cursor := s.cursor
	speed := s.speed
	s.mu.Unlock()

	if !running {
		s.clock.Sleep(idlePoll)
		return
	}

	if cursor >= s.src.Count() {
		s.finish()
		return
	}

	sample, ok := s.src.At(cursor)
	if !ok {
		// Negative cursor or a store swap shrank the timeline under us;
		// the next tick re-evaluates against fresh bounds.
		if cursor < 0 {
			s.mu.Lock()
			s.cursor = 0
			s.mu.Unlock()
		}
		s.clock.Sleep(minDelay)
		return
	}

	s.mu.Lock()
	deltaNs := int64(0)
	first := !s.lastTSValid
	if s.lastTSValid {
		deltaNs = sample.TimestampNs - s.lastTSNs
	}
	s.mu.Unlock()

	delay := pacingDelay(deltaNs, speed, first)

	// Re-read the run state at emission time: a pause issued while this
	// tick was in flight must suppress the while-running forwarding.
	s.mu.Lock()
	runningNow := s.running
	s.mu.Unlock()
	s.sinks.emit(sample, runningNow)

	s.mu.Lock()
	s.lastTSNs = sample.TimestampNs
	s.lastTSValid = true
	if s.cursor == cursor {
		s.cursor = cursor + 1
	}
	s.mu.Unlock()

	s.clock.Sleep(delay)
}

// finish transitions to the Finished state, notifying the sinks exactly
// once per exhaustion.
func (s *Scheduler) finish() {
	s.mu.Lock()
	notify := !s.finishedNotified
	s.finishedNotified = true
	s.running = false
	s.mu.Unlock()

	if notify {
		monitoring.Logf("playback: finished at end of timeline")
		s.sinks.emitFinished()
	}
}

// pacingDelay computes the sleep before the next tick from the timestamp
// delta between consecutive samples:
//
//   - no prior timestamp (first tick after start/seek): small default
//   - negative delta (clock went backward across an uncaught jump) or a
//     gap above gapLimit: treated as a discontinuity, same default
//   - zero delta (duplicate timestamps): minimum delay
//   - otherwise delta scaled by speed, clamped to [minDelay, maxDelay]
//
// Pacing by recorded timestamp spacing, not a fixed frame rate,
// reproduces the source's variable capture cadence.
func pacingDelay(deltaNs int64, speed float64, first bool) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	switch {
	case first, deltaNs < 0, deltaNs > int64(gapLimit):
		return time.Duration(float64(defaultDelay) / speed)
	case deltaNs == 0:
		return time.Duration(float64(minDelay) / speed)
	}

	delay := time.Duration(float64(deltaNs) / speed)
	if delay < minDelay {
		return minDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
