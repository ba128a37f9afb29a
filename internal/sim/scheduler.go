package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greylag/landgrab/server/internal/mapgen"
	"github.com/greylag/landgrab/server/internal/model"
)

const (
	commandQueueSize = 256
	// Three consecutive failed ticks promote to a fatal room error.
	maxTickFailures = 3
)

// BroadcastFunc receives every newly published state.
type BroadcastFunc func(st *State)

// Scheduler owns the single writer goroutine that advances one room's state
// at a fixed cadence. Readers obtain consistent snapshots via Snapshot();
// commands enter through Enqueue and are drained at the top of each tick.
type Scheduler struct {
	roomID    string
	period    time.Duration
	m         *mapgen.Map
	cfg       Config
	rng       *mapgen.Rand
	broadcast BroadcastFunc

	cmds     chan Command
	paused   atomic.Bool
	snapshot atomic.Pointer[State]

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a scheduler around an initial state. The PRNG is
// seeded from the map seed so replays of the same command stream are
// reproducible.
func NewScheduler(roomID string, st *State, m *mapgen.Map, cfg Config, period time.Duration, broadcast BroadcastFunc) *Scheduler {
	s := &Scheduler{
		roomID:    roomID,
		period:    period,
		m:         m,
		cfg:       cfg,
		rng:       mapgen.NewRand(m.Seed ^ 0x9E3779B9),
		broadcast: broadcast,
		cmds:      make(chan Command, commandQueueSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	s.snapshot.Store(st)
	return s
}

// Snapshot returns the latest published state. Never nil.
func (s *Scheduler) Snapshot() *State {
	return s.snapshot.Load()
}

// Enqueue queues a command for the next tick, blocking with backpressure if
// the queue is full. Commands from one caller keep their order.
func (s *Scheduler) Enqueue(ctx context.Context, c Command) error {
	select {
	case s.cmds <- c:
		return nil
	case <-s.stopCh:
		return fmt.Errorf("room %s: scheduler stopped", s.roomID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause suppresses tick updates without tearing down the worker. Idempotent.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	st := s.Snapshot().Clone()
	st.Status = model.RoomPaused
	s.snapshot.Store(st)
}

// Unpause resumes updates at the next interval boundary. Idempotent.
func (s *Scheduler) Unpause() {
	st := s.Snapshot()
	if st.Status == model.RoomPaused {
		cp := st.Clone()
		cp.Status = model.RoomOpen
		s.snapshot.Store(cp)
	}
	s.paused.Store(false)
}

// Publish replaces the published snapshot outside the tick loop. Intended
// for lifecycle transitions while the scheduler is paused or stopped.
func (s *Scheduler) Publish(st *State) {
	s.snapshot.Store(st)
}

// Paused reports whether updates are currently suppressed.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// Stop cancels the worker and waits for graceful exit up to the timeout.
// Idempotent.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
	case <-time.After(timeout):
		log.Warn().Str("roomId", s.roomID).Msg("Scheduler did not stop within timeout")
	}
}

// Done is closed when the worker goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

// Run drives the tick loop until stopped, the context is canceled, the room
// ends, or the failure budget is exhausted. One tick's failure logs and
// skips; consecutive failures promote to fatal.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			// Paused rooms skip the tick but retain queued commands: joins
			// accepted during the pause must land on the first tick after
			// unpause. Intake rejects the rest, so the queue stays bounded.
			if s.paused.Load() {
				continue
			}
			st, err := s.tick()
			if err != nil {
				failures++
				log.Error().Err(err).Str("roomId", s.roomID).Int("failures", failures).Msg("Tick failed")
				if failures >= maxTickFailures {
					s.fail()
					return
				}
				continue
			}
			failures = 0
			if st.Status == model.RoomEnded {
				log.Info().Str("roomId", s.roomID).Str("winner", st.Winner).Msg("Room ended")
				return
			}
		}
	}
}

// Tick advances the room one step immediately. It exists for the run loop
// and for tests that need deterministic stepping.
func (s *Scheduler) Tick() (*State, error) {
	return s.tick()
}

func (s *Scheduler) tick() (st *State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	cmds := s.drain()

	prev := s.snapshot.Load()
	next, err := Advance(prev, s.m, cmds, s.cfg, s.rng)
	if err != nil {
		return nil, err
	}
	// Stale states are never published: the tick counter is monotone under
	// the single-writer discipline, and consumers also check it.
	if next.Tick < prev.Tick {
		return nil, fmt.Errorf("stale tick %d < %d", next.Tick, prev.Tick)
	}
	s.snapshot.Store(next)
	if s.broadcast != nil {
		s.broadcast(next)
	}
	return next, nil
}

// drain moves all queued commands out of the channel in arrival order.
func (s *Scheduler) drain() []Command {
	var cmds []Command
	for {
		select {
		case c := <-s.cmds:
			cmds = append(cmds, c)
		default:
			return cmds
		}
	}
}

// fail publishes the error status so readers and the room manager see it.
func (s *Scheduler) fail() {
	st := s.Snapshot().Clone()
	st.Status = model.RoomError
	s.snapshot.Store(st)
	if s.broadcast != nil {
		s.broadcast(st)
	}
	log.Error().Str("roomId", s.roomID).Msg("Scheduler failure budget exhausted, room moved to error")
}
