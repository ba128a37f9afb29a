package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greylag/landgrab/server/internal/geo"
	"github.com/greylag/landgrab/server/internal/mapgen"
	"github.com/greylag/landgrab/server/internal/model"
	"github.com/greylag/landgrab/server/internal/sim"
)

// roomRuntime binds one live room's scheduler to the hub and to storage.
// The broadcast callback runs on the scheduler goroutine, so the delta
// baseline needs no locking against itself; the mutex covers Pause and the
// initial-subscribe path, which publish out of band.
type roomRuntime struct {
	room  *model.Room
	m     *mapgen.Map
	cfg   sim.Config
	sched *sim.Scheduler
	svc   *RoomService
	stop  context.CancelFunc

	mu           sync.Mutex
	lastTerr     map[string]geo.Set
	lastFullTick int64
}

// fullEvery returns the forced full-sync cadence in ticks.
func (rt *roomRuntime) fullEvery() int64 {
	n := int64(rt.svc.fullSyncInterval / rt.svc.tickPeriod)
	if n < 1 {
		n = 1
	}
	return n
}

// onPublish is the scheduler's BroadcastFunc.
func (rt *roomRuntime) onPublish(st *sim.State) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	forceFull := rt.lastTerr == nil ||
		st.Tick-rt.lastFullTick >= rt.fullEvery() ||
		st.Status != model.RoomOpen

	frames, next, err := rt.buildLocked(st, forceFull)
	if err != nil {
		log.Error().Err(err).Str("roomId", rt.room.ID).Msg("Frame encoding failed")
		return
	}
	rt.svc.hub.Broadcast(rt.room.ID, frames)
	rt.lastTerr = next
	if forceFull {
		rt.lastFullTick = st.Tick
		rt.persist(st)
	}
	if rt.svc.hub.SubscriberCount(rt.room.ID) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rt.svc.cache.TouchRoom(ctx, rt.room.ID, rt.svc.emptyRoomTTL); err != nil {
			log.Error().Err(err).Str("roomId", rt.room.ID).Msg("Activity touch failed")
		}
		cancel()
	}
}

func (rt *roomRuntime) buildLocked(st *sim.State, forceFull bool) (Frames, map[string]geo.Set, error) {
	return buildFrames(rt.room, st, rt.lastTerr, forceFull, rt.svc.hub.NeedsPacked(rt.room.ID))
}

// publishNow pushes the current snapshot to all subscribers as a full frame,
// used after pause, unpause, and end so clients see the status flip without
// waiting for the next tick.
func (rt *roomRuntime) publishNow() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	st := rt.sched.Snapshot()
	frames, next, err := rt.buildLocked(st, true)
	if err != nil {
		log.Error().Err(err).Str("roomId", rt.room.ID).Msg("Frame encoding failed")
		return
	}
	rt.svc.hub.Broadcast(rt.room.ID, frames)
	rt.lastTerr = next
	rt.lastFullTick = st.Tick
	rt.persist(st)
}

// fullFrame encodes a full snapshot for one subscriber without touching the
// shared delta baseline.
func (rt *roomRuntime) fullFrame() (int64, []byte, error) {
	st := rt.sched.Snapshot()
	data, err := json.Marshal(buildFullMessage(rt.room, st))
	return st.Tick, data, err
}

// persist writes the snapshot to Redis and the tick mark to Postgres.
// Failures are logged, not fatal: the next full sync retries.
func (rt *roomRuntime) persist(st *sim.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(st)
	if err != nil {
		log.Error().Err(err).Str("roomId", rt.room.ID).Msg("Snapshot encoding failed")
		return
	}
	if err := rt.svc.cache.SetGameState(ctx, rt.room.ID, data); err != nil {
		log.Error().Err(err).Str("roomId", rt.room.ID).Msg("Snapshot write failed")
	}
	if err := rt.svc.repo.SaveTick(ctx, rt.room.ID, st.Tick, st.Status); err != nil {
		log.Error().Err(err).Str("roomId", rt.room.ID).Msg("Tick persist failed")
	}
}

// end flips the room to ended, broadcasts the final state and stops the
// scheduler.
func (rt *roomRuntime) end(winner string) {
	rt.sched.Pause()

	rt.mu.Lock()
	st := rt.sched.Snapshot().Clone()
	st.Status = model.RoomEnded
	if winner != "" {
		st.Winner = winner
	}
	rt.mu.Unlock()

	rt.sched.Publish(st)
	rt.publishNow()
	rt.sched.Stop(5 * time.Second)
	rt.stop()
}
