package sim

import (
	"context"
	"testing"
	"time"

	"github.com/greylag/landgrab/server/internal/geo"
	"github.com/greylag/landgrab/server/internal/model"
)

func testScheduler(t *testing.T, broadcast BroadcastFunc) *Scheduler {
	t.Helper()
	m := flatMap(10, 10)
	st := NewState("r1", "alice", nil)
	return NewScheduler("r1", st, m, noExpandConfig(), 50*time.Millisecond, broadcast)
}

func TestTickAdvancesAndBroadcasts(t *testing.T) {
	var published []*State
	s := testScheduler(t, func(st *State) { published = append(published, st) })

	st, err := s.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if st.Tick != 1 {
		t.Errorf("tick = %d, want 1", st.Tick)
	}
	if s.Snapshot() != st {
		t.Error("snapshot not updated to the new state")
	}
	if len(published) != 1 || published[0] != st {
		t.Errorf("broadcast got %d states, want the published one", len(published))
	}
}

func TestEnqueuedCommandAppliesNextTick(t *testing.T) {
	s := testScheduler(t, nil)

	err := s.Enqueue(context.Background(), Command{Kind: CmdFound, UserID: "alice", X: 3, Y: 3})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	st, err := s.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if st.Nations["alice"] == nil {
		t.Fatal("queued found command was not applied")
	}
	if st.OwnerAt(3, 3) != "alice" {
		t.Error("founded cell not owned")
	}
}

func TestPauseUnpause(t *testing.T) {
	s := testScheduler(t, nil)

	s.Pause()
	if !s.Paused() {
		t.Error("Paused() = false after Pause")
	}
	if got := s.Snapshot().Status; got != model.RoomPaused {
		t.Errorf("status = %s, want paused", got)
	}

	s.Unpause()
	if s.Paused() {
		t.Error("Paused() = true after Unpause")
	}
	if got := s.Snapshot().Status; got != model.RoomOpen {
		t.Errorf("status = %s, want open", got)
	}
}

// TestPausedSchedulerRetainsCommands: joins accepted while a room is paused
// must survive the pause and apply on the first tick after unpause.
func TestPausedSchedulerRetainsCommands(t *testing.T) {
	s := testScheduler(t, nil)
	go s.Run(context.Background())
	defer s.Stop(time.Second)

	s.Pause()
	if err := s.Enqueue(context.Background(), Command{Kind: CmdJoin, UserID: "bob"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Let the paused loop observe at least one interval.
	time.Sleep(3 * s.period)
	s.Unpause()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().PlayerByID("bob") != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("join enqueued while paused was not applied after unpause")
}

func TestPublishReplacesSnapshot(t *testing.T) {
	s := testScheduler(t, nil)

	ended := s.Snapshot().Clone()
	ended.Status = model.RoomEnded
	ended.Winner = "alice"
	s.Publish(ended)

	if got := s.Snapshot(); got != ended {
		t.Error("Publish did not replace the snapshot")
	}
}

func TestRunStopsOnStop(t *testing.T) {
	s := testScheduler(t, nil)
	go s.Run(context.Background())

	s.Stop(time.Second)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Stop")
	}
	// Second Stop must return immediately.
	s.Stop(time.Second)
}

func TestEnqueueFailsWhenStoppedAndFull(t *testing.T) {
	s := testScheduler(t, nil)
	go s.Run(context.Background())
	s.Stop(time.Second)

	for i := 0; i < commandQueueSize; i++ {
		s.cmds <- Command{Kind: CmdQuit, UserID: "alice"}
	}
	if err := s.Enqueue(context.Background(), Command{Kind: CmdQuit, UserID: "alice"}); err == nil {
		t.Error("Enqueue on a stopped scheduler with a full queue should fail")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := testScheduler(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after context cancel")
	}
}

func TestEnqueueHonorsContext(t *testing.T) {
	s := testScheduler(t, nil)
	for i := 0; i < commandQueueSize; i++ {
		if err := s.Enqueue(context.Background(), Command{Kind: CmdQuit, UserID: "alice"}); err != nil {
			t.Fatalf("fill enqueue %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Enqueue(ctx, Command{Kind: CmdQuit, UserID: "alice"}); err == nil {
		t.Error("Enqueue on a full queue should fail once the context expires")
	}
}

func TestRunEndsWhenRoomEnds(t *testing.T) {
	m := flatMap(4, 4)
	st := NewState("r1", "alice", nil)
	s := NewScheduler("r1", st, m, noExpandConfig(), time.Millisecond, nil)

	// Founding plus a hand-granted supermajority trips the win condition on
	// the first tick.
	if err := s.Enqueue(context.Background(), Command{Kind: CmdFound, UserID: "alice", X: 0, Y: 0}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	first, err := s.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	n := first.Nations["alice"]
	for i := 1; i < 13; i++ {
		n.Territory.Add(i%4, i/4)
		first.Owners[geo.Pack(i%4, i/4)] = "alice"
	}

	go s.Run(context.Background())
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after the room ended")
	}
	final := s.Snapshot()
	if final.Status != model.RoomEnded || final.Winner != "alice" {
		t.Errorf("final status = %s winner = %q, want ended by alice", final.Status, final.Winner)
	}
}
