//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/greylag/landgrab/server/internal/model"
	"github.com/greylag/landgrab/server/internal/testutil"
)

func testRoom(id, status string) *model.Room {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Room{
		ID:        id,
		Name:      "room " + id,
		MapID:     "map-" + id,
		CreatorID: "alice",
		Status:    status,
		Seed:      0xDEADBEEF,
		Width:     300,
		Height:    300,
		Config:    json.RawMessage(`{"game":{"winConditionPercentage":60}}`),
		Players: []model.Player{
			{UserID: "alice", Password: "secret", JoinedAt: now},
		},
		CreatedAt:    now,
		LastActivity: now,
	}
}

func TestRoomRepoCreateFind(t *testing.T) {
	db := testutil.SetupDB(t)
	t.Cleanup(func() { testutil.CleanupDB(t, db) })
	repo := NewRoomRepo(db)
	ctx := context.Background()

	want := testRoom("r1", model.RoomOpen)
	if err := repo.Create(ctx, want); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindByID(ctx, "r1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil {
		t.Fatal("room not found after create")
	}
	if got.Name != want.Name || got.MapID != want.MapID || got.Seed != want.Seed ||
		got.Width != want.Width || got.Status != model.RoomOpen {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.Players) != 1 || got.Players[0].UserID != "alice" || got.Players[0].Password != "secret" {
		t.Errorf("players = %+v", got.Players)
	}

	missing, err := repo.FindByID(ctx, "nope")
	if err != nil {
		t.Fatalf("FindByID missing: %v", err)
	}
	if missing != nil {
		t.Error("unknown id should return nil, nil")
	}
}

func TestRoomRepoListByStatus(t *testing.T) {
	db := testutil.SetupDB(t)
	t.Cleanup(func() { testutil.CleanupDB(t, db) })
	repo := NewRoomRepo(db)
	ctx := context.Background()

	for id, status := range map[string]string{
		"open1":   model.RoomOpen,
		"open2":   model.RoomOpen,
		"paused1": model.RoomPaused,
		"ended1":  model.RoomEnded,
	} {
		if err := repo.Create(ctx, testRoom(id, status)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	open, err := repo.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("open rooms = %d, want 2", len(open))
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 3 {
		t.Errorf("active rooms = %d, want 3 (open + paused)", len(active))
	}
	for _, rm := range active {
		if rm.Status == model.RoomEnded {
			t.Errorf("ended room %s listed as active", rm.ID)
		}
	}
}

func TestRoomRepoPlayers(t *testing.T) {
	db := testutil.SetupDB(t)
	t.Cleanup(func() { testutil.CleanupDB(t, db) })
	repo := NewRoomRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testRoom("r1", model.RoomOpen)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	bob := model.Player{
		UserID: "bob", Password: "pw2",
		Profile:  map[string]string{"color": "#ff0000"},
		JoinedAt: time.Now().UTC(),
	}
	if err := repo.AddPlayer(ctx, "r1", bob); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}

	got, err := repo.FindByID(ctx, "r1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(got.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(got.Players))
	}
	if got.Players[1].UserID != "bob" || got.Players[1].Profile["color"] != "#ff0000" {
		t.Errorf("added player = %+v", got.Players[1])
	}

	if err := repo.AddPlayer(ctx, "missing", bob); err == nil {
		t.Error("AddPlayer on unknown room should fail")
	}
}

func TestRoomRepoTickAndStatus(t *testing.T) {
	db := testutil.SetupDB(t)
	t.Cleanup(func() { testutil.CleanupDB(t, db) })
	repo := NewRoomRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testRoom("r1", model.RoomOpen)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.SaveTick(ctx, "r1", 1500, model.RoomOpen); err != nil {
		t.Fatalf("SaveTick: %v", err)
	}
	got, _ := repo.FindByID(ctx, "r1")
	if got.TickCount != 1500 {
		t.Errorf("tick = %d, want 1500", got.TickCount)
	}

	if err := repo.SetStatus(ctx, "r1", model.RoomPaused); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ = repo.FindByID(ctx, "r1")
	if got.Status != model.RoomPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}
}

func TestRoomRepoDelete(t *testing.T) {
	db := testutil.SetupDB(t)
	t.Cleanup(func() { testutil.CleanupDB(t, db) })
	repo := NewRoomRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testRoom("r1", model.RoomOpen)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, testRoom("r2", model.RoomOpen)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := repo.FindByID(ctx, "r1"); got != nil {
		t.Error("room still present after delete")
	}
	if got, _ := repo.FindByID(ctx, "r2"); got == nil {
		t.Error("delete removed the wrong room")
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	open, _ := repo.ListOpen(ctx)
	if len(open) != 0 {
		t.Errorf("rooms after DeleteAll = %d, want 0", len(open))
	}
}
