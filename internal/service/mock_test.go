package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/greylag/landgrab/server/internal/model"
)

// mockRoomRepo is an in-memory RoomRepository.
type mockRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*model.Room
	err   error
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{rooms: make(map[string]*model.Room)}
}

func (r *mockRoomRepo) Create(_ context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	cp := *room
	cp.Players = append([]model.Player(nil), room.Players...)
	r.rooms[room.ID] = &cp
	return nil
}

func (r *mockRoomRepo) FindByID(_ context.Context, id string) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	room, ok := r.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *room
	cp.Players = append([]model.Player(nil), room.Players...)
	return &cp, nil
}

func (r *mockRoomRepo) ListOpen(_ context.Context) ([]model.Room, error) {
	return r.listByStatus(model.RoomOpen)
}

func (r *mockRoomRepo) ListActive(_ context.Context) ([]model.Room, error) {
	open, err := r.listByStatus(model.RoomOpen)
	if err != nil {
		return nil, err
	}
	paused, err := r.listByStatus(model.RoomPaused)
	if err != nil {
		return nil, err
	}
	return append(open, paused...), nil
}

func (r *mockRoomRepo) listByStatus(status string) ([]model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []model.Room
	for _, room := range r.rooms {
		if room.Status == status {
			out = append(out, *room)
		}
	}
	return out, nil
}

func (r *mockRoomRepo) AddPlayer(_ context.Context, roomID string, player model.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s not found", roomID)
	}
	room.Players = append(room.Players, player)
	return nil
}

func (r *mockRoomRepo) SavePlayers(_ context.Context, roomID string, players []model.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.Players = append([]model.Player(nil), players...)
	}
	return nil
}

func (r *mockRoomRepo) SaveTick(_ context.Context, roomID string, tick int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.TickCount = tick
		room.Status = status
	}
	return nil
}

func (r *mockRoomRepo) SetStatus(_ context.Context, roomID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.Status = status
	}
	return nil
}

func (r *mockRoomRepo) Touch(_ context.Context, roomID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.LastActivity = at
	}
	return nil
}

func (r *mockRoomRepo) Delete(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
	return nil
}

func (r *mockRoomRepo) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[string]*model.Room)
	return nil
}

// mockStateCache is an in-memory StateCache.
type mockStateCache struct {
	mu       sync.Mutex
	states   map[string]json.RawMessage
	metas    map[string]json.RawMessage
	mappings map[string]json.RawMessage
	chunks   map[string][]byte
	alive    map[string]bool
}

func newMockStateCache() *mockStateCache {
	return &mockStateCache{
		states:   make(map[string]json.RawMessage),
		metas:    make(map[string]json.RawMessage),
		mappings: make(map[string]json.RawMessage),
		chunks:   make(map[string][]byte),
		alive:    make(map[string]bool),
	}
}

func chunkKey(mapID string, startRow int) string {
	return fmt.Sprintf("%s:%d", mapID, startRow)
}

func (c *mockStateCache) SetGameState(_ context.Context, roomID string, state json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[roomID] = state
	return nil
}

func (c *mockStateCache) GetGameState(_ context.Context, roomID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[roomID], nil
}

func (c *mockStateCache) SetMapMeta(_ context.Context, mapID string, meta json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metas[mapID] = meta
	return nil
}

func (c *mockStateCache) GetMapMeta(_ context.Context, mapID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metas[mapID], nil
}

func (c *mockStateCache) SetMapChunk(_ context.Context, mapID string, startRow int, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks[chunkKey(mapID, startRow)] = chunk
	return nil
}

func (c *mockStateCache) GetMapChunk(_ context.Context, mapID string, startRow int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks[chunkKey(mapID, startRow)], nil
}

func (c *mockStateCache) SetMapMappings(_ context.Context, mapID string, mappings json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappings[mapID] = mappings
	return nil
}

func (c *mockStateCache) GetMapMappings(_ context.Context, mapID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mappings[mapID], nil
}

func (c *mockStateCache) TouchRoom(_ context.Context, roomID string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive[roomID] = true
	return nil
}

func (c *mockStateCache) RoomAlive(_ context.Context, roomID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive[roomID], nil
}

func (c *mockStateCache) DeleteRoomData(_ context.Context, roomID, mapID string, height, chunkRows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, roomID)
	delete(c.alive, roomID)
	delete(c.metas, mapID)
	delete(c.mappings, mapID)
	for start := 0; start < height; start += chunkRows {
		delete(c.chunks, chunkKey(mapID, start))
	}
	return nil
}

func (c *mockStateCache) FlushAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[string]json.RawMessage)
	c.metas = make(map[string]json.RawMessage)
	c.mappings = make(map[string]json.RawMessage)
	c.chunks = make(map[string][]byte)
	c.alive = make(map[string]bool)
	return nil
}

// mockHub records broadcasts.
type mockHub struct {
	mu         sync.Mutex
	frames     map[string][]Frames
	needPacked bool
	subs       int
	fullMarks  []string
}

func newMockHub() *mockHub {
	return &mockHub{frames: make(map[string][]Frames)}
}

func (h *mockHub) Broadcast(roomID string, f Frames) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames[roomID] = append(h.frames[roomID], f)
}

func (h *mockHub) NeedsPacked(string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.needPacked
}

func (h *mockHub) MarkRoomFull(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullMarks = append(h.fullMarks, roomID)
}

func (h *mockHub) SubscriberCount(string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs
}

func (h *mockHub) framesFor(roomID string) []Frames {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Frames(nil), h.frames[roomID]...)
}
