package handler

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/greylag/landgrab/server/internal/service"
)

// subscriber is one WebSocket connection's membership in a room stream.
type subscriber struct {
	conn      *wsConn
	roomID    string
	userID    string
	usePacked bool

	// wantsFull forces the next frame to be a full snapshot. Set on join,
	// after a dropped message, and on explicit client request.
	wantsFull atomic.Bool
	// lastTick guards against out-of-order delivery.
	lastTick atomic.Int64
}

// Hub tracks room subscribers and fans each tick's frames out to them.
// Send never blocks the simulation: a subscriber whose buffer is full loses
// the frame and is marked for a full snapshot instead.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*subscriber]bool
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*subscriber]bool)}
}

// Subscribe adds a connection to a room stream.
func (h *Hub) Subscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[s.roomID] == nil {
		h.rooms[s.roomID] = make(map[*subscriber]bool)
	}
	h.rooms[s.roomID][s] = true
}

// Unsubscribe removes a connection from its room stream.
func (h *Hub) Unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[s.roomID]; ok {
		delete(conns, s)
		if len(conns) == 0 {
			delete(h.rooms, s.roomID)
		}
	}
}

// CloseConn removes all of a connection's subscriptions and closes its send
// channel under the hub lock, so no in-flight broadcast can race the close.
func (h *Hub) CloseConn(c *wsConn, subs map[string]*subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range subs {
		if conns, ok := h.rooms[s.roomID]; ok {
			delete(conns, s)
			if len(conns) == 0 {
				delete(h.rooms, s.roomID)
			}
		}
	}
	close(c.send)
}

// Broadcast delivers one tick's frames to every subscriber of the room.
func (h *Hub) Broadcast(roomID string, f service.Frames) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.rooms[roomID] {
		if f.Tick <= s.lastTick.Load() && f.Tick != 0 {
			continue
		}
		data := f.Delta
		if s.usePacked && f.Packed != nil {
			data = f.Packed
		}
		if data == nil || s.wantsFull.Load() {
			data = f.Full
		}
		select {
		case s.conn.send <- data:
			s.wantsFull.Store(false)
			s.lastTick.Store(f.Tick)
		default:
			// Dropped a frame; the next successful send must be a full
			// snapshot or the client's territory view diverges.
			s.wantsFull.Store(true)
			log.Warn().Str("userId", s.userID).Str("roomId", roomID).Msg("Dropping state frame, buffer full")
		}
	}
}

// SendTo delivers a payload directly to one subscriber, used for the initial
// full snapshot at subscribe time.
func (h *Hub) SendTo(s *subscriber, tick int64, data []byte) {
	select {
	case s.conn.send <- data:
		s.lastTick.Store(tick)
	default:
		s.wantsFull.Store(true)
	}
}

// NeedsPacked reports whether any subscriber of the room negotiated the
// packed delta encoding, so the broadcaster can skip building it otherwise.
func (h *Hub) NeedsPacked(roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[roomID] {
		if s.usePacked {
			return true
		}
	}
	return false
}

// MarkRoomFull forces a full snapshot for every subscriber of the room,
// used when a room resumes after pause or recovery.
func (h *Hub) MarkRoomFull(roomID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[roomID] {
		s.wantsFull.Store(true)
	}
}

// SubscriberCount returns the number of live subscribers for a room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomIDs returns the rooms that currently have subscribers.
func (h *Hub) RoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	return out
}
