package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 30 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// RoomStreamer is what the WebSocket layer needs from the room service:
// credential checks and an immediate full snapshot for new subscribers.
type RoomStreamer interface {
	Authenticate(ctx context.Context, roomID, userID, password string) error
	FullFrame(ctx context.Context, roomID string) (int64, []byte, error)
}

// wsConn wraps one WebSocket connection and its room subscriptions.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	subs map[string]*subscriber // roomID -> subscription
}

// clientMessage is the envelope for messages sent from the client.
type clientMessage struct {
	Type         string `json:"type"` // "subscribe", "unsubscribe", "requestFull"
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId"`
	Password     string `json:"password"`
	PackedDeltas bool   `json:"packedDeltas"`
}

// WSHandler upgrades connections and routes subscription messages.
type WSHandler struct {
	hub     *Hub
	streams RoomStreamer
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, streams RoomStreamer) *WSHandler {
	return &WSHandler{hub: hub, streams: streams}
}

// ServeWS handles GET /api/v1/ws — upgrades to WebSocket. Credentials travel
// in the subscribe message, not the upgrade request.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		subs: make(map[string]*subscriber),
	}

	welcome, _ := json.Marshal(map[string]any{"type": "connected"})
	c.send <- welcome

	go h.writePump(c)
	go h.readPump(c)
}

func (h *WSHandler) readPump(c *wsConn) {
	defer func() {
		h.hub.CloseConn(c, c.subs)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("WebSocket unexpected close")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.RoomID == "" {
			continue
		}

		switch msg.Type {
		case "subscribe":
			h.subscribe(c, msg)
		case "unsubscribe":
			if s, ok := c.subs[msg.RoomID]; ok {
				h.hub.Unsubscribe(s)
				delete(c.subs, msg.RoomID)
			}
		case "requestFull":
			if s, ok := c.subs[msg.RoomID]; ok {
				s.wantsFull.Store(true)
			}
		}
	}
}

// subscribe authenticates against the room's membership and, on success,
// registers the stream and pushes an immediate full snapshot.
func (h *WSHandler) subscribe(c *wsConn, msg clientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.streams.Authenticate(ctx, msg.RoomID, msg.UserID, msg.Password); err != nil {
		h.sendError(c, msg.RoomID, err.Error())
		return
	}
	if _, dup := c.subs[msg.RoomID]; dup {
		return
	}

	s := &subscriber{
		conn:      c,
		roomID:    msg.RoomID,
		userID:    msg.UserID,
		usePacked: msg.PackedDeltas,
	}
	c.subs[msg.RoomID] = s
	h.hub.Subscribe(s)

	// Acknowledge before the first state frame. The initial push is always a
	// full snapshot, so full is unconditionally true.
	ack, _ := json.Marshal(map[string]any{"type": "subscribed", "roomId": msg.RoomID, "full": true})
	select {
	case c.send <- ack:
	default:
	}

	tick, frame, err := h.streams.FullFrame(ctx, msg.RoomID)
	if err != nil {
		log.Error().Err(err).Str("roomId", msg.RoomID).Msg("Initial snapshot failed")
		h.sendError(c, msg.RoomID, "snapshot unavailable")
		return
	}
	h.hub.SendTo(s, tick, frame)
	log.Info().Str("userId", msg.UserID).Str("roomId", msg.RoomID).
		Int("subscribers", h.hub.SubscriberCount(msg.RoomID)).Msg("Subscriber joined")
}

func (h *WSHandler) sendError(c *wsConn, roomID, msg string) {
	data, _ := json.Marshal(map[string]string{"type": "error", "roomId": roomID, "message": msg})
	select {
	case c.send <- data:
	default:
	}
}

func (h *WSHandler) writePump(c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
