package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubStreamer struct {
	authErr  error
	tick     int64
	frame    []byte
	frameErr error
}

func (s *stubStreamer) Authenticate(ctx context.Context, roomID, userID, password string) error {
	return s.authErr
}

func (s *stubStreamer) FullFrame(ctx context.Context, roomID string) (int64, []byte, error) {
	return s.tick, s.frame, s.frameErr
}

func newTestConn(buf int) *wsConn {
	return &wsConn{send: make(chan []byte, buf), subs: make(map[string]*subscriber)}
}

func decodeSent(t *testing.T, c *wsConn) map[string]any {
	t.Helper()
	select {
	case data := <-c.send:
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return msg
	default:
		t.Fatal("no message in send buffer")
		return nil
	}
}

func TestSubscribeSendsAckThenSnapshot(t *testing.T) {
	h := NewWSHandler(NewHub(), &stubStreamer{tick: 3, frame: []byte(`{"tickCount":3}`)})
	c := newTestConn(4)

	h.subscribe(c, clientMessage{Type: "subscribe", RoomID: "r1", UserID: "alice", Password: "pw"})

	ack := decodeSent(t, c)
	if ack["type"] != "subscribed" || ack["roomId"] != "r1" || ack["full"] != true {
		t.Errorf("ack = %v, want subscribed/r1/full", ack)
	}
	state := decodeSent(t, c)
	if state["tickCount"] != float64(3) {
		t.Errorf("state = %v, want the snapshot frame", state)
	}
	if c.subs["r1"] == nil {
		t.Error("subscription not registered on the connection")
	}
}

func TestSubscribeAuthFailureSendsErrorMessage(t *testing.T) {
	h := NewWSHandler(NewHub(), &stubStreamer{authErr: errors.New("password mismatch")})
	c := newTestConn(4)

	h.subscribe(c, clientMessage{Type: "subscribe", RoomID: "r1", UserID: "alice"})

	msg := decodeSent(t, c)
	if msg["type"] != "error" {
		t.Errorf("type = %v, want error", msg["type"])
	}
	if s, _ := msg["message"].(string); s == "" {
		t.Error("error envelope missing the message field")
	}
	if len(c.subs) != 0 {
		t.Error("failed auth must not register a subscription")
	}
}
