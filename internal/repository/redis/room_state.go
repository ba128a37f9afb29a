package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pierrec/lz4"
	"github.com/redis/go-redis/v9"
)

// Key patterns for room and map documents.
func stateKey(roomID string) string    { return "room:" + roomID + ":state" }
func activityKey(roomID string) string { return "room:" + roomID + ":activity" }
func metaKey(mapID string) string      { return "map:" + mapID + ":meta" }
func mappingsKey(mapID string) string  { return "map:" + mapID + ":mappings" }
func chunkKey(mapID string, startRow int) string {
	return "map:" + mapID + ":chunk:" + strconv.Itoa(startRow)
}

// ActivityKeyRoomID extracts the room id from an activity key, or "" when
// the key is not one.
func ActivityKeyRoomID(key string) string {
	const prefix, suffix = "room:", ":activity"
	if len(key) <= len(prefix)+len(suffix) || key[:len(prefix)] != prefix || key[len(key)-len(suffix):] != suffix {
		return ""
	}
	return key[len(prefix) : len(key)-len(suffix)]
}

// SetGameState stores the periodic game state snapshot.
func (c *Client) SetGameState(ctx context.Context, roomID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(roomID), []byte(state), 0).Err()
}

// GetGameState retrieves the last game state snapshot, or nil.
func (c *Client) GetGameState(ctx context.Context, roomID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game state: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetMapMeta stores a map's metadata document.
func (c *Client) SetMapMeta(ctx context.Context, mapID string, meta json.RawMessage) error {
	return c.rdb.Set(ctx, metaKey(mapID), []byte(meta), 0).Err()
}

// GetMapMeta retrieves a map's metadata document, or nil.
func (c *Client) GetMapMeta(ctx context.Context, mapID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, metaKey(mapID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get map meta: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetMapChunk stores one transmit-format chunk, lz4-framed. Chunks are
// large and highly repetitive, so they compress well.
func (c *Client) SetMapChunk(ctx context.Context, mapID string, startRow int, chunk []byte) error {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(chunk); err != nil {
		return fmt.Errorf("compress chunk: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress chunk: %w", err)
	}
	return c.rdb.Set(ctx, chunkKey(mapID, startRow), buf.Bytes(), 0).Err()
}

// GetMapChunk retrieves and decompresses one chunk, or nil when absent.
func (c *Client) GetMapChunk(ctx context.Context, mapID string, startRow int) ([]byte, error) {
	data, err := c.rdb.Get(ctx, chunkKey(mapID, startRow)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get map chunk: %w", err)
	}
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}
	return out, nil
}

// SetMapMappings stores the enum mapping tables for a map.
func (c *Client) SetMapMappings(ctx context.Context, mapID string, mappings json.RawMessage) error {
	return c.rdb.Set(ctx, mappingsKey(mapID), []byte(mappings), 0).Err()
}

// GetMapMappings retrieves the enum mapping tables, or nil.
func (c *Client) GetMapMappings(ctx context.Context, mapID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, mappingsKey(mapID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get map mappings: %w", err)
	}
	return json.RawMessage(data), nil
}

// TouchRoom refreshes the room's activity key. When the key expires, Redis
// keyspace notifications trigger idle teardown; a polling fallback in the
// sweeper covers deployments without notifications.
func (c *Client) TouchRoom(ctx context.Context, roomID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, activityKey(roomID), time.Now().Unix(), ttl).Err()
}

// RoomAlive reports whether the room's activity key still exists.
func (c *Client) RoomAlive(ctx context.Context, roomID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, activityKey(roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("room alive: %w", err)
	}
	return n > 0, nil
}

// DeleteRoomData removes all Redis data for a room and its map.
func (c *Client) DeleteRoomData(ctx context.Context, roomID, mapID string, height, chunkRows int) error {
	keys := []string{stateKey(roomID), activityKey(roomID), metaKey(mapID), mappingsKey(mapID)}
	for row := 0; row < height; row += chunkRows {
		keys = append(keys, chunkKey(mapID, row))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// FlushAll wipes the cache (reset-on-boot flag).
func (c *Client) FlushAll(ctx context.Context) error {
	return c.rdb.FlushDB(ctx).Err()
}
