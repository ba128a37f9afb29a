package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/greylag/landgrab/server/internal/model"
)

// RoomRepository defines durable room storage.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	FindByID(ctx context.Context, id string) (*model.Room, error)
	ListOpen(ctx context.Context) ([]model.Room, error)
	ListActive(ctx context.Context) ([]model.Room, error)
	AddPlayer(ctx context.Context, roomID string, player model.Player) error
	SavePlayers(ctx context.Context, roomID string, players []model.Player) error
	SaveTick(ctx context.Context, roomID string, tick int64, status string) error
	SetStatus(ctx context.Context, roomID, status string) error
	Touch(ctx context.Context, roomID string, at time.Time) error
	Delete(ctx context.Context, roomID string) error
	DeleteAll(ctx context.Context) error
}

// StateCache defines live state and map-document operations (Redis).
type StateCache interface {
	SetGameState(ctx context.Context, roomID string, state json.RawMessage) error
	GetGameState(ctx context.Context, roomID string) (json.RawMessage, error)

	SetMapMeta(ctx context.Context, mapID string, meta json.RawMessage) error
	GetMapMeta(ctx context.Context, mapID string) (json.RawMessage, error)
	SetMapChunk(ctx context.Context, mapID string, startRow int, chunk []byte) error
	GetMapChunk(ctx context.Context, mapID string, startRow int) ([]byte, error)
	SetMapMappings(ctx context.Context, mapID string, mappings json.RawMessage) error
	GetMapMappings(ctx context.Context, mapID string) (json.RawMessage, error)

	TouchRoom(ctx context.Context, roomID string, ttl time.Duration) error
	RoomAlive(ctx context.Context, roomID string) (bool, error)

	DeleteRoomData(ctx context.Context, roomID, mapID string, height, chunkRows int) error
	FlushAll(ctx context.Context) error
}
