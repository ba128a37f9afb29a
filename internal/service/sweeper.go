package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisrepo "github.com/greylag/landgrab/server/internal/repository/redis"
)

// RoomSweeper tears down rooms whose activity key expired, meaning nobody
// has subscribed for the empty-room TTL. It listens for Redis keyspace
// notifications on expired keys and also runs a polling fallback for
// deployments where notifications are disabled.
type RoomSweeper struct {
	rdb      *redis.Client
	rooms    *RoomService
	interval time.Duration
}

// NewRoomSweeper creates a RoomSweeper.
func NewRoomSweeper(rdb *redis.Client, rooms *RoomService, interval time.Duration) *RoomSweeper {
	return &RoomSweeper{rdb: rdb, rooms: rooms, interval: interval}
}

// Start begins listening for expired key events and runs a polling fallback.
func (s *RoomSweeper) Start(ctx context.Context) {
	go s.listenKeyspace(ctx)
	s.pollIdleRooms(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (s *RoomSweeper) listenKeyspace(ctx context.Context) {
	pubsub := s.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Room sweeper started, listening for expired activity keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if roomID := redisrepo.ActivityKeyRoomID(msg.Payload); roomID != "" {
				log.Info().Str("roomId", roomID).Msg("Activity expired, tearing down idle room")
				if err := s.rooms.TeardownRoom(ctx, roomID, "idle"); err != nil {
					log.Error().Err(err).Str("roomId", roomID).Msg("Idle teardown failed")
				}
			}
		}
	}
}

// pollIdleRooms periodically checks running rooms whose activity key is gone.
func (s *RoomSweeper) pollIdleRooms(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Idle room poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Idle room poller stopped")
			return
		case <-ticker.C:
			s.checkIdleRooms(ctx)
		}
	}
}

func (s *RoomSweeper) checkIdleRooms(ctx context.Context) {
	for _, roomID := range s.rooms.RunningRoomIDs() {
		alive, err := s.rooms.cache.RoomAlive(ctx, roomID)
		if err != nil {
			log.Error().Err(err).Str("roomId", roomID).Msg("Activity check failed")
			continue
		}
		if alive {
			continue
		}
		log.Info().Str("roomId", roomID).Msg("Poller found idle room, tearing down")
		if err := s.rooms.TeardownRoom(ctx, roomID, "idle"); err != nil {
			log.Error().Err(err).Str("roomId", roomID).Msg("Idle teardown failed")
		}
	}
}
