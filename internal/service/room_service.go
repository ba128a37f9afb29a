package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/greylag/landgrab/server/internal/apperr"
	"github.com/greylag/landgrab/server/internal/auth"
	"github.com/greylag/landgrab/server/internal/mapgen"
	"github.com/greylag/landgrab/server/internal/mapstore"
	"github.com/greylag/landgrab/server/internal/model"
	"github.com/greylag/landgrab/server/internal/repository"
	"github.com/greylag/landgrab/server/internal/sim"
)

const (
	// chunkRows is the fixed row span of a stored map chunk.
	chunkRows = 32

	defaultWidth    = 300
	defaultHeight   = 300
	defaultNumBlobs = 5
)

// Options are the tunables the room service needs from configuration.
type Options struct {
	TickPeriod       time.Duration
	FullSyncInterval time.Duration
	EmptyRoomTTL     time.Duration
}

// RoomService owns room lifecycle: creation (including map generation),
// membership, command intake, pause/end, recovery and teardown.
type RoomService struct {
	repo      repository.RoomRepository
	cache     repository.StateCache
	joinCodes *auth.JoinCodeManager
	hub       Broadcaster

	tickPeriod       time.Duration
	fullSyncInterval time.Duration
	emptyRoomTTL     time.Duration

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu    sync.RWMutex
	rooms map[string]*roomRuntime
}

// NewRoomService creates a RoomService.
func NewRoomService(repo repository.RoomRepository, cache repository.StateCache, joinCodes *auth.JoinCodeManager, hub Broadcaster, opts Options) *RoomService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomService{
		repo:             repo,
		cache:            cache,
		joinCodes:        joinCodes,
		hub:              hub,
		tickPeriod:       opts.TickPeriod,
		fullSyncInterval: opts.FullSyncInterval,
		emptyRoomTTL:     opts.EmptyRoomTTL,
		baseCtx:          ctx,
		baseCancel:       cancel,
		rooms:            make(map[string]*roomRuntime),
	}
}

// CreateRoomParams is the request body for room creation.
type CreateRoomParams struct {
	Name      string            `json:"name"`
	CreatorID string            `json:"userId"`
	Password  string            `json:"password"`
	Profile   map[string]string `json:"profile,omitempty"`

	Width      int             `json:"width,omitempty"`
	Height     int             `json:"height,omitempty"`
	NumBlobs   int             `json:"numBlobs,omitempty"`
	Seed       *uint32         `json:"seed,omitempty"`
	MapConfig  json.RawMessage `json:"mapConfig,omitempty"`
	GameConfig json.RawMessage `json:"gameConfig,omitempty"`
}

// roomConfig is the JSON shape of the durable per-room config column, kept
// so recovery can regenerate the exact same map and rules.
type roomConfig struct {
	Map  json.RawMessage `json:"map,omitempty"`
	Game json.RawMessage `json:"game,omitempty"`
}

// CreateRoom generates the map, persists every map document and the room
// row, starts the simulation and returns the room plus its join code.
func (s *RoomService) CreateRoom(ctx context.Context, p CreateRoomParams) (*model.Room, string, error) {
	if p.Width == 0 {
		p.Width = defaultWidth
	}
	if p.Height == 0 {
		p.Height = defaultHeight
	}
	if p.NumBlobs == 0 {
		p.NumBlobs = defaultNumBlobs
	}

	mcfg, err := mapgen.ParseConfig(p.MapConfig)
	if err != nil {
		return nil, "", apperr.WithCode(apperr.InvalidInput, "BAD_MAP_CONFIG", "%s", err.Error())
	}
	gcfg, err := sim.ParseConfig(p.GameConfig)
	if err != nil {
		return nil, "", apperr.WithCode(apperr.InvalidInput, "BAD_GAME_CONFIG", "%s", err.Error())
	}

	seed := randomSeed()
	if p.Seed != nil {
		seed = *p.Seed
	}

	m, err := mapgen.Generate(ctx, p.Width, p.Height, p.NumBlobs, seed, mcfg)
	if err != nil {
		if errors.Is(err, mapgen.ErrBadDimensions) || errors.Is(err, mapgen.ErrBadBlobCount) {
			return nil, "", apperr.WithCode(apperr.InvalidInput, "BAD_DIMENSIONS", "%s", err.Error())
		}
		return nil, "", fmt.Errorf("generate map: %w", err)
	}

	roomID := newID()
	mapID := newID()
	if err := s.storeMapDocuments(ctx, mapID, m); err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	cfgDoc, _ := json.Marshal(roomConfig{Map: p.MapConfig, Game: p.GameConfig})
	creator := model.Player{UserID: p.CreatorID, Password: p.Password, Profile: p.Profile, JoinedAt: now}
	room := &model.Room{
		ID:           roomID,
		Name:         p.Name,
		MapID:        mapID,
		CreatorID:    p.CreatorID,
		Status:       model.RoomOpen,
		Seed:         seed,
		Width:        p.Width,
		Height:       p.Height,
		Config:       cfgDoc,
		Players:      []model.Player{creator},
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, "", fmt.Errorf("persist room: %w", err)
	}
	if err := s.cache.TouchRoom(ctx, roomID, s.emptyRoomTTL); err != nil {
		log.Error().Err(err).Str("roomId", roomID).Msg("Initial activity touch failed")
	}

	st := sim.NewState(roomID, p.CreatorID, room.Players)
	s.startRuntime(room, m, st, gcfg, false)

	code, err := s.joinCodes.Generate(roomID)
	if err != nil {
		return nil, "", fmt.Errorf("join code: %w", err)
	}
	log.Info().Str("roomId", roomID).Str("mapId", mapID).
		Int("width", p.Width).Int("height", p.Height).Uint32("seed", seed).
		Msg("Room created")
	return room, code, nil
}

// storeMapDocuments writes metadata, mappings and every chunk to the cache.
func (s *RoomService) storeMapDocuments(ctx context.Context, mapID string, m *mapgen.Map) error {
	meta, err := json.Marshal(mapstore.MetadataFor(m))
	if err != nil {
		return fmt.Errorf("encode map metadata: %w", err)
	}
	if err := s.cache.SetMapMeta(ctx, mapID, meta); err != nil {
		return fmt.Errorf("store map metadata: %w", err)
	}

	mappings, err := json.Marshal(mapstore.DefaultMappings())
	if err != nil {
		return fmt.Errorf("encode map mappings: %w", err)
	}
	if err := s.cache.SetMapMappings(ctx, mapID, mappings); err != nil {
		return fmt.Errorf("store map mappings: %w", err)
	}

	for start := 0; start < m.Height; start += chunkRows {
		end := min(start+chunkRows, m.Height)
		chunk, err := mapstore.EncodeRows(m, start, end)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", start, err)
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", start, err)
		}
		if err := s.cache.SetMapChunk(ctx, mapID, start, data); err != nil {
			return fmt.Errorf("store chunk %d: %w", start, err)
		}
	}
	return nil
}

// startRuntime registers and launches the room's scheduler.
func (s *RoomService) startRuntime(room *model.Room, m *mapgen.Map, st *sim.State, gcfg sim.Config, paused bool) *roomRuntime {
	rt := &roomRuntime{room: room, m: m, svc: s, cfg: gcfg}
	rt.sched = sim.NewScheduler(room.ID, st, m, gcfg, s.tickPeriod, rt.onPublish)
	if paused {
		rt.sched.Pause()
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	rt.stop = cancel
	go rt.sched.Run(ctx)

	s.mu.Lock()
	s.rooms[room.ID] = rt
	s.mu.Unlock()
	return rt
}

func (s *RoomService) runtime(roomID string) *roomRuntime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

// ListOpenRooms returns joinable rooms. Player passwords never serialize.
func (s *RoomService) ListOpenRooms(ctx context.Context) ([]model.Room, error) {
	return s.repo.ListOpen(ctx)
}

// GetRoom returns one room's durable record.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, apperr.WithCode(apperr.NotFound, "ROOM_NOT_FOUND", "room not found")
	}
	return room, nil
}

// JoinRoom validates the join code and adds the player to the room.
// Rejoining with the same credentials is idempotent; a taken userId with a
// different password conflicts.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, joinCode, userID, password string, profile map[string]string) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	switch room.Status {
	case model.RoomOpen, model.RoomPaused:
	case model.RoomEnded:
		return apperr.WithCode(apperr.GameEnded, "GAME_ENDED", "room has ended")
	default:
		return apperr.WithCode(apperr.Conflict, "ROOM_NOT_OPEN", "room is not accepting players")
	}

	codeRoom, err := s.joinCodes.Validate(joinCode)
	if err != nil || codeRoom != roomID {
		return apperr.WithCode(apperr.AuthFailed, "BAD_JOIN_CODE", "invalid join code")
	}

	for _, p := range room.Players {
		if p.UserID == userID {
			if subtle.ConstantTimeCompare([]byte(p.Password), []byte(password)) == 1 {
				return nil
			}
			return apperr.WithCode(apperr.Conflict, "USER_TAKEN", "userId already in use in this room")
		}
	}

	player := model.Player{UserID: userID, Password: password, Profile: profile, JoinedAt: time.Now().UTC()}
	if err := s.repo.AddPlayer(ctx, roomID, player); err != nil {
		return fmt.Errorf("add player: %w", err)
	}

	if rt := s.runtime(roomID); rt != nil {
		s.mu.Lock()
		rt.room.Players = append(rt.room.Players, player)
		s.mu.Unlock()
		if err := rt.sched.Enqueue(ctx, sim.Command{Kind: sim.CmdJoin, UserID: userID}); err != nil {
			log.Warn().Err(err).Str("roomId", roomID).Msg("Join command not queued")
		}
	}
	log.Info().Str("roomId", roomID).Str("userId", userID).Msg("Player joined")
	return nil
}

// Authenticate checks room credentials.
func (s *RoomService) Authenticate(ctx context.Context, roomID, userID, password string) error {
	var players []model.Player
	if rt := s.runtime(roomID); rt != nil {
		s.mu.RLock()
		players = append(players, rt.room.Players...)
		s.mu.RUnlock()
	} else {
		room, err := s.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		players = room.Players
	}
	for _, p := range players {
		if p.UserID == userID {
			if subtle.ConstantTimeCompare([]byte(p.Password), []byte(password)) == 1 {
				return nil
			}
			break
		}
	}
	return apperr.WithCode(apperr.AuthFailed, "BAD_CREDENTIALS", "invalid room credentials")
}

// SubmitCommand authenticates, validates and queues a player command. The
// updater re-checks racy conditions at application time; validation here
// rejects what can never succeed.
func (s *RoomService) SubmitCommand(ctx context.Context, roomID, userID, password string, cmd sim.Command) error {
	if err := s.Authenticate(ctx, roomID, userID, password); err != nil {
		return err
	}
	rt := s.runtime(roomID)
	if rt == nil {
		return apperr.WithCode(apperr.NotFound, "ROOM_NOT_RUNNING", "room is not running")
	}

	st := rt.sched.Snapshot()
	switch st.Status {
	case model.RoomEnded:
		return apperr.WithCode(apperr.GameEnded, "GAME_ENDED", "room has ended")
	case model.RoomError:
		return apperr.WithCode(apperr.Fatal, "ROOM_ERROR", "room simulation failed")
	case model.RoomPaused:
		return apperr.WithCode(apperr.Conflict, "ROOM_PAUSED", "room is paused")
	}

	if err := s.validateCommand(rt, st, cmd); err != nil {
		return err
	}
	if err := rt.sched.Enqueue(ctx, cmd); err != nil {
		return apperr.WithCode(apperr.Transient, "QUEUE_UNAVAILABLE", "%s", err.Error())
	}
	return nil
}

func (s *RoomService) validateCommand(rt *roomRuntime, st *sim.State, cmd sim.Command) error {
	n := st.Nations[cmd.UserID]
	switch cmd.Kind {
	case sim.CmdFound:
		if n != nil {
			if n.Status == model.NationDefeated && !rt.cfg.RefoundEnabled {
				return apperr.WithCode(apperr.Conflict, "REFOUND_DISABLED", "defeated nations cannot refound")
			}
			if n.Status != model.NationDefeated {
				return apperr.WithCode(apperr.Conflict, "ALREADY_FOUNDED", "nation already founded")
			}
		}
		if !rt.m.InBounds(cmd.X, cmd.Y) || !rt.m.IsLand(cmd.X, cmd.Y) {
			return apperr.WithCode(apperr.InvalidInput, "BAD_CELL", "founding cell must be land within the map")
		}
		if st.OwnerAt(cmd.X, cmd.Y) != "" {
			return apperr.WithCode(apperr.Conflict, "CELL_OWNED", "founding cell is already owned")
		}

	case sim.CmdBuildCity, sim.CmdBuildStructure:
		if err := requireActive(n); err != nil {
			return err
		}
		if !rt.m.InBounds(cmd.X, cmd.Y) || !n.Territory.Has(cmd.X, cmd.Y) {
			return apperr.WithCode(apperr.InvalidInput, "NOT_OWNED", "cell is not owned territory")
		}
		if !affordable(n, rt.buildCost(cmd)) {
			return apperr.WithCode(apperr.Unaffordable, "INSUFFICIENT_RESOURCES", "not enough resources")
		}

	case sim.CmdArrow:
		if err := requireActive(n); err != nil {
			return err
		}
		if cmd.ArrowType != model.ArrowAttack && cmd.ArrowType != model.ArrowDefend {
			return apperr.WithCode(apperr.InvalidInput, "BAD_ARROW_TYPE", "arrow type must be attack or defend")
		}
		if err := validatePath(rt, n, cmd); err != nil {
			return err
		}
		if cmd.ArrowType == model.ArrowAttack && countArrows(n, model.ArrowAttack) >= rt.cfg.MaxAttackArrows {
			return apperr.WithCode(apperr.Conflict, "TOO_MANY_ARROWS", "attack arrow limit reached")
		}
		if cmd.ArrowType == model.ArrowDefend && countArrows(n, model.ArrowDefend) >= 1 {
			return apperr.WithCode(apperr.Conflict, "DEFEND_EXISTS", "a defend arrow is already active")
		}

	case sim.CmdSettings:
		if bad(cmd.TroopTarget) || bad(cmd.AttackPercent) {
			return apperr.WithCode(apperr.InvalidInput, "BAD_SETTING", "settings must be between 0 and 1")
		}
		return requireActive(n)

	case sim.CmdClearArrow, sim.CmdQuit:
		return requireActive(n)

	default:
		return apperr.WithCode(apperr.InvalidInput, "BAD_COMMAND", "unknown command")
	}
	return nil
}

func requireActive(n *model.Nation) error {
	if n == nil || n.Status != model.NationActive {
		return apperr.WithCode(apperr.Conflict, "NO_NATION", "no active nation for this player")
	}
	return nil
}

func validatePath(rt *roomRuntime, n *model.Nation, cmd sim.Command) error {
	if len(cmd.Path) < 2 {
		return apperr.WithCode(apperr.InvalidInput, "BAD_PATH", "path needs at least two cells")
	}
	if cmd.Percent < 0 || cmd.Percent > 1 {
		return apperr.WithCode(apperr.InvalidInput, "BAD_PERCENT", "percent must be between 0 and 1")
	}
	if !n.Territory.Has(cmd.Path[0].X, cmd.Path[0].Y) {
		return apperr.WithCode(apperr.InvalidInput, "BAD_PATH", "path must start on owned territory")
	}
	for i, c := range cmd.Path {
		if !rt.m.InBounds(c.X, c.Y) {
			return apperr.WithCode(apperr.InvalidInput, "BAD_PATH", "path leaves the map")
		}
		if i > 0 {
			dx, dy := abs(c.X-cmd.Path[i-1].X), abs(c.Y-cmd.Path[i-1].Y)
			if dx > 1 || dy > 1 || (dx == 0 && dy == 0) {
				return apperr.WithCode(apperr.InvalidInput, "BAD_PATH", "path cells must be adjacent")
			}
		}
	}
	return nil
}

func (rt *roomRuntime) buildCost(cmd sim.Command) map[string]float64 {
	if cmd.Kind == sim.CmdBuildCity {
		return rt.cfg.BuildCosts["city"]
	}
	return rt.cfg.BuildCosts[cmd.StructureType]
}

func affordable(n *model.Nation, costs map[string]float64) bool {
	for res, c := range costs {
		if n.Resources[res] < c {
			return false
		}
	}
	return true
}

func countArrows(n *model.Nation, arrowType string) int {
	count := 0
	for _, a := range n.Arrows {
		if a.Type == arrowType {
			count++
		}
	}
	return count
}

func bad(v *float64) bool {
	return v != nil && (*v < 0 || *v > 1)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PauseRoom suspends the simulation. Creator only, idempotent.
func (s *RoomService) PauseRoom(ctx context.Context, roomID, userID, password string) error {
	rt, err := s.creatorRuntime(ctx, roomID, userID, password)
	if err != nil {
		return err
	}
	rt.sched.Pause()
	if err := s.repo.SetStatus(ctx, roomID, model.RoomPaused); err != nil {
		log.Error().Err(err).Str("roomId", roomID).Msg("Status persist failed")
	}
	rt.publishNow()
	log.Info().Str("roomId", roomID).Msg("Room paused")
	return nil
}

// UnpauseRoom resumes the simulation. Creator only, idempotent.
func (s *RoomService) UnpauseRoom(ctx context.Context, roomID, userID, password string) error {
	rt, err := s.creatorRuntime(ctx, roomID, userID, password)
	if err != nil {
		return err
	}
	rt.sched.Unpause()
	if err := s.repo.SetStatus(ctx, roomID, model.RoomOpen); err != nil {
		log.Error().Err(err).Str("roomId", roomID).Msg("Status persist failed")
	}
	s.hub.MarkRoomFull(roomID)
	rt.publishNow()
	log.Info().Str("roomId", roomID).Msg("Room unpaused")
	return nil
}

// EndRoom ends the game without a winner. Creator only.
func (s *RoomService) EndRoom(ctx context.Context, roomID, userID, password string) error {
	rt, err := s.creatorRuntime(ctx, roomID, userID, password)
	if err != nil {
		return err
	}
	rt.end("")
	if err := s.repo.SetStatus(ctx, roomID, model.RoomEnded); err != nil {
		log.Error().Err(err).Str("roomId", roomID).Msg("Status persist failed")
	}
	log.Info().Str("roomId", roomID).Msg("Room ended by creator")
	return nil
}

func (s *RoomService) creatorRuntime(ctx context.Context, roomID, userID, password string) (*roomRuntime, error) {
	if err := s.Authenticate(ctx, roomID, userID, password); err != nil {
		return nil, err
	}
	rt := s.runtime(roomID)
	if rt == nil {
		return nil, apperr.WithCode(apperr.NotFound, "ROOM_NOT_RUNNING", "room is not running")
	}
	if rt.room.CreatorID != userID {
		return nil, apperr.WithCode(apperr.Forbidden, "NOT_CREATOR", "only the room creator may do this")
	}
	return rt, nil
}

// FullFrame returns a complete state snapshot encoded for the wire. Live
// rooms read from the scheduler; ended or recovered rooms fall back to the
// persisted snapshot.
func (s *RoomService) FullFrame(ctx context.Context, roomID string) (int64, []byte, error) {
	if rt := s.runtime(roomID); rt != nil {
		return rt.fullFrame()
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return 0, nil, err
	}
	data, err := s.cache.GetGameState(ctx, roomID)
	if err != nil {
		return 0, nil, err
	}
	if data == nil {
		return 0, nil, apperr.WithCode(apperr.NotFound, "NO_STATE", "no state snapshot for room")
	}
	var st sim.State
	if err := json.Unmarshal(data, &st); err != nil {
		return 0, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	st.RebuildTerritories()
	frame, err := json.Marshal(buildFullMessage(room, &st))
	return st.Tick, frame, err
}

// MapMetadata returns the map's metadata document.
func (s *RoomService) MapMetadata(ctx context.Context, roomID string) (json.RawMessage, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	meta, err := s.cache.GetMapMeta(ctx, room.MapID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, apperr.WithCode(apperr.NotFound, "MAP_NOT_FOUND", "map data missing")
	}
	return meta, nil
}

// MapData returns one stored chunk. Requests must align to the chunk grid:
// startRow a multiple of the chunk span, endRow the chunk's actual end.
func (s *RoomService) MapData(ctx context.Context, roomID string, startRow, endRow int) (json.RawMessage, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if startRow < 0 || startRow >= room.Height || startRow%chunkRows != 0 {
		return nil, apperr.WithCode(apperr.InvalidInput, "BAD_ROW_RANGE", "startRow must align to the chunk grid")
	}
	if want := min(startRow+chunkRows, room.Height); endRow != want {
		return nil, apperr.WithCode(apperr.InvalidInput, "BAD_ROW_RANGE", "endRow must be %d", want)
	}
	chunk, err := s.cache.GetMapChunk(ctx, room.MapID, startRow)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, apperr.WithCode(apperr.NotFound, "MAP_NOT_FOUND", "map chunk missing")
	}
	return chunk, nil
}

// RecoverActiveRooms restarts the simulation for every open or paused room
// after a process restart. Maps regenerate deterministically from the
// persisted seed and config; state restores from the last snapshot.
func (s *RoomService) RecoverActiveRooms(ctx context.Context) error {
	rooms, err := s.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active rooms: %w", err)
	}
	for i := range rooms {
		room := rooms[i]
		if err := s.recoverRoom(ctx, &room); err != nil {
			log.Error().Err(err).Str("roomId", room.ID).Msg("Room recovery failed")
			if err := s.repo.SetStatus(ctx, room.ID, model.RoomError); err != nil {
				log.Error().Err(err).Str("roomId", room.ID).Msg("Status persist failed")
			}
		}
	}
	return nil
}

func (s *RoomService) recoverRoom(ctx context.Context, room *model.Room) error {
	var cfg roomConfig
	if len(room.Config) > 0 {
		if err := json.Unmarshal(room.Config, &cfg); err != nil {
			return fmt.Errorf("decode room config: %w", err)
		}
	}
	mcfg, err := mapgen.ParseConfig(cfg.Map)
	if err != nil {
		return fmt.Errorf("decode map config: %w", err)
	}
	gcfg, err := sim.ParseConfig(cfg.Game)
	if err != nil {
		return fmt.Errorf("decode game config: %w", err)
	}

	m, err := mapgen.Generate(ctx, room.Width, room.Height, defaultNumBlobs, room.Seed, mcfg)
	if err != nil {
		return fmt.Errorf("regenerate map: %w", err)
	}

	st := sim.NewState(room.ID, room.CreatorID, room.Players)
	if data, err := s.cache.GetGameState(ctx, room.ID); err == nil && data != nil {
		var saved sim.State
		if err := json.Unmarshal(data, &saved); err == nil {
			saved.RebuildTerritories()
			st = &saved
		} else {
			log.Warn().Err(err).Str("roomId", room.ID).Msg("Snapshot decode failed, starting fresh")
		}
	}
	st.Status = room.Status

	s.startRuntime(room, m, st, gcfg, room.Status == model.RoomPaused)
	if err := s.cache.TouchRoom(ctx, room.ID, s.emptyRoomTTL); err != nil {
		log.Error().Err(err).Str("roomId", room.ID).Msg("Activity touch failed")
	}
	log.Info().Str("roomId", room.ID).Int64("tick", st.Tick).Str("status", room.Status).Msg("Room recovered")
	return nil
}

// TeardownRoom stops the simulation and reclaims the room's cached state
// and map data. The Postgres row stays behind as an ended tombstone so the
// room still resolves after the reap.
func (s *RoomService) TeardownRoom(ctx context.Context, roomID, reason string) error {
	s.mu.Lock()
	rt := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.mu.Unlock()

	var mapID string
	var height int
	if rt != nil {
		rt.sched.Stop(5 * time.Second)
		rt.stop()
		mapID, height = rt.room.MapID, rt.room.Height
	} else if room, err := s.repo.FindByID(ctx, roomID); err == nil && room != nil {
		mapID, height = room.MapID, room.Height
	}

	if mapID != "" {
		if err := s.cache.DeleteRoomData(ctx, roomID, mapID, height, chunkRows); err != nil {
			log.Error().Err(err).Str("roomId", roomID).Msg("Cache cleanup failed")
		}
	}
	if err := s.repo.SetStatus(ctx, roomID, model.RoomEnded); err != nil {
		log.Error().Err(err).Str("roomId", roomID).Msg("Room tombstone failed")
	}
	log.Info().Str("roomId", roomID).Str("reason", reason).Msg("Room torn down")
	return nil
}

// RunningRoomIDs returns the rooms with a live scheduler.
func (s *RoomService) RunningRoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// Shutdown persists a final snapshot for every room and stops all
// schedulers.
func (s *RoomService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	runtimes := make([]*roomRuntime, 0, len(s.rooms))
	for _, rt := range s.rooms {
		runtimes = append(runtimes, rt)
	}
	s.rooms = make(map[string]*roomRuntime)
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt.sched.Stop(5 * time.Second)
		rt.persist(rt.sched.Snapshot())
	}
	s.baseCancel()
}

// newID returns a 16-character random hex identifier.
func newID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("id%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func randomSeed() uint32 {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
