package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/greylag/landgrab/server/internal/model"
)

// RoomRepo handles durable room rows. Player membership (including the
// per-room shared secrets) is stored as a JSONB document on the row.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo creates a RoomRepo.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// roomPlayer is the JSONB shape of a player, password included. Passwords
// never leave the repository layer in API responses.
type roomPlayer struct {
	UserID   string            `json:"userId"`
	Password string            `json:"password"`
	Profile  map[string]string `json:"profile,omitempty"`
	JoinedAt time.Time         `json:"joinedAt"`
}

func encodePlayers(players []model.Player) ([]byte, error) {
	rows := make([]roomPlayer, len(players))
	for i, p := range players {
		rows[i] = roomPlayer{UserID: p.UserID, Password: p.Password, Profile: p.Profile, JoinedAt: p.JoinedAt}
	}
	return json.Marshal(rows)
}

func decodePlayers(data []byte) ([]model.Player, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []roomPlayer
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	players := make([]model.Player, len(rows))
	for i, r := range rows {
		players[i] = model.Player{UserID: r.UserID, Password: r.Password, Profile: r.Profile, JoinedAt: r.JoinedAt}
	}
	return players, nil
}

// Create inserts a new room.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
	players, err := encodePlayers(room.Players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	cfg := room.Config
	if cfg == nil {
		cfg = json.RawMessage("{}")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, map_id, creator_id, status, seed, width, height, config, players, tick_count, created_at, last_activity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		room.ID, room.Name, room.MapID, room.CreatorID, room.Status, int64(room.Seed),
		room.Width, room.Height, []byte(cfg), players, room.TickCount, room.CreatedAt, room.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (r *RoomRepo) scanRoom(row interface{ Scan(...any) error }) (*model.Room, error) {
	var rm model.Room
	var seed int64
	var cfg, players []byte
	err := row.Scan(&rm.ID, &rm.Name, &rm.MapID, &rm.CreatorID, &rm.Status, &seed,
		&rm.Width, &rm.Height, &cfg, &players, &rm.TickCount, &rm.CreatedAt, &rm.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan room: %w", err)
	}
	rm.Seed = uint32(seed)
	rm.Config = json.RawMessage(cfg)
	rm.Players, err = decodePlayers(players)
	if err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	return &rm, nil
}

const roomColumns = `id, name, map_id, creator_id, status, seed, width, height, config, players, tick_count, created_at, last_activity`

// FindByID returns a room by ID, or nil when unknown.
func (r *RoomRepo) FindByID(ctx context.Context, id string) (*model.Room, error) {
	return r.scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

func (r *RoomRepo) list(ctx context.Context, query string, args ...any) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		rm, err := r.scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

// ListOpen returns rooms accepting players, most recent first.
func (r *RoomRepo) ListOpen(ctx context.Context) ([]model.Room, error) {
	return r.list(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE status = 'open' ORDER BY created_at DESC LIMIT 50`)
}

// ListActive returns rooms whose simulation should be running (open or
// paused), used for recovery after a restart.
func (r *RoomRepo) ListActive(ctx context.Context) ([]model.Room, error) {
	return r.list(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE status IN ('open', 'paused') ORDER BY created_at`)
}

// AddPlayer appends a player to the room's membership document.
func (r *RoomRepo) AddPlayer(ctx context.Context, roomID string, player model.Player) error {
	room, err := r.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return fmt.Errorf("room %s not found", roomID)
	}
	return r.SavePlayers(ctx, roomID, append(room.Players, player))
}

// SavePlayers replaces the room's membership document.
func (r *RoomRepo) SavePlayers(ctx context.Context, roomID string, players []model.Player) error {
	data, err := encodePlayers(players)
	if err != nil {
		return fmt.Errorf("encode players: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE rooms SET players = $2 WHERE id = $1`, roomID, data)
	if err != nil {
		return fmt.Errorf("save players: %w", err)
	}
	return nil
}

// SaveTick records the periodic snapshot point.
func (r *RoomRepo) SaveTick(ctx context.Context, roomID string, tick int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET tick_count = $2, status = $3, last_activity = now() WHERE id = $1`,
		roomID, tick, status)
	if err != nil {
		return fmt.Errorf("save tick: %w", err)
	}
	return nil
}

// SetStatus updates a room's lifecycle status.
func (r *RoomRepo) SetStatus(ctx context.Context, roomID, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rooms SET status = $2 WHERE id = $1`, roomID, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// Touch records subscriber activity for the idle sweeper.
func (r *RoomRepo) Touch(ctx context.Context, roomID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rooms SET last_activity = $2 WHERE id = $1`, roomID, at)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	return nil
}

// Delete removes a room row.
func (r *RoomRepo) Delete(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// DeleteAll wipes every room (reset-on-boot).
func (r *RoomRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms`)
	if err != nil {
		return fmt.Errorf("delete all rooms: %w", err)
	}
	return nil
}
