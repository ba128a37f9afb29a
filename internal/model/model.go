package model

import (
	"encoding/json"
	"time"

	"github.com/greylag/landgrab/server/internal/geo"
)

// Room statuses.
const (
	RoomInitializing = "initializing"
	RoomOpen         = "open"
	RoomPaused       = "paused"
	RoomEnded        = "ended"
	RoomError        = "error"
)

// Nation statuses.
const (
	NationActive   = "active"
	NationDefeated = "defeated"
	NationWinner   = "winner"
)

// Arrow types.
const (
	ArrowAttack = "attack"
	ArrowDefend = "defend"
)

// Player is a member of a room. Password is the per-room shared secret and
// is never serialized.
type Player struct {
	UserID   string            `json:"userId"`
	Password string            `json:"-"`
	Profile  map[string]string `json:"profile,omitempty"`
	JoinedAt time.Time         `json:"joined_at"`
}

// City is a named settlement on an owned cell.
type City struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// Structure is a built improvement on an owned cell.
type Structure struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Type string `json:"type"`
}

// ArrowOrder is a directed troop movement along a path of 8-connected cells.
// Progress tracks fractional advancement along the path.
type ArrowOrder struct {
	Type           string      `json:"type"`
	Path           []geo.Coord `json:"path"`
	RemainingPower float64     `json:"remainingPower"`
	Progress       float64     `json:"currentIndex"`
	Percent        float64     `json:"percent"`
}

// Nation is a player's in-game entity. Territory is the authoritative set;
// the wire representation is produced at broadcast time.
type Nation struct {
	Owner         string             `json:"owner"`
	StartingCell  geo.Coord          `json:"startingCell"`
	Territory     geo.Set            `json:"-"`
	Population    float64            `json:"population"`
	NationalWill  int                `json:"nationalWill"`
	Resources     map[string]float64 `json:"resources"`
	Cities        []City             `json:"cities"`
	Structures    []Structure        `json:"structures"`
	Arrows        []ArrowOrder       `json:"arrowOrders"`
	TroopTarget   float64            `json:"troopTarget"`
	AttackPercent float64            `json:"attackPercent"`
	Status        string             `json:"status"`
	AutoCity      bool               `json:"auto_city"`
}

// Clone returns a deep copy except Territory, which is shared; callers that
// mutate territory must replace it with a cloned set first.
func (n *Nation) Clone() *Nation {
	cp := *n
	cp.Resources = make(map[string]float64, len(n.Resources))
	for k, v := range n.Resources {
		cp.Resources[k] = v
	}
	cp.Cities = append([]City(nil), n.Cities...)
	cp.Structures = append([]Structure(nil), n.Structures...)
	cp.Arrows = make([]ArrowOrder, len(n.Arrows))
	for i, a := range n.Arrows {
		cp.Arrows[i] = a
		cp.Arrows[i].Path = append([]geo.Coord(nil), a.Path...)
	}
	return &cp
}

// Room is the durable record of a game room.
type Room struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	MapID        string          `json:"map_id"`
	CreatorID    string          `json:"creator_id"`
	Status       string          `json:"status"`
	Seed         uint32          `json:"seed"`
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	Config       json.RawMessage `json:"config,omitempty"`
	Players      []Player        `json:"players,omitempty"`
	TickCount    int64           `json:"tick_count"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActivity time.Time       `json:"last_activity"`
}

// Delta is the paired add/sub coordinate sets that transform a subscriber's
// prior territory snapshot into the current one (apply sub, then add).
type Delta struct {
	Add geo.XYLists `json:"add"`
	Sub geo.XYLists `json:"sub"`
}

// NationPayload is the per-nation slice of a state broadcast. Exactly one
// of Territory (full sync) or TerritoryDelta is set.
type NationPayload struct {
	Owner          string             `json:"owner"`
	Status         string             `json:"status"`
	Population     float64            `json:"population"`
	NationalWill   int                `json:"nationalWill"`
	Resources      map[string]float64 `json:"resources"`
	Cities         []City             `json:"cities"`
	Structures     []Structure        `json:"structures"`
	Arrows         []ArrowOrder       `json:"arrowOrders"`
	Territory      *geo.XYLists       `json:"territory,omitempty"`
	TerritoryDelta *Delta             `json:"territoryDeltaForClient,omitempty"`
	PackedDelta    []byte             `json:"packedDelta,omitempty"`
}

// GameStatePayload is the gameState member of a state broadcast.
type GameStatePayload struct {
	Nations       []NationPayload `json:"nations"`
	WinningNation *NationPayload  `json:"winningNation,omitempty"`
}

// StateMessage is the WS/HTTP state payload.
type StateMessage struct {
	Type            string           `json:"type"`
	TickCount       int64            `json:"tickCount"`
	RoomName        string           `json:"roomName"`
	RoomCreator     string           `json:"roomCreator"`
	RoomStatus      string           `json:"roomStatus"`
	Full            bool             `json:"full"`
	UsePackedDeltas bool             `json:"usePackedDeltas,omitempty"`
	GameState       GameStatePayload `json:"gameState"`
}
