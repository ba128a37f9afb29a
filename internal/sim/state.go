package sim

import (
	"sort"

	"github.com/greylag/landgrab/server/internal/geo"
	"github.com/greylag/landgrab/server/internal/model"
)

// State is the authoritative in-memory state of one room. It is written
// only by the room's scheduler; everyone else reads published snapshots.
// Owners is a derived cell-ownership index kept consistent with the
// nations' territory sets.
type State struct {
	RoomID  string
	Tick    int64
	Status  string
	Creator string
	Players []model.Player
	Nations map[string]*model.Nation
	Owners  map[uint32]string
	Winner  string
}

// NewState creates the initial state of a freshly created room.
func NewState(roomID, creator string, players []model.Player) *State {
	return &State{
		RoomID:  roomID,
		Status:  model.RoomOpen,
		Creator: creator,
		Players: players,
		Nations: make(map[string]*model.Nation),
		Owners:  make(map[uint32]string),
	}
}

// Clone returns a copy safe for the updater to mutate. Nation structs are
// deep-copied except territory sets, which are cloned lazily on first write
// by the updater (copy-on-write).
func (s *State) Clone() *State {
	cp := &State{
		RoomID:  s.RoomID,
		Tick:    s.Tick,
		Status:  s.Status,
		Creator: s.Creator,
		Players: append([]model.Player(nil), s.Players...),
		Nations: make(map[string]*model.Nation, len(s.Nations)),
		Owners:  make(map[uint32]string, len(s.Owners)),
		Winner:  s.Winner,
	}
	for owner, n := range s.Nations {
		cp.Nations[owner] = n.Clone()
	}
	for p, owner := range s.Owners {
		cp.Owners[p] = owner
	}
	return cp
}

// RebuildTerritories reconstructs each nation's territory set from the
// Owners index. Territory sets are not serialized; a snapshot restored from
// storage calls this before use.
func (s *State) RebuildTerritories() {
	for _, n := range s.Nations {
		n.Territory = geo.NewSet()
	}
	for p, owner := range s.Owners {
		if n := s.Nations[owner]; n != nil {
			n.Territory.AddPacked(p)
		}
	}
}

// NationList returns the nations in ascending owner order, the stable
// processing order used for all per-tick iteration and tie-breaks.
func (s *State) NationList() []*model.Nation {
	owners := make([]string, 0, len(s.Nations))
	for o := range s.Nations {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	out := make([]*model.Nation, len(owners))
	for i, o := range owners {
		out[i] = s.Nations[o]
	}
	return out
}

// OwnerAt returns the owner of cell (x,y), or "" if unowned.
func (s *State) OwnerAt(x, y int) string {
	return s.Owners[geo.Pack(x, y)]
}

// PlayerByID returns the player with the given id, or nil.
func (s *State) PlayerByID(userID string) *model.Player {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}
