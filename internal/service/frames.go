package service

import (
	"encoding/json"

	"github.com/greylag/landgrab/server/internal/geo"
	"github.com/greylag/landgrab/server/internal/model"
	"github.com/greylag/landgrab/server/internal/sim"
)

// Frames carries the pre-encoded broadcast payloads for one tick. Full is
// always present; Delta is nil on full-sync ticks, and Packed is only built
// when some subscriber negotiated the packed delta encoding.
type Frames struct {
	Tick   int64
	Full   []byte
	Delta  []byte
	Packed []byte
}

// Broadcaster is what the service needs from the subscription hub.
type Broadcaster interface {
	Broadcast(roomID string, f Frames)
	NeedsPacked(roomID string) bool
	MarkRoomFull(roomID string)
	SubscriberCount(roomID string) int
}

// nationBase fills the per-nation payload fields shared by every encoding.
func nationBase(n *model.Nation) model.NationPayload {
	return model.NationPayload{
		Owner:        n.Owner,
		Status:       n.Status,
		Population:   n.Population,
		NationalWill: n.NationalWill,
		Resources:    n.Resources,
		Cities:       n.Cities,
		Structures:   n.Structures,
		Arrows:       n.Arrows,
	}
}

// buildFullMessage encodes a complete state snapshot with full territories.
func buildFullMessage(room *model.Room, st *sim.State) model.StateMessage {
	nations := st.NationList()
	payloads := make([]model.NationPayload, len(nations))
	var winning *model.NationPayload
	for i, n := range nations {
		p := nationBase(n)
		t := n.Territory.ToXY()
		p.Territory = &t
		payloads[i] = p
		if st.Winner != "" && n.Owner == st.Winner {
			winning = &payloads[i]
		}
	}
	return model.StateMessage{
		Type:        "state",
		TickCount:   st.Tick,
		RoomName:    room.Name,
		RoomCreator: room.CreatorID,
		RoomStatus:  st.Status,
		Full:        true,
		GameState:   model.GameStatePayload{Nations: payloads, WinningNation: winning},
	}
}

// buildDeltaMessage encodes the state with per-nation territory deltas
// against the previous broadcast. Nations unseen at the previous broadcast
// get their whole territory as adds.
func buildDeltaMessage(room *model.Room, st *sim.State, last map[string]geo.Set, packed bool) model.StateMessage {
	nations := st.NationList()
	payloads := make([]model.NationPayload, len(nations))
	var winning *model.NationPayload
	for i, n := range nations {
		p := nationBase(n)
		prev := last[n.Owner]
		if prev == nil {
			prev = geo.NewSet()
		}
		d := sim.Diff(prev, n.Territory)
		if packed {
			p.PackedDelta = sim.PackDelta(d)
		} else {
			p.TerritoryDelta = &d
		}
		payloads[i] = p
		if st.Winner != "" && n.Owner == st.Winner {
			winning = &payloads[i]
		}
	}
	return model.StateMessage{
		Type:            "state",
		TickCount:       st.Tick,
		RoomName:        room.Name,
		RoomCreator:     room.CreatorID,
		RoomStatus:      st.Status,
		UsePackedDeltas: packed,
		GameState:       model.GameStatePayload{Nations: payloads, WinningNation: winning},
	}
}

// buildFrames encodes the broadcast payloads for one published state and
// returns the new per-nation territory baseline. Territory sets on a
// published state are immutable, so the baseline holds references.
func buildFrames(room *model.Room, st *sim.State, last map[string]geo.Set, forceFull, needPacked bool) (Frames, map[string]geo.Set, error) {
	f := Frames{Tick: st.Tick}

	full, err := json.Marshal(buildFullMessage(room, st))
	if err != nil {
		return Frames{}, nil, err
	}
	f.Full = full

	if !forceFull && last != nil {
		delta, err := json.Marshal(buildDeltaMessage(room, st, last, false))
		if err != nil {
			return Frames{}, nil, err
		}
		f.Delta = delta
		if needPacked {
			packed, err := json.Marshal(buildDeltaMessage(room, st, last, true))
			if err != nil {
				return Frames{}, nil, err
			}
			f.Packed = packed
		}
	}

	next := make(map[string]geo.Set, len(st.Nations))
	for owner, n := range st.Nations {
		next[owner] = n.Territory
	}
	return f, next, nil
}
