package handler

import (
	"context"
	"net/http"

	"github.com/greylag/landgrab/server/internal/geo"
	"github.com/greylag/landgrab/server/internal/service"
	"github.com/greylag/landgrab/server/internal/sim"
)

// CommandHandler turns player HTTP requests into simulation commands. All
// command bodies carry the room credentials; the service validates them
// before anything reaches a room's queue.
type CommandHandler struct {
	rooms *service.RoomService
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(rooms *service.RoomService) *CommandHandler {
	return &CommandHandler{rooms: rooms}
}

// creds is the common credential envelope on every command body.
type creds struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

// GetState handles GET /api/v1/rooms/{id}/state
func (h *CommandHandler) GetState(w http.ResponseWriter, r *http.Request) {
	_, frame, err := h.rooms.FullFrame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeRaw(w, frame)
}

// Found handles POST /api/v1/rooms/{id}/found
func (h *CommandHandler) Found(w http.ResponseWriter, r *http.Request) {
	var req struct {
		creds
		X int `json:"x"`
		Y int `json:"y"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, req.creds, sim.Command{
		Kind: sim.CmdFound,
		X:    req.X,
		Y:    req.Y,
	})
}

// BuildCity handles POST /api/v1/rooms/{id}/cities
func (h *CommandHandler) BuildCity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		creds
		X    int    `json:"x"`
		Y    int    `json:"y"`
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, req.creds, sim.Command{
		Kind:     sim.CmdBuildCity,
		X:        req.X,
		Y:        req.Y,
		CityType: req.Type,
		CityName: req.Name,
	})
}

// BuildStructure handles POST /api/v1/rooms/{id}/structures
func (h *CommandHandler) BuildStructure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		creds
		X    int    `json:"x"`
		Y    int    `json:"y"`
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, req.creds, sim.Command{
		Kind:          sim.CmdBuildStructure,
		X:             req.X,
		Y:             req.Y,
		StructureType: req.Type,
	})
}

// Arrow handles POST /api/v1/rooms/{id}/arrows
func (h *CommandHandler) Arrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		creds
		Type    string      `json:"type"` // "attack" or "defend"
		Path    []geo.Coord `json:"path"`
		Percent float64     `json:"percent"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, req.creds, sim.Command{
		Kind:      sim.CmdArrow,
		ArrowType: req.Type,
		Path:      req.Path,
		Percent:   req.Percent,
	})
}

// ClearArrow handles DELETE /api/v1/rooms/{id}/arrows
func (h *CommandHandler) ClearArrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		creds
		Type string `json:"type"` // empty clears all
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, req.creds, sim.Command{
		Kind:      sim.CmdClearArrow,
		ArrowType: req.Type,
	})
}

// Settings handles PATCH /api/v1/rooms/{id}/settings
func (h *CommandHandler) Settings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		creds
		TroopTarget   *float64 `json:"troopTarget,omitempty"`
		AttackPercent *float64 `json:"attackPercent,omitempty"`
		AutoCity      *bool    `json:"autoCity,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, req.creds, sim.Command{
		Kind:          sim.CmdSettings,
		TroopTarget:   req.TroopTarget,
		AttackPercent: req.AttackPercent,
		AutoCity:      req.AutoCity,
	})
}

// Quit handles POST /api/v1/rooms/{id}/quit
func (h *CommandHandler) Quit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		creds
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, req.creds, sim.Command{Kind: sim.CmdQuit})
}

// Pause handles POST /api/v1/rooms/{id}/pause (creator only)
func (h *CommandHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.rooms.PauseRoom)
}

// Unpause handles POST /api/v1/rooms/{id}/unpause (creator only)
func (h *CommandHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.rooms.UnpauseRoom)
}

// End handles POST /api/v1/rooms/{id}/end (creator only)
func (h *CommandHandler) End(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.rooms.EndRoom)
}

func (h *CommandHandler) submit(w http.ResponseWriter, r *http.Request, c creds, cmd sim.Command) {
	if c.UserID == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "userId and password are required")
		return
	}
	cmd.UserID = c.UserID
	if err := h.rooms.SubmitCommand(r.Context(), r.PathValue("id"), c.UserID, c.Password, cmd); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *CommandHandler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, roomID, userID, password string) error) {
	var req struct {
		creds
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "userId and password are required")
		return
	}
	if err := fn(r.Context(), r.PathValue("id"), req.UserID, req.Password); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
