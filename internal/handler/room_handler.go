package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/greylag/landgrab/server/internal/apperr"
	"github.com/greylag/landgrab/server/internal/service"
)

// RoomHandler handles room lifecycle and map endpoints.
type RoomHandler struct {
	rooms *service.RoomService
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateRoom handles POST /api/v1/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRoomParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.CreatorID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, userId and password are required")
		return
	}

	room, joinCode, err := h.rooms.CreateRoom(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"room":     room,
		"joinCode": joinCode,
	})
}

// ListRooms handles GET /api/v1/rooms
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListOpenRooms(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if rooms == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetRoom handles GET /api/v1/rooms/{id}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// JoinRoom handles POST /api/v1/rooms/{id}/join
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string            `json:"userId"`
		Password string            `json:"password"`
		JoinCode string            `json:"joinCode"`
		Profile  map[string]string `json:"profile,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "userId and password are required")
		return
	}

	if err := h.rooms.JoinRoom(r.Context(), r.PathValue("id"), req.JoinCode, req.UserID, req.Password, req.Profile); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// MapMetadata handles GET /api/v1/rooms/{id}/map/metadata
func (h *RoomHandler) MapMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.rooms.MapMetadata(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeRaw(w, meta)
}

// MapData handles GET /api/v1/rooms/{id}/map/data?startRow=N&endRow=M
func (h *RoomHandler) MapData(w http.ResponseWriter, r *http.Request) {
	startRow, err := strconv.Atoi(r.URL.Query().Get("startRow"))
	if err != nil {
		writeAppError(w, apperr.New(apperr.InvalidInput, "startRow must be an integer"))
		return
	}
	endRow, err := strconv.Atoi(r.URL.Query().Get("endRow"))
	if err != nil {
		writeAppError(w, apperr.New(apperr.InvalidInput, "endRow must be an integer"))
		return
	}

	chunk, err := h.rooms.MapData(r.Context(), r.PathValue("id"), startRow, endRow)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeRaw(w, chunk)
}

// writeRaw writes a pre-encoded JSON document.
func writeRaw(w http.ResponseWriter, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
