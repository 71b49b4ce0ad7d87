package handlers

import (
	"net/http"
	"strconv"
)

type progressRequest struct {
	ItemID        string `json:"itemId"`
	PositionTicks int64  `json:"positionTicks"`
	UserID        string `json:"userId,omitempty"`
}

// PlaybackProgress persists the current playhead so a later play of the same
// item resumes where it left off.
func (h *Handlers) PlaybackProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	if req.PositionTicks < 0 {
		respondError(w, http.StatusBadRequest, "positionTicks must not be negative")
		return
	}

	if err := h.db.UpdatePosition(req.ItemID, h.userOrDefault(req.UserID), req.PositionTicks); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record progress")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HistoryRecent returns the most recently watched items.
func (h *Handlers) HistoryRecent(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	states, err := h.db.RecentWatchStates(h.userID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load watch history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"items": states})
}
