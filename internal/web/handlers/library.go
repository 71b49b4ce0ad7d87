package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/driftworks/playdeck/internal/config"
)

// LibraryLatest returns the cached recently-added items.
func (h *Handlers) LibraryLatest(w http.ResponseWriter, r *http.Request) {
	items, fetchedAt := h.library.Items()

	var fetched *time.Time
	if !fetchedAt.IsZero() {
		fetched = &fetchedAt
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"fetchedAt": fetched,
	})
}

// LibraryRefresh forces a cache refresh from the media server.
func (h *Handlers) LibraryRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.GetTimeouts().HTTPClient)
	defer cancel()

	if err := h.library.Refresh(ctx); err != nil {
		respondError(w, http.StatusBadGateway, "failed to refresh library: "+err.Error())
		return
	}

	items, fetchedAt := h.library.Items()
	respondJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"fetchedAt": fetchedAt,
	})
}
