package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/driftworks/playdeck/internal/config"
	"github.com/driftworks/playdeck/internal/database"
	"github.com/driftworks/playdeck/internal/library"
	"github.com/driftworks/playdeck/internal/playback"
	"github.com/driftworks/playdeck/internal/web/sse"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *database.DB
	loader    *config.Loader
	resolver  *playback.Resolver
	store     *playback.Store
	queue     *playback.Queue
	loading   *playback.LoadingStore
	library   *library.Cache
	sseBroker *sse.Broker
	userID    string
}

// New creates a new Handlers instance. userID is the authenticated media
// server user playback requests run as unless a request overrides it.
func New(db *database.DB, loader *config.Loader, resolver *playback.Resolver, store *playback.Store, queue *playback.Queue, loading *playback.LoadingStore, libraryCache *library.Cache, broker *sse.Broker, userID string) *Handlers {
	return &Handlers{
		db:        db,
		loader:    loader,
		resolver:  resolver,
		store:     store,
		queue:     queue,
		loading:   loading,
		library:   libraryCache,
		sseBroker: broker,
		userID:    userID,
	}
}

// respondJSON writes v as a JSON response
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// decodeJSON parses the request body into v
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
