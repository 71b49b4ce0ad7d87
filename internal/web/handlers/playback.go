package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/driftworks/playdeck/internal/config"
	"github.com/driftworks/playdeck/internal/jellyfin"
	"github.com/driftworks/playdeck/internal/playback"
	"github.com/driftworks/playdeck/internal/web/sse"
)

// playRequest is the body of POST /api/playback/play.
type playRequest struct {
	ItemID   string `json:"itemId"`
	ItemType string `json:"itemType"`
	UserID   string `json:"userId,omitempty"`
}

// queueRequest is the body of POST /api/playback/queue. Items carry full
// media source data because the action that built the queue (card list,
// episode run) already fetched them.
type queueRequest struct {
	Items      []jellyfin.BaseItem `json:"items"`
	StartIndex int                 `json:"startIndex"`
	UserID     string              `json:"userId,omitempty"`
}

type jumpRequest struct {
	Index  int    `json:"index"`
	UserID string `json:"userId,omitempty"`
}

type subtitleRequest struct {
	TrackIndex int `json:"trackIndex"`
}

// sessionResponse is the UI-facing view of the playback session.
type sessionResponse struct {
	ItemName      string             `json:"itemName"`
	EpisodeTitle  string             `json:"episodeTitle,omitempty"`
	DisplayName   string             `json:"displayName"`
	StreamURL     string             `json:"streamUrl"`
	UserID        string             `json:"userId"`
	StartPosition int64              `json:"startPosition"`
	Duration      int64              `json:"duration"`
	PlaySessionID string             `json:"playSessionId,omitempty"`
	Source        sourceResponse     `json:"mediaSource"`
	Item          *jellyfin.BaseItem `json:"item,omitempty"`
	QueueIndex    int                `json:"queueIndex"`
	QueueLength   int                `json:"queueLength"`
	Loading       bool               `json:"loading"`
}

type sourceResponse struct {
	ID         string                 `json:"id"`
	Container  string                 `json:"container"`
	VideoTrack int                    `json:"videoTrack"`
	AudioTrack int                    `json:"audioTrack"`
	Subtitle   subtitleResponse       `json:"subtitle"`
	AllTracks  []jellyfin.MediaStream `json:"allSubtitleTracks,omitempty"`
}

type subtitleResponse struct {
	Enabled     bool   `json:"enabled"`
	TrackIndex  int    `json:"trackIndex"`
	Format      string `json:"format,omitempty"`
	DeliveryURL string `json:"deliveryUrl,omitempty"`
}

// PlaybackPlay resolves and plays a single item.
func (h *Handlers) PlaybackPlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "itemId is required")
		return
	}

	ctx, cancel := h.resolveContext(r)
	defer cancel()

	err := h.resolver.ResolveAndPlay(ctx, playback.PlayRequest{
		ItemID:   req.ItemID,
		UserID:   h.userOrDefault(req.UserID),
		ItemType: req.ItemType,
	})
	h.finishResolution(w, err)
}

// PlaybackQueue replaces the play queue wholesale and starts playback at
// startIndex.
func (h *Handlers) PlaybackQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items is required")
		return
	}
	if req.StartIndex < 0 || req.StartIndex >= len(req.Items) {
		respondError(w, http.StatusBadRequest, "startIndex out of range")
		return
	}

	start := req.Items[req.StartIndex]

	ctx, cancel := h.resolveContext(r)
	defer cancel()

	err := h.resolver.ResolveAndPlay(ctx, playback.PlayRequest{
		ItemID:     start.ID,
		UserID:     h.userOrDefault(req.UserID),
		ItemType:   start.Type,
		Queue:      req.Items,
		QueueIndex: req.StartIndex,
	})
	if err == nil {
		h.broadcastQueue()
	}
	h.finishResolution(w, err)
}

// PlaybackNext advances to the next queue item.
func (h *Handlers) PlaybackNext(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.resolveContext(r)
	defer cancel()

	err := h.resolver.ResolveNext(ctx, h.userID)
	if err == nil {
		h.broadcastQueue()
	}
	h.finishResolution(w, err)
}

// PlaybackPrevious steps back to the previous queue item.
func (h *Handlers) PlaybackPrevious(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.resolveContext(r)
	defer cancel()

	err := h.resolver.ResolvePrevious(ctx, h.userID)
	if err == nil {
		h.broadcastQueue()
	}
	h.finishResolution(w, err)
}

// PlaybackJump plays the queue item at an absolute index.
func (h *Handlers) PlaybackJump(w http.ResponseWriter, r *http.Request) {
	var req jumpRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := h.resolveContext(r)
	defer cancel()

	err := h.resolver.ResolveIndex(ctx, req.Index, h.userOrDefault(req.UserID))
	if err == nil {
		h.broadcastQueue()
	}
	h.finishResolution(w, err)
}

// PlaybackSubtitles re-selects the subtitle track for the current session.
func (h *Handlers) PlaybackSubtitles(w http.ResponseWriter, r *http.Request) {
	var req subtitleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.resolver.ChangeSubtitleTrack(req.TrackIndex); err != nil {
		// Unknown track degrades to subtitles-off; report it but the
		// session was still committed in that state.
		respondJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"error":    "track not found, subtitles disabled",
			"disabled": true,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// PlaybackSession returns the current session.
func (h *Handlers) PlaybackSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sessionView(h.store.Get()))
}

// PlaybackQueueState returns the queued items and pointer.
func (h *Handlers) PlaybackQueueState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"items":        h.queue.Items(),
		"currentIndex": h.queue.CurrentIndex(),
	})
}

// finishResolution maps resolver errors to HTTP statuses and emits the
// playback_error event the UI surfaces as a toast. On success the UI has
// already received session_changed via the store subscription; the response
// just confirms it may navigate.
func (h *Handlers) finishResolution(w http.ResponseWriter, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	log.Error().Err(err).Msg("Playback resolution failed")
	h.sseBroker.Broadcast(sse.Event{
		Type: sse.EventPlaybackError,
		Data: map[string]any{"error": err.Error()},
	})

	switch {
	case errors.Is(err, playback.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, playback.ErrQueueBounds):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, playback.ErrRetrieval):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) broadcastQueue() {
	h.sseBroker.Broadcast(sse.Event{
		Type: sse.EventQueueChanged,
		Data: map[string]any{
			"currentIndex": h.queue.CurrentIndex(),
			"length":       h.queue.Len(),
		},
	})
}

func (h *Handlers) resolveContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), config.GetTimeouts().Resolve)
}

func (h *Handlers) userOrDefault(userID string) string {
	if userID != "" {
		return userID
	}
	return h.userID
}

func (h *Handlers) sessionView(s playback.Session) sessionResponse {
	return sessionResponse{
		ItemName:      s.ItemName,
		EpisodeTitle:  s.EpisodeTitle,
		DisplayName:   s.DisplayName(),
		StreamURL:     s.StreamURL,
		UserID:        s.UserID,
		StartPosition: s.StartPosition,
		Duration:      s.Duration,
		PlaySessionID: s.PlaySessionID,
		Source: sourceResponse{
			ID:         s.Source.ID,
			Container:  s.Source.Container,
			VideoTrack: s.Source.VideoTrack,
			AudioTrack: s.Source.AudioTrack,
			Subtitle: subtitleResponse{
				Enabled:     s.Source.Subtitle.Enabled,
				TrackIndex:  s.Source.Subtitle.TrackIndex,
				Format:      s.Source.Subtitle.Format,
				DeliveryURL: s.Source.Subtitle.DeliveryURL,
			},
			AllTracks: s.Source.Subtitle.AllTracks,
		},
		Item:        s.Item,
		QueueIndex:  h.queue.CurrentIndex(),
		QueueLength: h.queue.Len(),
		Loading:     h.loading.Get(),
	}
}
