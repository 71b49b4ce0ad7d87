// Package playback implements the playback-session resolution engine: given a
// selected library item it decides what to stream (direct, transcoded, HLS),
// picks the track combination, builds the media URL and publishes the
// resulting session state for the UI to observe.
package playback

import (
	"errors"
	"fmt"

	"github.com/driftworks/playdeck/internal/jellyfin"
)

var (
	// ErrRetrieval indicates a remote fetch failed (network or HTTP failure).
	ErrRetrieval = errors.New("failed to retrieve item from server")

	// ErrNotFound indicates the remote call succeeded but returned no item.
	ErrNotFound = errors.New("item not found")

	// ErrQueueBounds indicates an advance or explicit index outside the queue.
	ErrQueueBounds = errors.New("queue index out of bounds")

	// ErrTrackNotFound indicates a track re-selection referenced an index
	// absent from the known track list.
	ErrTrackNotFound = errors.New("track not found")
)

// NoSubtitleTrack is the sentinel track index meaning subtitles are off.
const NoSubtitleTrack = -1

// SubtitleInfo is the chosen subtitle track plus the full candidate list,
// kept so a later re-selection does not need another media-info fetch.
type SubtitleInfo struct {
	Enabled     bool
	TrackIndex  int
	Format      string
	DeliveryURL string
	AllTracks   []jellyfin.MediaStream
}

// SourceInfo summarizes the chosen media source of a session.
type SourceInfo struct {
	ID         string
	Container  string
	VideoTrack int
	AudioTrack int
	Subtitle   SubtitleInfo
}

// Session is the full state of one playback session. Treated as an immutable
// snapshot: partial updates copy the session, modify the copy and replace it
// wholesale so readers never observe a half-built state.
type Session struct {
	ItemName      string
	EpisodeTitle  string
	Source        SourceInfo
	StreamURL     string
	UserID        string
	StartPosition int64
	Duration      int64
	Item          *jellyfin.BaseItem
	PlaySessionID string
}

// DisplayName returns the item name as shown in the player title bar:
// "{SeriesName} S{Season}:E{Episode} {Name}" for episodes, the plain name
// otherwise.
func (s Session) DisplayName() string {
	if s.EpisodeTitle == "" {
		return s.ItemName
	}
	return s.ItemName + " " + s.EpisodeTitle
}

// episodeTitle formats the SxEy title suffix for an episode. Missing season
// or episode numbers render as 0 rather than being dropped.
func episodeTitle(item *jellyfin.BaseItem) string {
	season := 0
	if item.ParentIndexNumber != nil {
		season = *item.ParentIndexNumber
	}
	episode := 0
	if item.IndexNumber != nil {
		episode = *item.IndexNumber
	}
	return fmt.Sprintf("S%d:E%d %s", season, episode, item.Name)
}
