package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/driftworks/playdeck/internal/jellyfin"
)

// MediaClient defines the remote media-server operations the resolver needs.
type MediaClient interface {
	Item(ctx context.Context, itemID, userID string) (*jellyfin.BaseItem, error)
	Episodes(ctx context.Context, seriesID string, limit, startIndex int) ([]jellyfin.BaseItem, error)
	NegotiatePlayback(ctx context.Context, req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error)
	BaseURL() string
	AccessToken() string
	DeviceID() string
}

// History is the local resume-position mirror: resolved playback starts are
// recorded into it, and it supplies the start position when the server sends
// an item without user data. Implementations must tolerate concurrent calls.
type History interface {
	RecordPlay(itemID, userID string, positionTicks, durationTicks int64) error
	LastPosition(itemID, userID string) (int64, error)
}

// PlayRequest describes a user-initiated play action.
type PlayRequest struct {
	ItemID   string
	UserID   string
	ItemType string

	// Queue and QueueIndex attach the session to the queue built by the
	// originating action (card list, episode run). When Queue is nil the
	// played item becomes a single-entry queue.
	Queue      []jellyfin.BaseItem
	QueueIndex int

	// StartPositionTicks, when non-nil, overrides the resume position.
	// Remote play commands carry an explicit seek target.
	StartPositionTicks *int64
}

// Resolver is the stateless per-request pipeline that turns a play action
// into a committed playback session. It holds no session state of its own;
// the store and queue own theirs.
type Resolver struct {
	client  MediaClient
	store   *Store
	queue   *Queue
	loading *LoadingStore
	history History

	// started is a monotonic request generation: a resolution commits only
	// if no newer request has started, so back-to-back requests settle
	// deterministically on the newest one.
	started  atomic.Uint64
	commitMu sync.Mutex
}

// NewResolver wires the resolver to its collaborators. history may be nil.
func NewResolver(client MediaClient, store *Store, queue *Queue, loading *LoadingStore, history History) *Resolver {
	return &Resolver{
		client:  client,
		store:   store,
		queue:   queue,
		loading: loading,
		history: history,
	}
}

// ResolveAndPlay fetches the requested item, selects its tracks and playback
// method, and commits the resulting session. Errors abort without any store
// commit; the loading indicator is cleared on every path.
func (r *Resolver) ResolveAndPlay(ctx context.Context, req PlayRequest) error {
	gen := r.started.Add(1)
	r.loading.Set(true)
	defer r.loading.Set(false)

	item, err := r.fetchItem(ctx, req)
	if err != nil {
		return err
	}

	return r.resolveItem(ctx, gen, item, req.UserID, req.StartPositionTicks, func() {
		if req.Queue != nil {
			r.queue.Set(req.Queue, req.QueueIndex)
		} else {
			r.queue.Set([]jellyfin.BaseItem{*item}, 0)
		}
	})
}

// ResolveNext plays the next queue item.
func (r *Resolver) ResolveNext(ctx context.Context, userID string) error {
	return r.resolveFromQueue(ctx, r.queue.CurrentIndex()+1, userID)
}

// ResolvePrevious plays the previous queue item.
func (r *Resolver) ResolvePrevious(ctx context.Context, userID string) error {
	return r.resolveFromQueue(ctx, r.queue.CurrentIndex()-1, userID)
}

// ResolveIndex plays the queue item at an absolute index.
func (r *Resolver) ResolveIndex(ctx context.Context, index int, userID string) error {
	return r.resolveFromQueue(ctx, index, userID)
}

// resolveFromQueue looks up the target queue item and resolves it. An index
// outside the queue is ErrQueueBounds and mutates nothing; there is no
// wrap-around, reaching the end stops playback progression.
func (r *Resolver) resolveFromQueue(ctx context.Context, index int, userID string) error {
	item, ok := r.queue.At(index)
	if !ok {
		return fmt.Errorf("%w: index %d, queue length %d", ErrQueueBounds, index, r.queue.Len())
	}

	gen := r.started.Add(1)
	r.loading.Set(true)
	defer r.loading.Set(false)

	return r.resolveItem(ctx, gen, &item, userID, nil, func() {
		r.queue.Advance(index)
	})
}

// ChangeSubtitleTrack re-selects a subtitle track from the current session's
// cached track list and commits it as a read-copy-replace of the session. An
// unknown index degrades to "no subtitle" and reports ErrTrackNotFound.
func (r *Resolver) ChangeSubtitleTrack(trackIndex int) error {
	current := r.store.Get()
	info, err := ChangeTrack(trackIndex, current.Source.Subtitle.AllTracks)
	r.store.Update(func(s *Session) {
		s.Source.Subtitle = info
	})
	return err
}

// fetchItem loads the playable item. A series container resolves to exactly
// one episode (the next unwatched); everything else is fetched by id.
func (r *Resolver) fetchItem(ctx context.Context, req PlayRequest) (*jellyfin.BaseItem, error) {
	if req.ItemType == jellyfin.ItemTypeSeries {
		episodes, err := r.client.Episodes(ctx, req.ItemID, 1, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
		}
		if len(episodes) == 0 {
			return nil, fmt.Errorf("%w: series %s has no episodes", ErrNotFound, req.ItemID)
		}
		return &episodes[0], nil
	}

	item, err := r.client.Item(ctx, req.ItemID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, req.ItemID)
	}
	return item, nil
}

// resolveItem runs the shared pipeline: pick tracks and method, build the
// URL, then commit session and queue together. updateQueue runs inside the
// commit so queue pointer and session always move as one.
func (r *Resolver) resolveItem(ctx context.Context, gen uint64, item *jellyfin.BaseItem, userID string, startOverride *int64, updateQueue func()) error {
	var session Session
	if item.Type == jellyfin.ItemTypeAudio {
		session = r.audioSession(item, userID, startOverride)
	} else {
		videoSession, err := r.videoSession(ctx, item, userID, startOverride)
		if err != nil {
			return err
		}
		session = videoSession
	}

	return r.commit(gen, session, updateQueue)
}

// audioSession builds a session for an audio item. Audio always
// direct-streams through the universal endpoint; no server negotiation.
func (r *Resolver) audioSession(item *jellyfin.BaseItem, userID string, startOverride *int64) Session {
	session := Session{
		ItemName:      item.Name,
		StreamURL:     AudioStreamURL(r.client.BaseURL(), item.ID, r.client.DeviceID(), userID, r.client.AccessToken()),
		UserID:        userID,
		StartPosition: r.startPosition(item, userID, startOverride),
		Duration:      item.RunTimeTicks,
		Item:          item,
		Source: SourceInfo{
			Subtitle: SubtitleInfo{Enabled: false, TrackIndex: NoSubtitleTrack},
		},
	}
	if len(item.MediaSources) > 0 {
		session.Source.ID = item.MediaSources[0].ID
		session.Source.Container = item.MediaSources[0].Container
	}
	return session
}

// videoSession negotiates playback with the server and builds the session.
// The negotiated source is honored in priority order: ready-made HLS stream,
// then server transcoding URL, then direct stream. The server rules on
// whether direct play is viable; the client never second-guesses it.
func (r *Resolver) videoSession(ctx context.Context, item *jellyfin.BaseItem, userID string, startOverride *int64) (Session, error) {
	if len(item.MediaSources) == 0 {
		return Session{}, fmt.Errorf("%w: item %s has no media sources", ErrNotFound, item.ID)
	}
	requested := item.MediaSources[0]
	startTicks := r.startPosition(item, userID, startOverride)

	info, err := r.client.NegotiatePlayback(ctx, jellyfin.PlaybackInfoRequest{
		ItemID:              item.ID,
		UserID:              userID,
		MediaSourceID:       requested.ID,
		AudioStreamIndex:    indexOrZero(requested.DefaultAudioStreamIndex),
		SubtitleStreamIndex: indexOrZero(requested.DefaultSubtitleStreamIndex),
		StartTimeTicks:      startTicks,
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	if len(info.MediaSources) == 0 {
		return Session{}, fmt.Errorf("%w: negotiation returned no media sources for item %s", ErrNotFound, item.ID)
	}
	source := info.MediaSources[0]

	subtitle := SelectDefaultSubtitle(&source)
	videoTrack, _ := source.FirstStreamIndex(jellyfin.StreamTypeVideo)
	audioTrack := indexOrZero(source.DefaultAudioStreamIndex)

	var streamURL string
	switch {
	case source.HLSStreamURL != "":
		streamURL = source.HLSStreamURL
	case source.SupportsTranscoding && source.TranscodingURL != "":
		streamURL = TranscodeURL(r.client.BaseURL(), source.TranscodingURL)
	default:
		streamURL = VideoStreamURL(StreamParams{
			BasePath:         r.client.BaseURL(),
			MediaSourceID:    source.ID,
			Container:        source.Container,
			DeviceID:         r.client.DeviceID(),
			AccessToken:      r.client.AccessToken(),
			Tag:              source.ETag,
			VideoStreamIndex: videoTrack,
			AudioStreamIndex: audioTrack,
			StartTicks:       startTicks,
		})
	}

	itemName := item.Name
	episode := ""
	if item.SeriesID != "" {
		itemName = item.SeriesName
		episode = episodeTitle(item)
	}

	return Session{
		ItemName:     itemName,
		EpisodeTitle: episode,
		Source: SourceInfo{
			ID:         source.ID,
			Container:  source.Container,
			VideoTrack: videoTrack,
			AudioTrack: audioTrack,
			Subtitle:   subtitle,
		},
		StreamURL:     streamURL,
		UserID:        userID,
		StartPosition: startTicks,
		Duration:      item.RunTimeTicks,
		Item:          item,
		PlaySessionID: info.PlaySessionID,
	}, nil
}

// commit publishes the session unless a newer request has started since this
// one. Queue pointer and session state move under one lock so readers never
// see them disagree.
func (r *Resolver) commit(gen uint64, session Session, updateQueue func()) error {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if r.started.Load() != gen {
		log.Debug().
			Str("item_name", session.DisplayName()).
			Uint64("generation", gen).
			Msg("Discarding stale resolution, newer request in flight")
		return nil
	}

	updateQueue()
	r.store.Set(session)

	if r.history != nil && session.Item != nil {
		if err := r.history.RecordPlay(session.Item.ID, session.UserID, session.StartPosition, session.Duration); err != nil {
			log.Warn().Err(err).Str("item_id", session.Item.ID).Msg("Failed to record playback history")
		}
	}

	log.Info().
		Str("item_name", session.DisplayName()).
		Str("play_session_id", session.PlaySessionID).
		Msg("Playback session committed")

	return nil
}

// startPosition decides where playback starts: an explicit override wins,
// then the server's user data, then the local watch-state mirror for items
// the server sends without user data.
func (r *Resolver) startPosition(item *jellyfin.BaseItem, userID string, override *int64) int64 {
	if override != nil {
		return *override
	}
	if item.UserData != nil {
		return item.ResumePositionTicks()
	}
	if r.history == nil {
		return 0
	}
	ticks, err := r.history.LastPosition(item.ID, userID)
	if err != nil {
		log.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to read local watch state")
		return 0
	}
	return ticks
}

func indexOrZero(idx *int) int {
	if idx == nil {
		return 0
	}
	return *idx
}
