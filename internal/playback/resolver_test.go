package playback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/driftworks/playdeck/internal/jellyfin"
)

type fakeClient struct {
	items    map[string]*jellyfin.BaseItem
	episodes map[string][]jellyfin.BaseItem
	itemErr  error

	negotiate      func(req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error)
	negotiateCalls int
}

func (f *fakeClient) Item(ctx context.Context, itemID, userID string) (*jellyfin.BaseItem, error) {
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	return f.items[itemID], nil
}

func (f *fakeClient) Episodes(ctx context.Context, seriesID string, limit, startIndex int) ([]jellyfin.BaseItem, error) {
	eps := f.episodes[seriesID]
	if limit < len(eps) {
		eps = eps[:limit]
	}
	return eps, nil
}

func (f *fakeClient) NegotiatePlayback(ctx context.Context, req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error) {
	f.negotiateCalls++
	if f.negotiate != nil {
		return f.negotiate(req)
	}
	return &jellyfin.PlaybackInfoResponse{
		PlaySessionID: "ps-" + req.ItemID,
		MediaSources: []jellyfin.MediaSource{{
			ID:        "src-" + req.ItemID,
			Container: "mkv",
			MediaStreams: []jellyfin.MediaStream{
				{Index: 0, Type: jellyfin.StreamTypeVideo},
				{Index: 1, Type: jellyfin.StreamTypeAudio},
			},
		}},
	}, nil
}

func (f *fakeClient) BaseURL() string     { return "http://media.local:8096" }
func (f *fakeClient) AccessToken() string { return "secret" }
func (f *fakeClient) DeviceID() string    { return "dev-1" }

type fakeHistory struct {
	itemIDs   []string
	positions map[string]int64
	err       error
}

func (f *fakeHistory) RecordPlay(itemID, userID string, positionTicks, durationTicks int64) error {
	f.itemIDs = append(f.itemIDs, itemID)
	if f.positions == nil {
		f.positions = make(map[string]int64)
	}
	f.positions[itemID] = positionTicks
	return f.err
}

func (f *fakeHistory) LastPosition(itemID, userID string) (int64, error) {
	return f.positions[itemID], f.err
}

func movieItem(id, name string) *jellyfin.BaseItem {
	return &jellyfin.BaseItem{
		ID:           id,
		Name:         name,
		Type:         jellyfin.ItemTypeMovie,
		RunTimeTicks: 72_000_000_000,
		MediaSources: []jellyfin.MediaSource{{ID: "src-" + id, Container: "mkv"}},
	}
}

func newTestResolver(client MediaClient, history History) (*Resolver, *Store, *Queue, *LoadingStore) {
	store := NewStore()
	queue := NewQueue()
	loading := NewLoadingStore()
	return NewResolver(client, store, queue, loading, history), store, queue, loading
}

func TestResolveAndPlay_Movie(t *testing.T) {
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"m1": movieItem("m1", "The Movie")}}
	history := &fakeHistory{}
	resolver, store, queue, loading := newTestResolver(client, history)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "m1", UserID: "u1", ItemType: jellyfin.ItemTypeMovie}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	session := store.Get()
	if session.DisplayName() != "The Movie" {
		t.Fatalf("unexpected display name %q", session.DisplayName())
	}
	if !strings.Contains(session.StreamURL, "/Videos/src-m1/stream.mkv") {
		t.Fatalf("unexpected stream url %q", session.StreamURL)
	}
	if session.PlaySessionID != "ps-m1" {
		t.Fatalf("unexpected play session id %q", session.PlaySessionID)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected single-entry queue, got %d", queue.Len())
	}
	if loading.Get() {
		t.Fatal("expected loading cleared after resolution")
	}
	if len(history.itemIDs) != 1 || history.itemIDs[0] != "m1" {
		t.Fatalf("expected history record for m1, got %v", history.itemIDs)
	}
}

func TestResolveAndPlay_ResumesFromLocalWatchState(t *testing.T) {
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"m1": movieItem("m1", "The Movie")}}
	var negotiatedStart int64
	client.negotiate = func(req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error) {
		negotiatedStart = req.StartTimeTicks
		return &jellyfin.PlaybackInfoResponse{
			PlaySessionID: "ps-m1",
			MediaSources:  []jellyfin.MediaSource{{ID: "src-m1", Container: "mkv"}},
		}, nil
	}
	history := &fakeHistory{}
	if err := history.RecordPlay("m1", "u1", 5_000_000_000, 72_000_000_000); err != nil {
		t.Fatalf("RecordPlay returned error: %v", err)
	}
	resolver, store, _, _ := newTestResolver(client, history)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "m1", UserID: "u1"}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if got := store.Get().StartPosition; got != 5_000_000_000 {
		t.Fatalf("StartPosition = %d, want 5000000000", got)
	}
	if negotiatedStart != 5_000_000_000 {
		t.Fatalf("negotiated StartTimeTicks = %d, want 5000000000", negotiatedStart)
	}
}

func TestResolveAndPlay_ServerResumeWinsOverLocal(t *testing.T) {
	item := movieItem("m1", "The Movie")
	item.UserData = &jellyfin.UserData{PlaybackPositionTicks: 3_000_000_000}
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"m1": item}}
	history := &fakeHistory{positions: map[string]int64{"m1": 5_000_000_000}}
	resolver, store, _, _ := newTestResolver(client, history)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "m1", UserID: "u1"}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if got := store.Get().StartPosition; got != 3_000_000_000 {
		t.Fatalf("StartPosition = %d, want 3000000000", got)
	}
}

func TestResolveAndPlay_ExplicitStartOverride(t *testing.T) {
	item := movieItem("m1", "The Movie")
	item.UserData = &jellyfin.UserData{PlaybackPositionTicks: 3_000_000_000}
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"m1": item}}
	resolver, store, _, _ := newTestResolver(client, nil)

	override := int64(7_000_000_000)
	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "m1", UserID: "u1", StartPositionTicks: &override}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if got := store.Get().StartPosition; got != 7_000_000_000 {
		t.Fatalf("StartPosition = %d, want 7000000000", got)
	}
}

func TestResolveAndPlay_EpisodeDisplayName(t *testing.T) {
	season, episode := 1, 2
	ep := &jellyfin.BaseItem{
		ID:                "e1",
		Name:              "Pilot",
		Type:              jellyfin.ItemTypeEpisode,
		SeriesID:          "s1",
		SeriesName:        "The Show",
		ParentIndexNumber: &season,
		IndexNumber:       &episode,
		MediaSources:      []jellyfin.MediaSource{{ID: "src-e1", Container: "mkv"}},
	}
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"e1": ep}}
	resolver, store, _, _ := newTestResolver(client, nil)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "e1", UserID: "u1"}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if got := store.Get().DisplayName(); got != "The Show S1:E2 Pilot" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestResolveAndPlay_EpisodeMissingNumbers(t *testing.T) {
	ep := &jellyfin.BaseItem{
		ID:           "e2",
		Name:         "Special",
		Type:         jellyfin.ItemTypeEpisode,
		SeriesID:     "s1",
		SeriesName:   "The Show",
		MediaSources: []jellyfin.MediaSource{{ID: "src-e2", Container: "mkv"}},
	}
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"e2": ep}}
	resolver, store, _, _ := newTestResolver(client, nil)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "e2", UserID: "u1"}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	// Missing season/episode numbers render as zero, not dropped
	if got := store.Get().DisplayName(); got != "The Show S0:E0 Special" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestResolveAndPlay_SeriesResolvesFirstEpisode(t *testing.T) {
	ep := jellyfin.BaseItem{
		ID:           "e1",
		Name:         "Pilot",
		Type:         jellyfin.ItemTypeEpisode,
		SeriesID:     "s1",
		SeriesName:   "The Show",
		MediaSources: []jellyfin.MediaSource{{ID: "src-e1", Container: "mkv"}},
	}
	client := &fakeClient{episodes: map[string][]jellyfin.BaseItem{"s1": {ep}}}
	resolver, store, _, _ := newTestResolver(client, nil)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "s1", UserID: "u1", ItemType: jellyfin.ItemTypeSeries}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if got := store.Get().Item.ID; got != "e1" {
		t.Fatalf("expected series to resolve to its episode, got item %q", got)
	}
}

func TestResolveAndPlay_SeriesWithoutEpisodes(t *testing.T) {
	client := &fakeClient{episodes: map[string][]jellyfin.BaseItem{}}
	resolver, _, _, _ := newTestResolver(client, nil)

	err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "s1", UserID: "u1", ItemType: jellyfin.ItemTypeSeries})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveAndPlay_StreamPriority(t *testing.T) {
	tests := []struct {
		name   string
		source jellyfin.MediaSource
		want   string
	}{
		{
			name: "hls wins over transcoding",
			source: jellyfin.MediaSource{
				ID:                  "src-m1",
				Container:           "mkv",
				HLSStreamURL:        "http://media.local:8096/videos/m1/master.m3u8",
				SupportsTranscoding: true,
				TranscodingURL:      "/videos/m1/stream.m3u8",
			},
			want: "http://media.local:8096/videos/m1/master.m3u8",
		},
		{
			name: "transcoding wins over direct",
			source: jellyfin.MediaSource{
				ID:                  "src-m1",
				Container:           "mkv",
				SupportsTranscoding: true,
				TranscodingURL:      "/videos/m1/stream.m3u8",
			},
			want: "http://media.local:8096/videos/m1/stream.m3u8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{
				items: map[string]*jellyfin.BaseItem{"m1": movieItem("m1", "The Movie")},
				negotiate: func(req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error) {
					return &jellyfin.PlaybackInfoResponse{MediaSources: []jellyfin.MediaSource{tt.source}}, nil
				},
			}
			resolver, store, _, _ := newTestResolver(client, nil)

			if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "m1", UserID: "u1"}); err != nil {
				t.Fatalf("ResolveAndPlay returned error: %v", err)
			}
			if got := store.Get().StreamURL; got != tt.want {
				t.Fatalf("expected stream url %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveAndPlay_DefaultSubtitleSelected(t *testing.T) {
	defaultSub := 3
	client := &fakeClient{
		items: map[string]*jellyfin.BaseItem{"m1": movieItem("m1", "The Movie")},
		negotiate: func(req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error) {
			return &jellyfin.PlaybackInfoResponse{MediaSources: []jellyfin.MediaSource{{
				ID:                         "src-m1",
				Container:                  "mkv",
				DefaultSubtitleStreamIndex: &defaultSub,
				MediaStreams: []jellyfin.MediaStream{
					{Index: 0, Type: jellyfin.StreamTypeVideo},
					{Index: 1, Type: jellyfin.StreamTypeAudio},
					{Index: 2, Type: jellyfin.StreamTypeSubtitle, Codec: "srt"},
					{Index: 3, Type: jellyfin.StreamTypeSubtitle, Codec: "ass"},
				},
			}}}, nil
		},
	}
	resolver, store, _, _ := newTestResolver(client, nil)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "m1", UserID: "u1"}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	sub := store.Get().Source.Subtitle
	if !sub.Enabled || sub.TrackIndex != 3 {
		t.Fatalf("expected default subtitle track 3, got enabled=%v index=%d", sub.Enabled, sub.TrackIndex)
	}
}

func TestResolveAndPlay_Audio(t *testing.T) {
	audio := &jellyfin.BaseItem{
		ID:           "a1",
		Name:         "Song",
		Type:         jellyfin.ItemTypeAudio,
		MediaSources: []jellyfin.MediaSource{{ID: "src-a1", Container: "flac"}},
	}
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"a1": audio}}
	history := &fakeHistory{positions: map[string]int64{"a1": 1_200_000_000}}
	resolver, store, _, _ := newTestResolver(client, history)

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "a1", UserID: "u1", ItemType: jellyfin.ItemTypeAudio}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if !strings.Contains(store.Get().StreamURL, "/Audio/a1/universal") {
		t.Fatalf("unexpected stream url %q", store.Get().StreamURL)
	}
	if client.negotiateCalls != 0 {
		t.Fatalf("audio playback must not negotiate, got %d calls", client.negotiateCalls)
	}
	if got := store.Get().StartPosition; got != 1_200_000_000 {
		t.Fatalf("StartPosition = %d, want 1200000000", got)
	}
}

func TestResolveAndPlay_RetrievalError(t *testing.T) {
	client := &fakeClient{itemErr: errors.New("connection refused")}
	resolver, store, _, loading := newTestResolver(client, nil)

	err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "m1", UserID: "u1"})
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
	if store.Get().StreamURL != "" {
		t.Fatal("failed resolution must not commit a session")
	}
	if loading.Get() {
		t.Fatal("loading indicator must clear on failure")
	}
}

func TestResolveAndPlay_ItemMissing(t *testing.T) {
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{}}
	resolver, _, _, _ := newTestResolver(client, nil)

	err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "nope", UserID: "u1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueueNavigation(t *testing.T) {
	a := *movieItem("a", "A")
	b := *movieItem("b", "B")
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"a": &a, "b": &b}}
	resolver, store, queue, _ := newTestResolver(client, nil)

	err := resolver.ResolveAndPlay(context.Background(), PlayRequest{
		ItemID: "a", UserID: "u1",
		Queue: []jellyfin.BaseItem{a, b}, QueueIndex: 0,
	})
	if err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if err := resolver.ResolveNext(context.Background(), "u1"); err != nil {
		t.Fatalf("ResolveNext returned error: %v", err)
	}
	if queue.CurrentIndex() != 1 {
		t.Fatalf("expected queue index 1, got %d", queue.CurrentIndex())
	}
	if store.Get().ItemName != "B" {
		t.Fatalf("expected session for B, got %q", store.Get().ItemName)
	}

	if err := resolver.ResolvePrevious(context.Background(), "u1"); err != nil {
		t.Fatalf("ResolvePrevious returned error: %v", err)
	}
	if store.Get().ItemName != "A" {
		t.Fatalf("expected session for A, got %q", store.Get().ItemName)
	}
}

func TestQueueNavigation_Bounds(t *testing.T) {
	a := *movieItem("a", "A")
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"a": &a}}
	resolver, store, _, loading := newTestResolver(client, nil)

	// Empty queue: no neighbor in either direction
	if err := resolver.ResolveNext(context.Background(), "u1"); !errors.Is(err, ErrQueueBounds) {
		t.Fatalf("expected ErrQueueBounds on empty queue, got %v", err)
	}

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "a", UserID: "u1"}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}
	before := store.Get()

	if err := resolver.ResolveNext(context.Background(), "u1"); !errors.Is(err, ErrQueueBounds) {
		t.Fatalf("expected ErrQueueBounds past queue end, got %v", err)
	}
	if err := resolver.ResolvePrevious(context.Background(), "u1"); !errors.Is(err, ErrQueueBounds) {
		t.Fatalf("expected ErrQueueBounds before queue start, got %v", err)
	}
	if err := resolver.ResolveIndex(context.Background(), 5, "u1"); !errors.Is(err, ErrQueueBounds) {
		t.Fatalf("expected ErrQueueBounds for out-of-range jump, got %v", err)
	}

	// A rejected navigation leaves session and loading untouched
	if store.Get().ItemName != before.ItemName {
		t.Fatal("bounds error must not change the session")
	}
	if loading.Get() {
		t.Fatal("bounds error must not leave loading set")
	}
}

func TestStaleResolutionDiscarded(t *testing.T) {
	a := *movieItem("a", "A")
	b := *movieItem("b", "B")
	client := &fakeClient{items: map[string]*jellyfin.BaseItem{"a": &a, "b": &b}}
	resolver, store, _, _ := newTestResolver(client, nil)

	// While A's negotiation is in flight, a request for B starts and
	// completes. A's commit must then be discarded as stale.
	nested := false
	client.negotiate = func(req jellyfin.PlaybackInfoRequest) (*jellyfin.PlaybackInfoResponse, error) {
		if req.ItemID == "a" && !nested {
			nested = true
			if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "b", UserID: "u1"}); err != nil {
				t.Fatalf("nested ResolveAndPlay returned error: %v", err)
			}
		}
		return &jellyfin.PlaybackInfoResponse{
			PlaySessionID: "ps-" + req.ItemID,
			MediaSources:  []jellyfin.MediaSource{{ID: "src-" + req.ItemID, Container: "mkv"}},
		}, nil
	}

	if err := resolver.ResolveAndPlay(context.Background(), PlayRequest{ItemID: "a", UserID: "u1"}); err != nil {
		t.Fatalf("ResolveAndPlay returned error: %v", err)
	}

	if got := store.Get().ItemName; got != "B" {
		t.Fatalf("expected newest request to win, got session for %q", got)
	}
}

func TestChangeSubtitleTrack(t *testing.T) {
	client := &fakeClient{}
	resolver, store, _, _ := newTestResolver(client, nil)

	store.Set(Session{
		ItemName: "movie",
		Source: SourceInfo{
			Subtitle: SubtitleInfo{
				Enabled:    true,
				TrackIndex: 2,
				AllTracks: []jellyfin.MediaStream{
					{Index: 2, Type: jellyfin.StreamTypeSubtitle, Codec: "srt"},
					{Index: 3, Type: jellyfin.StreamTypeSubtitle, Codec: "ass"},
				},
			},
		},
	})

	if err := resolver.ChangeSubtitleTrack(3); err != nil {
		t.Fatalf("ChangeSubtitleTrack returned error: %v", err)
	}
	if got := store.Get().Source.Subtitle.TrackIndex; got != 3 {
		t.Fatalf("expected track 3, got %d", got)
	}

	// Unknown track: error reported, session committed with subtitles off
	err := resolver.ChangeSubtitleTrack(9)
	if !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
	sub := store.Get().Source.Subtitle
	if sub.Enabled || sub.TrackIndex != NoSubtitleTrack {
		t.Fatalf("expected subtitles disabled, got enabled=%v index=%d", sub.Enabled, sub.TrackIndex)
	}
}
