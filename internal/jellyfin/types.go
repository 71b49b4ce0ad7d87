package jellyfin

// Item types as reported by the server.
const (
	ItemTypeMovie   = "Movie"
	ItemTypeSeries  = "Series"
	ItemTypeEpisode = "Episode"
	ItemTypeAudio   = "Audio"
)

// Stream types within a media source.
const (
	StreamTypeVideo    = "Video"
	StreamTypeAudio    = "Audio"
	StreamTypeSubtitle = "Subtitle"
)

// BaseItem is a library item (movie, episode, series, audio track) as returned
// by the /Items endpoints. Only the fields the playback engine needs are
// mapped; optional server fields use pointers so absence stays observable.
type BaseItem struct {
	ID                string        `json:"Id"`
	Name              string        `json:"Name"`
	Type              string        `json:"Type"`
	SeriesID          string        `json:"SeriesId,omitempty"`
	SeriesName        string        `json:"SeriesName,omitempty"`
	ParentIndexNumber *int          `json:"ParentIndexNumber,omitempty"`
	IndexNumber       *int          `json:"IndexNumber,omitempty"`
	RunTimeTicks      int64         `json:"RunTimeTicks,omitempty"`
	MediaSources      []MediaSource `json:"MediaSources,omitempty"`
	UserData          *UserData     `json:"UserData,omitempty"`
}

// ResumePositionTicks returns the stored playback position, or 0 when the
// server sent no user data.
func (i *BaseItem) ResumePositionTicks() int64 {
	if i.UserData == nil {
		return 0
	}
	return i.UserData.PlaybackPositionTicks
}

// UserData carries per-user playback state attached to an item.
type UserData struct {
	PlaybackPositionTicks int64 `json:"PlaybackPositionTicks"`
	PlayCount             int   `json:"PlayCount"`
	Played                bool  `json:"Played"`
	IsFavorite            bool  `json:"IsFavorite"`
}

// MediaSource is one playable encoding/container option for an item.
type MediaSource struct {
	ID                         string        `json:"Id"`
	Container                  string        `json:"Container"`
	ETag                       string        `json:"ETag,omitempty"`
	SupportsDirectPlay         bool          `json:"SupportsDirectPlay"`
	SupportsTranscoding        bool          `json:"SupportsTranscoding"`
	TranscodingURL             string        `json:"TranscodingUrl,omitempty"`
	HLSStreamURL               string        `json:"hlsStream,omitempty"`
	DefaultAudioStreamIndex    *int          `json:"DefaultAudioStreamIndex,omitempty"`
	DefaultSubtitleStreamIndex *int          `json:"DefaultSubtitleStreamIndex,omitempty"`
	MediaStreams               []MediaStream `json:"MediaStreams,omitempty"`
}

// FirstStreamIndex returns the index of the first stream of the given type
// and whether one exists. Stream indices are stable identifiers within the
// source and are not necessarily contiguous.
func (m *MediaSource) FirstStreamIndex(streamType string) (int, bool) {
	for _, s := range m.MediaStreams {
		if s.Type == streamType {
			return s.Index, true
		}
	}
	return 0, false
}

// SubtitleStreams returns the subtitle streams in server order.
func (m *MediaSource) SubtitleStreams() []MediaStream {
	var subs []MediaStream
	for _, s := range m.MediaStreams {
		if s.Type == StreamTypeSubtitle {
			subs = append(subs, s)
		}
	}
	return subs
}

// MediaStream is one audio, video, or subtitle track within a media source.
type MediaStream struct {
	Index        int    `json:"Index"`
	Type         string `json:"Type"`
	Codec        string `json:"Codec,omitempty"`
	Language     string `json:"Language,omitempty"`
	DisplayTitle string `json:"DisplayTitle,omitempty"`
	IsDefault    bool   `json:"IsDefault"`
	IsExternal   bool   `json:"IsExternal"`
	DeliveryURL  string `json:"DeliveryUrl,omitempty"`
}

// itemsResponse is the envelope for /Items style endpoints.
type itemsResponse struct {
	Items            []BaseItem `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount"`
}

// PlaybackInfoRequest describes a server-side playback negotiation.
type PlaybackInfoRequest struct {
	ItemID              string
	UserID              string
	MediaSourceID       string
	AudioStreamIndex    int
	SubtitleStreamIndex int
	StartTimeTicks      int64
}

// PlaybackInfoResponse is the result of a playback negotiation. The server
// decides between direct play, transcoding, and HLS; the client never
// second-guesses it.
type PlaybackInfoResponse struct {
	MediaSources  []MediaSource `json:"MediaSources"`
	PlaySessionID string        `json:"PlaySessionId"`
}
