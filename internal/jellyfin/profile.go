package jellyfin

// DeviceProfile describes the client's playback capabilities. It is attached
// to every playback negotiation so the server can decide whether direct play
// is viable or a transcode is required.
type DeviceProfile struct {
	Name                string             `json:"Name"`
	MaxStreamingBitrate int                `json:"MaxStreamingBitrate"`
	DirectPlayProfiles  []DirectPlayEntry  `json:"DirectPlayProfiles"`
	TranscodingProfiles []TranscodingEntry `json:"TranscodingProfiles"`
	SubtitleProfiles    []SubtitleEntry    `json:"SubtitleProfiles"`
}

// DirectPlayEntry lists a container/codec combination playable as-is.
type DirectPlayEntry struct {
	Container  string `json:"Container"`
	Type       string `json:"Type"`
	VideoCodec string `json:"VideoCodec,omitempty"`
	AudioCodec string `json:"AudioCodec,omitempty"`
}

// TranscodingEntry lists a transcode target the client can consume.
type TranscodingEntry struct {
	Container        string `json:"Container"`
	Type             string `json:"Type"`
	VideoCodec       string `json:"VideoCodec,omitempty"`
	AudioCodec       string `json:"AudioCodec,omitempty"`
	Protocol         string `json:"Protocol,omitempty"`
	MaxAudioChannels string `json:"MaxAudioChannels,omitempty"`
}

// SubtitleEntry lists a subtitle format and its delivery method.
type SubtitleEntry struct {
	Format string `json:"Format"`
	Method string `json:"Method"`
}

// DefaultDeviceProfile returns the capability profile sent with playback
// negotiations. Kept deliberately broad: the server is the authority on
// whether a transcode is needed.
func DefaultDeviceProfile() DeviceProfile {
	return DeviceProfile{
		Name:                "Playdeck",
		MaxStreamingBitrate: 120_000_000,
		DirectPlayProfiles: []DirectPlayEntry{
			{Container: "mp4,m4v,mkv,webm", Type: "Video", VideoCodec: "h264,hevc,vp9,av1", AudioCodec: "aac,mp3,ac3,eac3,opus,flac,vorbis"},
			{Container: "mp3,aac,m4a,flac,ogg,wav", Type: "Audio"},
		},
		TranscodingProfiles: []TranscodingEntry{
			{Container: "ts", Type: "Video", VideoCodec: "h264", AudioCodec: "aac,ac3", Protocol: "hls", MaxAudioChannels: "6"},
			{Container: "mp3", Type: "Audio", AudioCodec: "mp3"},
		},
		SubtitleProfiles: []SubtitleEntry{
			{Format: "vtt", Method: "External"},
			{Format: "srt", Method: "External"},
			{Format: "subrip", Method: "External"},
			{Format: "ass", Method: "External"},
			{Format: "ssa", Method: "External"},
		},
	}
}
