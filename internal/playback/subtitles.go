package playback

import (
	"github.com/driftworks/playdeck/internal/jellyfin"
)

// SelectDefaultSubtitle picks the subtitle track for a fresh playback session.
// Pure function of its inputs. Priority: a non-zero default index declared by
// the media source wins when it names a real subtitle stream; otherwise the
// first subtitle stream in server order; otherwise subtitles are disabled.
func SelectDefaultSubtitle(source *jellyfin.MediaSource) SubtitleInfo {
	subs := source.SubtitleStreams()
	defaultIndex := source.DefaultSubtitleStreamIndex

	if defaultIndex != nil && *defaultIndex != 0 {
		for _, s := range subs {
			if s.Index == *defaultIndex {
				return subtitleFromStream(s, subs)
			}
		}
	}

	if len(subs) > 0 {
		return subtitleFromStream(subs[0], subs)
	}

	return SubtitleInfo{
		Enabled:    false,
		TrackIndex: NoSubtitleTrack,
		AllTracks:  subs,
	}
}

// ChangeTrack re-selects a subtitle track from an already-known track list,
// avoiding another media-info fetch. An index absent from allTracks degrades
// to the disabled state; callers treat that as user-correctable, not fatal.
func ChangeTrack(trackIndex int, allTracks []jellyfin.MediaStream) (SubtitleInfo, error) {
	for _, s := range allTracks {
		if s.Index == trackIndex {
			return subtitleFromStream(s, allTracks), nil
		}
	}

	return SubtitleInfo{
		Enabled:    false,
		TrackIndex: NoSubtitleTrack,
		AllTracks:  allTracks,
	}, ErrTrackNotFound
}

func subtitleFromStream(s jellyfin.MediaStream, all []jellyfin.MediaStream) SubtitleInfo {
	return SubtitleInfo{
		Enabled:     true,
		TrackIndex:  s.Index,
		Format:      s.Codec,
		DeliveryURL: s.DeliveryURL,
		AllTracks:   all,
	}
}
