package playback

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// StreamParams carries everything needed to build a direct video stream URL.
// Absent string fields propagate as omitted query keys, never as empty values
// that would look valid to the server.
type StreamParams struct {
	BasePath      string
	MediaSourceID string
	Container     string
	DeviceID      string
	AccessToken   string
	// Tag is the source's content validation token; omitting it risks the
	// server serving a stale or mismatched source.
	Tag              string
	VideoStreamIndex int
	AudioStreamIndex int
	// StartTicks is included only when non-zero.
	StartTicks int64
}

// VideoStreamURL builds the direct/static stream URL:
// {base}/Videos/{sourceId}/stream.{container}?Static=true&...
func VideoStreamURL(p StreamParams) string {
	q := url.Values{}
	q.Set("Static", "true")
	setIfPresent(q, "mediaSourceId", p.MediaSourceID)
	setIfPresent(q, "deviceId", p.DeviceID)
	setIfPresent(q, "api_key", p.AccessToken)
	setIfPresent(q, "Tag", p.Tag)
	q.Set("videoStreamIndex", strconv.Itoa(p.VideoStreamIndex))
	q.Set("audioStreamIndex", strconv.Itoa(p.AudioStreamIndex))
	if p.StartTicks > 0 {
		q.Set("startTimeTicks", strconv.FormatInt(p.StartTicks, 10))
	}

	return fmt.Sprintf("%s/Videos/%s/stream.%s?%s",
		strings.TrimRight(p.BasePath, "/"),
		url.PathEscape(p.MediaSourceID),
		p.Container,
		q.Encode())
}

// AudioStreamURL builds the universal audio endpoint URL. Audio items always
// direct-stream through this endpoint; no negotiation is involved.
func AudioStreamURL(basePath, itemID, deviceID, userID, accessToken string) string {
	q := url.Values{}
	setIfPresent(q, "deviceId", deviceID)
	setIfPresent(q, "userId", userID)
	setIfPresent(q, "api_key", accessToken)

	return fmt.Sprintf("%s/Audio/%s/universal?%s",
		strings.TrimRight(basePath, "/"),
		url.PathEscape(itemID),
		q.Encode())
}

// TranscodeURL prefixes a server-supplied transcoding path with the base path.
func TranscodeURL(basePath, transcodingPath string) string {
	return strings.TrimRight(basePath, "/") + transcodingPath
}

func setIfPresent(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
