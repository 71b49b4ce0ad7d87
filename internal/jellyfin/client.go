package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/driftworks/playdeck/internal/config"
	"github.com/driftworks/playdeck/internal/httpclient"
)

// itemFields is requested on every item fetch. Omitting MediaSources or
// MediaStreams would leave the resolver with nothing to select tracks from.
const itemFields = "MediaSources,MediaStreams"

// retryAttempts is the number of tries for idempotent GET requests.
const retryAttempts = 3

// Client talks to a Jellyfin-compatible media server.
type Client struct {
	baseURL     string
	accessToken string
	deviceID    string
	client      *http.Client
	profile     DeviceProfile
}

// NewClient creates a client for the server at baseURL. deviceID identifies
// this installation in streaming URLs and negotiation requests.
func NewClient(baseURL, accessToken, deviceID string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		deviceID:    deviceID,
		client:      httpclient.NewTraceClient("jellyfin", config.GetTimeouts().HTTPClient),
		profile:     DefaultDeviceProfile(),
	}
}

// BaseURL returns the server base path streaming URLs are built against.
func (c *Client) BaseURL() string { return c.baseURL }

// AccessToken returns the API key used in streaming URLs.
func (c *Client) AccessToken() string { return c.accessToken }

// DeviceID returns the device identifier sent with streaming URLs.
func (c *Client) DeviceID() string { return c.deviceID }

// setHeaders adds the MediaBrowser authorization header.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("MediaBrowser Token=\"%s\"", c.accessToken))
	req.Header.Set("Accept", "application/json")
}

// Item fetches a single item by id with media sources and streams attached.
// A missing item returns nil with no error; the caller decides whether that
// is fatal.
func (c *Client) Item(ctx context.Context, itemID, userID string) (*BaseItem, error) {
	itemsURL, err := url.Parse(fmt.Sprintf("%s/Items", c.baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := itemsURL.Query()
	q.Set("Ids", itemID)
	if userID != "" {
		q.Set("UserId", userID)
	}
	q.Set("Fields", itemFields)
	q.Set("EnableImages", "false")
	itemsURL.RawQuery = q.Encode()

	var resp itemsResponse
	if err := c.getJSON(ctx, itemsURL.String(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return &resp.Items[0], nil
}

// Episodes fetches episodes of a series. The resolver uses limit=1,
// startIndex=0 to get the next unwatched episode when a series container is
// played directly.
func (c *Client) Episodes(ctx context.Context, seriesID string, limit, startIndex int) ([]BaseItem, error) {
	epURL, err := url.Parse(fmt.Sprintf("%s/Shows/%s/Episodes", c.baseURL, url.PathEscape(seriesID)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := epURL.Query()
	q.Set("Limit", strconv.Itoa(limit))
	q.Set("StartIndex", strconv.Itoa(startIndex))
	q.Set("Fields", itemFields)
	epURL.RawQuery = q.Encode()

	var resp itemsResponse
	if err := c.getJSON(ctx, epURL.String(), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// LatestMedia fetches the most recently added items, optionally scoped to a
// library. Feeds the list UI, not the resolver.
func (c *Client) LatestMedia(ctx context.Context, userID, parentID string, limit int) ([]BaseItem, error) {
	latestURL, err := url.Parse(fmt.Sprintf("%s/Users/%s/Items/Latest", c.baseURL, url.PathEscape(userID)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := latestURL.Query()
	if parentID != "" {
		q.Set("ParentId", parentID)
	}
	q.Set("Limit", strconv.Itoa(limit))
	q.Set("Fields", itemFields)
	latestURL.RawQuery = q.Encode()

	// /Items/Latest returns a bare array rather than an Items envelope
	var items []BaseItem
	if err := c.getJSON(ctx, latestURL.String(), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// NegotiatePlayback asks the server how the item should be streamed. The
// device profile is attached so the server can rule on direct play vs
// transcode vs HLS.
func (c *Client) NegotiatePlayback(ctx context.Context, req PlaybackInfoRequest) (*PlaybackInfoResponse, error) {
	infoURL, err := url.Parse(fmt.Sprintf("%s/Items/%s/PlaybackInfo", c.baseURL, url.PathEscape(req.ItemID)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := infoURL.Query()
	if req.UserID != "" {
		q.Set("UserId", req.UserID)
	}
	if req.MediaSourceID != "" {
		q.Set("MediaSourceId", req.MediaSourceID)
	}
	q.Set("AudioStreamIndex", strconv.Itoa(req.AudioStreamIndex))
	q.Set("SubtitleStreamIndex", strconv.Itoa(req.SubtitleStreamIndex))
	q.Set("StartTimeTicks", strconv.FormatInt(req.StartTimeTicks, 10))
	infoURL.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]any{
		"DeviceProfile": c.profile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device profile: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", infoURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("playback negotiation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var info PlaybackInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode playback info: %w", err)
	}

	log.Debug().
		Str("item_id", req.ItemID).
		Str("play_session_id", info.PlaySessionID).
		Int("media_sources", len(info.MediaSources)).
		Msg("Playback negotiation complete")

	return &info, nil
}

// getJSON performs a GET with retries for transient failures and decodes the
// response into out.
func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			c.setHeaders(req)

			resp, err := c.client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				err := fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.LastErrorOnly(true),
	)
}
