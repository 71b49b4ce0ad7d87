package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/driftworks/playdeck/internal/config"
)

// PlayCommand is a server-initiated play request received over the socket
// (e.g. "play on this device" from another client's remote control UI).
type PlayCommand struct {
	ItemIDs            []string `json:"ItemIds"`
	StartIndex         int      `json:"StartIndex"`
	PlayCommand        string   `json:"PlayCommand"`
	StartPositionTicks int64    `json:"StartPositionTicks"`
	ControllingUserID  string   `json:"ControllingUserId"`
}

type socketMessage struct {
	MessageType string          `json:"MessageType"`
	Data        json.RawMessage `json:"Data,omitempty"`
}

// WatchCommands connects to the server's websocket and invokes onPlay for
// every incoming Play command. Blocks until the context is cancelled,
// reconnecting with exponential backoff on failures.
func (c *Client) WatchCommands(ctx context.Context, onPlay func(PlayCommand)) error {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 5 * time.Minute
	)

	pingInterval := config.GetTimeouts().WebSocketPing
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.watchCommandsOnce(ctx, onPlay, pingInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Warn().
				Err(err).
				Dur("backoff", backoff).
				Msg("Jellyfin WebSocket disconnected, reconnecting")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff = min(backoff*2, maxBackoff)
		} else {
			backoff = initialBackoff
		}
	}
}

// watchCommandsOnce establishes a single websocket connection and handles
// messages until it drops.
func (c *Client) watchCommandsOnce(ctx context.Context, onPlay func(PlayCommand), pingInterval time.Duration) error {
	wsURL, err := c.buildSocketURL()
	if err != nil {
		return fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("WebSocket dial failed: %w", err)
	}
	defer conn.Close()

	log.Info().Msg("Connected to Jellyfin WebSocket")

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	readErrCh := make(chan error, 1)

	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}

			var msg socketMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				log.Debug().Err(err).Msg("Failed to parse WebSocket message")
				continue
			}

			switch msg.MessageType {
			case "Play":
				var cmd PlayCommand
				if err := json.Unmarshal(msg.Data, &cmd); err != nil {
					log.Debug().Err(err).Msg("Failed to parse Play command")
					continue
				}
				if len(cmd.ItemIDs) == 0 {
					continue
				}
				log.Debug().
					Strs("item_ids", cmd.ItemIDs).
					Int("start_index", cmd.StartIndex).
					Msg("Received remote play command")
				onPlay(cmd)
			case "ForceKeepAlive", "KeepAlive":
				// Server-driven keepalive, nothing to do
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErrCh:
			return fmt.Errorf("WebSocket read failed: %w", err)
		case <-pingTicker.C:
			keepAlive := socketMessage{MessageType: "KeepAlive"}
			if err := conn.WriteJSON(keepAlive); err != nil {
				return fmt.Errorf("WebSocket keepalive failed: %w", err)
			}
		}
	}
}

// buildSocketURL converts the base URL to its websocket equivalent.
func (c *Client) buildSocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket"

	q := u.Query()
	q.Set("api_key", c.accessToken)
	q.Set("deviceId", c.deviceID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
