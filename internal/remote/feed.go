package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/normalize"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

var _ attempt.TimerFeed = (*Client)(nil)

// WatchTimer subscribes to the service's timer feed for an attempt. The
// channel is closed when ctx is done or the connection drops.
func (c *Client) WatchTimer(ctx context.Context, attemptID string) (<-chan normalize.Object, error) {
	tok := c.auth.Token()
	if tok == nil {
		return nil, fmt.Errorf("watch timer: not logged in")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("watch timer: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + ws.TimerFeedPath(attemptID)
	u.RawQuery = url.Values{"token": {tok.AccessToken}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("watch timer: %w", err)
	}

	out := make(chan normalize.Object, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var msg json.RawMessage
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if ctx.Err() == nil {
					c.log.Debug().Err(err).Str("attempt_id", attemptID).Msg("Timer feed closed")
				}
				return
			}
			obj := decodeObject(msg)
			if ev, _ := obj["event"].(string); ev != string(ws.EventTimer) {
				continue
			}
			select {
			case out <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
