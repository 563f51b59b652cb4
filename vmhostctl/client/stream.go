package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

type streamMessage struct {
	Lines []string `json:"lines"`
	Next  int      `json:"next"`
}

// FollowLogs calls onLine for every log line the daemon streams until ctx is done or the
// stream ends.
func (c *Client) FollowLogs(ctx context.Context, name string, from int, onLine func(string)) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") +
		"/v1/vms/" + url.PathEscape(name) + "/logs/stream?from=" + strconv.Itoa(from)

	wsConn, response, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("error opening log stream: %w", err)
	}

	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}

	defer wsConn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = wsConn.Close()
	})
	defer stop()

	for {
		var msg streamMessage

		err = wsConn.ReadJSON(&msg)
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return fmt.Errorf("error reading log stream: %w", err)
		}

		for _, line := range msg.Lines {
			onLine(line)
		}
	}
}
