package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const defaultStreamInterval = 250 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type streamMessage struct {
	Lines []string `json:"lines"`
	Next  int      `json:"next"`
}

// streamLogs upgrades to a websocket and pushes new log lines as they are buffered, starting
// at the from query parameter. The buffer only keeps the newest lines, so a slow reader can
// miss some.
func (a *api) streamLogs(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")

	from, err := fromParam(request)
	if err != nil {
		writeResult(writer, err)

		return
	}

	wsConn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Debug("log stream upgrade failed", "vm", name, "err", err)

		return
	}
	defer wsConn.Close()

	closed := make(chan struct{})

	// reads are only needed to see control frames and the close
	go func() {
		defer close(closed)

		for {
			_, _, err := wsConn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	interval := a.streamInterval
	if interval <= 0 {
		interval = defaultStreamInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := max(from, 0)

	for {
		if a.logs.Len(name) < next {
			// cleared, start over
			next = 0
		}

		lines := a.vms.GetLogs(name, next)
		if len(lines) > 0 {
			next += len(lines)

			err = wsConn.WriteJSON(streamMessage{Lines: lines, Next: next})
			if err != nil {
				slog.Debug("log stream write failed", "vm", name, "err", err)

				return
			}
		}

		select {
		case <-closed:
			return
		case <-request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
