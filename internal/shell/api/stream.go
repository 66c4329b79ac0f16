package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/events"
)

const (
	defaultReplay = 50
	writeWait     = 10 * time.Second
)

// =============================================================================
// WebSocket Client
// =============================================================================

// wsClient adapts a WebSocket connection to events.Subscriber. The hub
// calls Send from a single writer goroutine per client.
type wsClient struct {
	conn *websocket.Conn
	log  *slog.Logger
}

func newWSClient(conn *websocket.Conn, logger *slog.Logger) *wsClient {
	return &wsClient{conn: conn, log: logger}
}

// Send writes a message to the websocket connection.
func (c *wsClient) Send(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Debug("websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *wsClient) Close() {
	_ = c.conn.Close()
}

var _ events.Subscriber = (*wsClient)(nil)

// =============================================================================
// Stream Handler
// =============================================================================

// handleEventStream upgrades to a WebSocket, replays up to ?backlog=n recent
// events (default 50) and then streams live events until the client leaves.
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	replay := queryInt(r, "backlog", defaultReplay)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "app_id", id, "error", err)
		return
	}

	client := newWSClient(conn, h.logger.With("app_id", id))
	h.events.Subscribe(id, client, replay)

	go func() {
		defer func() {
			h.events.Unregister(id, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
