package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quintal-io/responder/internal/pkg/ctxlog"
)

const (
	defaultStreamInterval = 2 * time.Second
	writeWait             = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS middleware in front of the
	// router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Stream handles GET /api/v1/stream: pushes dashboard snapshots over a
// websocket until the client disconnects.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	log := ctxlog.FromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// Reads are only consumed to detect the close handshake.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(h.snapshots.Snapshot(r.Context())); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket write ended", "error", err)
			}
			return
		}

		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}
