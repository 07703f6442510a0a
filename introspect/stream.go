package introspect

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// stream upgrades to a websocket and pushes a snapshot immediately and then
// once per interval until the client goes away.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.cfg.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Debug("stream_upgrade_failed", map[string]interface{}{
			"remote": r.RemoteAddr,
			"error":  err.Error(),
		})
		return
	}
	defer conn.Close()

	shortName := r.URL.Query().Get("short_name")

	// The client never sends anything meaningful; reading detects close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.cfg.Logger.Debug("stream_read_failed", map[string]interface{}{
						"remote": r.RemoteAddr,
						"error":  err.Error(),
					})
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.cfg.StreamInterval)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := conn.WriteJSON(h.snapshot().Filter(shortName)); err != nil {
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
