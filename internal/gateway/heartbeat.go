package gateway

import (
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/aurelia-labs/aurelia/internal/streaming"
)

// heartbeat implements spec.md §4.8: send a ping every ping_interval, and
// close the connection if no pong has been observed within
// ping_interval+pong_timeout of the last one. Runs until conn.done closes.
func (m *Manager) heartbeat(conn *Connection) {
	interval := time.Duration(m.cfg.PingIntervalSeconds) * time.Second
	deadline := interval + time.Duration(m.cfg.PongTimeoutSeconds)*time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if time.Since(conn.lastPong()) > deadline {
				slog.Info("gateway: pong deadline exceeded, closing", "connection_id", conn.ID)
				conn.close(websocket.StatusPolicyViolation, "pong timeout")
				return
			}
			if !m.send(conn, streaming.PingEvent{}) {
				return
			}
		}
	}
}
