package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"nhooyr.io/websocket"

	"torrentify/internal/domain"
)

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Write(ctx context.Context, msg []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, msg)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

func (w *wsConn) Close(reason string) error {
	return w.conn.Close(websocket.StatusNormalClosure, reason)
}

// clientMessage is what observers may send on the channel.
type clientMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// ServeWebSocket registers an accepted connection and runs its read loop
// until the peer disconnects or ctx ends.
func (h *Hub) ServeWebSocket(ctx context.Context, conn *websocket.Conn) {
	id := h.Register(&wsConn{conn: conn})
	defer h.Unregister(id)

	log := h.cfg.Logger.WithField("observer_id", id)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				log.Debug("observer went away")
			} else {
				log.Debugf("read observer message: %v", err)
			}
			return
		}
		h.MarkAlive(id)

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("decode observer message: %v", err)
			continue
		}
		h.handleMessage(id, msg)
	}
}

func (h *Hub) handleMessage(id string, msg clientMessage) {
	switch msg.Type {
	case "ping":
		h.Send(id, domain.Event{
			Type: domain.EventPong,
			Data: map[string]time.Time{"timestamp": time.Now().UTC()},
		})
	case "subscribe":
		h.Subscribe(id, msg.JobID)
	case "unsubscribe":
		h.Unsubscribe(id, msg.JobID)
	default:
		h.cfg.Logger.WithField("observer_id", id).Warnf("unknown observer message type %q", msg.Type)
	}
}
