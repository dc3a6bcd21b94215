package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/intercom/internal/core"
	"github.com/gorilla/websocket"
)

// Envelope is the common header of every server frame.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (c *Client) writePump(ctx context.Context, conn *wsConn) {
	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Uint64("gen", conn.gen).Msg("writePump ctx done")
			return
		case data, ok := <-conn.send:
			if !ok {
				c.log.Debug().Uint64("gen", conn.gen).Msg("writePump channel closed")
				return
			}
			if err := conn.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				conn.Close()
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) readPump(conn *wsConn) {
	var cause error
	defer func() {
		conn.Close()
		c.finish(conn.gen, conn, cause)
	}()

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, ConflictCloseCode) {
				conn.conflict.Store(true)
			}
			c.log.Warn().Err(err).Uint64("gen", conn.gen).Msg("readPump read error")
			cause = err
			return
		}
		c.handleFrame(conn, data)
	}
}

func (c *Client) handleFrame(conn *wsConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Error().Err(err).Msg("bad json")
		return
	}
	env.Raw = append(json.RawMessage(nil), data...)

	switch env.Type {
	case "connection_conflict":
		c.handleConflict(conn)
	case "ping":
		c.handlePing(conn)
	default:
		c.mu.Lock()
		cb := c.onMessage
		c.mu.Unlock()
		if cb == nil {
			c.log.Debug().Str("type", env.Type).Msg("unhandled frame")
			return
		}
		cb(env)
	}
}

func (c *Client) sendJSON(conn *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("sendJSON marshal")
		return
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		c.log.Warn().Err(err).Msg("sendJSON")
	}
}
