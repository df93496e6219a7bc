package wsclient

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/rs/zerolog"
)

type conn struct {
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *conn) trySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.ws.Close()
}

func (c *conn) writePump(logger zerolog.Logger) {
	defer c.close()
	for data := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			logger.Error().Err(err).Msg("writePump set deadline")
			return
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn().Err(err).Msg("writePump write error")
			return
		}
	}
}
