package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn, logger zerolog.Logger) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				logger.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Warn().Err(err).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, h core.ConnHandle, c *WsSignalConn, logger zerolog.Logger) {
	defer func() {
		logger.Info().Msg("readPump closing")
		ctl.Orch.Disconnect(h)
		c.Close()
		cancel()
	}()

	limiter := newConnLimiter(ctl.opts.RatePerSecond, ctl.opts.RateBurst)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("readPump ctx done")
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		if !limiter.Allow() {
			logger.Debug().Msg("rate limited")
			ctl.sendError(c, core.CodeRateLimited, "too many messages")
			continue
		}
		ctl.handleSignal(h, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(h core.ConnHandle, c *WsSignalConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(h)).Msg("bad json")
		ctl.sendError(c, core.CodeBadMessage, "invalid json")
		return
	}

	switch env.Type {
	case core.TypePresenceJoin:
		ctl.handleJoin(h, c, data)
	case core.TypePresenceLeave:
		ctl.Orch.Leave(h)
	case core.TypeRegisterAddress:
		ctl.handleRegisterAddress(h, c, data)
	case core.TypeCallInitiate:
		ctl.handleInitiate(h, c, data)
	case core.TypeCallAccept:
		ctl.handleAccept(h, c, data)
	case core.TypeCallReject:
		ctl.handleReject(h, c, data)
	case core.TypeCallEnd:
		ctl.handleEnd(h, c, data)
	case core.TypeCandidate:
		ctl.handleCandidate(h, c, data)
	case core.TypeRestart, core.TypeRestartAnswer:
		ctl.handleRestart(h, c, data)
	case core.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("conn", string(h)).Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, core.CodeBadMessage, "unknown type "+env.Type)
	}
}

// decode unmarshals a typed payload, answering with an error frame on failure.
func decode[T any](ctl *SignalWSController, c *WsSignalConn, data []byte) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad payload")
		ctl.sendError(c, core.CodeBadMessage, "bad payload")
		return v, false
	}
	return v, true
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
