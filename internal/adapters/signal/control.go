package signal

import "github.com/mmutlucod/realtime-call-app/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.Envelope{Type: core.TypePong})
}

func (ctl *SignalWSController) sendError(conn *WsSignalConn, code, msg string) {
	ctl.sendJSON(conn, core.ErrorMsg{Type: core.TypeError, Code: code, Message: msg})
}
