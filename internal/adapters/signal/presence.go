package signal

import (
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	p, ok := decode[core.JoinMsg](ctl, conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.Join(h, conn, p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(h)).Msg("join refused")
		ctl.sendError(conn, core.CodeInvalidJoin, err.Error())
	}
}

func (ctl *SignalWSController) handleRegisterAddress(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	if p, ok := decode[core.RegisterAddressMsg](ctl, conn, data); ok {
		ctl.Orch.RegisterNotificationAddress(h, p)
	}
}
