package signal

import (
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleInitiate(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	if p, ok := decode[core.InitiateMsg](ctl, conn, data); ok {
		ctl.Orch.Initiate(h, p)
	}
}

func (ctl *SignalWSController) handleAccept(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	if p, ok := decode[core.AcceptMsg](ctl, conn, data); ok {
		ctl.Orch.Accept(h, p)
	}
}

func (ctl *SignalWSController) handleReject(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	if p, ok := decode[core.RejectMsg](ctl, conn, data); ok {
		ctl.Orch.Reject(h, p)
	}
}

func (ctl *SignalWSController) handleEnd(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	if p, ok := decode[core.EndMsg](ctl, conn, data); ok {
		ctl.Orch.End(h, p)
	}
}

func (ctl *SignalWSController) handleCandidate(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	if p, ok := decode[core.CandidateMsg](ctl, conn, data); ok {
		ctl.Orch.RelayCandidate(h, p)
	}
}

func (ctl *SignalWSController) handleRestart(h core.ConnHandle, conn *WsSignalConn, data []byte) {
	p, ok := decode[core.RestartMsg](ctl, conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.RelayRestart(h, p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(h)).Msg("restart relay")
	}
}
