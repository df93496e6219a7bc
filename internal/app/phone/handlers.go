package phone

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/pion/webrtc/v4"
)

const negotiationTimeout = 10 * time.Second

func decode[T any](p *Phone, data []byte) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		p.logger.Warn().Err(err).Msg("bad frame")
		return v, false
	}
	return v, true
}

func (p *Phone) handlePresence(data []byte) {
	msg, ok := decode[core.PresenceListMsg](p, data)
	if !ok {
		return
	}
	others := make([]domain.Identity, 0, len(msg.Identities))
	for _, id := range msg.Identities {
		if id.ID != p.self.ID {
			others = append(others, id)
		}
	}
	p.presence.Publish(others)
}

func (p *Phone) handleIncoming(data []byte) {
	msg, ok := decode[core.IncomingMsg](p, data)
	if !ok {
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Offer, &offer); err != nil {
		p.logger.Warn().Err(err).Str("peer", string(msg.From)).Msg("incoming call without a usable offer")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusIdle {
		// Re-delivery of the call already ringing here.
		if p.status == StatusRinging && p.peer == msg.From {
			return
		}
		p.logger.Info().Str("peer", string(msg.From)).Msg("busy, rejecting incoming call")
		_ = p.sig.Emit(core.RejectMsg{Type: core.TypeCallReject, From: p.self.ID})
		return
	}

	in := Incoming{CallID: msg.CallID, From: msg.From, Caller: msg.Caller, CallType: msg.CallType}
	p.incoming = &in
	p.offer = offer
	p.peer = msg.From
	p.callType = msg.CallType
	p.setStatusLocked(StatusRinging)
	p.logger.Info().Str("peer", string(msg.From)).Str("call_type", string(msg.CallType)).Msg("incoming call")
	if fn := p.onIncoming; fn != nil {
		go fn(in)
	}
}

func (p *Phone) handleAccepted(data []byte) {
	msg, ok := decode[core.AcceptedMsg](p, data)
	if !ok {
		return
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Answer, &answer); err != nil {
		p.logger.Warn().Err(err).Msg("accepted without a usable answer")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusCalling || p.engine == nil {
		p.logger.Debug().Msg("stale call.accepted")
		return
	}
	if msg.From != "" && msg.From != p.peer {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	defer cancel()
	if err := p.engine.ApplyRemoteAnswer(ctx, answer); err != nil {
		p.logger.Error().Err(err).Msg("apply answer")
		_ = p.sig.Emit(core.EndMsg{Type: core.TypeCallEnd, UserID: p.self.ID, OtherUserID: p.peer})
		p.endedLocked("failed")
		return
	}
	p.setStatusLocked(StatusInCall)
}

func (p *Phone) handleRejected(data []byte) {
	msg, ok := decode[core.RejectedMsg](p, data)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusCalling {
		return
	}
	reason := msg.Reason
	if reason == "" {
		reason = "rejected"
	}
	p.endedLocked(reason)
}

func (p *Phone) handleEnded(data []byte) {
	msg, ok := decode[core.EndedMsg](p, data)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusIdle {
		return
	}
	if msg.From != "" && msg.From != p.peer {
		return
	}
	reason := msg.Reason
	if reason == "" {
		reason = "ended"
	}
	p.endedLocked(reason)
}

func (p *Phone) handleCandidate(data []byte) {
	msg, ok := decode[core.CandidateMsg](p, data)
	if !ok {
		return
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Candidate, &c); err != nil {
		p.logger.Warn().Err(err).Msg("bad candidate")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusIdle || msg.From != p.peer {
		p.logger.Debug().Str("from", string(msg.From)).Msg("candidate from stale peer dropped")
		return
	}
	if p.engine == nil {
		p.early = append(p.early, c)
		return
	}
	if err := p.engine.AddRemoteCandidate(c); err != nil {
		p.logger.Warn().Err(err).Msg("add candidate")
	}
}

func (p *Phone) handleRestart(data []byte) {
	msg, ok := decode[core.RestartMsg](p, data)
	if !ok {
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Offer, &offer); err != nil {
		p.logger.Warn().Err(err).Msg("bad restart offer")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil || msg.From != p.peer {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	defer cancel()
	answer, err := p.engine.HandleRestartOffer(ctx, offer)
	if err != nil {
		p.logger.Error().Err(err).Msg("restart offer")
		return
	}
	raw, err := encode(answer)
	if err != nil {
		return
	}
	if err := p.sig.Emit(core.RestartMsg{Type: core.TypeRestartAnswer, To: p.peer, Answer: raw}); err != nil {
		p.logger.Warn().Err(err).Msg("restart answer not sent")
	}
}

func (p *Phone) handleRestartAnswer(data []byte) {
	msg, ok := decode[core.RestartMsg](p, data)
	if !ok {
		return
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(msg.Answer, &answer); err != nil {
		p.logger.Warn().Err(err).Msg("bad restart answer")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil || msg.From != p.peer {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	defer cancel()
	if err := p.engine.ApplyRemoteAnswer(ctx, answer); err != nil {
		p.logger.Error().Err(err).Msg("restart answer")
	}
}

func (p *Phone) handleError(data []byte) {
	msg, ok := decode[core.ErrorMsg](p, data)
	if !ok {
		return
	}
	p.logger.Warn().Str("code", msg.Code).Str("message", msg.Message).Msg("server error")
}
