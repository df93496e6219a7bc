package orch

import (
	"github.com/mmutlucod/realtime-call-app/internal/app"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/rs/zerolog/log"
)

func incoming(s *app.CallSession, caller domain.Identity) core.IncomingMsg {
	return core.IncomingMsg{
		Type:     core.TypeCallIncoming,
		CallID:   s.ID,
		From:     s.Caller,
		CallType: s.Type,
		Offer:    s.Offer,
		Caller:   caller,
	}
}

// Initiate opens a Ringing session and relays the offer to the callee.
// A busy or unknown callee drops the request without any state change.
func (o *Coordinator) Initiate(h core.ConnHandle, msg core.InitiateMsg) {
	o.mu.Lock()
	defer o.unlock()

	from, ok := o.senderLocked(h, msg.From, core.TypeCallInitiate)
	if !ok {
		return
	}
	ct, err := domain.ParseCallType(msg.CallType)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("identity", string(from.Identity.ID)).Msg("initiate dropped")
		return
	}

	target, present := o.Registry.Get(msg.To)
	addr, _ := o.Registry.NotificationAddress(msg.To)
	if !present && addr == "" {
		log.Debug().Err(domain.ErrUnknownRecipient).Str("module", "app.orch").Str("peer", string(msg.To)).Msg("initiate dropped")
		return
	}
	if present && target.Identity.InCall {
		log.Debug().Err(domain.ErrAlreadyInCall).Str("module", "app.orch").Str("peer", string(msg.To)).Msg("initiate dropped")
		return
	}

	s, err := o.Calls.Ring(from.Identity.ID, msg.To, ct, msg.Offer)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Str("identity", string(from.Identity.ID)).Str("peer", string(msg.To)).Msg("initiate dropped")
		return
	}
	log.Info().Str("module", "app.orch").Str("call", s.ID).Str("caller", string(s.Caller)).Str("callee", string(s.Callee)).
		Str("callType", string(ct)).Bool("online", present).Msg("ringing")

	if o.RingTimeout > 0 {
		s.ArmTimer(o.RingTimeout, func() { o.expireRing(s) })
	}
	if addr != "" && o.Alerts != nil {
		o.Alerts.Dispatch(addr, core.IncomingCall(from.Identity.DisplayName, ct))
	}
	o.deliverLocked(msg.To, incoming(s, from.Identity))
}

// Accept is sent by the callee (From) to answer the caller (To).
func (o *Coordinator) Accept(h core.ConnHandle, msg core.AcceptMsg) {
	o.mu.Lock()
	defer o.unlock()

	callee, ok := o.senderLocked(h, msg.From, core.TypeCallAccept)
	if !ok {
		return
	}
	if _, ok := o.Registry.Get(msg.To); !ok {
		log.Debug().Err(domain.ErrUnknownRecipient).Str("module", "app.orch").Str("peer", string(msg.To)).Msg("accept dropped")
		return
	}
	s, err := o.Calls.Answer(callee.Identity.ID, msg.To)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Str("identity", string(callee.Identity.ID)).Str("peer", string(msg.To)).Msg("accept dropped")
		return
	}

	o.Registry.SetInCall(s.Caller, true)
	o.Registry.SetInCall(s.Callee, true)
	log.Info().Str("module", "app.orch").Str("call", s.ID).Msg("call active")

	o.deliverLocked(s.Caller, core.AcceptedMsg{Type: core.TypeCallAccepted, From: s.Callee, Answer: msg.Answer})
	o.broadcastPresenceLocked()
}

// Reject is sent by a ringing callee.
func (o *Coordinator) Reject(h core.ConnHandle, msg core.RejectMsg) {
	o.mu.Lock()
	defer o.unlock()

	callee, ok := o.senderLocked(h, msg.From, core.TypeCallReject)
	if !ok {
		return
	}
	id := callee.Identity.ID
	s, ok := o.Calls.Of(id)
	if !ok || s.State != domain.Ringing || s.Callee != id {
		log.Debug().Err(domain.ErrNoSession).Str("module", "app.orch").Str("identity", string(id)).Msg("reject dropped")
		return
	}
	if o.finishLocked(s, domain.OutcomeRejected) {
		o.deliverLocked(s.Caller, core.RejectedMsg{Type: core.TypeCallRejected, From: id})
	}
}

// End hangs up an active call, or cancels a ringing one.
func (o *Coordinator) End(h core.ConnHandle, msg core.EndMsg) {
	o.mu.Lock()
	defer o.unlock()

	user, ok := o.senderLocked(h, msg.UserID, core.TypeCallEnd)
	if !ok {
		return
	}
	id := user.Identity.ID
	s, ok := o.Calls.Between(id, msg.OtherUserID)
	if !ok {
		log.Debug().Err(domain.ErrNoSession).Str("module", "app.orch").Str("identity", string(id)).Str("peer", string(msg.OtherUserID)).Msg("end dropped")
		return
	}

	outcome := domain.OutcomeCompleted
	if s.State == domain.Ringing {
		outcome = domain.OutcomeCancelled
		if s.Callee == id {
			outcome = domain.OutcomeRejected
		}
	}
	if !o.finishLocked(s, outcome) {
		return
	}
	o.deliverLocked(msg.OtherUserID, core.EndedMsg{Type: core.TypeCallEnded, From: id})
	o.broadcastPresenceLocked()
}

func (o *Coordinator) expireRing(s *app.CallSession) {
	o.mu.Lock()
	defer o.unlock()

	if cur, ok := o.Calls.Of(s.Caller); !ok || cur != s || s.State != domain.Ringing {
		return
	}
	if !o.finishLocked(s, domain.OutcomeMissed) {
		return
	}
	o.deliverLocked(s.Caller, core.RejectedMsg{Type: core.TypeCallRejected, From: s.Callee, Reason: core.ReasonTimeout})
	o.deliverLocked(s.Callee, core.EndedMsg{Type: core.TypeCallEnded, From: s.Caller, Reason: core.ReasonTimeout})
}
