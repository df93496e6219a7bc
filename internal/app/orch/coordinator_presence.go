package orch

import (
	"github.com/mmutlucod/realtime-call-app/internal/app"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join registers the identity on connection h and broadcasts presence.
// A ringing call waiting for this identity is delivered again.
func (o *Coordinator) Join(h core.ConnHandle, conn core.SignalConnection, msg core.JoinMsg) error {
	ident, err := domain.NewIdentity(msg.IdentityID, msg.DisplayName)
	if err != nil {
		return err
	}
	ident.NotificationAddress = msg.NotificationAddress

	o.mu.Lock()
	defer o.unlock()

	// one connection carries one identity
	if cur, ok := o.Registry.GetByConnection(h); ok && cur.Identity.ID != ident.ID {
		o.leaveLocked(cur.Identity.ID)
	}

	ident.InCall = o.Calls.StateOf(ident.ID) == domain.Active
	prev, replaced := o.Registry.Upsert(app.Record{Identity: ident, Handle: h, Conn: conn})
	if replaced && prev.Handle != h && prev.Conn != nil {
		log.Info().Str("module", "app.orch").Str("identity", string(ident.ID)).Str("conn", string(prev.Handle)).Msg("connection superseded")
		prev.Conn.Close()
	}

	if s, ok := o.Calls.Of(ident.ID); ok && s.State == domain.Ringing && s.Callee == ident.ID {
		if caller, ok := o.Registry.Get(s.Caller); ok {
			o.deliverLocked(ident.ID, incoming(s, caller.Identity))
		}
	}

	o.broadcastPresenceLocked()
	return nil
}

// RegisterNotificationAddress files the token for the identity bound to h.
func (o *Coordinator) RegisterNotificationAddress(h core.ConnHandle, msg core.RegisterAddressMsg) {
	o.mu.Lock()
	defer o.unlock()
	rec, ok := o.senderLocked(h, msg.IdentityID, core.TypeRegisterAddress)
	if !ok {
		return
	}
	o.Registry.SetNotificationAddress(rec.Identity.ID, msg.Token)
}

// Leave is an explicit logout over a live connection.
func (o *Coordinator) Leave(h core.ConnHandle) {
	o.remove(h, "leave")
}

// Disconnect is called by the transport when connection h is gone.
// Disconnecting an unknown or already removed connection has no effect.
func (o *Coordinator) Disconnect(h core.ConnHandle) {
	o.remove(h, "disconnect")
}

func (o *Coordinator) remove(h core.ConnHandle, why string) {
	o.mu.Lock()
	defer o.unlock()
	rec, ok := o.Registry.GetByConnection(h)
	if !ok {
		return
	}
	log.Info().Str("module", "app.orch").Str("identity", string(rec.Identity.ID)).Str("conn", string(h)).Msg(why)
	o.leaveLocked(rec.Identity.ID)
	o.broadcastPresenceLocked()
}

// leaveLocked removes the identity and force-ends its session. A callee that
// is still ringing and can be alerted keeps ringing until the ring timeout,
// so it can come back through the notification.
func (o *Coordinator) leaveLocked(id domain.IdentityID) {
	o.Registry.Remove(id)

	s, ok := o.Calls.Of(id)
	if !ok {
		return
	}
	if s.State == domain.Ringing && s.Callee == id {
		if addr, ok := o.Registry.NotificationAddress(id); ok && addr != "" {
			log.Info().Str("module", "app.orch").Str("call", s.ID).Str("identity", string(id)).Msg("callee offline, still ringing")
			return
		}
	}

	outcome := domain.OutcomeDropped
	switch {
	case s.State == domain.Ringing && s.Caller == id:
		outcome = domain.OutcomeCancelled
	case s.State == domain.Ringing:
		outcome = domain.OutcomeMissed
	}
	peer := s.Peer(id)
	if o.finishLocked(s, outcome) {
		o.deliverLocked(peer, core.EndedMsg{Type: core.TypeCallEnded, From: id, Reason: core.ReasonDisconnect})
	}
}
