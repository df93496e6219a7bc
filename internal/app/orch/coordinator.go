// Package orch is the call session coordinator: it validates negotiation
// events against the session table and relays them between two identities.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/mmutlucod/realtime-call-app/internal/app"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/rs/zerolog/log"
)

// Alerter hands an out-of-band alert to the notification dispatcher.
// Dispatch must not block.
type Alerter interface {
	Dispatch(address string, n core.Notification)
}

type CallLog interface {
	Record(ctx context.Context, rec domain.CallRecord) error
}

// Coordinator owns the presence registry writes and the call table. Every
// exported method runs under one mutex, so handlers never interleave a
// read-modify-write on the same identity.
type Coordinator struct {
	Registry    *app.Registry
	Calls       *app.CallTable
	Policy      app.Policy
	Alerts      Alerter
	CallLog     CallLog
	RingTimeout time.Duration

	mu      sync.Mutex
	pending []domain.CallRecord
}

// Presence returns the identities currently available for a call.
func (o *Coordinator) Presence() []domain.Identity {
	return o.Registry.ListAvailable()
}

// Close disarms pending ring timers.
func (o *Coordinator) Close() {
	o.mu.Lock()
	defer o.unlock()
	o.Calls.DisarmAll()
}

// SessionCount is the number of ringing or active sessions.
func (o *Coordinator) SessionCount() int {
	o.mu.Lock()
	defer o.unlock()
	return o.Calls.Len()
}

// SessionOf returns a copy of the session id is part of.
func (o *Coordinator) SessionOf(id domain.IdentityID) (app.CallSession, bool) {
	o.mu.Lock()
	defer o.unlock()
	s, ok := o.Calls.Of(id)
	if !ok || s == nil {
		return app.CallSession{}, false
	}
	return *s, true
}

// Sessions returns copies of every current session.
func (o *Coordinator) Sessions() []app.CallSession {
	o.mu.Lock()
	defer o.unlock()
	all := o.Calls.Sessions()
	out := make([]app.CallSession, 0, len(all))
	for _, s := range all {
		out = append(out, *s)
	}
	return out
}

// unlock releases the coordinator and then writes the call-log entries that
// finished while it was held, so a slow log never blocks signaling.
func (o *Coordinator) unlock() {
	recs := o.pending
	o.pending = nil
	o.mu.Unlock()
	if len(recs) == 0 || o.CallLog == nil {
		return
	}
	for _, rec := range recs {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := o.CallLog.Record(ctx, rec); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("call", rec.ID).Msg("call log")
		}
		cancel()
	}
}

// senderLocked resolves the identity bound to connection h. A claimed id that
// disagrees with the bound one drops the message.
func (o *Coordinator) senderLocked(h core.ConnHandle, claimed domain.IdentityID, msgType string) (app.Record, bool) {
	rec, ok := o.Registry.GetByConnection(h)
	if !ok {
		log.Debug().Str("module", "app.orch").Str("conn", string(h)).Str("type", msgType).Msg("message before join, dropped")
		return app.Record{}, false
	}
	if claimed != "" && claimed != rec.Identity.ID {
		log.Warn().Str("module", "app.orch").Str("conn", string(h)).Str("identity", string(rec.Identity.ID)).
			Str("claimed", string(claimed)).Str("type", msgType).Msg("sender id mismatch, dropped")
		return app.Record{}, false
	}
	return rec, true
}

// deliverLocked sends v to the identity if present. An absent recipient is not
// an error: the frame is dropped.
func (o *Coordinator) deliverLocked(to domain.IdentityID, v any) bool {
	rec, ok := o.Registry.Get(to)
	if !ok {
		log.Debug().Str("module", "app.orch").Str("peer", string(to)).Err(domain.ErrUnknownRecipient).Msg("relay dropped")
		return false
	}
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("marshal")
		return false
	}
	return o.sendLocked(rec, frame)
}

func (o *Coordinator) sendLocked(rec app.Record, frame core.Frame) bool {
	if rec.Conn == nil {
		return false
	}
	err := rec.Conn.TrySend(frame)
	if err == nil {
		return true
	}
	if !errors.Is(err, core.ErrBackpressure) {
		log.Debug().Err(err).Str("module", "app.orch").Str("identity", string(rec.Identity.ID)).Msg("send dropped")
		return false
	}

	policy := o.Policy
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	switch policy.OnBackPressure(rec) {
	case app.KickConnection:
		log.Warn().Str("module", "app.orch").Str("identity", string(rec.Identity.ID)).Str("conn", string(rec.Handle)).Msg("slow connection kicked")
		rec.Conn.Close()
	case app.MarkSlow, app.DropFrame, app.NoAction:
		log.Debug().Str("module", "app.orch").Str("identity", string(rec.Identity.ID)).Msg("frame dropped on backpressure")
	}
	return false
}

func (o *Coordinator) broadcastPresenceLocked() {
	frame, err := json.Marshal(core.PresenceListMsg{
		Type:       core.TypePresenceList,
		Identities: o.Registry.ListAvailable(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("marshal presence")
		return
	}
	for _, rec := range o.Registry.Snapshot() {
		o.sendLocked(rec, frame)
	}
}

// finishLocked removes the session, clears both inCall flags and queues the
// outcome for the call log, written by unlock. It reports false when the session was already gone.
func (o *Coordinator) finishLocked(s *app.CallSession, outcome domain.CallOutcome) bool {
	if !o.Calls.Drop(s) {
		return false
	}
	o.Registry.SetInCall(s.Caller, false)
	o.Registry.SetInCall(s.Callee, false)
	log.Info().Str("module", "app.orch").Str("call", s.ID).Str("caller", string(s.Caller)).
		Str("callee", string(s.Callee)).Str("outcome", string(outcome)).Msg("call finished")

	if o.CallLog != nil {
		o.pending = append(o.pending, s.Record(outcome, o.Calls.Now()))
	}
	return true
}
