package app

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

// CallSession is one two-party session. Absence from the table is NoSession.
type CallSession struct {
	ID         string
	Caller     domain.IdentityID
	Callee     domain.IdentityID
	Type       domain.CallType
	State      domain.CallState
	Offer      json.RawMessage
	StartedAt  time.Time
	AnsweredAt time.Time

	timer *time.Timer
}

// Peer returns the other party of the session.
func (s *CallSession) Peer(id domain.IdentityID) domain.IdentityID {
	if id == s.Caller {
		return s.Callee
	}
	return s.Caller
}

func (s *CallSession) Has(id domain.IdentityID) bool {
	return id == s.Caller || id == s.Callee
}

// Record converts the session into a call-log entry.
func (s *CallSession) Record(outcome domain.CallOutcome, endedAt time.Time) domain.CallRecord {
	rec := domain.CallRecord{
		ID:        s.ID,
		Caller:    s.Caller,
		Callee:    s.Callee,
		Type:      s.Type,
		Outcome:   outcome,
		StartedAt: s.StartedAt,
		EndedAt:   endedAt,
	}
	if !s.AnsweredAt.IsZero() {
		answered := s.AnsweredAt
		rec.AnsweredAt = &answered
	}
	return rec
}

// CallTable maps every identity to the session it is part of, enforcing the
// NoSession -> Ringing -> Active -> NoSession transitions. An identity is in at
// most one session. CallTable is not safe for concurrent use; the coordinator
// owns it under its own lock.
type CallTable struct {
	byParty map[domain.IdentityID]*CallSession
	now     func() time.Time
}

func NewCallTable() *CallTable {
	return &CallTable{
		byParty: make(map[domain.IdentityID]*CallSession),
		now:     time.Now,
	}
}

func (t *CallTable) Of(id domain.IdentityID) (*CallSession, bool) {
	s, ok := t.byParty[id]
	return s, ok
}

func (t *CallTable) StateOf(id domain.IdentityID) domain.CallState {
	if s, ok := t.byParty[id]; ok {
		return s.State
	}
	return domain.NoSession
}

// Ring opens a Ringing session. Both parties must be free.
func (t *CallTable) Ring(caller, callee domain.IdentityID, ct domain.CallType, offer json.RawMessage) (*CallSession, error) {
	if caller == callee {
		return nil, domain.ErrSelfCall
	}
	if _, busy := t.byParty[caller]; busy {
		return nil, domain.ErrAlreadyInCall
	}
	if _, busy := t.byParty[callee]; busy {
		return nil, domain.ErrAlreadyInCall
	}
	s := &CallSession{
		ID:        uuid.NewString(),
		Caller:    caller,
		Callee:    callee,
		Type:      ct,
		State:     domain.Ringing,
		Offer:     offer,
		StartedAt: t.now(),
	}
	t.byParty[caller] = s
	t.byParty[callee] = s
	return s, nil
}

// Answer moves the Ringing session (caller -> callee) to Active.
func (t *CallTable) Answer(callee, caller domain.IdentityID) (*CallSession, error) {
	s, ok := t.byParty[callee]
	if !ok || s.State != domain.Ringing || s.Callee != callee || s.Caller != caller {
		return nil, domain.ErrNoSession
	}
	s.stopTimer()
	s.State = domain.Active
	s.AnsweredAt = t.now()
	s.Offer = nil
	return s, nil
}

// Between returns the session shared by a and b.
func (t *CallTable) Between(a, b domain.IdentityID) (*CallSession, bool) {
	s, ok := t.byParty[a]
	if !ok || !s.Has(b) || a == b {
		return nil, false
	}
	return s, true
}

// Drop removes s from the table and stops its ring timer. Dropping a session
// that is no longer in the table is a no-op.
func (t *CallTable) Drop(s *CallSession) bool {
	if t.byParty[s.Caller] != s {
		return false
	}
	s.stopTimer()
	delete(t.byParty, s.Caller)
	delete(t.byParty, s.Callee)
	return true
}

// Sessions returns every distinct session.
func (t *CallTable) Sessions() []*CallSession {
	seen := make(map[*CallSession]struct{}, len(t.byParty)/2)
	out := make([]*CallSession, 0, len(t.byParty)/2)
	for _, s := range t.byParty {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (t *CallTable) Len() int {
	return len(t.byParty) / 2
}

// Now is the table's clock.
func (t *CallTable) Now() time.Time { return t.now() }

// ArmTimer attaches a ring timer that is stopped when the session is answered or dropped.
func (s *CallSession) ArmTimer(d time.Duration, fn func()) {
	s.stopTimer()
	s.timer = time.AfterFunc(d, fn)
}

func (s *CallSession) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// DisarmAll stops every pending ring timer; used on shutdown.
func (t *CallTable) DisarmAll() {
	for _, s := range t.Sessions() {
		s.stopTimer()
	}
}
