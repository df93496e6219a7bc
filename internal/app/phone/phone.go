// Package phone is the client-side call controller. It turns signaling
// messages into negotiation engine steps and back.
package phone

import (
	"context"
	"errors"
	"sync"

	"github.com/mmutlucod/realtime-call-app/internal/adapters/rtc"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBusy     = errors.New("phone: a call is already in progress")
	ErrNoCall   = errors.New("phone: no call to act on")
	ErrNotReady = errors.New("phone: signaling not connected")
)

// Signaler is the client signaling transport.
type Signaler interface {
	Emit(v any) error
	On(typ string, fn func(data []byte)) (off func())
	OnConnect(fn func())
	OnDisconnect(fn func(error))
}

// EngineFactory builds a fresh negotiation engine for each call.
type EngineFactory func() (*rtc.Engine, error)

type Status int

const (
	StatusIdle Status = iota
	StatusCalling
	StatusRinging
	StatusInCall
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCalling:
		return "calling"
	case StatusRinging:
		return "ringing"
	case StatusInCall:
		return "in-call"
	}
	return "unknown"
}

// Incoming describes a ringing call.
type Incoming struct {
	CallID   string
	From     domain.IdentityID
	Caller   domain.Identity
	CallType domain.CallType
}

type Options struct {
	ID        string
	Name      string
	PushToken string
}

type Phone struct {
	self      domain.Identity
	pushToken string
	sig       Signaler
	newEngine EngineFactory
	logger    zerolog.Logger

	mu       sync.Mutex
	status   Status
	peer     domain.IdentityID
	callType domain.CallType
	engine   *rtc.Engine
	offer    webrtc.SessionDescription
	incoming *Incoming
	early    []webrtc.ICECandidateInit
	offs     []func()

	presence   *rtc.Latest[[]domain.Identity]
	statuses   *rtc.Latest[Status]
	remote     *rtc.Latest[*rtc.RemoteStream]
	onIncoming func(Incoming)
	onEnded    func(reason string)
}

func New(opts Options, sig Signaler, newEngine EngineFactory) (*Phone, error) {
	self, err := domain.NewIdentity(opts.ID, opts.Name)
	if err != nil {
		return nil, err
	}
	p := &Phone{
		self:      self,
		pushToken: opts.PushToken,
		sig:       sig,
		newEngine: newEngine,
		logger:    log.With().Str("module", "phone").Str("identity", string(self.ID)).Logger(),
		presence:  rtc.NewLatest[[]domain.Identity](),
		statuses:  rtc.NewLatest[Status](),
		remote:    rtc.NewLatest[*rtc.RemoteStream](),
	}
	p.statuses.Publish(StatusIdle)

	sig.OnConnect(p.announce)
	sig.OnDisconnect(p.signalingLost)
	p.offs = append(p.offs,
		sig.On(core.TypePresenceList, p.handlePresence),
		sig.On(core.TypeCallIncoming, p.handleIncoming),
		sig.On(core.TypeCallAccepted, p.handleAccepted),
		sig.On(core.TypeCallRejected, p.handleRejected),
		sig.On(core.TypeCallEnded, p.handleEnded),
		sig.On(core.TypeCandidate, p.handleCandidate),
		sig.On(core.TypeRestart, p.handleRestart),
		sig.On(core.TypeRestartAnswer, p.handleRestartAnswer),
		sig.On(core.TypeError, p.handleError),
	)
	return p, nil
}

func (p *Phone) Self() domain.Identity { return p.self }

func (p *Phone) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Peer is the other party of the current call, if any.
func (p *Phone) Peer() domain.IdentityID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

// Presence is the last list of available identities, without self.
func (p *Phone) Presence() []domain.Identity {
	v, _ := p.presence.Get()
	return v
}

func (p *Phone) OnPresence(fn func([]domain.Identity)) (cancel func()) {
	return p.presence.Subscribe(fn)
}

// OnStatus listeners run while the phone is locked and must not call back
// into it.
func (p *Phone) OnStatus(fn func(Status)) (cancel func()) {
	return p.statuses.Subscribe(fn)
}

// OnRemoteStream follows the remote media of whichever call is current.
func (p *Phone) OnRemoteStream(fn func(*rtc.RemoteStream)) (cancel func()) {
	return p.remote.Subscribe(fn)
}

func (p *Phone) OnIncoming(fn func(Incoming)) {
	p.mu.Lock()
	p.onIncoming = fn
	p.mu.Unlock()
}

// OnEnded reports why the current call finished.
func (p *Phone) OnEnded(fn func(reason string)) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

// announce runs on every (re)connect.
func (p *Phone) announce() {
	if err := p.sig.Emit(core.JoinMsg{
		Type:        core.TypePresenceJoin,
		IdentityID:  string(p.self.ID),
		DisplayName: p.self.DisplayName,
	}); err != nil {
		p.logger.Warn().Err(err).Msg("join not sent")
		return
	}
	if p.pushToken != "" {
		if err := p.sig.Emit(core.RegisterAddressMsg{
			Type:       core.TypeRegisterAddress,
			IdentityID: p.self.ID,
			Token:      p.pushToken,
		}); err != nil {
			p.logger.Warn().Err(err).Msg("push token not sent")
		}
	}
}

// signalingLost drops the current call. The server ends every session of a
// connection that goes away, so nothing is sent.
func (p *Phone) signalingLost(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusIdle {
		return
	}
	p.logger.Warn().Err(err).Str("peer", string(p.peer)).Str("status", p.status.String()).Msg("signaling lost, call dropped")
	p.endedLocked(core.ReasonDisconnect)
}

// Leave logs out without closing the transport.
func (p *Phone) Leave() error {
	_ = p.Hangup()
	return p.sig.Emit(core.Envelope{Type: core.TypePresenceLeave})
}

// Close ends any call and detaches from the transport.
func (p *Phone) Close() {
	_ = p.Hangup()
	p.mu.Lock()
	offs := p.offs
	p.offs = nil
	p.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

func (p *Phone) setStatusLocked(s Status) {
	if p.status == s {
		return
	}
	p.status = s
	p.logger.Debug().Str("status", s.String()).Str("peer", string(p.peer)).Msg("status")
	p.statuses.Publish(s)
}

// teardownLocked drops the current call without signaling.
func (p *Phone) teardownLocked() {
	if p.engine != nil {
		_ = p.engine.Close()
		p.engine = nil
	}
	p.peer = ""
	p.callType = ""
	p.incoming = nil
	p.early = nil
	p.offer = webrtc.SessionDescription{}
	p.remote.Reset()
	p.setStatusLocked(StatusIdle)
}

func (p *Phone) endedLocked(reason string) {
	fn := p.onEnded
	p.teardownLocked()
	if fn != nil {
		go fn(reason)
	}
}

// outbox holds local candidates until the offer or answer they belong to
// has been sent, then forwards them in gathering order.
type outbox struct {
	mu   sync.Mutex
	open bool
	held []webrtc.ICECandidateInit
	send func(webrtc.ICECandidateInit)
}

func (o *outbox) push(c webrtc.ICECandidateInit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		o.held = append(o.held, c)
		return
	}
	o.send(c)
}

func (o *outbox) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open = true
	for _, c := range o.held {
		o.send(c)
	}
	o.held = nil
}

// startEngine builds an engine for a call with peer and wires its callbacks
// to signaling.
func (p *Phone) startEngine(ctx context.Context, peer domain.IdentityID, video bool) (*rtc.Engine, *outbox, error) {
	e, err := p.newEngine()
	if err != nil {
		return nil, nil, err
	}
	if _, err := e.StartLocalMedia(ctx, video); err != nil {
		_ = e.Close()
		return nil, nil, err
	}
	if err := e.CreateSession(); err != nil {
		_ = e.Close()
		return nil, nil, err
	}

	out := &outbox{send: func(c webrtc.ICECandidateInit) {
		raw, err := encode(c)
		if err != nil {
			return
		}
		if err := p.sig.Emit(core.CandidateMsg{Type: core.TypeCandidate, To: peer, Candidate: raw}); err != nil {
			p.logger.Debug().Err(err).Msg("candidate not sent")
		}
	}}
	e.OnICECandidate(out.push)
	e.OnRestartOffer(func(offer webrtc.SessionDescription) {
		raw, err := encode(offer)
		if err != nil {
			return
		}
		if err := p.sig.Emit(core.RestartMsg{Type: core.TypeRestart, To: peer, Offer: raw}); err != nil {
			p.logger.Warn().Err(err).Msg("restart offer not sent")
		}
	})
	e.OnFailure(func(err error) { p.engineFailed(e, err) })
	e.OnRemoteStream(p.remote.Publish)
	return e, out, nil
}

func (p *Phone) engineFailed(e *rtc.Engine, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine != e {
		return
	}
	p.logger.Error().Err(err).Str("peer", string(p.peer)).Msg("call failed")
	_ = p.sig.Emit(core.EndMsg{Type: core.TypeCallEnd, UserID: p.self.ID, OtherUserID: p.peer})
	p.endedLocked("failed")
}
