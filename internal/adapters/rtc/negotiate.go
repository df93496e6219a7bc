package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// CreateOffer produces and applies the local offer. It is valid once per
// session.
func (e *Engine) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if !e.negMu.TryLock() {
		return webrtc.SessionDescription{}, ErrInvalidState
	}
	defer e.negMu.Unlock()

	pc, err := e.beginDescription(ctx, true)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("set local offer", err)
	}
	e.setState(StateNegotiating)
	e.logger.Debug().Msg("offer created")
	return offer, nil
}

// CreateAnswer applies the remote offer, flushes buffered candidates and
// produces the local answer.
func (e *Engine) CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if !e.negMu.TryLock() {
		return webrtc.SessionDescription{}, ErrInvalidState
	}
	defer e.negMu.Unlock()

	if offer.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, e.violation("answer requested for %s", offer.Type)
	}
	pc, err := e.beginDescription(ctx, false)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	if err := e.setRemote(pc, offer); err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("set remote offer", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("set local answer", err)
	}
	e.setState(StateNegotiating)
	e.logger.Debug().Msg("answer created")
	return answer, nil
}

// ApplyRemoteAnswer applies the peer's answer to an outstanding offer,
// including restart offers. A duplicate answer is ignored.
func (e *Engine) ApplyRemoteAnswer(ctx context.Context, answer webrtc.SessionDescription) error {
	if !e.negMu.TryLock() {
		return ErrInvalidState
	}
	defer e.negMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	pc, err := e.session()
	if err != nil {
		return err
	}

	switch pc.SignalingState() {
	case webrtc.SignalingStateHaveLocalOffer:
		if answer.Type != webrtc.SDPTypeAnswer {
			return e.violation("expected answer, got %s", answer.Type)
		}
		if err := e.setRemote(pc, answer); err != nil {
			return e.stepFailed("set remote answer", err)
		}
		e.logger.Debug().Msg("remote answer applied")
		return nil
	case webrtc.SignalingStateStable:
		if pc.RemoteDescription() != nil {
			e.logger.Debug().Msg("duplicate answer ignored")
			return nil
		}
	}
	return e.violation("answer without a local offer")
}

// AddRemoteCandidate applies c, or queues it until the remote description
// is set. Queued candidates are applied in arrival order.
func (e *Engine) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	if e.State() == StateClosed {
		return ErrClosed
	}
	e.candMu.Lock()
	defer e.candMu.Unlock()
	if !e.remoteSet {
		e.pending.push(c)
		return nil
	}
	return e.applyCandidate(c)
}

// HandleRestartOffer answers an ICE restart started by the peer.
func (e *Engine) HandleRestartOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if !e.negMu.TryLock() {
		return webrtc.SessionDescription{}, ErrInvalidState
	}
	defer e.negMu.Unlock()

	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	pc, err := e.session()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if e.Offerer() {
		return webrtc.SessionDescription{}, e.violation("restart offer received by the offerer")
	}

	if err := e.setRemote(pc, offer); err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("set restart offer", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("create restart answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, e.stepFailed("set restart answer", err)
	}
	e.logger.Info().Msg("answered ICE restart")
	return answer, nil
}

// restartICE runs on the offerer only; the answerer waits for the peer's
// restart offer until the attempt deadline of recovery runs out.
func (e *Engine) restartICE() error {
	e.mu.Lock()
	pc, offerer, fn := e.pc, e.offerer, e.onRestart
	e.mu.Unlock()
	if pc == nil {
		return ErrClosed
	}
	if !offerer {
		e.logger.Info().Msg("connectivity lost, waiting for peer restart")
		return nil
	}

	e.negMu.Lock()
	defer e.negMu.Unlock()

	offer, err := pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return err
	}
	e.candMu.Lock()
	e.remoteSet = false
	e.candMu.Unlock()
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	e.logger.Info().Msg("ICE restart offer created")
	if fn != nil {
		fn(offer)
	}
	return nil
}

func (e *Engine) session() (*webrtc.PeerConnection, error) {
	e.mu.Lock()
	state, pc := e.state, e.pc
	e.mu.Unlock()
	if state == StateClosed {
		return nil, ErrClosed
	}
	if pc == nil {
		return nil, e.violation("no session")
	}
	return pc, nil
}

// beginDescription claims the single offer/answer slot of the session.
func (e *Engine) beginDescription(ctx context.Context, offerer bool) (*webrtc.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	pc := e.pc
	if pc == nil || e.described {
		e.mu.Unlock()
		return nil, e.violation("offer/answer already produced or no session")
	}
	e.described = true
	e.offerer = offerer
	e.mu.Unlock()
	return pc, nil
}

// setRemote applies desc and flushes queued candidates under candMu so no
// candidate can overtake the queue.
func (e *Engine) setRemote(pc *webrtc.PeerConnection, desc webrtc.SessionDescription) error {
	e.candMu.Lock()
	defer e.candMu.Unlock()
	if err := pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	e.remoteSet = true
	for _, c := range e.pending.drain() {
		if err := e.applyCandidate(c); err != nil {
			e.logger.Warn().Err(err).Msg("buffered candidate rejected")
		}
	}
	return nil
}

func (e *Engine) stepFailed(step string, err error) error {
	if e.State() == StateClosed {
		return ErrClosed
	}
	return e.violation("%s: %v", step, err)
}
