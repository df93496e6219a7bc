package phone

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmutlucod/realtime-call-app/internal/adapters/rtc"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

// Call rings to. The call is live once the peer's answer arrives.
func (p *Phone) Call(ctx context.Context, to domain.IdentityID, ct domain.CallType) error {
	if ct == "" {
		ct = domain.CallAudio
	}
	if to == p.self.ID {
		return domain.ErrSelfCall
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusIdle {
		return ErrBusy
	}

	e, out, err := p.startEngine(ctx, to, ct == domain.CallVideo)
	if err != nil {
		return err
	}
	offer, err := e.CreateOffer(ctx)
	if err != nil {
		_ = e.Close()
		return err
	}
	raw, err := encode(offer)
	if err != nil {
		_ = e.Close()
		return err
	}
	if err := p.sig.Emit(core.InitiateMsg{
		Type:     core.TypeCallInitiate,
		From:     p.self.ID,
		To:       to,
		CallType: string(ct),
		Offer:    raw,
	}); err != nil {
		_ = e.Close()
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	out.release()
	p.engine = e
	p.peer = to
	p.callType = ct
	p.setStatusLocked(StatusCalling)
	p.logger.Info().Str("peer", string(to)).Str("call_type", string(ct)).Msg("calling")
	return nil
}

// Accept answers the ringing call. Candidates that arrived while ringing are
// handed to the engine before the answer is produced.
func (p *Phone) Accept(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusRinging || p.incoming == nil {
		return ErrNoCall
	}
	in := *p.incoming

	e, out, err := p.startEngine(ctx, in.From, in.CallType == domain.CallVideo)
	if err != nil {
		p.rejectLocked()
		return err
	}
	for _, c := range p.early {
		_ = e.AddRemoteCandidate(c)
	}
	p.early = nil

	answer, err := e.CreateAnswer(ctx, p.offer)
	if err != nil {
		_ = e.Close()
		p.rejectLocked()
		return err
	}
	raw, err := encode(answer)
	if err != nil {
		_ = e.Close()
		p.rejectLocked()
		return err
	}
	if err := p.sig.Emit(core.AcceptMsg{Type: core.TypeCallAccept, From: p.self.ID, To: in.From, Answer: raw}); err != nil {
		_ = e.Close()
		p.teardownLocked()
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	out.release()
	p.engine = e
	p.incoming = nil
	p.setStatusLocked(StatusInCall)
	p.logger.Info().Str("peer", string(in.From)).Msg("call accepted")
	return nil
}

func (p *Phone) Reject() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != StatusRinging {
		return ErrNoCall
	}
	p.rejectLocked()
	return nil
}

func (p *Phone) rejectLocked() {
	if err := p.sig.Emit(core.RejectMsg{Type: core.TypeCallReject, From: p.self.ID}); err != nil {
		p.logger.Warn().Err(err).Msg("reject not sent")
	}
	p.teardownLocked()
}

// Hangup ends an outgoing, ringing or live call.
func (p *Phone) Hangup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.status {
	case StatusRinging:
		p.rejectLocked()
	case StatusCalling, StatusInCall:
		if err := p.sig.Emit(core.EndMsg{Type: core.TypeCallEnd, UserID: p.self.ID, OtherUserID: p.peer}); err != nil {
			p.logger.Warn().Err(err).Msg("end not sent")
		}
		p.teardownLocked()
	default:
		return ErrNoCall
	}
	return nil
}

func (p *Phone) SetAudioEnabled(on bool) error {
	e, err := p.current()
	if err != nil {
		return err
	}
	return e.SetAudioEnabled(on)
}

func (p *Phone) SetVideoEnabled(on bool) error {
	e, err := p.current()
	if err != nil {
		return err
	}
	return e.SetVideoEnabled(on)
}

func (p *Phone) SwitchCamera(ctx context.Context) error {
	e, err := p.current()
	if err != nil {
		return err
	}
	return e.SwitchCamera(ctx)
}

func (p *Phone) current() (*rtc.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return nil, ErrNoCall
	}
	return p.engine, nil
}

func encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
