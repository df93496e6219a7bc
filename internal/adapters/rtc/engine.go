package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine drives one peer session: local media, offer/answer, trickled
// candidates, remote media and connectivity recovery.
//
// Negotiation steps are serialized; a step attempted while another runs
// fails with ErrInvalidState. A step taken out of order fails with
// ErrNegotiationState and closes the engine.
type Engine struct {
	id     string
	cfg    Config
	device Device
	api    *webrtc.API
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	negMu sync.Mutex

	mu        sync.Mutex
	state     State
	pc        *webrtc.PeerConnection
	media     *LocalMedia
	offerer   bool
	described bool
	rec       *recovery
	stream    *RemoteStream
	onICE     func(webrtc.ICECandidateInit)
	onFailure func(error)
	onRestart func(webrtc.SessionDescription)

	candMu         sync.Mutex
	remoteSet      bool
	pending        candidateQueue
	applyCandidate func(webrtc.ICECandidateInit) error

	states    *Latest[State]
	remote    *Latest[*RemoteStream]
	closeOnce sync.Once
}

// NewEngine prepares an idle engine. A nil device selects the synthetic one.
func NewEngine(cfg Config, dev Device) (*Engine, error) {
	if dev == nil {
		dev = NewSyntheticDevice()
	}
	cfg = cfg.withDefaults()
	api, err := newAPI(cfg, dev)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:     id,
		cfg:    cfg,
		device: dev,
		api:    api,
		logger: log.With().Str("module", "rtc.engine").Str("engine", id[:8]).Logger(),
		ctx:    ctx,
		cancel: cancel,
		states: NewLatest[State](),
		remote: NewLatest[*RemoteStream](),
	}
	e.states.Publish(StateIdle)
	return e, nil
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Media() *LocalMedia {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.media
}

// Offerer reports whether this side produced the initial offer.
func (e *Engine) Offerer() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offerer
}

func (e *Engine) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	e.onICE = fn
	e.mu.Unlock()
}

// OnFailure is called once when recovery gives up and the engine closes.
func (e *Engine) OnFailure(fn func(error)) {
	e.mu.Lock()
	e.onFailure = fn
	e.mu.Unlock()
}

// OnRestartOffer receives ICE restart offers that must reach the peer.
func (e *Engine) OnRestartOffer(fn func(webrtc.SessionDescription)) {
	e.mu.Lock()
	e.onRestart = fn
	e.mu.Unlock()
}

// OnRemoteStream delivers the remote stream once it exists, immediately if
// it already does.
func (e *Engine) OnRemoteStream(fn func(*RemoteStream)) (cancel func()) {
	return e.remote.Subscribe(fn)
}

func (e *Engine) OnStateChange(fn func(State)) (cancel func()) {
	return e.states.Subscribe(fn)
}

// StartLocalMedia captures audio, and video when asked. On failure no
// session state is created and the engine stays idle.
func (e *Engine) StartLocalMedia(ctx context.Context, wantVideo bool) (*LocalMedia, error) {
	if !e.negMu.TryLock() {
		return nil, ErrInvalidState
	}
	defer e.negMu.Unlock()

	e.mu.Lock()
	switch {
	case e.state == StateClosed:
		e.mu.Unlock()
		return nil, ErrClosed
	case e.state != StateIdle || e.media != nil || e.pc != nil:
		e.mu.Unlock()
		return nil, e.violation("local media after session start")
	}
	e.mu.Unlock()

	srcs, err := e.device.Capture(ctx, wantVideo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}
	m := newLocalMedia(srcs)
	if m.Audio == nil || (wantVideo && m.Video == nil) {
		_ = m.Stop()
		return nil, fmt.Errorf("%w: device returned no usable tracks", ErrMediaAcquisition)
	}

	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		_ = m.Stop()
		return nil, ErrClosed
	}
	e.media = m
	e.mu.Unlock()

	e.logger.Info().Bool("video", m.HasVideo()).Msg("local media ready")
	e.setState(StateLocalMediaReady)
	return m, nil
}

// CreateSession opens the peer connection and attaches the local tracks.
func (e *Engine) CreateSession() error {
	if !e.negMu.TryLock() {
		return ErrInvalidState
	}
	defer e.negMu.Unlock()

	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.pc != nil {
		e.mu.Unlock()
		return e.violation("session already created")
	}
	media := e.media
	e.mu.Unlock()

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.cfg.ICEServers})
	if err != nil {
		return err
	}
	if err := e.attach(pc, media); err != nil {
		_ = pc.Close()
		return err
	}

	rec := newRecovery(e.cfg.DisconnectGrace, e.cfg.RestartTimeout, e.cfg.MaxRestarts, e.restartICE, e.fail)
	e.bindHandlers(pc, rec)

	e.candMu.Lock()
	if e.applyCandidate == nil {
		e.applyCandidate = pc.AddICECandidate
	}
	e.candMu.Unlock()

	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		_ = pc.Close()
		return ErrClosed
	}
	e.pc = pc
	e.rec = rec
	e.mu.Unlock()

	e.logger.Info().Int("ice_servers", len(e.cfg.ICEServers)).Msg("session created")
	return nil
}

func (e *Engine) attach(pc *webrtc.PeerConnection, media *LocalMedia) error {
	hasVideo := false
	for _, t := range media.tracks() {
		sender, err := pc.AddTrack(t.src.Track())
		if err != nil {
			return err
		}
		t.bind(sender)
		if !t.Enabled() {
			if err := sender.ReplaceTrack(nil); err != nil {
				return err
			}
		}
		go drainRTCP(sender)
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			hasVideo = true
		}
	}
	recvOnly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if media == nil || media.Audio == nil {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvOnly); err != nil {
			return err
		}
	}
	if !hasVideo {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvOnly); err != nil {
			return err
		}
	}
	return nil
}

// drainRTCP keeps interceptors fed; without a reader RTCP backs up.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (e *Engine) bindHandlers(pc *webrtc.PeerConnection, rec *recovery) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		e.mu.Lock()
		fn := e.onICE
		e.mu.Unlock()
		if fn != nil {
			fn(c.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		e.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.logger.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateConnected {
			e.setState(StateConnected)
		}
		rec.observe(s)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		e.handleTrack(track)
	})
}

func (e *Engine) handleTrack(track *webrtc.TrackRemote) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	rs := e.stream
	first := rs == nil
	if first {
		rs = newRemoteStream(track.StreamID())
		e.stream = rs
	}
	e.mu.Unlock()

	rt := &RemoteTrack{Src: track}
	rs.add(rt)
	go rt.loop(e.ctx, &e.logger)
	if first {
		e.remote.Publish(rs)
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	if e.state == StateClosed || e.state == s {
		e.mu.Unlock()
		return
	}
	// Connected is only reachable through negotiation.
	if s == StateConnected && e.state != StateNegotiating {
		e.mu.Unlock()
		return
	}
	e.state = s
	e.mu.Unlock()
	e.states.Publish(s)
}

// violation closes the engine and returns an ErrNegotiationState.
func (e *Engine) violation(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrNegotiationState, fmt.Sprintf(format, args...))
	e.logger.Error().Err(err).Msg("negotiation failed, closing")
	_ = e.Close()
	return err
}

func (e *Engine) fail(err error) {
	e.logger.Error().Err(err).Msg("connectivity failed, closing")
	e.mu.Lock()
	fn := e.onFailure
	e.mu.Unlock()
	_ = e.Close()
	if fn != nil {
		fn(err)
	}
}

// Close stops local tracks, releases the peer connection and forgets the
// remote stream. It is safe to call repeatedly and from any state.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		pc, media, rec := e.pc, e.media, e.rec
		e.pc, e.media, e.stream = nil, nil, nil
		e.state = StateClosed
		e.mu.Unlock()

		if rec != nil {
			rec.stop()
		}
		e.cancel()
		if mErr := media.Stop(); mErr != nil {
			e.logger.Warn().Err(mErr).Msg("stop local media")
		}
		if pc != nil {
			err = pc.Close()
		}

		e.candMu.Lock()
		e.remoteSet = false
		e.pending.drain()
		e.candMu.Unlock()

		e.remote.Reset()
		e.states.Publish(StateClosed)
		if err != nil {
			e.logger.Error().Err(err).Msg("close error")
		} else {
			e.logger.Info().Msg("closed")
		}
	})
	return err
}
