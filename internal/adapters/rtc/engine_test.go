package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	// Empty ICE config means host candidates only (loopback).
	e, err := NewEngine(Config{}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func prepare(t *testing.T, e *Engine, video bool) {
	t.Helper()
	if _, err := e.StartLocalMedia(context.Background(), video); err != nil {
		t.Fatalf("StartLocalMedia: %v", err)
	}
	if err := e.CreateSession(); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func waitState(t *testing.T, e *Engine, want State) {
	t.Helper()
	ch := make(chan struct{})
	var once sync.Once
	cancel := e.OnStateChange(func(s State) {
		if s == want {
			once.Do(func() { close(ch) })
		}
	})
	defer cancel()
	select {
	case <-ch:
	case <-time.After(15 * time.Second):
		t.Fatalf("state %s never reached, at %s", want, e.State())
	}
}

// connect negotiates caller -> callee over trickled candidates and returns
// the answer the caller applied.
func connect(t *testing.T, caller, callee *Engine) webrtc.SessionDescription {
	t.Helper()
	ctx := context.Background()
	caller.OnICECandidate(func(c webrtc.ICECandidateInit) { _ = callee.AddRemoteCandidate(c) })
	callee.OnICECandidate(func(c webrtc.ICECandidateInit) { _ = caller.AddRemoteCandidate(c) })

	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	answer, err := callee.CreateAnswer(ctx, offer)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := caller.ApplyRemoteAnswer(ctx, answer); err != nil {
		t.Fatalf("ApplyRemoteAnswer: %v", err)
	}
	waitState(t, caller, StateConnected)
	waitState(t, callee, StateConnected)
	return answer
}

func TestEngineLoopbackCall(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	prepare(t, a, true)
	prepare(t, b, true)

	streams := make(chan *RemoteStream, 1)
	b.OnRemoteStream(func(rs *RemoteStream) { streams <- rs })

	answer := connect(t, a, b)

	var rs *RemoteStream
	select {
	case rs = <-streams:
	case <-time.After(10 * time.Second):
		t.Fatal("callee never received a remote stream")
	}

	deadline := time.Now().Add(10 * time.Second)
	for rs.Packets() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if rs.Packets() == 0 {
		t.Fatal("no RTP received on the remote stream")
	}

	// Late subscribers get the existing stream synchronously.
	var replayed *RemoteStream
	b.OnRemoteStream(func(s *RemoteStream) { replayed = s })()
	if replayed != rs {
		t.Fatal("remote stream not replayed to late subscriber")
	}

	// A duplicate answer is a no-op.
	if err := a.ApplyRemoteAnswer(context.Background(), answer); err != nil {
		t.Fatalf("duplicate answer: %v", err)
	}
	if a.State() != StateConnected {
		t.Fatalf("state=%s after duplicate answer", a.State())
	}
	if !a.Offerer() || b.Offerer() {
		t.Fatal("offerer flags wrong")
	}
}

func TestEngineBuffersEarlyCandidatesInOrder(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	prepare(t, a, false)
	prepare(t, b, false)

	var applied []string
	b.candMu.Lock()
	b.applyCandidate = func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	}
	b.candMu.Unlock()

	early := []string{
		"candidate:1 1 udp 2130706431 192.0.2.1 50001 typ host",
		"candidate:2 1 udp 2130706431 192.0.2.2 50002 typ host",
		"candidate:3 1 udp 2130706431 192.0.2.3 50003 typ host",
	}
	for _, c := range early {
		if err := b.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: c}); err != nil {
			t.Fatalf("AddRemoteCandidate: %v", err)
		}
	}
	if len(applied) != 0 {
		t.Fatalf("applied before remote description: %v", applied)
	}

	offer, err := a.CreateOffer(context.Background())
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := b.CreateAnswer(context.Background(), offer); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if len(applied) != len(early) {
		t.Fatalf("applied=%v, want %v", applied, early)
	}
	for i := range early {
		if applied[i] != early[i] {
			t.Fatalf("applied[%d]=%q, want %q", i, applied[i], early[i])
		}
	}

	late := "candidate:4 1 udp 2130706431 192.0.2.4 50004 typ host"
	if err := b.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: late}); err != nil {
		t.Fatalf("AddRemoteCandidate: %v", err)
	}
	if len(applied) != 4 || applied[3] != late {
		t.Fatalf("late candidate not applied directly: %v", applied)
	}
	if b.pending.len() != 0 {
		t.Fatalf("queue not drained: %d", b.pending.len())
	}
}

func TestEngineSecondOfferClosesSession(t *testing.T) {
	e := newTestEngine(t)
	prepare(t, e, false)
	if _, err := e.CreateOffer(context.Background()); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	_, err := e.CreateOffer(context.Background())
	if !errors.Is(err, ErrNegotiationState) {
		t.Fatalf("err=%v, want ErrNegotiationState", err)
	}
	if e.State() != StateClosed {
		t.Fatalf("state=%s, want closed", e.State())
	}
}

func TestEngineAnswerWithoutOffer(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	prepare(t, a, false)
	prepare(t, b, false)

	offer, err := a.CreateOffer(context.Background())
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	answer, err := b.CreateAnswer(context.Background(), offer)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}

	c := newTestEngine(t)
	prepare(t, c, false)
	if err := c.ApplyRemoteAnswer(context.Background(), answer); !errors.Is(err, ErrNegotiationState) {
		t.Fatalf("err=%v, want ErrNegotiationState", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("state=%s, want closed", c.State())
	}
}

func TestEngineConcurrentStepRejected(t *testing.T) {
	e := newTestEngine(t)
	prepare(t, e, false)

	e.negMu.Lock()
	_, err := e.CreateOffer(context.Background())
	e.negMu.Unlock()
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err=%v, want ErrInvalidState", err)
	}
	if e.State() == StateClosed {
		t.Fatal("concurrent misuse closed the engine")
	}
	if _, err := e.CreateOffer(context.Background()); err != nil {
		t.Fatalf("CreateOffer after contention: %v", err)
	}
}

type brokenDevice struct{ SyntheticDevice }

func (*brokenDevice) Capture(context.Context, bool) ([]Source, error) {
	return nil, errors.New("permission denied")
}

func TestEngineMediaAcquisitionFailure(t *testing.T) {
	e, err := NewEngine(Config{}, &brokenDevice{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.StartLocalMedia(context.Background(), true); !errors.Is(err, ErrMediaAcquisition) {
		t.Fatalf("err=%v, want ErrMediaAcquisition", err)
	}
	if e.State() != StateIdle {
		t.Fatalf("state=%s, want idle", e.State())
	}
	if e.Media() != nil {
		t.Fatal("partial media left behind")
	}
}

func TestEngineTogglesAndCameraSwitch(t *testing.T) {
	e := newTestEngine(t)
	prepare(t, e, true)
	m := e.Media()

	if err := e.SetVideoEnabled(false); err != nil {
		t.Fatalf("SetVideoEnabled(false): %v", err)
	}
	if m.Video.State() != TrackDisabled {
		t.Fatalf("video state=%d, want disabled", m.Video.State())
	}
	if err := e.SetAudioEnabled(false); err != nil {
		t.Fatalf("SetAudioEnabled(false): %v", err)
	}
	if err := e.SetVideoEnabled(true); err != nil {
		t.Fatalf("SetVideoEnabled(true): %v", err)
	}
	if !m.Video.Enabled() || m.Audio.Enabled() {
		t.Fatal("toggle states wrong")
	}

	before := m.Video.src.Track().ID()
	if err := e.SwitchCamera(context.Background()); err != nil {
		t.Fatalf("SwitchCamera: %v", err)
	}
	if after := m.Video.src.Track().ID(); after == before {
		t.Fatalf("camera not switched, still %s", after)
	}
}

func TestEngineAudioOnlyHasNoVideo(t *testing.T) {
	e := newTestEngine(t)
	prepare(t, e, false)
	if err := e.SetVideoEnabled(true); !errors.Is(err, ErrNoLocalTrack) {
		t.Fatalf("err=%v, want ErrNoLocalTrack", err)
	}
	if err := e.SwitchCamera(context.Background()); !errors.Is(err, ErrNoLocalTrack) {
		t.Fatalf("err=%v, want ErrNoLocalTrack", err)
	}
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Close(); err != nil {
		t.Fatalf("Close from idle: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if e.State() != StateClosed {
		t.Fatalf("state=%s", e.State())
	}
	if err := e.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v, want ErrClosed", err)
	}
	if _, err := e.StartLocalMedia(context.Background(), false); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v, want ErrClosed", err)
	}

	live := newTestEngine(t)
	prepare(t, live, true)
	m := live.Media()
	_ = live.Close()
	_ = live.Close()
	if m.Audio.State() != TrackStopped || m.Video.State() != TrackStopped {
		t.Fatal("local tracks not stopped")
	}
}
