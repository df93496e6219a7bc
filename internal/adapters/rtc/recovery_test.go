package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

type recoveryProbe struct {
	restarts chan struct{}
	failures chan error
}

func newProbe(grace time.Duration, max int) (*recovery, *recoveryProbe) {
	p := &recoveryProbe{restarts: make(chan struct{}, 8), failures: make(chan error, 1)}
	r := newRecovery(grace, time.Hour, max,
		func() error { p.restarts <- struct{}{}; return nil },
		func(err error) { p.failures <- err },
	)
	return r, p
}

func (p *recoveryProbe) waitRestart(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-p.restarts:
	case <-time.After(within):
		t.Fatal("no restart")
	}
}

func TestRecoveryFailedRestartsAtOnce(t *testing.T) {
	r, p := newProbe(time.Hour, 3)
	r.observe(webrtc.PeerConnectionStateFailed)
	p.waitRestart(t, time.Second)
	if r.Attempts() != 1 {
		t.Fatalf("attempts=%d, want 1", r.Attempts())
	}
}

func TestRecoveryDisconnectedWaitsGrace(t *testing.T) {
	r, p := newProbe(50*time.Millisecond, 3)
	r.observe(webrtc.PeerConnectionStateDisconnected)
	select {
	case <-p.restarts:
		t.Fatal("restart before grace elapsed")
	case <-time.After(10 * time.Millisecond):
	}
	p.waitRestart(t, time.Second)
}

func TestRecoveryBlipWithinGrace(t *testing.T) {
	r, p := newProbe(100*time.Millisecond, 3)
	r.observe(webrtc.PeerConnectionStateDisconnected)
	r.observe(webrtc.PeerConnectionStateConnected)
	select {
	case <-p.restarts:
		t.Fatal("restart after connection came back")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestRecoveryGivesUp(t *testing.T) {
	r, p := newProbe(time.Hour, 1)
	r.observe(webrtc.PeerConnectionStateFailed)
	p.waitRestart(t, time.Second)
	r.observe(webrtc.PeerConnectionStateFailed)

	select {
	case err := <-p.failures:
		if !errors.Is(err, ErrConnectivityFailure) {
			t.Fatalf("err=%v, want ErrConnectivityFailure", err)
		}
	case <-time.After(time.Second):
		t.Fatal("recovery never gave up")
	}

	r.observe(webrtc.PeerConnectionStateFailed)
	select {
	case <-p.restarts:
		t.Fatal("restart after giving up")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRecoveryConnectedResetsAttempts(t *testing.T) {
	r, p := newProbe(time.Hour, 1)
	r.observe(webrtc.PeerConnectionStateFailed)
	p.waitRestart(t, time.Second)
	r.observe(webrtc.PeerConnectionStateConnected)
	r.observe(webrtc.PeerConnectionStateFailed)
	p.waitRestart(t, time.Second)

	select {
	case err := <-p.failures:
		t.Fatalf("unexpected failure %v", err)
	default:
	}
}

func TestRecoveryStalledAttemptsEscalate(t *testing.T) {
	failures := make(chan error, 1)
	r := newRecovery(10*time.Millisecond, 20*time.Millisecond, 3,
		func() error { return nil },
		func(err error) { failures <- err },
	)
	r.observe(webrtc.PeerConnectionStateFailed)

	select {
	case err := <-failures:
		if !errors.Is(err, ErrConnectivityFailure) {
			t.Fatalf("err=%v, want ErrConnectivityFailure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("still failed, attempts=%d", r.Attempts())
	}
	if r.Attempts() != 4 {
		t.Fatalf("attempts=%d, want 4", r.Attempts())
	}
}

func TestRecoveryReconnectDisarmsAttemptDeadline(t *testing.T) {
	failures := make(chan error, 1)
	restarts := make(chan struct{}, 8)
	r := newRecovery(time.Hour, 30*time.Millisecond, 1,
		func() error { restarts <- struct{}{}; return nil },
		func(err error) { failures <- err },
	)
	r.observe(webrtc.PeerConnectionStateFailed)
	<-restarts
	r.observe(webrtc.PeerConnectionStateConnected)

	select {
	case err := <-failures:
		t.Fatalf("failed after reconnecting: %v", err)
	case <-restarts:
		t.Fatal("restart after reconnecting")
	case <-time.After(150 * time.Millisecond):
	}
}
