package rtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// recovery turns connection state changes into ICE restarts. Failed restarts
// at once, disconnected waits grace first. Each attempt has timeout to bring
// the connection back; otherwise the next attempt starts. Once max restarts
// pass without the connection coming back, fail is called with
// ErrConnectivityFailure.
type recovery struct {
	grace   time.Duration
	timeout time.Duration
	max     int
	restart func() error
	fail    func(error)

	mu       sync.Mutex
	attempts int
	epoch    int
	timer    *time.Timer
	stopped  bool
}

func newRecovery(grace, timeout time.Duration, max int, restart func() error, fail func(error)) *recovery {
	return &recovery{grace: grace, timeout: timeout, max: max, restart: restart, fail: fail}
}

func (r *recovery) observe(s webrtc.PeerConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		r.attempts = 0
		r.epoch++
		r.stopTimerLocked()
	case webrtc.PeerConnectionStateDisconnected:
		if r.timer == nil {
			r.timer = time.AfterFunc(r.grace, r.trigger)
		}
	case webrtc.PeerConnectionStateFailed:
		r.stopTimerLocked()
		go r.trigger()
	case webrtc.PeerConnectionStateClosed:
		r.stopLocked()
	}
}

func (r *recovery) trigger() {
	r.mu.Lock()
	r.timer = nil
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.attempts++
	attempt, epoch := r.attempts, r.epoch
	if attempt > r.max {
		r.stopLocked()
		r.mu.Unlock()
		r.fail(fmt.Errorf("%w: %d restarts exhausted", ErrConnectivityFailure, r.max))
		return
	}
	r.mu.Unlock()

	if r.restart != nil {
		if err := r.restart(); err != nil {
			r.stop()
			r.fail(fmt.Errorf("%w: restart: %v", ErrConnectivityFailure, err))
			return
		}
	}
	r.armDeadline(epoch)
}

// armDeadline starts the clock on the attempt begun in epoch. Reconnecting
// in the meantime moves the epoch on and leaves the attempt unarmed.
func (r *recovery) armDeadline(epoch int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.epoch != epoch || r.timeout <= 0 {
		return
	}
	r.stopTimerLocked()
	r.timer = time.AfterFunc(r.timeout, r.trigger)
}

func (r *recovery) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *recovery) stop() {
	r.mu.Lock()
	r.stopLocked()
	r.mu.Unlock()
}

func (r *recovery) stopLocked() {
	r.stopped = true
	r.stopTimerLocked()
}

func (r *recovery) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
