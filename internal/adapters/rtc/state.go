// Package rtc is the client-side peer negotiation engine built on pion/webrtc.
package rtc

import "errors"

var (
	ErrMediaAcquisition    = errors.New("rtc: media acquisition failed")
	ErrNegotiationState    = errors.New("rtc: negotiation step out of order")
	ErrInvalidState        = errors.New("rtc: concurrent negotiation on one session")
	ErrConnectivityFailure = errors.New("rtc: connectivity lost")
	ErrClosed              = errors.New("rtc: engine closed")
	ErrNoLocalTrack        = errors.New("rtc: no local track of that kind")
)

// State is the engine lifecycle. Any state may move to Closed.
type State int

const (
	StateIdle State = iota
	StateLocalMediaReady
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocalMediaReady:
		return "local-media-ready"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
