package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// ConnHandle identifies one signaling connection; a reconnect gets a new one.
type ConnHandle string

// Frame is a raw text payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: it returns ErrBackpressure when the outbound buffer is full
// and ErrConnClosed after Close.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
