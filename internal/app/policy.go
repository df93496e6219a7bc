package app

import "fmt"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickConnection
	DropFrame
)

// Policy decides what happens to a connection whose outbound buffer is full.
type Policy interface {
	OnBackPressure(rec Record) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(Record) BackpressureAction {
	return KickConnection
}

// TolerantPolicy drops the frame and keeps the connection.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(Record) BackpressureAction {
	return DropFrame
}

// PolicyFor maps the backpressure config value to a Policy.
func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return SimplePolicy{}, nil
	case "drop":
		return TolerantPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
