package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownRecipient           = errors.New("unknown recipient")
	ErrAlreadyInCall              = errors.New("already in call")
	ErrInvalidNotificationAddress = errors.New("invalid notification address")
	ErrNoSession                  = errors.New("no matching call session")
	ErrInvalidCallType            = errors.New("invalid call type")
	ErrSelfCall                   = errors.New("cannot call yourself")
)

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func ParseCallType(s string) (CallType, error) {
	switch CallType(s) {
	case CallAudio, CallVideo:
		return CallType(s), nil
	case "":
		return CallAudio, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCallType, s)
}

// CallState is the state of the session an identity belongs to.
// The zero value means the identity has no session.
type CallState int

const (
	NoSession CallState = iota
	Ringing
	Active
)

func (s CallState) String() string {
	switch s {
	case Ringing:
		return "ringing"
	case Active:
		return "active"
	default:
		return "none"
	}
}

// CallOutcome is how a session finished.
type CallOutcome string

const (
	OutcomeCompleted CallOutcome = "completed"
	OutcomeRejected  CallOutcome = "rejected"
	OutcomeMissed    CallOutcome = "missed"
	OutcomeCancelled CallOutcome = "cancelled"
	OutcomeDropped   CallOutcome = "dropped"
)

// CallRecord is one finished session as kept in the call log.
type CallRecord struct {
	ID         string      `json:"id"`
	Caller     IdentityID  `json:"caller"`
	Callee     IdentityID  `json:"callee"`
	Type       CallType    `json:"callType"`
	Outcome    CallOutcome `json:"outcome"`
	StartedAt  time.Time   `json:"startedAt"`
	AnsweredAt *time.Time  `json:"answeredAt,omitempty"`
	EndedAt    time.Time   `json:"endedAt"`
}

// Duration returns the talk time, zero for calls that were never answered.
func (r CallRecord) Duration() time.Duration {
	if r.AnsweredAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.AnsweredAt)
}
