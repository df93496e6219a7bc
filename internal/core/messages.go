package core

import (
	"encoding/json"

	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

// Message types of the signaling protocol. Every frame is a flat JSON object
// with a "type" discriminator.
const (
	TypePresenceJoin    = "presence.join"
	TypePresenceLeave   = "presence.leave"
	TypeRegisterAddress = "presence.registerNotificationAddress"
	TypePresenceList    = "presence.list"
	TypeCallInitiate    = "call.initiate"
	TypeCallIncoming    = "call.incoming"
	TypeCallAccept      = "call.accept"
	TypeCallAccepted    = "call.accepted"
	TypeCallReject      = "call.reject"
	TypeCallRejected    = "call.rejected"
	TypeCallEnd         = "call.end"
	TypeCallEnded       = "call.ended"
	TypeCandidate       = "connectivity.candidate"
	TypeRestart         = "connectivity.restart"
	TypeRestartAnswer   = "connectivity.restartAnswer"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeError           = "error"
)

// Reasons attached to call.rejected / call.ended when the server ends a session.
const (
	ReasonTimeout    = "timeout"
	ReasonDisconnect = "disconnect"
)

// Error codes carried by TypeError frames.
const (
	CodeRateLimited = "rate_limited"
	CodeBadMessage  = "bad_message"
	CodeInvalidJoin = "invalid_join"
)

type Envelope struct {
	Type string `json:"type"`
}

type JoinMsg struct {
	Type                string `json:"type"`
	IdentityID          string `json:"identityId"`
	DisplayName         string `json:"displayName"`
	NotificationAddress string `json:"notificationAddress,omitempty"`
}

type RegisterAddressMsg struct {
	Type       string            `json:"type"`
	IdentityID domain.IdentityID `json:"identityId"`
	Token      string            `json:"token"`
}

type PresenceListMsg struct {
	Type       string            `json:"type"`
	Identities []domain.Identity `json:"identities"`
}

type InitiateMsg struct {
	Type     string            `json:"type"`
	From     domain.IdentityID `json:"from"`
	To       domain.IdentityID `json:"to"`
	CallType string            `json:"callType"`
	Offer    json.RawMessage   `json:"offer"`
}

type IncomingMsg struct {
	Type     string            `json:"type"`
	CallID   string            `json:"callId"`
	From     domain.IdentityID `json:"from"`
	CallType domain.CallType   `json:"callType"`
	Offer    json.RawMessage   `json:"offer"`
	Caller   domain.Identity   `json:"caller"`
}

type AcceptMsg struct {
	Type   string            `json:"type"`
	From   domain.IdentityID `json:"from"`
	To     domain.IdentityID `json:"to"`
	Answer json.RawMessage   `json:"answer"`
}

type AcceptedMsg struct {
	Type   string            `json:"type"`
	From   domain.IdentityID `json:"from"`
	Answer json.RawMessage   `json:"answer"`
}

type RejectMsg struct {
	Type string            `json:"type"`
	From domain.IdentityID `json:"from"`
}

// RejectedMsg and EndedMsg are empty for peer-initiated transitions; Reason is
// set when the server ends the session itself.
type RejectedMsg struct {
	Type   string            `json:"type"`
	From   domain.IdentityID `json:"from,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

type EndMsg struct {
	Type        string            `json:"type"`
	UserID      domain.IdentityID `json:"userId"`
	OtherUserID domain.IdentityID `json:"otherUserId"`
}

type EndedMsg struct {
	Type   string            `json:"type"`
	From   domain.IdentityID `json:"from,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

type CandidateMsg struct {
	Type      string            `json:"type"`
	From      domain.IdentityID `json:"from,omitempty"`
	To        domain.IdentityID `json:"to"`
	Candidate json.RawMessage   `json:"candidate"`
}

// RestartMsg carries an ICE-restart offer (TypeRestart) or its answer (TypeRestartAnswer).
type RestartMsg struct {
	Type   string            `json:"type"`
	From   domain.IdentityID `json:"from,omitempty"`
	To     domain.IdentityID `json:"to"`
	Offer  json.RawMessage   `json:"offer,omitempty"`
	Answer json.RawMessage   `json:"answer,omitempty"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
