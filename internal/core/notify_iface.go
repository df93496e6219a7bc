package core

import (
	"context"
	"fmt"

	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

const NotificationIncomingCall = "incoming-call"

type NotificationData struct {
	Type       string          `json:"type"`
	CallerName string          `json:"callerName"`
	CallType   domain.CallType `json:"callType"`
}

type Notification struct {
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Data  NotificationData `json:"data"`
}

// Notifier delivers an out-of-band alert to an opaque address.
// Implementations return domain.ErrInvalidNotificationAddress for addresses they cannot use.
type Notifier interface {
	Send(ctx context.Context, address string, n Notification) error
}

// IncomingCall builds the alert shown to a callee that is not looking at the app.
func IncomingCall(callerName string, ct domain.CallType) Notification {
	return Notification{
		Title: "Incoming Call",
		Body:  fmt.Sprintf("%s is %s calling you", callerName, ct),
		Data: NotificationData{
			Type:       NotificationIncomingCall,
			CallerName: callerName,
			CallType:   ct,
		},
	}
}
