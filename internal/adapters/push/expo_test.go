package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

func TestValidToken(t *testing.T) {
	for tok, want := range map[string]bool{
		"ExponentPushToken[abc123]": true,
		"ExpoPushToken[abc123]":     true,
		"ExponentPushToken[]":       false,
		"fcm:abc":                   false,
		"":                          false,
	} {
		if got := ValidToken(tok); got != want {
			t.Fatalf("ValidToken(%q)=%v, want %v", tok, got, want)
		}
	}
}

func TestSendPostsExpoMessage(t *testing.T) {
	var got expoMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":{"status":"ok","id":"ticket-1"}}`))
	}))
	defer srv.Close()

	n := NewExpoNotifier(srv.URL, "secret", time.Second)
	err := n.Send(context.Background(), "ExponentPushToken[bob]", core.IncomingCall("Alice", domain.CallVideo))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "ExponentPushToken[bob]" || got.Priority != "high" || got.ChannelID != "incoming-calls" || got.Sound != "default" {
		t.Fatalf("message=%+v", got)
	}
	if got.Body != "Alice is video calling you" || got.Data.Type != "incoming-call" || got.Data.CallerName != "Alice" {
		t.Fatalf("payload=%+v", got)
	}
	if auth != "Bearer secret" {
		t.Fatalf("auth=%q", auth)
	}
}

func TestSendRejectsInvalidToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	n := NewExpoNotifier(srv.URL, "", time.Second)
	err := n.Send(context.Background(), "not-a-token", core.Notification{})
	if !errors.Is(err, domain.ErrInvalidNotificationAddress) {
		t.Fatalf("err=%v", err)
	}
	if called {
		t.Fatal("invalid token must not reach the service")
	}
}

func TestSendTicketErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unregistered", 200, `{"data":[{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`, domain.ErrInvalidNotificationAddress},
		{"ticket error", 200, `{"data":{"status":"error","message":"too big","details":{"error":"MessageTooBig"}}}`, ErrDeliveryFailed},
		{"request error", 200, `{"errors":[{"code":"VALIDATION_ERROR","message":"bad"}]}`, ErrDeliveryFailed},
		{"http error", 500, `oops`, ErrDeliveryFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := NewExpoNotifier(srv.URL, "", time.Second).Send(context.Background(), "ExpoPushToken[x]", core.Notification{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}
