package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmutlucod/realtime-call-app/internal/adapters/turnrest"
	"github.com/mmutlucod/realtime-call-app/internal/app"
	"github.com/mmutlucod/realtime-call-app/internal/app/orch"
	"github.com/mmutlucod/realtime-call-app/internal/config"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:        "release",
		Port:        8080,
		Secret:      "test-secret",
		ReadLimit:   65536,
		PingPeriod:  time.Second,
		PongWait:    2 * time.Second,
		SendBuffer:  32,
		RingTimeout: time.Minute,
		Rate:        config.RateConfig{MessagesPerSecond: 100, Burst: 100},
		ICE:         config.ICEConfig{Servers: []config.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}},
	}
}

type server struct {
	srv  *httptest.Server
	orch *orch.Coordinator
	log  *store.MemoryLog
}

func newServer(t *testing.T, cfg *config.Config, turn *turnrest.Generator) *server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	calls := store.NewMemoryLog(16)
	o := &orch.Coordinator{
		Registry:    app.NewRegistry(),
		Calls:       app.NewCallTable(),
		Policy:      app.SimplePolicy{},
		CallLog:     calls,
		RingTimeout: cfg.RingTimeout,
	}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, Deps{Orch: o, History: calls, Turn: turn}))
	t.Cleanup(srv.Close)
	return &server{srv: srv, orch: o, log: calls}
}

func (s *server) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws/signal"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expect reads frames until one of type typ arrives and decodes it into out.
func expect(t *testing.T, ws *websocket.Conn, typ string, out any) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	defer ws.SetReadDeadline(time.Time{})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad frame: %s", data)
		}
		if env.Type != typ {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
		}
		return
	}
}

// expectPresence reads presence broadcasts until pred holds.
func expectPresence(t *testing.T, ws *websocket.Conn, pred func(core.PresenceListMsg) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var msg core.PresenceListMsg
		expect(t, ws, core.TypePresenceList, &msg)
		if pred(msg) {
			return
		}
	}
	t.Fatal("presence condition not met")
}

func ids(msg core.PresenceListMsg) map[string]bool {
	out := map[string]bool{}
	for _, i := range msg.Identities {
		out[string(i.ID)] = true
	}
	return out
}

func join(t *testing.T, ws *websocket.Conn, id, name string) {
	t.Helper()
	send(t, ws, core.JoinMsg{Type: core.TypePresenceJoin, IdentityID: id, DisplayName: name})
	expectPresence(t, ws, func(m core.PresenceListMsg) bool { return ids(m)[id] })
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestSignalingCallFlow(t *testing.T) {
	s := newServer(t, testConfig(), nil)
	a := s.dial(t)
	b := s.dial(t)
	join(t, a, "a", "Alice")
	join(t, b, "b", "Bob")
	expectPresence(t, a, func(m core.PresenceListMsg) bool { return ids(m)["b"] })

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	send(t, a, core.InitiateMsg{Type: core.TypeCallInitiate, From: "a", To: "b", CallType: "video", Offer: offer})

	var inc core.IncomingMsg
	expect(t, b, core.TypeCallIncoming, &inc)
	if inc.From != "a" || inc.Caller.DisplayName != "Alice" || inc.CallType != "video" {
		t.Fatalf("incoming=%+v", inc)
	}
	var sdp struct{ SDP string }
	if err := json.Unmarshal(inc.Offer, &sdp); err != nil || sdp.SDP != "v=0\r\n" {
		t.Fatalf("offer mangled: %s", inc.Offer)
	}

	send(t, b, core.CandidateMsg{Type: core.TypeCandidate, To: "a", Candidate: json.RawMessage(`{"candidate":"c1"}`)})
	var cand core.CandidateMsg
	expect(t, a, core.TypeCandidate, &cand)
	if cand.From != "b" || string(cand.Candidate) != `{"candidate":"c1"}` {
		t.Fatalf("candidate=%+v", cand)
	}

	send(t, b, core.AcceptMsg{Type: core.TypeCallAccept, From: "b", To: "a", Answer: json.RawMessage(`{"type":"answer","sdp":"x"}`)})
	var acc core.AcceptedMsg
	expect(t, a, core.TypeCallAccepted, &acc)
	if acc.From != "b" {
		t.Fatalf("accepted=%+v", acc)
	}
	expectPresence(t, a, func(m core.PresenceListMsg) bool { return !ids(m)["a"] && !ids(m)["b"] })

	var presence struct {
		Identities []struct {
			ID string `json:"identityId"`
		} `json:"identities"`
	}
	if code := getJSON(t, s.srv.URL+"/api/presence", &presence); code != http.StatusOK || len(presence.Identities) != 0 {
		t.Fatalf("rest presence code=%d body=%+v", code, presence)
	}

	send(t, a, core.EndMsg{Type: core.TypeCallEnd, UserID: "a", OtherUserID: "b"})
	expect(t, b, core.TypeCallEnded, nil)
	expectPresence(t, b, func(m core.PresenceListMsg) bool { return ids(m)["a"] && ids(m)["b"] })

	var history struct {
		Calls []struct {
			Outcome string `json:"outcome"`
		} `json:"calls"`
	}
	if code := getJSON(t, s.srv.URL+"/api/calls?limit=5", &history); code != http.StatusOK {
		t.Fatalf("calls code=%d", code)
	}
	if len(history.Calls) != 1 || history.Calls[0].Outcome != "completed" {
		t.Fatalf("history=%+v", history)
	}
	if code := getJSON(t, s.srv.URL+"/api/calls?limit=0", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit code=%d", code)
	}
}

func TestDisconnectEndsCall(t *testing.T) {
	s := newServer(t, testConfig(), nil)
	a := s.dial(t)
	b := s.dial(t)
	join(t, a, "a", "Alice")
	join(t, b, "b", "Bob")

	send(t, a, core.InitiateMsg{Type: core.TypeCallInitiate, From: "a", To: "b", CallType: "audio", Offer: json.RawMessage(`{}`)})
	expect(t, b, core.TypeCallIncoming, nil)
	send(t, b, core.AcceptMsg{Type: core.TypeCallAccept, From: "b", To: "a", Answer: json.RawMessage(`{}`)})
	expect(t, a, core.TypeCallAccepted, nil)

	_ = a.Close()

	var ended core.EndedMsg
	expect(t, b, core.TypeCallEnded, &ended)
	if ended.Reason != core.ReasonDisconnect {
		t.Fatalf("ended=%+v", ended)
	}
	expectPresence(t, b, func(m core.PresenceListMsg) bool { return !ids(m)["a"] && ids(m)["b"] })
}

func TestControlMessages(t *testing.T) {
	s := newServer(t, testConfig(), nil)
	ws := s.dial(t)

	send(t, ws, core.Envelope{Type: core.TypePing})
	expect(t, ws, core.TypePong, nil)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	var e core.ErrorMsg
	expect(t, ws, core.TypeError, &e)
	if e.Code != core.CodeBadMessage {
		t.Fatalf("error=%+v", e)
	}

	send(t, ws, core.JoinMsg{Type: core.TypePresenceJoin, IdentityID: "a"})
	expect(t, ws, core.TypeError, &e)
	if e.Code != core.CodeInvalidJoin {
		t.Fatalf("error=%+v", e)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateConfig{MessagesPerSecond: 1, Burst: 2}
	s := newServer(t, cfg, nil)
	ws := s.dial(t)

	for i := 0; i < 5; i++ {
		send(t, ws, core.Envelope{Type: core.TypePing})
	}
	var e core.ErrorMsg
	expect(t, ws, core.TypeError, &e)
	if e.Code != core.CodeRateLimited {
		t.Fatalf("error=%+v", e)
	}
}

func TestICEAndHealth(t *testing.T) {
	turn, err := turnrest.NewGenerator("secret", time.Hour, []string{"turn:turn.example.org:3478"})
	if err != nil {
		t.Fatal(err)
	}
	s := newServer(t, testConfig(), turn)

	var ice struct {
		ICEServers []struct {
			URLs       []string `json:"urls"`
			Username   string   `json:"username"`
			Credential string   `json:"credential"`
		} `json:"iceServers"`
	}
	if code := getJSON(t, s.srv.URL+"/api/ice?identity=alice", &ice); code != http.StatusOK {
		t.Fatalf("ice code=%d", code)
	}
	if len(ice.ICEServers) != 2 {
		t.Fatalf("ice=%+v", ice)
	}
	turnEntry := ice.ICEServers[1]
	if !strings.HasSuffix(turnEntry.Username, ":alice") || turnEntry.Credential == "" {
		t.Fatalf("turn entry=%+v", turnEntry)
	}

	var health map[string]any
	if code := getJSON(t, s.srv.URL+"/healthz", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("health code=%d body=%v", code, health)
	}
}
