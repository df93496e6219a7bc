package orch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mmutlucod/realtime-call-app/internal/app"
	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

// received decodes every frame of the given type.
func received[T any](t *testing.T, c *fakeConn, typ string) []T {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, f := range c.frames {
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		if env.Type != typ {
			continue
		}
		var v T
		if err := json.Unmarshal(f, &v); err != nil {
			t.Fatalf("decode %s: %v", typ, err)
		}
		out = append(out, v)
	}
	return out
}

func lastPresence(t *testing.T, c *fakeConn) []domain.Identity {
	t.Helper()
	lists := received[core.PresenceListMsg](t, c, core.TypePresenceList)
	if len(lists) == 0 {
		t.Fatal("no presence broadcast received")
	}
	return lists[len(lists)-1].Identities
}

func listed(ids []domain.Identity, id domain.IdentityID) bool {
	for _, i := range ids {
		if i.ID == id {
			return true
		}
	}
	return false
}

type alert struct {
	addr string
	n    core.Notification
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert
}

func (a *recordingAlerter) Dispatch(addr string, n core.Notification) {
	a.mu.Lock()
	a.alerts = append(a.alerts, alert{addr, n})
	a.mu.Unlock()
}

func (a *recordingAlerter) all() []alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alert(nil), a.alerts...)
}

type memLog struct {
	mu    sync.Mutex
	recs  []domain.CallRecord
	block chan struct{}
}

func (l *memLog) Record(_ context.Context, rec domain.CallRecord) error {
	if l.block != nil {
		<-l.block
	}
	l.mu.Lock()
	l.recs = append(l.recs, rec)
	l.mu.Unlock()
	return nil
}

func (l *memLog) outcomes() []domain.CallOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.CallOutcome, 0, len(l.recs))
	for _, r := range l.recs {
		out = append(out, r.Outcome)
	}
	return out
}

type harness struct {
	o      *Coordinator
	alerts *recordingAlerter
	log    *memLog
}

func newHarness() *harness {
	h := &harness{alerts: &recordingAlerter{}, log: &memLog{}}
	h.o = &Coordinator{
		Registry: app.NewRegistry(),
		Calls:    app.NewCallTable(),
		Policy:   app.SimplePolicy{},
		Alerts:   h.alerts,
		CallLog:  h.log,
	}
	return h
}

func handle(id string) core.ConnHandle { return core.ConnHandle("conn-" + id) }

func (h *harness) join(t *testing.T, id, name string) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	if err := h.o.Join(handle(id), c, core.JoinMsg{Type: core.TypePresenceJoin, IdentityID: id, DisplayName: name}); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return c
}

func (h *harness) call(from, to string, ct domain.CallType) {
	h.o.Initiate(handle(from), core.InitiateMsg{
		Type:     core.TypeCallInitiate,
		From:     domain.IdentityID(from),
		To:       domain.IdentityID(to),
		CallType: string(ct),
		Offer:    json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})
}

func (h *harness) accept(callee, caller string) {
	h.o.Accept(handle(callee), core.AcceptMsg{
		Type:   core.TypeCallAccept,
		From:   domain.IdentityID(callee),
		To:     domain.IdentityID(caller),
		Answer: json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
	})
}

func (h *harness) inCall(t *testing.T, id string) bool {
	t.Helper()
	rec, ok := h.o.Registry.Get(domain.IdentityID(id))
	if !ok {
		t.Fatalf("%s not present", id)
	}
	return rec.Identity.InCall
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
