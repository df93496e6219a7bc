package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

func rec(id, name string, h core.ConnHandle) Record {
	return Record{
		Identity: domain.Identity{ID: domain.IdentityID(id), DisplayName: name},
		Handle:   h,
	}
}

func TestRegistryUpsertReplacesAndInvalidatesHandle(t *testing.T) {
	r := NewRegistry()
	if _, replaced := r.Upsert(rec("a", "Alice", "h1")); replaced {
		t.Fatal("first upsert must not replace")
	}
	prev, replaced := r.Upsert(rec("a", "Alice 2", "h2"))
	if !replaced || prev.Handle != "h1" {
		t.Fatalf("replaced=%v prev=%+v", replaced, prev)
	}
	if _, ok := r.GetByConnection("h1"); ok {
		t.Fatal("old handle must be invalid after replacement")
	}
	got, ok := r.GetByConnection("h2")
	if !ok || got.Identity.DisplayName != "Alice 2" {
		t.Fatalf("got=%+v ok=%v", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("len=%d, want 1", r.Len())
	}
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Remove("ghost"); ok {
		t.Fatal("remove of unknown id must report false")
	}
	r.Upsert(rec("a", "Alice", "h1"))
	if _, ok := r.Remove("a"); !ok {
		t.Fatal("remove of present id must report true")
	}
	if _, ok := r.Remove("a"); ok {
		t.Fatal("second remove must be a no-op")
	}
	if _, ok := r.GetByConnection("h1"); ok {
		t.Fatal("handle must be gone with its identity")
	}
}

func TestRegistryListAvailableExcludesInCall(t *testing.T) {
	r := NewRegistry()
	r.Upsert(rec("b", "Bob", "h2"))
	r.Upsert(rec("a", "Alice", "h1"))
	r.Upsert(rec("c", "Carol", "h3"))
	if !r.SetInCall("b", true) {
		t.Fatal("SetInCall on present id must succeed")
	}
	if r.SetInCall("ghost", true) {
		t.Fatal("SetInCall on unknown id must fail")
	}

	got := r.ListAvailable()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("got=%+v", got)
	}
	for _, id := range got {
		if id.InCall {
			t.Fatalf("listed identity in call: %+v", id)
		}
	}
}

func TestRegistryAddressBookOutlivesPresence(t *testing.T) {
	r := NewRegistry()
	r.Upsert(rec("b", "Bob", "h2"))
	r.SetNotificationAddress("b", "ExponentPushToken[x]")
	r.Remove("b")

	addr, ok := r.NotificationAddress("b")
	if !ok || addr != "ExponentPushToken[x]" {
		t.Fatalf("addr=%q ok=%v", addr, ok)
	}

	// rejoin without an address keeps the filed one
	r.Upsert(rec("b", "Bob", "h3"))
	got, _ := r.Get("b")
	if got.Identity.NotificationAddress != "ExponentPushToken[x]" {
		t.Fatalf("address lost on rejoin: %+v", got.Identity)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i%4)
			for j := 0; j < 100; j++ {
				r.Upsert(rec(id, id, core.ConnHandle(fmt.Sprintf("h%d-%d", i, j))))
				r.SetInCall(domain.IdentityID(id), j%2 == 0)
				_ = r.ListAvailable()
				if j%10 == 0 {
					r.Remove(domain.IdentityID(id))
				}
			}
		}(i)
	}
	wg.Wait()

	for _, rec := range r.Snapshot() {
		got, ok := r.GetByConnection(rec.Handle)
		if !ok || got.Identity.ID != rec.Identity.ID {
			t.Fatalf("handle index out of sync for %s", rec.Identity.ID)
		}
	}
}
