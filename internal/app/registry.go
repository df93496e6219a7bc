package app

import (
	"sort"
	"sync"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/rs/zerolog/log"
)

// Record is one present identity together with its live connection.
// Records are handed out by value, so a caller never sees a half-applied update.
type Record struct {
	Identity domain.Identity
	Handle   core.ConnHandle
	Conn     core.SignalConnection
}

// Registry is the presence registry: identities currently reachable over the
// signaling transport. Notification addresses are kept in a separate book that
// outlives presence, so an identity that went offline can still be alerted.
type Registry struct {
	mu        sync.RWMutex
	byID      map[domain.IdentityID]*Record
	byHandle  map[core.ConnHandle]domain.IdentityID
	addresses map[domain.IdentityID]string
}

func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[domain.IdentityID]*Record),
		byHandle:  make(map[core.ConnHandle]domain.IdentityID),
		addresses: make(map[domain.IdentityID]string),
	}
}

// Upsert stores rec, replacing any record with the same identity id and
// invalidating its handle. An empty notification address keeps the one
// already on file. It returns the replaced record, if any.
func (r *Registry) Upsert(rec Record) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := rec.Identity.ID
	prev, replaced := r.byID[id]
	if replaced {
		r.unindex(prev)
	}
	if rec.Identity.NotificationAddress == "" {
		rec.Identity.NotificationAddress = r.addresses[id]
	} else {
		r.addresses[id] = rec.Identity.NotificationAddress
	}

	stored := rec
	r.byID[id] = &stored
	r.byHandle[rec.Handle] = id
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Str("conn", string(rec.Handle)).Bool("replaced", replaced).Msg("upsert identity")

	if replaced {
		return *prev, true
	}
	return Record{}, false
}

// Remove deletes the identity. Unknown ids are a no-op.
func (r *Registry) Remove(id domain.IdentityID) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return Record{}, false
	}
	delete(r.byID, id)
	r.unindex(rec)
	log.Info().Str("module", "app.registry").Str("identity", string(id)).Msg("removed identity")
	return *rec, true
}

func (r *Registry) Get(id domain.IdentityID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.byID[id]; ok {
		return *rec, true
	}
	return Record{}, false
}

func (r *Registry) GetByConnection(h core.ConnHandle) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[r.byHandle[h]]
	if !ok || rec.Handle != h {
		return Record{}, false
	}
	return *rec, true
}

// SetInCall reports whether the identity was present.
func (r *Registry) SetInCall(id domain.IdentityID, inCall bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return false
	}
	rec.Identity.InCall = inCall
	return true
}

// SetNotificationAddress files the token in the address book and on the
// present record, if any.
func (r *Registry) SetNotificationAddress(id domain.IdentityID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == "" {
		delete(r.addresses, id)
	} else {
		r.addresses[id] = token
	}
	if rec, ok := r.byID[id]; ok {
		rec.Identity.NotificationAddress = token
	}
	log.Debug().Str("module", "app.registry").Str("identity", string(id)).Bool("set", token != "").Msg("notification address")
}

// NotificationAddress looks the id up in the address book, present or not.
func (r *Registry) NotificationAddress(id domain.IdentityID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.addresses[id]
	return addr, ok
}

// ListAvailable returns every present identity that is not in a call,
// ordered by display name then id.
func (r *Registry) ListAvailable() []domain.Identity {
	r.mu.RLock()
	out := make([]domain.Identity, 0, len(r.byID))
	for _, rec := range r.byID {
		if !rec.Identity.InCall {
			out = append(out, rec.Identity)
		}
	}
	r.mu.RUnlock()

	sortIdentities(out)
	return out
}

// Snapshot returns every present record.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, *rec)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// unindex drops the handle entry only while it still points at rec's identity.
func (r *Registry) unindex(rec *Record) {
	if r.byHandle[rec.Handle] == rec.Identity.ID {
		delete(r.byHandle, rec.Handle)
	}
}

func sortIdentities(ids []domain.Identity) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].DisplayName != ids[j].DisplayName {
			return ids[i].DisplayName < ids[j].DisplayName
		}
		return ids[i].ID < ids[j].ID
	})
}
