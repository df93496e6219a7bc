package orch

import (
	"errors"
	"fmt"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/rs/zerolog/log"
)

var errRestartType = errors.New("not a restart message")

// RelayCandidate forwards a connectivity candidate. No state is touched; an
// unknown recipient drops it.
func (o *Coordinator) RelayCandidate(h core.ConnHandle, msg core.CandidateMsg) {
	o.mu.Lock()
	defer o.unlock()

	from, ok := o.senderLocked(h, msg.From, core.TypeCandidate)
	if !ok {
		return
	}
	msg.Type = core.TypeCandidate
	msg.From = from.Identity.ID
	o.deliverLocked(msg.To, msg)
}

// RelayRestart forwards an ICE-restart offer or answer between the two parties
// of a session.
func (o *Coordinator) RelayRestart(h core.ConnHandle, msg core.RestartMsg) error {
	if msg.Type != core.TypeRestart && msg.Type != core.TypeRestartAnswer {
		return fmt.Errorf("%w: %q", errRestartType, msg.Type)
	}

	o.mu.Lock()
	defer o.unlock()

	from, ok := o.senderLocked(h, msg.From, msg.Type)
	if !ok {
		return nil
	}
	if _, ok := o.Calls.Between(from.Identity.ID, msg.To); !ok {
		log.Debug().Str("module", "app.orch").Str("identity", string(from.Identity.ID)).Str("peer", string(msg.To)).Msg("restart outside a session, dropped")
		return nil
	}
	msg.From = from.Identity.ID
	o.deliverLocked(msg.To, msg)
	return nil
}
