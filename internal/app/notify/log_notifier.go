package notify

import (
	"context"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/rs/zerolog/log"
)

// LogNotifier only logs; used when push delivery is disabled.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, address string, n core.Notification) error {
	log.Info().Str("module", "app.notify").Str("title", n.Title).Str("body", n.Body).Bool("addressed", address != "").Msg("alert (push disabled)")
	return nil
}
