// Package notify runs out-of-band alerts off the relay path.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmutlucod/realtime-call-app/internal/core"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

type job struct {
	address string
	note    core.Notification
}

// Dispatcher queues alerts for a fixed set of workers. Dispatch never blocks:
// when the queue is full the alert is dropped and logged.
type Dispatcher struct {
	notifier core.Notifier
	timeout  time.Duration
	queue    chan job
	workers  *pool.Pool

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(n core.Notifier, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	d := &Dispatcher{
		notifier: n,
		timeout:  timeout,
		queue:    make(chan job, queueSize),
		workers:  pool.New().WithMaxGoroutines(workers),
	}
	for i := 0; i < workers; i++ {
		d.workers.Go(d.run)
	}
	return d
}

func (d *Dispatcher) Dispatch(address string, n core.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- job{address: address, note: n}:
	default:
		log.Warn().Str("module", "app.notify").Str("type", n.Data.Type).Msg("queue full, alert dropped")
	}
}

// Close stops accepting alerts and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) run() {
	for j := range d.queue {
		var pc panics.Catcher
		pc.Try(func() { d.send(j) })
		if r := pc.Recovered(); r != nil {
			log.Error().Str("module", "app.notify").Interface("panic", r.Value).Msg("notifier panicked")
		}
	}
}

func (d *Dispatcher) send(j job) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	err := d.notifier.Send(ctx, j.address, j.note)
	switch {
	case err == nil:
		log.Info().Str("module", "app.notify").Str("caller", j.note.Data.CallerName).Msg("alert sent")
	case errors.Is(err, domain.ErrInvalidNotificationAddress):
		log.Warn().Err(err).Str("module", "app.notify").Msg("alert skipped")
	default:
		log.Error().Err(err).Str("module", "app.notify").Msg("alert failed")
	}
}
