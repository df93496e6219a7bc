// Package store keeps the call log.
package store

import (
	"context"
	"fmt"

	"github.com/mmutlucod/realtime-call-app/internal/config"
	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

// CallLog records finished sessions and lists the most recent ones, newest first.
type CallLog interface {
	Record(ctx context.Context, rec domain.CallRecord) error
	Recent(ctx context.Context, limit int) ([]domain.CallRecord, error)
	Close() error
}

// Open builds the call log selected by cfg.Driver.
func Open(cfg config.CallLogConfig) (CallLog, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryLog(cfg.Capacity), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	}
	return nil, fmt.Errorf("unknown calllog driver %q", cfg.Driver)
}
