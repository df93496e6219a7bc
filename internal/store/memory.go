package store

import (
	"context"

	"github.com/mmutlucod/realtime-call-app/internal/domain"
)

// MemoryLog keeps the last N records in memory.
type MemoryLog struct {
	ring *ringBuffer[domain.CallRecord]
}

func NewMemoryLog(capacity int) *MemoryLog {
	if capacity < 1 {
		capacity = 500
	}
	return &MemoryLog{ring: newRingBuffer[domain.CallRecord](capacity)}
}

func (m *MemoryLog) Record(_ context.Context, rec domain.CallRecord) error {
	m.ring.Push(rec)
	return nil
}

func (m *MemoryLog) Recent(_ context.Context, limit int) ([]domain.CallRecord, error) {
	return m.ring.Latest(limit), nil
}

func (m *MemoryLog) Close() error { return nil }
