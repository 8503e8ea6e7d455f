// Package alert decides when an arbitrage result is worth announcing and
// fans the announcement out to the configured channels.
//
// Memory is the deduplicator: an alert for a signature is suppressed while
// the same profit was already announced within the window. It is a soft,
// time-boxed gate. An unchanged opportunity announces again once the window
// has passed.
package alert

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is how long an identical (signature, profit) stays suppressed.
const DefaultWindow = 15 * time.Second

// Memory records emitted alerts.
type Memory interface {
	// ShouldEmit reports whether an alert may go out and, if so, records it.
	ShouldEmit(ctx context.Context, signature string, profit int64, now time.Time) (bool, error)
	// Forget drops the record for one signature.
	Forget(ctx context.Context, signature string) error
	// Reset drops every record.
	Reset(ctx context.Context) error
}

type emission struct {
	profit int64
	at     time.Time
}

// InMemory is a process-lifetime Memory.
type InMemory struct {
	mu      sync.Mutex
	window  time.Duration
	records map[string]emission
	calls   int
}

// NewInMemory creates an in-process memory. A non-positive window uses DefaultWindow.
func NewInMemory(window time.Duration) *InMemory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &InMemory{window: window, records: make(map[string]emission)}
}

// ShouldEmit suppresses only when the signature was emitted with the same
// profit less than window ago.
func (m *InMemory) ShouldEmit(_ context.Context, signature string, profit int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.records[signature]; ok && prev.profit == profit && now.Sub(prev.at) < m.window {
		return false, nil
	}
	m.records[signature] = emission{profit: profit, at: now}

	m.calls++
	if m.calls%256 == 0 {
		m.pruneLocked(now)
	}
	return true, nil
}

// pruneLocked drops records that can no longer suppress anything.
func (m *InMemory) pruneLocked(now time.Time) {
	for sig, rec := range m.records {
		if now.Sub(rec.at) >= m.window {
			delete(m.records, sig)
		}
	}
}

func (m *InMemory) Forget(_ context.Context, signature string) error {
	m.mu.Lock()
	delete(m.records, signature)
	m.mu.Unlock()
	return nil
}

func (m *InMemory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.records = make(map[string]emission)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live records.
func (m *InMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
