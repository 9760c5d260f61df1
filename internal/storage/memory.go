package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Store. State does not survive restarts.
type Memory struct {
	mu     sync.Mutex
	at     time.Time
	ok     bool
	closed bool

	// Err, when set, is returned by every call. Tests use it to simulate outages.
	Err error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) NextFire(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errLocked(); err != nil {
		return time.Time{}, false, err
	}
	return m.at, m.ok, nil
}

func (m *Memory) PutNextFire(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errLocked(); err != nil {
		return err
	}
	m.at, m.ok = at, true
	return nil
}

func (m *Memory) ClearNextFire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errLocked(); err != nil {
		return err
	}
	m.at, m.ok = time.Time{}, false
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// SetErr swaps the injected failure.
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

func (m *Memory) errLocked() error {
	if m.closed {
		return ErrClosed
	}
	return m.Err
}
