package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process queue for single-binary dev runs and tests.
type Memory struct {
	mu     sync.Mutex
	ready  []Item
	signal chan struct{}
	timers map[*time.Timer]struct{}
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		signal: make(chan struct{}, 1),
		timers: map[*time.Timer]struct{}{},
	}
}

func (m *Memory) Enqueue(_ context.Context, item Item) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.ready = append(m.ready, item)
	m.mu.Unlock()
	m.wake()
	return nil
}

func (m *Memory) EnqueueAfter(ctx context.Context, item Item, delay time.Duration) error {
	if delay <= 0 {
		return m.Enqueue(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, t)
		m.mu.Unlock()
		_ = m.Enqueue(context.Background(), item)
	})
	m.timers[t] = struct{}{}
	return nil
}

func (m *Memory) Dequeue(ctx context.Context, timeout time.Duration) (*Item, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		if len(m.ready) > 0 {
			it := m.ready[0]
			m.ready = m.ready[1:]
			more := len(m.ready) > 0
			m.mu.Unlock()
			if more {
				m.wake()
			}
			return &it, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-m.signal:
		}
	}
}

func (m *Memory) Depth(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ready) + len(m.timers)), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for t := range m.timers {
		t.Stop()
	}
	m.timers = map[*time.Timer]struct{}{}
	return nil
}

func (m *Memory) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}
