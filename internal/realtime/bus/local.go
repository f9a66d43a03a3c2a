package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/intellimix-backend/internal/realtime"
)

// Local is an in-process Bus for single-instance deployments and tests.
type Local struct {
	mu   sync.RWMutex
	subs []func(realtime.SSEMessage)
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Publish(_ context.Context, msg realtime.SSEMessage) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.subs {
		fn(msg)
	}
	return nil
}

func (l *Local) StartForwarder(_ context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, onMsg)
	return nil
}

func (l *Local) Close() error { return nil }
