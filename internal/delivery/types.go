package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/runs"
)

type PushKind int

const (
	PushUpdate PushKind = iota
	PushEnd
	PushError
)

// PushEvent is one item from a run's push stream.
type PushEvent struct {
	Kind     PushKind
	Snapshot runs.Snapshot
	Err      error
}

// PushTransport opens a push stream for one run. The channel is closed when
// the stream ends or ctx is canceled.
type PushTransport interface {
	Subscribe(ctx context.Context, runID uuid.UUID) (<-chan PushEvent, error)
}

type PollTransport interface {
	GetRun(ctx context.Context, runID uuid.UUID) (runs.Snapshot, error)
}

// Refresher re-reads a thread's message and version lists.
type Refresher interface {
	Refresh(ctx context.Context, threadID uuid.UUID) error
}

// Sink receives every applied snapshot exactly once.
type Sink interface {
	Apply(s runs.Snapshot)
}

type SinkFunc func(s runs.Snapshot)

func (f SinkFunc) Apply(s runs.Snapshot) { f(s) }

// TransportError is a push or poll failure for one run. It never reaches
// the sink; push failures downgrade the run to polling.
type TransportError struct {
	RunID uuid.UUID
	Op    string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PartialRefreshFailure records a terminal run whose thread lists could not
// be refreshed. It is retried on the next Touch.
type PartialRefreshFailure struct {
	ThreadID uuid.UUID
	RunID    uuid.UUID
	Err      error
}

func (e *PartialRefreshFailure) Error() string {
	return fmt.Sprintf("refresh thread %s after run %s: %v", e.ThreadID, e.RunID, e.Err)
}

func (e *PartialRefreshFailure) Unwrap() error { return e.Err }

// Newer reports whether candidate should replace last. Terminal beats
// non-terminal, then higher percent, then higher seq at equal percent.
// Anything after a terminal snapshot is ignored.
func Newer(candidate runs.Snapshot, last *runs.Snapshot) bool {
	if last == nil {
		return true
	}
	if last.Terminal {
		return false
	}
	if candidate.Terminal {
		return true
	}
	switch {
	case candidate.Run.ProgressPercent > last.Run.ProgressPercent:
		return true
	case candidate.Run.ProgressPercent < last.Run.ProgressPercent:
		return false
	default:
		return candidate.Run.Seq > last.Run.Seq
	}
}
