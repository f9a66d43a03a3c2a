package runs

import (
	"context"
	"errors"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrThreadNotFound = errors.New("thread not found")
)

// Snapshot is the full run as pushed to and polled by clients.
type Snapshot struct {
	Run      mix.Run `json:"run"`
	Terminal bool    `json:"terminal"`
}

func snapshotOf(run *mix.Run) Snapshot {
	return Snapshot{Run: *run, Terminal: run.Terminal()}
}

// Publisher receives every applied run change.
type Publisher interface {
	PublishRun(ctx context.Context, s Snapshot)
}

// Observer is notified of run lifecycle edges for metrics.
type Observer interface {
	RunCreated(kind string)
	RunTerminal(kind, status string, seconds float64)
}

type nopPublisher struct{}

func (nopPublisher) PublishRun(context.Context, Snapshot) {}

type nopObserver struct{}

func (nopObserver) RunCreated(string)                   {}
func (nopObserver) RunTerminal(string, string, float64) {}

// Progress is one engine or handler progress report.
type Progress struct {
	Stage   string
	Percent int
	Label   string
	Detail  string
	// Content, when set, replaces the placeholder payload while the run is
	// still in flight.
	Content mix.Content
	Text    string
}
