package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

func snap(id uuid.UUID, percent int, seq int64, status string) runs.Snapshot {
	terminal := status == domain.RunCompleted || status == domain.RunFailed
	return runs.Snapshot{
		Run:      domain.Run{ID: id, Status: status, ProgressPercent: percent, Seq: seq},
		Terminal: terminal,
	}
}

func TestNewer(t *testing.T) {
	id := uuid.New()
	running := snap(id, 40, 3, domain.RunRunning)
	done := snap(id, 100, 9, domain.RunCompleted)
	cases := []struct {
		name string
		cand runs.Snapshot
		last *runs.Snapshot
		want bool
	}{
		{"first", running, nil, true},
		{"higher percent", snap(id, 50, 2, domain.RunRunning), &running, true},
		{"lower percent", snap(id, 30, 9, domain.RunRunning), &running, false},
		{"same percent higher seq", snap(id, 40, 4, domain.RunRunning), &running, true},
		{"same percent same seq", snap(id, 40, 3, domain.RunRunning), &running, false},
		{"terminal wins", snap(id, 0, 1, domain.RunFailed), &running, true},
		{"nothing after terminal", snap(id, 100, 10, domain.RunCompleted), &done, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Newer(tc.cand, tc.last); got != tc.want {
				t.Fatalf("Newer=%v want %v", got, tc.want)
			}
		})
	}
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []runs.Snapshot
}

func (s *recordingSink) Apply(sn runs.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, sn)
}

func (s *recordingSink) all() []runs.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]runs.Snapshot(nil), s.snaps...)
}

type fakePush struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan PushEvent
	err  error
}

func newFakePush() *fakePush { return &fakePush{subs: map[uuid.UUID]chan PushEvent{}} }

func (p *fakePush) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan PushEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan PushEvent, 16)
	p.subs[runID] = ch
	return ch, nil
}

func (p *fakePush) send(t *testing.T, runID uuid.UUID, ev PushEvent) {
	t.Helper()
	var ch chan PushEvent
	waitFor(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		ch = p.subs[runID]
		return ch != nil
	})
	ch <- ev
}

type fakePoll struct {
	mu    sync.Mutex
	snaps map[uuid.UUID]runs.Snapshot
	fails int
	calls int
}

func (p *fakePoll) GetRun(_ context.Context, runID uuid.UUID) (runs.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fails > 0 {
		p.fails--
		return runs.Snapshot{}, errors.New("connection reset")
	}
	s, ok := p.snaps[runID]
	if !ok {
		return runs.Snapshot{}, errors.New("not found")
	}
	return s, nil
}

func (p *fakePoll) set(s runs.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps[s.Run.ID] = s
}

func (p *fakePoll) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeRefresher struct {
	mu    sync.Mutex
	fail  bool
	calls map[uuid.UUID]int
	// gate, when set, holds every Refresh until it is closed.
	gate  chan struct{}
}

func (r *fakeRefresher) Refresh(ctx context.Context, threadID uuid.UUID) error {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[uuid.UUID]int{}
	}
	r.calls[threadID]++
	fail, gate := r.fail, r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New("list messages: 503")
	}
	return nil
}

func (r *fakeRefresher) count(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func (r *fakeRefresher) setFail(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func start(t *testing.T, cfg Config) *Reconciler {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	r := New(testutil.Logger(t), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func TestPushAndPollDeduplicate(t *testing.T) {
	push := newFakePush()
	poll := &fakePoll{snaps: map[uuid.UUID]runs.Snapshot{}}
	sink := &recordingSink{}
	ref := &fakeRefresher{}
	r := start(t, Config{Push: push, Poll: poll, Refresher: ref, Sink: sink})

	runID, threadID := uuid.New(), uuid.New()
	r.Track(runID, threadID, nil)
	push.send(t, runID, PushEvent{Kind: PushUpdate, Snapshot: snap(runID, 10, 2, domain.RunRunning)})
	push.send(t, runID, PushEvent{Kind: PushUpdate, Snapshot: snap(runID, 10, 2, domain.RunRunning)})
	push.send(t, runID, PushEvent{Kind: PushUpdate, Snapshot: snap(runID, 70, 4, domain.RunRunning)})
	waitFor(t, func() bool { return len(sink.all()) == 2 })

	// Push drops; polling takes over and returns an older snapshot first.
	poll.set(snap(runID, 40, 3, domain.RunRunning))
	push.send(t, runID, PushEvent{Kind: PushError, Err: errors.New("stream reset")})
	waitFor(t, func() bool { return poll.callCount() > 0 })
	poll.set(snap(runID, 100, 6, domain.RunCompleted))
	waitFor(t, func() bool { return ref.count(threadID) == 1 })

	got := sink.all()
	if len(got) != 3 {
		t.Fatalf("sink got %d snapshots, want 3", len(got))
	}
	if got[1].Run.ProgressPercent != 70 || !got[2].Terminal {
		t.Fatalf("sink order %+v", got)
	}
	if len(r.Active()) != 0 {
		t.Fatalf("terminal run still active")
	}
	calls := poll.callCount()
	time.Sleep(40 * time.Millisecond)
	if poll.callCount() != calls {
		t.Fatalf("terminal run still polled")
	}
}

func TestSubscribeFailureFallsBackToPolling(t *testing.T) {
	push := newFakePush()
	push.err = errors.New("streaming unsupported")
	poll := &fakePoll{snaps: map[uuid.UUID]runs.Snapshot{}}
	sink := &recordingSink{}
	r := start(t, Config{Push: push, Poll: poll, Sink: sink})

	runID := uuid.New()
	poll.set(snap(runID, 35, 3, domain.RunRunning))
	r.Track(runID, uuid.New(), nil)
	waitFor(t, func() bool { return len(sink.all()) == 1 })
	if s, ok := r.Last(runID); !ok || s.Run.ProgressPercent != 35 {
		t.Fatalf("last=%+v ok=%v", s, ok)
	}
}

func TestPollOnlyRetriesAfterError(t *testing.T) {
	poll := &fakePoll{snaps: map[uuid.UUID]runs.Snapshot{}, fails: 2}
	sink := &recordingSink{}
	ref := &fakeRefresher{}
	r := start(t, Config{Poll: poll, Refresher: ref, Sink: sink})

	runID, threadID := uuid.New(), uuid.New()
	initial := snap(runID, 0, 1, domain.RunQueued)
	r.Track(runID, threadID, &initial)
	poll.set(snap(runID, 100, 5, domain.RunFailed))
	waitFor(t, func() bool { return ref.count(threadID) == 1 })

	got := sink.all()
	if len(got) != 2 || got[1].Run.Status != domain.RunFailed {
		t.Fatalf("sink %+v", got)
	}
	if poll.callCount() < 3 {
		t.Fatalf("poll calls=%d, want failures to be retried", poll.callCount())
	}
}

func TestRefreshFailureIsRetriedOnTouch(t *testing.T) {
	poll := &fakePoll{snaps: map[uuid.UUID]runs.Snapshot{}}
	ref := &fakeRefresher{fail: true}
	r := start(t, Config{Poll: poll, Refresher: ref})

	runID, threadID := uuid.New(), uuid.New()
	poll.set(snap(runID, 100, 4, domain.RunCompleted))
	r.Track(runID, threadID, nil)
	waitFor(t, func() bool { return r.Stale(threadID) != nil })

	var pf *PartialRefreshFailure
	if err := r.Stale(threadID); !errors.As(err, &pf) || pf.RunID != runID {
		t.Fatalf("stale=%v", err)
	}

	ref.setFail(false)
	r.Touch(threadID)
	waitFor(t, func() bool { return r.Stale(threadID) == nil })
	if ref.count(threadID) != 2 {
		t.Fatalf("refresh calls=%d want 2", ref.count(threadID))
	}
}

func TestTerminalDuringRefreshGetsItsOwnRefresh(t *testing.T) {
	poll := &fakePoll{snaps: map[uuid.UUID]runs.Snapshot{}}
	sink := &recordingSink{}
	gate := make(chan struct{})
	ref := &fakeRefresher{gate: gate}
	r := start(t, Config{Poll: poll, Refresher: ref, Sink: sink})

	threadID := uuid.New()
	runA, runB := uuid.New(), uuid.New()
	poll.set(snap(runA, 50, 2, domain.RunRunning))
	poll.set(snap(runB, 50, 2, domain.RunRunning))
	r.Track(runA, threadID, nil)
	r.Track(runB, threadID, nil)

	poll.set(snap(runA, 100, 3, domain.RunCompleted))
	waitFor(t, func() bool { return ref.count(threadID) == 1 })

	// B finishes while A's refresh is still blocked.
	poll.set(snap(runB, 100, 3, domain.RunCompleted))
	waitFor(t, func() bool {
		for _, s := range sink.all() {
			if s.Run.ID == runB && s.Terminal {
				return true
			}
		}
		return false
	})
	close(gate)

	waitFor(t, func() bool { return ref.count(threadID) == 2 })
	time.Sleep(40 * time.Millisecond)
	if n := ref.count(threadID); n != 2 {
		t.Fatalf("refresh calls=%d want 2", n)
	}
	if err := r.Stale(threadID); err != nil {
		t.Fatalf("stale=%v", err)
	}
}

func TestCloseThreadStopsDelivery(t *testing.T) {
	push := newFakePush()
	poll := &fakePoll{snaps: map[uuid.UUID]runs.Snapshot{}}
	sink := &recordingSink{}
	r := start(t, Config{Push: push, Poll: poll, Sink: sink})

	threadID := uuid.New()
	a, b, other := uuid.New(), uuid.New(), uuid.New()
	r.Track(a, threadID, nil)
	r.Track(b, threadID, nil)
	r.Track(other, uuid.New(), nil)
	push.send(t, a, PushEvent{Kind: PushUpdate, Snapshot: snap(a, 10, 2, domain.RunRunning)})
	waitFor(t, func() bool { return len(sink.all()) == 1 })

	r.CloseThread(threadID)
	active := r.Active()
	if len(active) != 1 || active[0] != other {
		t.Fatalf("active=%v", active)
	}
	if _, ok := r.Last(a); ok {
		t.Fatalf("closed run still tracked")
	}
}
