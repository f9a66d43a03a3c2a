package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultPollConcurrency = 4
)

type Config struct {
	// Push may be nil when the client cannot hold streams open.
	Push            PushTransport
	Poll            PollTransport
	Refresher       Refresher
	Sink            Sink
	PollInterval    time.Duration
	PollConcurrency int
}

type tracked struct {
	threadID uuid.UUID
	last     *runs.Snapshot
	pushing  bool
	cancel   context.CancelFunc
}

type pushMsg struct {
	runID uuid.UUID
	ev    PushEvent
}

type pollResult struct {
	runID uuid.UUID
	snap  runs.Snapshot
	err   error
}

type refreshResult struct {
	threadID uuid.UUID
	runID    uuid.UUID
	err      error
}

/*
Reconciler keeps a client's view of its in-flight runs current. All state
is owned by the goroutine in Run; public methods hand closures to it. Push
events, poll results and refresh results come back on channels, so the
last-applied snapshot per run has a single writer.
*/
type Reconciler struct {
	log *logger.Logger
	cfg Config

	cmds     chan func()
	pushes   chan pushMsg
	polls    chan pollResult
	pollDone chan struct{}
	refreshs chan refreshResult
	stopped  chan struct{}

	// loop-owned
	ctx        context.Context
	runs       map[uuid.UUID]*tracked
	stale      map[uuid.UUID]error
	refreshing map[uuid.UUID]bool
	// thread -> run that went terminal while a refresh was in flight
	pending    map[uuid.UUID]uuid.UUID
	polling    bool
	ticker     *time.Ticker
	interval   time.Duration
}

func New(log *logger.Logger, cfg Config) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = DefaultPollConcurrency
	}
	if cfg.Sink == nil {
		cfg.Sink = SinkFunc(func(runs.Snapshot) {})
	}
	return &Reconciler{
		log:        log.With("service", "DeliveryReconciler"),
		cfg:        cfg,
		cmds:       make(chan func(), 64),
		pushes:     make(chan pushMsg, 64),
		polls:      make(chan pollResult, 64),
		pollDone:   make(chan struct{}, 1),
		refreshs:   make(chan refreshResult, 8),
		stopped:    make(chan struct{}),
		runs:       make(map[uuid.UUID]*tracked),
		stale:      make(map[uuid.UUID]error),
		refreshing: make(map[uuid.UUID]bool),
		pending:    make(map[uuid.UUID]uuid.UUID),
		interval:   cfg.PollInterval,
	}
}

// Run drives the reconciler until ctx is canceled. It closes every open push
// stream on exit; runs keep executing server-side.
func (r *Reconciler) Run(ctx context.Context) error {
	r.ctx = ctx
	r.ticker = time.NewTicker(r.interval)
	defer func() {
		r.ticker.Stop()
		for _, t := range r.runs {
			if t.cancel != nil {
				t.cancel()
			}
		}
		close(r.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.cmds:
			fn()
		case m := <-r.pushes:
			r.onPush(m)
		case res := <-r.polls:
			r.onPoll(res)
		case <-r.pollDone:
			r.polling = false
		case res := <-r.refreshs:
			r.onRefresh(res)
		case <-r.ticker.C:
			r.tick()
		}
	}
}

func (r *Reconciler) send(fn func()) {
	select {
	case r.cmds <- fn:
	case <-r.stopped:
	}
}

// call runs fn on the loop and waits for it.
func (r *Reconciler) call(fn func()) bool {
	done := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(done) }:
	case <-r.stopped:
		return false
	}
	select {
	case <-done:
		return true
	case <-r.stopped:
		return false
	}
}

// Track starts delivery for a run. A run that is already tracked is left as
// is. initial, when non-nil, is applied as the first snapshot.
func (r *Reconciler) Track(runID, threadID uuid.UUID, initial *runs.Snapshot) {
	r.send(func() {
		if _, ok := r.runs[runID]; ok {
			return
		}
		t := &tracked{threadID: threadID}
		r.runs[runID] = t
		if r.cfg.Push != nil {
			r.subscribe(runID, t)
		}
		if initial != nil {
			r.apply(runID, t, *initial)
		}
	})
}

// Untrack stops delivery for a run without touching it server-side.
func (r *Reconciler) Untrack(runID uuid.UUID) {
	r.send(func() { r.drop(runID) })
}

// CloseThread stops delivery for every run of a thread.
func (r *Reconciler) CloseThread(threadID uuid.UUID) {
	r.send(func() {
		for id, t := range r.runs {
			if t.threadID == threadID {
				r.drop(id)
			}
		}
		delete(r.stale, threadID)
		delete(r.pending, threadID)
	})
}

// Touch retries a failed post-terminal refresh for the thread, if any.
func (r *Reconciler) Touch(threadID uuid.UUID) {
	r.send(func() {
		if err, ok := r.stale[threadID]; ok {
			var pf *PartialRefreshFailure
			runID := uuid.Nil
			if errors.As(err, &pf) {
				runID = pf.RunID
			}
			r.refresh(threadID, runID)
		}
	})
}

// SetPollInterval applies the server's poll hint.
func (r *Reconciler) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.send(func() {
		if d == r.interval {
			return
		}
		r.interval = d
		r.ticker.Reset(d)
	})
}

// Stale returns the pending refresh failure for a thread.
func (r *Reconciler) Stale(threadID uuid.UUID) error {
	var err error
	r.call(func() { err = r.stale[threadID] })
	return err
}

// Active lists the runs still being delivered.
func (r *Reconciler) Active() []uuid.UUID {
	var out []uuid.UUID
	r.call(func() {
		out = make([]uuid.UUID, 0, len(r.runs))
		for id := range r.runs {
			out = append(out, id)
		}
	})
	return out
}

// Last returns the last snapshot applied for a tracked run.
func (r *Reconciler) Last(runID uuid.UUID) (runs.Snapshot, bool) {
	var (
		s  runs.Snapshot
		ok bool
	)
	r.call(func() {
		if t, found := r.runs[runID]; found && t.last != nil {
			s, ok = *t.last, true
		}
	})
	return s, ok
}

func (r *Reconciler) drop(runID uuid.UUID) {
	t, ok := r.runs[runID]
	if !ok {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	delete(r.runs, runID)
}

func (r *Reconciler) subscribe(runID uuid.UUID, t *tracked) {
	ctx, cancel := context.WithCancel(r.ctx)
	t.cancel = cancel
	t.pushing = true
	forward := func(ev PushEvent) bool {
		select {
		case r.pushes <- pushMsg{runID: runID, ev: ev}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		ch, err := r.cfg.Push.Subscribe(ctx, runID)
		if err != nil {
			forward(PushEvent{Kind: PushError, Err: &TransportError{RunID: runID, Op: "subscribe", Err: err}})
			return
		}
		for ev := range ch {
			if !forward(ev) {
				return
			}
			if ev.Kind != PushUpdate {
				return
			}
		}
		forward(PushEvent{Kind: PushEnd})
	}()
}

func (r *Reconciler) onPush(m pushMsg) {
	t, ok := r.runs[m.runID]
	if !ok {
		return
	}
	switch m.ev.Kind {
	case PushUpdate:
		r.apply(m.runID, t, m.ev.Snapshot)
	default:
		if !t.pushing {
			return
		}
		t.pushing = false
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		r.log.Debug("push unavailable; polling", "run_id", m.runID, "error", m.ev.Err)
	}
}

func (r *Reconciler) tick() {
	if r.polling || r.cfg.Poll == nil {
		return
	}
	var due []uuid.UUID
	for id, t := range r.runs {
		if !t.pushing {
			due = append(due, id)
		}
	}
	if len(due) == 0 {
		return
	}
	r.polling = true
	ctx := r.ctx
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.PollConcurrency)
		for _, id := range due {
			g.Go(func() error {
				s, err := r.cfg.Poll.GetRun(gctx, id)
				if err != nil {
					err = &TransportError{RunID: id, Op: "poll", Err: err}
				}
				select {
				case r.polls <- pollResult{runID: id, snap: s, err: err}:
				case <-ctx.Done():
				}
				// A failed poll must not cancel its siblings.
				return nil
			})
		}
		_ = g.Wait()
		select {
		case r.pollDone <- struct{}{}:
		case <-ctx.Done():
		}
	}()
}

func (r *Reconciler) onPoll(res pollResult) {
	t, ok := r.runs[res.runID]
	if !ok {
		return
	}
	if res.err != nil {
		r.log.Debug("poll failed; retrying next tick", "run_id", res.runID, "error", res.err)
		return
	}
	r.apply(res.runID, t, res.snap)
}

// apply hands a newer snapshot to the sink. A terminal snapshot ends
// delivery for the run and refreshes its thread once.
func (r *Reconciler) apply(runID uuid.UUID, t *tracked, s runs.Snapshot) {
	if !Newer(s, t.last) {
		return
	}
	snap := s
	t.last = &snap
	r.cfg.Sink.Apply(snap)
	if !snap.Terminal {
		return
	}
	r.drop(runID)
	r.refresh(t.threadID, runID)
}

func (r *Reconciler) refresh(threadID, runID uuid.UUID) {
	if r.cfg.Refresher == nil {
		return
	}
	// An in-flight read may predate this run's commit, so queue one more.
	if r.refreshing[threadID] {
		r.pending[threadID] = runID
		return
	}
	r.refreshing[threadID] = true
	ctx := r.ctx
	go func() {
		err := r.cfg.Refresher.Refresh(ctx, threadID)
		select {
		case r.refreshs <- refreshResult{threadID: threadID, runID: runID, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (r *Reconciler) onRefresh(res refreshResult) {
	delete(r.refreshing, res.threadID)
	if res.err != nil {
		r.stale[res.threadID] = &PartialRefreshFailure{ThreadID: res.threadID, RunID: res.runID, Err: res.err}
		r.log.Warn("thread refresh failed; list is stale until next interaction", "thread_id", res.threadID, "error", res.err)
	} else {
		delete(r.stale, res.threadID)
	}
	if runID, ok := r.pending[res.threadID]; ok {
		delete(r.pending, res.threadID)
		r.refresh(res.threadID, runID)
	}
}
