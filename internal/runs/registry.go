package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

const (
	maxRunError     = 2000
	maxMessageError = 500

	defaultPlaceholder = "Working on your mix..."
)

// errNoop aborts a transaction whose change lost the race to a terminal
// transition.
var errNoop = errors.New("run already terminal")

// Registry is the single writer of run state. Mutations of one run are
// serialized by a per-run lock; the active set tracks runs that have not
// reached a terminal status.
type Registry struct {
	db     *gorm.DB
	log    *logger.Logger
	repos  mix.Repos
	pub    Publisher
	obs    Observer
	now    func() time.Time
	mu     sync.Mutex
	active map[uuid.UUID]*entry
}

type entry struct {
	mu  sync.Mutex
	run *domain.Run
}

func NewRegistry(db *gorm.DB, log *logger.Logger, repos mix.Repos, pub Publisher, obs Observer) *Registry {
	if pub == nil {
		pub = nopPublisher{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Registry{
		db:     db,
		log:    log.With("service", "RunRegistry"),
		repos:  repos,
		pub:    pub,
		obs:    obs,
		now:    func() time.Time { return time.Now().UTC() },
		active: map[uuid.UUID]*entry{},
	}
}

// CreateInput describes the run a user message starts.
type CreateInput struct {
	ThreadID        uuid.UUID
	UserID          uuid.UUID
	UserMessageID   uuid.UUID
	Kind            string
	Mode            string
	ParentVersionID *uuid.UUID
	PlanDraftID     *uuid.UUID
	Input           domain.RunInput
	PlaceholderText string
}

// Create allocates the assistant placeholder and the queued run. When
// dbc.Tx is set both rows join the caller's transaction and the caller must
// Discard the run if it rolls back.
func (r *Registry) Create(dbc dbctx.Context, in CreateInput) (*domain.Run, *domain.Message, error) {
	if in.ThreadID == uuid.Nil || in.UserMessageID == uuid.Nil {
		return nil, nil, fmt.Errorf("create run: missing thread or user message")
	}
	if in.Mode == "" {
		in.Mode = domain.ModeRefineLast
	}
	text := strings.TrimSpace(in.PlaceholderText)
	if text == "" {
		text = defaultPlaceholder
	}

	var (
		run         *domain.Run
		placeholder *domain.Message
	)
	create := func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Context(), Tx: tx}
		th, err := r.repos.Threads.LockByID(inner, in.ThreadID)
		if err != nil {
			if errors.Is(err, mix.ErrNotFound) {
				return ErrThreadNotFound
			}
			return err
		}
		if in.UserID != uuid.Nil && th.UserID != in.UserID {
			return ErrThreadNotFound
		}
		now := r.now()
		seq := th.NextSeq + 1
		placeholder = &domain.Message{
			ThreadID: th.ID,
			UserID:   th.UserID,
			Seq:      seq,
			Role:     domain.RoleAssistant,
			Status:   domain.MessageQueued,
			Text:     text,
			Content:  domain.MustEncodeContent(domain.Plain{Text: text}),
		}
		if err := r.repos.Messages.Create(inner, placeholder); err != nil {
			return fmt.Errorf("create placeholder: %w", err)
		}
		run = &domain.Run{
			ThreadID:           th.ID,
			UserID:             th.UserID,
			UserMessageID:      in.UserMessageID,
			AssistantMessageID: placeholder.ID,
			ParentVersionID:    in.ParentVersionID,
			PlanDraftID:        in.PlanDraftID,
			Kind:               in.Kind,
			Mode:               in.Mode,
			Status:             domain.RunQueued,
			ProgressStage:      domain.RunQueued,
			ProgressLabel:      "Queued",
			ProgressUpdatedAt:  &now,
			Seq:                1,
			InputSummary:       datatypes.NewJSONType(in.Input),
		}
		if err := r.repos.Runs.Create(inner, run); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		return r.repos.Threads.UpdateFields(inner, th.ID, map[string]interface{}{
			"next_seq":        seq,
			"last_message_at": now,
		})
	}

	var err error
	if dbc.Tx != nil {
		err = create(dbc.Tx)
	} else {
		err = r.db.WithContext(dbc.Context()).Transaction(create)
	}
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	cp := *run
	r.active[run.ID] = &entry{run: &cp}
	r.mu.Unlock()
	r.obs.RunCreated(run.Kind)
	r.log.Debug("run created", "run_id", run.ID, "thread_id", run.ThreadID, "kind", run.Kind)
	return run, placeholder, nil
}

// Discard forgets a run registered inside a transaction that rolled back.
func (r *Registry) Discard(runID uuid.UUID) {
	r.Close(runID)
}

// Close evicts a run from the active set.
func (r *Registry) Close(runID uuid.UUID) {
	r.mu.Lock()
	delete(r.active, runID)
	r.mu.Unlock()
}

// Active lists the ids of runs that have not reached a terminal status.
func (r *Registry) Active() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, 0, len(r.active))
	for id := range r.active {
		out = append(out, id)
	}
	return out
}

// Recover loads queued and running runs from the store into the active set
// and returns them. Called once at startup.
func (r *Registry) Recover(ctx context.Context) ([]*domain.Run, error) {
	unfinished, err := r.repos.Runs.ListUnfinished(dbctx.Context{Ctx: ctx}, 0)
	if err != nil {
		return nil, fmt.Errorf("list unfinished runs: %w", err)
	}
	r.Track(unfinished...)
	return unfinished, nil
}

// Track re-registers unfinished runs found in the store.
func (r *Registry) Track(runs ...*domain.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range runs {
		if run == nil || run.Terminal() {
			continue
		}
		if _, ok := r.active[run.ID]; !ok {
			cp := *run
			r.active[run.ID] = &entry{run: &cp}
		}
	}
}

// Get returns the current snapshot. The store is authoritative because
// workers may execute runs in another process; the cached copy is used when
// it is ahead.
func (r *Registry) Get(ctx context.Context, runID uuid.UUID) (Snapshot, error) {
	run, err := r.repos.Runs.GetByID(dbctx.Context{Ctx: ctx}, runID)
	if err != nil {
		if errors.Is(err, mix.ErrNotFound) {
			return Snapshot{}, ErrRunNotFound
		}
		return Snapshot{}, err
	}
	r.mu.Lock()
	e := r.active[runID]
	r.mu.Unlock()
	if e != nil {
		e.mu.Lock()
		if e.run != nil && e.run.Seq > run.Seq {
			run = cloneRun(e.run)
		}
		e.mu.Unlock()
	}
	return snapshotOf(run), nil
}

// Announce publishes the current snapshot, typically right after the
// creating transaction commits.
func (r *Registry) Announce(ctx context.Context, runID uuid.UUID) {
	s, err := r.Get(ctx, runID)
	if err != nil {
		r.log.Warn("announce run failed", "run_id", runID, "error", err)
		return
	}
	r.pub.PublishRun(ctx, s)
}

// lock takes the per-run lock and loads the baseline from the store.
func (r *Registry) lock(ctx context.Context, runID uuid.UUID) (*entry, *domain.Run, error) {
	r.mu.Lock()
	e, ok := r.active[runID]
	if !ok {
		e = &entry{}
	}
	r.mu.Unlock()

	e.mu.Lock()
	run, err := r.repos.Runs.GetByID(dbctx.Context{Ctx: ctx}, runID)
	if err != nil {
		e.mu.Unlock()
		if errors.Is(err, mix.ErrNotFound) {
			return nil, nil, ErrRunNotFound
		}
		return nil, nil, err
	}
	if e.run != nil && e.run.Seq > run.Seq {
		run = cloneRun(e.run)
	}
	return e, run, nil
}

// Advance applies a progress report. Reports that would lower the percent,
// repeat the current state, or arrive after a terminal transition are
// dropped. The bool reports whether anything changed.
func (r *Registry) Advance(ctx context.Context, runID uuid.UUID, p Progress) (Snapshot, bool, error) {
	e, run, err := r.lock(ctx, runID)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer e.mu.Unlock()

	if run.Terminal() {
		return snapshotOf(run), false, nil
	}
	pct := clampPercent(p.Percent)
	if pct < run.ProgressPercent {
		return snapshotOf(run), false, nil
	}
	stage := strings.TrimSpace(p.Stage)
	if stage == "" {
		stage = run.ProgressStage
	}
	if pct == run.ProgressPercent && stage == run.ProgressStage && p.Label == run.ProgressLabel &&
		p.Detail == run.ProgressDetail && p.Content == nil {
		return snapshotOf(run), false, nil
	}

	now := r.now()
	next := cloneRun(run)
	next.ProgressStage = stage
	next.ProgressPercent = pct
	next.ProgressLabel = p.Label
	next.ProgressDetail = p.Detail
	next.ProgressUpdatedAt = &now
	next.Seq = run.Seq + 1
	starting := run.Status == domain.RunQueued
	if starting {
		next.Status = domain.RunRunning
		next.StartedAt = &now
	}

	updates := map[string]interface{}{
		"status":              next.Status,
		"progress_stage":      next.ProgressStage,
		"progress_percent":    next.ProgressPercent,
		"progress_label":      next.ProgressLabel,
		"progress_detail":     next.ProgressDetail,
		"progress_updated_at": now,
		"seq":                 next.Seq,
	}
	if starting {
		updates["started_at"] = now
	}
	msgUpdates := map[string]interface{}{}
	if starting {
		msgUpdates["status"] = domain.MessageRunning
	}
	if p.Content != nil {
		raw, err := domain.EncodeContent(p.Content)
		if err != nil {
			return snapshotOf(run), false, fmt.Errorf("encode progress content: %w", err)
		}
		msgUpdates["content_json"] = raw
		if p.Text != "" {
			msgUpdates["content_text"] = p.Text
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := r.repos.Runs.UpdateUnlessTerminal(dbc, runID, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errNoop
		}
		if len(msgUpdates) > 0 {
			if _, err := r.repos.Messages.UpdateUnlessTerminal(dbc, run.AssistantMessageID, msgUpdates); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		return snapshotOf(run), false, nil
	}
	if err != nil {
		return snapshotOf(run), false, fmt.Errorf("advance run: %w", err)
	}

	e.run = next
	s := snapshotOf(next)
	r.pub.PublishRun(ctx, s)
	return s, true, nil
}

// Completion is the final state of a successful run.
type Completion struct {
	Text    string
	Content domain.Content
	// Version, when set, is created in the completion transaction. Thread,
	// user, run, message and lineage ids are filled from the run unless
	// already set.
	Version *domain.Version
	// Finalize runs inside the completion transaction after the version row
	// exists. Returning an error aborts the completion.
	Finalize func(dbc dbctx.Context, run *domain.Run, version *domain.Version) error
}

// Complete moves the run to completed exactly once: the placeholder is
// replaced in place, the version (if any) is appended to the thread and the
// run is evicted from the active set.
func (r *Registry) Complete(ctx context.Context, runID uuid.UUID, c Completion) (Snapshot, bool, error) {
	e, run, err := r.lock(ctx, runID)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer e.mu.Unlock()
	if run.Terminal() {
		r.Close(runID)
		return snapshotOf(run), false, nil
	}

	raw, err := domain.EncodeContent(c.Content)
	if err != nil {
		return snapshotOf(run), false, fmt.Errorf("encode completion content: %w", err)
	}
	now := r.now()
	next := cloneRun(run)
	next.Status = domain.RunCompleted
	next.ProgressStage = domain.RunCompleted
	next.ProgressPercent = 100
	next.ProgressLabel = "Completed"
	next.ProgressDetail = ""
	next.ProgressUpdatedAt = &now
	next.CompletedAt = &now
	next.Seq = run.Seq + 1
	if next.StartedAt == nil {
		next.StartedAt = &now
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := r.repos.Messages.UpdateUnlessTerminal(dbc, run.AssistantMessageID, map[string]interface{}{
			"status":       domain.MessageCompleted,
			"content_text": c.Text,
			"content_json": raw,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errNoop
		}
		if v := c.Version; v != nil {
			fillVersion(v, run)
			if err := r.repos.Versions.Create(dbc, v); err != nil {
				return fmt.Errorf("create version: %w", err)
			}
			next.VersionID = &v.ID
		}
		if c.Finalize != nil {
			if err := c.Finalize(dbc, next, c.Version); err != nil {
				return err
			}
		}
		updates := map[string]interface{}{
			"status":              next.Status,
			"progress_stage":      next.ProgressStage,
			"progress_percent":    next.ProgressPercent,
			"progress_label":      next.ProgressLabel,
			"progress_detail":     "",
			"progress_updated_at": now,
			"completed_at":        now,
			"started_at":          *next.StartedAt,
			"error_message":       "",
			"seq":                 next.Seq,
		}
		if next.VersionID != nil {
			updates["version_id"] = *next.VersionID
		}
		ok, err = r.repos.Runs.UpdateUnlessTerminal(dbc, runID, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errNoop
		}
		return r.repos.Threads.UpdateFields(dbc, run.ThreadID, map[string]interface{}{"last_message_at": now})
	})
	if errors.Is(err, errNoop) {
		r.Close(runID)
		return snapshotOf(run), false, nil
	}
	if err != nil {
		return snapshotOf(run), false, fmt.Errorf("complete run: %w", err)
	}
	return r.finish(ctx, e, run, next), true, nil
}

// Fail moves the run to failed exactly once. The placeholder becomes an
// error payload.
func (r *Registry) Fail(ctx context.Context, runID uuid.UUID, msg string) (Snapshot, bool, error) {
	e, run, err := r.lock(ctx, runID)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer e.mu.Unlock()
	if run.Terminal() {
		r.Close(runID)
		return snapshotOf(run), false, nil
	}

	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "Mix generation failed."
	}
	now := r.now()
	next := cloneRun(run)
	next.Status = domain.RunFailed
	next.ProgressStage = domain.RunFailed
	next.ProgressLabel = "Failed"
	next.ProgressUpdatedAt = &now
	next.CompletedAt = &now
	next.ErrorMessage = truncate(msg, maxRunError)
	next.Seq = run.Seq + 1

	short := truncate(msg, maxMessageError)
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := r.repos.Runs.UpdateUnlessTerminal(dbc, runID, map[string]interface{}{
			"status":              next.Status,
			"progress_stage":      next.ProgressStage,
			"progress_label":      next.ProgressLabel,
			"progress_updated_at": now,
			"completed_at":        now,
			"error_message":       next.ErrorMessage,
			"seq":                 next.Seq,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errNoop
		}
		if _, err := r.repos.Messages.UpdateUnlessTerminal(dbc, run.AssistantMessageID, map[string]interface{}{
			"status":       domain.MessageFailed,
			"content_text": short,
			"content_json": domain.MustEncodeContent(domain.ErrorContent{Error: short}),
		}); err != nil {
			return err
		}
		return r.repos.Threads.UpdateFields(dbc, run.ThreadID, map[string]interface{}{"last_message_at": now})
	})
	if errors.Is(err, errNoop) {
		r.Close(runID)
		return snapshotOf(run), false, nil
	}
	if err != nil {
		return snapshotOf(run), false, fmt.Errorf("fail run: %w", err)
	}
	r.log.Warn("run failed", "run_id", runID, "kind", run.Kind, "error", next.ErrorMessage)
	return r.finish(ctx, e, run, next), true, nil
}

func (r *Registry) finish(ctx context.Context, e *entry, prev, next *domain.Run) Snapshot {
	e.run = next
	r.Close(next.ID)
	start := prev.CreatedAt
	if prev.StartedAt != nil {
		start = *prev.StartedAt
	}
	var secs float64
	if !start.IsZero() && next.CompletedAt != nil {
		secs = next.CompletedAt.Sub(start).Seconds()
	}
	r.obs.RunTerminal(next.Kind, next.Status, secs)
	s := snapshotOf(next)
	r.pub.PublishRun(ctx, s)
	return s
}

func fillVersion(v *domain.Version, run *domain.Run) {
	v.ThreadID = run.ThreadID
	v.UserID = run.UserID
	v.RunID = run.ID
	if v.SourceMessageID == uuid.Nil {
		v.SourceMessageID = run.UserMessageID
	}
	if v.AssistantMessageID == uuid.Nil {
		v.AssistantMessageID = run.AssistantMessageID
	}
	if v.ParentVersionID == nil {
		v.ParentVersionID = run.ParentVersionID
	}
	if v.PlanDraftID == nil {
		v.PlanDraftID = run.PlanDraftID
	}
}

func cloneRun(run *domain.Run) *domain.Run {
	cp := *run
	return &cp
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
