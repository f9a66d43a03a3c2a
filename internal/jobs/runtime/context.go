package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

/*
Context is the execution handle for one run. Handlers never write the run
row directly: progress, completion and failure go through the run registry so
that every transition is guarded, sequenced and published.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Run     *domain.Run
	Attempt int
	Repos   mix.Repos
	Log     *logger.Logger

	runs  *runs.Registry
	queue queue.Queue
	done  bool
}

func NewContext(ctx context.Context, db *gorm.DB, run *domain.Run, attempt int, repos mix.Repos, reg *runs.Registry, q queue.Queue, log *logger.Logger) *Context {
	return &Context{
		Ctx:     ctx,
		DB:      db,
		Run:     run,
		Attempt: attempt,
		Repos:   repos,
		Log:     log.With("run_id", run.ID, "run_kind", run.Kind),
		runs:    reg,
		queue:   q,
	}
}

// Input is the request summary stored on the run at creation.
func (c *Context) Input() domain.RunInput {
	return c.Run.InputSummary.Data()
}

// Done reports whether the handler already reached a terminal transition.
func (c *Context) Done() bool { return c.done }

// Progress reports a stage. Lower or repeated reports are dropped by the
// registry; errors are logged and swallowed because progress is advisory.
func (c *Context) Progress(stage string, pct int, label string) {
	c.advance(runs.Progress{Stage: stage, Percent: pct, Label: label})
}

// ProgressDetail is Progress with a detail line.
func (c *Context) ProgressDetail(stage string, pct int, label, detail string) {
	c.advance(runs.Progress{Stage: stage, Percent: pct, Label: label, Detail: detail})
}

func (c *Context) advance(p runs.Progress) {
	s, changed, err := c.runs.Advance(c.Ctx, c.Run.ID, p)
	if err != nil {
		c.Log.Warn("progress update failed", "stage", p.Stage, "error", err)
		return
	}
	if changed {
		run := s.Run
		c.Run = &run
	}
}

// Complete finishes the run. A run that reached a terminal status elsewhere
// is left untouched.
func (c *Context) Complete(comp runs.Completion) error {
	s, _, err := c.runs.Complete(c.Ctx, c.Run.ID, comp)
	if err != nil {
		return err
	}
	run := s.Run
	c.Run = &run
	c.done = true
	return nil
}

// Fail records err as the run failure.
func (c *Context) Fail(stage string, err error) {
	msg := "Mix generation failed."
	if err != nil {
		msg = err.Error()
	}
	if _, _, ferr := c.runs.Fail(c.Ctx, c.Run.ID, msg); ferr != nil {
		c.Log.Error("failed to record run failure", "stage", stage, "error", ferr, "cause", err)
		return
	}
	c.Log.Warn("run failed", "stage", stage, "error", err)
	c.done = true
}

// ErrRetryLimit is returned by Pause once a run has used every attempt.
var ErrRetryLimit = errors.New("retry limit reached")

// Pause parks a run that is waiting on an external capacity limit. The run
// stays in flight with content shown on its placeholder and is re-enqueued
// after delay.
func (c *Context) Pause(p runs.Progress, delay time.Duration, maxAttempts int) error {
	if c.Attempt+1 >= maxAttempts {
		return ErrRetryLimit
	}
	c.advance(p)
	item := queue.Item{RunID: c.Run.ID, Attempt: c.Attempt + 1}
	if err := c.queue.EnqueueAfter(c.Ctx, item, delay); err != nil {
		return fmt.Errorf("requeue run: %w", err)
	}
	c.Log.Info("run paused", "attempt", item.Attempt, "retry_after", delay)
	c.done = true
	return nil
}
