package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	"github.com/yungbote/intellimix-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	"github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

type funcHandler struct {
	kind string
	fn   func(*runtime.Context) error
}

func (h funcHandler) Kinds() []string              { return []string{h.kind} }
func (h funcHandler) Run(c *runtime.Context) error { return h.fn(c) }

type env struct {
	db       *gorm.DB
	repos    mix.Repos
	runs     *runs.Registry
	registry *runtime.Registry
	worker   *Worker
	thread   *domain.Thread
	user     *domain.Message
}

func newEnv(t *testing.T, handlers ...runtime.Handler) *env {
	t.Helper()
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	repos := mix.NewRepos(gdb, log)
	reg := runs.NewRegistry(gdb, log, repos, nil, nil)
	registry := runtime.NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	q := queue.NewMemory()
	t.Cleanup(func() { _ = q.Close() })
	th := testutil.SeedThread(t, ctx, gdb, uuid.New())
	msg := testutil.SeedMessage(t, ctx, gdb, th, domain.RoleUser, domain.MessageCompleted, "mix")
	return &env{
		db:       gdb,
		repos:    repos,
		runs:     reg,
		registry: registry,
		worker:   NewWorker(gdb, log, repos, reg, q, registry, nil),
		thread:   th,
		user:     msg,
	}
}

func (e *env) createRun(t *testing.T, kind string) *domain.Run {
	t.Helper()
	run, _, err := e.runs.Create(dbctx.Context{Ctx: context.Background()}, runs.CreateInput{
		ThreadID:      e.thread.ID,
		UserID:        e.thread.UserID,
		UserMessageID: e.user.ID,
		Kind:          kind,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return run
}

func (e *env) load(t *testing.T, id uuid.UUID) *domain.Run {
	t.Helper()
	run, err := e.repos.Runs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return run
}

func TestProcessCompletesRun(t *testing.T) {
	e := newEnv(t, funcHandler{kind: domain.RunKindPrompt, fn: func(c *runtime.Context) error {
		c.Progress("rendering", 50, "Rendering")
		return c.Complete(runs.Completion{Text: "done", Content: domain.Plain{Text: "done"}})
	}})
	run := e.createRun(t, domain.RunKindPrompt)
	e.worker.Process(context.Background(), queue.Item{RunID: run.ID})

	got := e.load(t, run.ID)
	if got.Status != domain.RunCompleted || got.ProgressPercent != 100 {
		t.Fatalf("status=%s pct=%d", got.Status, got.ProgressPercent)
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	e := newEnv(t, funcHandler{kind: domain.RunKindPrompt, fn: func(*runtime.Context) error {
		panic("engine exploded")
	}})
	run := e.createRun(t, domain.RunKindPrompt)
	e.worker.Process(context.Background(), queue.Item{RunID: run.ID})

	got := e.load(t, run.ID)
	if got.Status != domain.RunFailed {
		t.Fatalf("status=%s want failed", got.Status)
	}
	if got.ErrorMessage == "" || got.ErrorMessage == "engine exploded" {
		t.Fatalf("error message %q", got.ErrorMessage)
	}
}

func TestProcessFailsOnHandlerError(t *testing.T) {
	e := newEnv(t, funcHandler{kind: domain.RunKindPrompt, fn: func(*runtime.Context) error {
		return errors.New("engine unavailable")
	}})
	run := e.createRun(t, domain.RunKindPrompt)
	e.worker.Process(context.Background(), queue.Item{RunID: run.ID})

	got := e.load(t, run.ID)
	if got.Status != domain.RunFailed || got.ErrorMessage != "engine unavailable" {
		t.Fatalf("status=%s error=%q", got.Status, got.ErrorMessage)
	}
}

func TestProcessFailsUnknownKind(t *testing.T) {
	e := newEnv(t)
	run := e.createRun(t, domain.RunKindTimelineEdit)
	e.worker.Process(context.Background(), queue.Item{RunID: run.ID})

	got := e.load(t, run.ID)
	if got.Status != domain.RunFailed {
		t.Fatalf("status=%s want failed", got.Status)
	}
}

func TestProcessSkipsTerminalRun(t *testing.T) {
	calls := 0
	e := newEnv(t, funcHandler{kind: domain.RunKindPrompt, fn: func(c *runtime.Context) error {
		calls++
		return c.Complete(runs.Completion{Text: "done", Content: domain.Plain{Text: "done"}})
	}})
	run := e.createRun(t, domain.RunKindPrompt)
	e.worker.Process(context.Background(), queue.Item{RunID: run.ID})
	e.worker.Process(context.Background(), queue.Item{RunID: run.ID})
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestProcessFailsUnfinishedHandler(t *testing.T) {
	e := newEnv(t, funcHandler{kind: domain.RunKindPrompt, fn: func(*runtime.Context) error { return nil }})
	run := e.createRun(t, domain.RunKindPrompt)
	e.worker.Process(context.Background(), queue.Item{RunID: run.ID})

	if got := e.load(t, run.ID); got.Status != domain.RunFailed {
		t.Fatalf("status=%s want failed", got.Status)
	}
}
