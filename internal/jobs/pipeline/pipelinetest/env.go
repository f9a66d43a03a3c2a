// Package pipelinetest runs pipeline handlers against an in-memory store.
package pipelinetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	"github.com/yungbote/intellimix-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/engine"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	jobrt "github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

type Env struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Repos    mix.Repos
	Runs     *runs.Registry
	Queue    *queue.Memory
	Assets   *engine.MemoryAssets
	Renderer engine.Renderer
	Thread   *domain.Thread
}

func New(t *testing.T) *Env {
	t.Helper()
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	repos := mix.NewRepos(gdb, log)
	q := queue.NewMemory()
	t.Cleanup(func() { _ = q.Close() })
	assets := engine.NewMemoryAssets("https://cdn.test")
	return &Env{
		DB:       gdb,
		Log:      log,
		Repos:    repos,
		Runs:     runs.NewRegistry(gdb, log, repos, nil, nil),
		Queue:    q,
		Assets:   assets,
		Renderer: engine.NewManifestEngine(log, assets),
		Thread:   testutil.SeedThread(t, ctx, gdb, uuid.New()),
	}
}

// Start records a user message and a queued run of the given kind and
// returns the handler context for it.
func (e *Env) Start(t *testing.T, in runs.CreateInput) *jobrt.Context {
	t.Helper()
	ctx := context.Background()
	msg := testutil.SeedMessage(t, ctx, e.DB, e.Thread, domain.RoleUser, domain.MessageCompleted, in.Input.Prompt)
	in.ThreadID = e.Thread.ID
	in.UserID = e.Thread.UserID
	in.UserMessageID = msg.ID
	run, _, err := e.Runs.Create(dbctx.Context{Ctx: ctx}, in)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	e.Thread.NextSeq++
	return jobrt.NewContext(ctx, e.DB, run, 0, e.Repos, e.Runs, e.Queue, e.Log)
}

// Retry builds the context a worker would hand to the next attempt.
func (e *Env) Retry(t *testing.T, jc *jobrt.Context) *jobrt.Context {
	t.Helper()
	run := e.Run(t, jc.Run.ID)
	return jobrt.NewContext(context.Background(), e.DB, run, jc.Attempt+1, e.Repos, e.Runs, e.Queue, e.Log)
}

func (e *Env) Run(t *testing.T, id uuid.UUID) *domain.Run {
	t.Helper()
	run, err := e.Repos.Runs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	return run
}

// Reply decodes the assistant placeholder of a run.
func (e *Env) Reply(t *testing.T, run *domain.Run) (*domain.Message, domain.Content) {
	t.Helper()
	msg, err := e.Repos.Messages.GetByID(dbctx.Context{Ctx: context.Background()}, run.AssistantMessageID)
	if err != nil {
		t.Fatalf("load reply: %v", err)
	}
	content, err := domain.DecodeContent(msg.Content)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return msg, content
}

func (e *Env) Draft(t *testing.T, id uuid.UUID) *domain.PlanDraft {
	t.Helper()
	d, err := e.Repos.Drafts.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	return d
}

func (e *Env) ReloadThread(t *testing.T) *domain.Thread {
	t.Helper()
	th, err := e.Repos.Threads.GetByID(dbctx.Context{Ctx: context.Background()}, e.Thread.ID)
	if err != nil {
		t.Fatalf("load thread: %v", err)
	}
	return th
}

// SeedDraft stores a draft on the env thread and points the thread at it.
func (e *Env) SeedDraft(t *testing.T, d *domain.PlanDraft) *domain.PlanDraft {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}
	d.ThreadID = e.Thread.ID
	d.UserID = e.Thread.UserID
	if d.SourceMessageID == uuid.Nil {
		d.SourceMessageID = uuid.New()
	}
	if d.Status == "" {
		d.Status = domain.DraftCollecting
	}
	if d.MaxRounds == 0 {
		d.MaxRounds = 5
	}
	if err := e.Repos.Drafts.Create(dbc, d); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	id := d.ID
	if err := e.Repos.Threads.SetActiveDraft(dbc, e.Thread.ID, &id, d.Status); err != nil {
		t.Fatalf("point thread at draft: %v", err)
	}
	return d
}

// SeedVersion stores a rendered version holding segments.
func (e *Env) SeedVersion(t *testing.T, segments []domain.TimelineSegment) *domain.Version {
	t.Helper()
	v := testutil.SeedVersion(t, context.Background(), e.DB, e.Thread, nil, segments)
	v.Snapshot = datatypes.NewJSONType(domain.VersionSnapshot{SegmentsCount: len(segments)})
	if err := e.DB.Save(v).Error; err != nil {
		t.Fatalf("save version snapshot: %v", err)
	}
	return v
}
