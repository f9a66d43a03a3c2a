package runs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	"github.com/yungbote/intellimix-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
)

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (p *recordingPublisher) PublishRun(_ context.Context, s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

type fixture struct {
	db     *gorm.DB
	repos  mix.Repos
	reg    *Registry
	pub    *recordingPublisher
	thread *domain.Thread
	user   *domain.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	repos := mix.NewRepos(gdb, log)
	pub := &recordingPublisher{}
	th := testutil.SeedThread(t, ctx, gdb, uuid.New())
	msg := testutil.SeedMessage(t, ctx, gdb, th, domain.RoleUser, domain.MessageCompleted, "Party mix")
	return &fixture{
		db:     gdb,
		repos:  repos,
		reg:    NewRegistry(gdb, log, repos, pub, nil),
		pub:    pub,
		thread: th,
		user:   msg,
	}
}

func (f *fixture) create(t *testing.T) (*domain.Run, *domain.Message) {
	t.Helper()
	run, ph, err := f.reg.Create(dbctx.Context{Ctx: context.Background()}, CreateInput{
		ThreadID:      f.thread.ID,
		UserID:        f.thread.UserID,
		UserMessageID: f.user.ID,
		Kind:          domain.RunKindPrompt,
		Input:         domain.RunInput{Prompt: "Party mix"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return run, ph
}

func TestCreateAllocatesPlaceholder(t *testing.T) {
	f := newFixture(t)
	run, ph := f.create(t)

	if run.Status != domain.RunQueued || run.Seq != 1 {
		t.Fatalf("run status=%s seq=%d", run.Status, run.Seq)
	}
	if run.Mode != domain.ModeRefineLast {
		t.Fatalf("mode=%s", run.Mode)
	}
	if ph.Seq != f.user.Seq+1 || ph.Role != domain.RoleAssistant || ph.Status != domain.MessageQueued {
		t.Fatalf("placeholder seq=%d role=%s status=%s", ph.Seq, ph.Role, ph.Status)
	}
	th, err := f.repos.Threads.GetByID(dbctx.Context{Ctx: context.Background()}, f.thread.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if th.NextSeq != ph.Seq {
		t.Fatalf("next_seq=%d want %d", th.NextSeq, ph.Seq)
	}
	if got := f.reg.Active(); len(got) != 1 || got[0] != run.ID {
		t.Fatalf("active=%v", got)
	}
}

func TestCreateRejectsForeignThread(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.reg.Create(dbctx.Context{Ctx: context.Background()}, CreateInput{
		ThreadID:      f.thread.ID,
		UserID:        uuid.New(),
		UserMessageID: f.user.ID,
		Kind:          domain.RunKindPrompt,
	})
	if !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("err=%v want ErrThreadNotFound", err)
	}
	if len(f.reg.Active()) != 0 {
		t.Fatalf("foreign create registered a run")
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, ph := f.create(t)

	s, changed, err := f.reg.Advance(ctx, run.ID, Progress{Stage: "planning", Percent: 40, Label: "Planning"})
	if err != nil || !changed {
		t.Fatalf("Advance 40: changed=%v err=%v", changed, err)
	}
	if s.Run.Status != domain.RunRunning || s.Run.StartedAt == nil || s.Run.Seq != 2 {
		t.Fatalf("after first advance status=%s seq=%d", s.Run.Status, s.Run.Seq)
	}

	if _, changed, _ := f.reg.Advance(ctx, run.ID, Progress{Stage: "planning", Percent: 30, Label: "Back"}); changed {
		t.Fatalf("lower percent was applied")
	}
	if _, changed, _ := f.reg.Advance(ctx, run.ID, Progress{Stage: "planning", Percent: 40, Label: "Planning"}); changed {
		t.Fatalf("duplicate progress was applied")
	}
	s, changed, err = f.reg.Advance(ctx, run.ID, Progress{Stage: "rendering", Percent: 40, Label: "Rendering"})
	if err != nil || !changed {
		t.Fatalf("same percent new stage: changed=%v err=%v", changed, err)
	}
	if s.Run.Seq != 3 {
		t.Fatalf("seq=%d want 3", s.Run.Seq)
	}

	got, err := f.reg.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Run.ProgressPercent != 40 || got.Run.ProgressStage != "rendering" {
		t.Fatalf("stored progress=%d/%s", got.Run.ProgressPercent, got.Run.ProgressStage)
	}
	msg, err := f.repos.Messages.GetByID(dbctx.Context{Ctx: ctx}, ph.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if msg.Status != domain.MessageRunning {
		t.Fatalf("placeholder status=%s", msg.Status)
	}
	if f.pub.count() != 2 {
		t.Fatalf("published %d snapshots, want 2", f.pub.count())
	}
}

func TestCompleteAppendsVersionOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, ph := f.create(t)

	if _, _, err := f.reg.Advance(ctx, run.ID, Progress{Stage: "rendering", Percent: 40}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	finalized := 0
	completion := Completion{
		Text:    "Your mix is ready.",
		Content: domain.Plain{Text: "Your mix is ready."},
		Version: &domain.Version{
			Proposal:    datatypes.NewJSONType(domain.Proposal{Title: "Party"}),
			FinalOutput: datatypes.NewJSONType(domain.FinalOutput{MP3URL: "https://cdn/mix.mp3"}),
		},
		Finalize: func(dbc dbctx.Context, r *domain.Run, v *domain.Version) error {
			finalized++
			if v == nil || v.RunID != r.ID {
				t.Errorf("finalize got version %+v", v)
			}
			return nil
		},
	}
	s, changed, err := f.reg.Complete(ctx, run.ID, completion)
	if err != nil || !changed {
		t.Fatalf("Complete: changed=%v err=%v", changed, err)
	}
	if s.Run.Status != domain.RunCompleted || !s.Terminal || s.Run.ProgressPercent != 100 || s.Run.VersionID == nil {
		t.Fatalf("snapshot %+v", s)
	}

	again := completion
	again.Version = &domain.Version{}
	if _, changed, err := f.reg.Complete(ctx, run.ID, again); err != nil || changed {
		t.Fatalf("second Complete changed=%v err=%v", changed, err)
	}
	if _, changed, _ := f.reg.Fail(ctx, run.ID, "late failure"); changed {
		t.Fatalf("Fail after Complete was applied")
	}
	if _, changed, _ := f.reg.Advance(ctx, run.ID, Progress{Stage: "late", Percent: 100}); changed {
		t.Fatalf("Advance after Complete was applied")
	}

	versions, err := f.repos.Versions.ListByThread(dbctx.Context{Ctx: ctx}, f.thread.ID)
	if err != nil {
		t.Fatalf("ListByThread: %v", err)
	}
	if len(versions) != 1 || finalized != 1 {
		t.Fatalf("versions=%d finalized=%d", len(versions), finalized)
	}
	v := versions[0]
	if v.SourceMessageID != f.user.ID || v.AssistantMessageID != ph.ID {
		t.Fatalf("version lineage %+v", v)
	}
	msg, err := f.repos.Messages.GetByID(dbctx.Context{Ctx: ctx}, ph.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if msg.Status != domain.MessageCompleted || msg.Text != "Your mix is ready." {
		t.Fatalf("placeholder status=%s text=%q", msg.Status, msg.Text)
	}
	if len(f.reg.Active()) != 0 {
		t.Fatalf("completed run still active")
	}
}

func TestFinalizeErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, _ := f.create(t)

	boom := errors.New("boom")
	_, changed, err := f.reg.Complete(ctx, run.ID, Completion{
		Text:     "done",
		Content:  domain.Plain{Text: "done"},
		Version:  &domain.Version{},
		Finalize: func(dbctx.Context, *domain.Run, *domain.Version) error { return boom },
	})
	if !errors.Is(err, boom) || changed {
		t.Fatalf("err=%v changed=%v", err, changed)
	}
	versions, _ := f.repos.Versions.ListByThread(dbctx.Context{Ctx: ctx}, f.thread.ID)
	if len(versions) != 0 {
		t.Fatalf("version survived rollback")
	}
	s, err := f.reg.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Terminal {
		t.Fatalf("run terminal after rollback")
	}
}

func TestFailTruncatesError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, ph := f.create(t)

	long := strings.Repeat("x", 3000)
	s, changed, err := f.reg.Fail(ctx, run.ID, long)
	if err != nil || !changed {
		t.Fatalf("Fail: changed=%v err=%v", changed, err)
	}
	if len(s.Run.ErrorMessage) != maxRunError {
		t.Fatalf("run error len=%d", len(s.Run.ErrorMessage))
	}
	msg, err := f.repos.Messages.GetByID(dbctx.Context{Ctx: ctx}, ph.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if msg.Status != domain.MessageFailed || len(msg.Text) != maxMessageError {
		t.Fatalf("placeholder status=%s len=%d", msg.Status, len(msg.Text))
	}
	content, err := domain.DecodeContent(msg.Content)
	if err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	if _, ok := content.(domain.ErrorContent); !ok {
		t.Fatalf("placeholder content %T", content)
	}
}

func TestGetUnknownRun(t *testing.T) {
	f := newFixture(t)
	if _, err := f.reg.Get(context.Background(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err=%v want ErrRunNotFound", err)
	}
}

func TestRecoverTracksUnfinishedRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, _ := f.create(t)

	restarted := NewRegistry(f.db, testutil.Logger(t), f.repos, nil, nil)
	got, err := restarted.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(got) != 1 || got[0].ID != run.ID {
		t.Fatalf("recovered %v", got)
	}
	if active := restarted.Active(); len(active) != 1 || active[0] != run.ID {
		t.Fatalf("active=%v", active)
	}

	if _, changed, err := restarted.Fail(ctx, run.ID, "worker lost"); err != nil || !changed {
		t.Fatalf("Fail: changed=%v err=%v", changed, err)
	}
	again := NewRegistry(f.db, testutil.Logger(t), f.repos, nil, nil)
	if got, err := again.Recover(ctx); err != nil || len(got) != 0 {
		t.Fatalf("Recover after fail: %v err=%v", got, err)
	}
	if len(again.Active()) != 0 {
		t.Fatalf("terminal run recovered")
	}
}
