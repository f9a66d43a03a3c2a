package mix_prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

type stubSuggester struct {
	songs []string
	err   error
	calls int
}

func (s *stubSuggester) SuggestSongs(context.Context, string, string, int) ([]string, error) {
	s.calls++
	return s.songs, s.err
}

func settings() planning.Settings {
	return planning.Settings{MinRounds: 1, MaxRounds: 5, ConfidenceThreshold: 0.78, DefaultSuggestionCount: 5}
}

func runPrompt(t *testing.T, env *pipelinetest.Env, p *Pipeline, mode, prompt string, parent *uuid.UUID) *domain.Run {
	t.Helper()
	jc := env.Start(t, runs.CreateInput{
		Kind:            domain.RunKindPrompt,
		Mode:            mode,
		ParentVersionID: parent,
		Input:           domain.RunInput{Prompt: prompt},
	})
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return env.Run(t, jc.Run.ID)
}

func TestFreshPromptRendersVersion(t *testing.T) {
	env := pipelinetest.New(t)
	p := New(env.DB, env.Log, env.Repos, env.Renderer, nil, settings())

	run := runPrompt(t, env, p, domain.ModeRestartFresh, "Party mix. Songs: Kesariya, Tum Hi Ho, Believer", nil)
	if run.Status != domain.RunCompleted || run.VersionID == nil {
		t.Fatalf("run status=%s err=%q", run.Status, run.ErrorMessage)
	}
	msg, content := env.Reply(t, run)
	ready, ok := content.(domain.ProposalReady)
	if !ok {
		t.Fatalf("reply content %T", content)
	}
	if ready.DraftID != nil || len(ready.Proposal.ResolvedSongs) != 3 || len(ready.Proposal.Segments) != 3 {
		t.Fatalf("proposal payload %+v", ready.Proposal)
	}
	if ready.Proposal.Title != mixTitle || msg.Text != textCreated {
		t.Fatalf("title=%q text=%q", ready.Proposal.Title, msg.Text)
	}
	v, err := env.Repos.Versions.GetByRunID(dbctx.Context{Ctx: context.Background()}, run.ID)
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if v.ParentVersionID != nil || v.Snapshot.Data().GuidedPlanning {
		t.Fatalf("fresh version lineage %+v", v)
	}
}

func TestRefineAdjustsParentTimeline(t *testing.T) {
	env := pipelinetest.New(t)
	p := New(env.DB, env.Log, env.Repos, env.Renderer, nil, settings())
	parent := env.SeedVersion(t, []domain.TimelineSegment{
		{ID: "a", SegmentName: "Intro", TrackIndex: 0, StartMS: 0, EndMS: 30000, DurationMS: 30000, CrossfadeAfterSeconds: 2},
		{ID: "b", SegmentName: "Drop", TrackIndex: 1, StartMS: 0, EndMS: 30000, DurationMS: 30000},
	})
	pid := parent.ID

	run := runPrompt(t, env, p, domain.ModeRefineLast, "use a 5s crossfade between them", &pid)
	if run.Status != domain.RunCompleted {
		t.Fatalf("run status=%s err=%q", run.Status, run.ErrorMessage)
	}
	_, content := env.Reply(t, run)
	ready := content.(domain.ProposalReady)
	if len(ready.AppliedAdjustments) != 1 || len(ready.ChangedSegmentIDs) != 1 || ready.ChangedSegmentIDs[0] != "a" {
		t.Fatalf("adjustments=%v changed=%v", ready.AppliedAdjustments, ready.ChangedSegmentIDs)
	}
	if got := ready.Proposal.Segments[0].CrossfadeAfterSeconds; got != 5 {
		t.Fatalf("crossfade=%v want 5", got)
	}
	v, err := env.Repos.Versions.GetByRunID(dbctx.Context{Ctx: context.Background()}, run.ID)
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if v.ParentVersionID == nil || *v.ParentVersionID != parent.ID {
		t.Fatalf("parent=%v want %s", v.ParentVersionID, parent.ID)
	}
}

func TestSuggesterFillsSongsAndFailureFallsBack(t *testing.T) {
	env := pipelinetest.New(t)
	s := &stubSuggester{songs: []string{"Apna Bana Le", "Raataan Lambiyan"}}
	p := New(env.DB, env.Log, env.Repos, env.Renderer, s, settings())

	run := runPrompt(t, env, p, domain.ModeRestartFresh, "Arijit Singh mashup for a wedding", nil)
	_, content := env.Reply(t, run)
	if songs := content.(domain.ProposalReady).Proposal.Songs(); len(songs) != 2 || s.calls != 1 {
		t.Fatalf("songs=%v calls=%d", songs, s.calls)
	}

	s.songs, s.err = nil, errors.New("boom")
	run = runPrompt(t, env, p, domain.ModeRestartFresh, "Arijit Singh mashup for a wedding", nil)
	if run.Status != domain.RunCompleted {
		t.Fatalf("fallback run status=%s err=%q", run.Status, run.ErrorMessage)
	}
}

func TestEmptyPromptFails(t *testing.T) {
	env := pipelinetest.New(t)
	p := New(env.DB, env.Log, env.Repos, env.Renderer, nil, settings())
	run := runPrompt(t, env, p, domain.ModeRestartFresh, "   ", nil)
	if run.Status != domain.RunFailed || run.ErrorMessage == "" {
		t.Fatalf("run status=%s err=%q", run.Status, run.ErrorMessage)
	}
}
