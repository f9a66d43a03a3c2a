package timeline_render

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

func parentSegments() []domain.TimelineSegment {
	return []domain.TimelineSegment{
		{ID: "a", SegmentName: "Intro", TrackIndex: 0, TrackID: "0", StartMS: 0, EndMS: 30000, DurationMS: 30000, CrossfadeAfterSeconds: 2},
		{ID: "b", SegmentName: "Drop", TrackIndex: 1, TrackID: "1", StartMS: 0, EndMS: 30000, DurationMS: 30000},
	}
}

func render(t *testing.T, env *pipelinetest.Env, kind string, in domain.RunInput) *domain.Run {
	t.Helper()
	p := New(env.DB, env.Log, env.Repos, env.Renderer)
	jc := env.Start(t, runs.CreateInput{Kind: kind, ParentVersionID: in.SourceVersionID, Input: in})
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return env.Run(t, jc.Run.ID)
}

func TestEditProducesChildVersion(t *testing.T) {
	env := pipelinetest.New(t)
	parent := env.SeedVersion(t, parentSegments())
	pid := parent.ID

	edited := parentSegments()
	edited[1].StartMS, edited[1].EndMS = 5000, 25000
	run := render(t, env, domain.RunKindTimelineEdit, domain.RunInput{
		SourceVersionID: &pid,
		Segments:        edited,
		Note:            "tightened the drop",
	})
	if run.Status != domain.RunCompleted {
		t.Fatalf("run status=%s err=%q", run.Status, run.ErrorMessage)
	}
	msg, content := env.Reply(t, run)
	ready := content.(domain.ProposalReady)
	if len(ready.ChangedSegmentIDs) != 1 || ready.ChangedSegmentIDs[0] != "b" {
		t.Fatalf("changed=%v", ready.ChangedSegmentIDs)
	}
	want := "Timeline edits applied successfully with 2 segments. Note: tightened the drop"
	if msg.Text != want {
		t.Fatalf("reply text %q", msg.Text)
	}
	v, err := env.Repos.Versions.GetByRunID(dbctx.Context{Ctx: context.Background()}, run.ID)
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if v.ParentVersionID == nil || *v.ParentVersionID != parent.ID {
		t.Fatalf("parent=%v", v.ParentVersionID)
	}
	if got := v.Proposal.Data().Segments[1]; got.DurationMS != 20000 || got.Order != 1 {
		t.Fatalf("stored segment %+v", got)
	}
}

func TestAttachmentAppliesPrompt(t *testing.T) {
	env := pipelinetest.New(t)
	parent := env.SeedVersion(t, parentSegments())
	pid := parent.ID

	run := render(t, env, domain.RunKindTimelineAttachment, domain.RunInput{
		SourceVersionID: &pid,
		Segments:        parentSegments(),
		Prompt:          "make it a hard cut",
	})
	if run.Status != domain.RunCompleted {
		t.Fatalf("run status=%s err=%q", run.Status, run.ErrorMessage)
	}
	msg, content := env.Reply(t, run)
	ready := content.(domain.ProposalReady)
	if len(ready.AppliedAdjustments) != 1 || ready.Proposal.Segments[0].CrossfadeAfterSeconds != 0.6 {
		t.Fatalf("adjustments=%v segments=%+v", ready.AppliedAdjustments, ready.Proposal.Segments)
	}
	if !strings.Contains(msg.Text, "prompt_adjusted") {
		t.Fatalf("reply text %q", msg.Text)
	}
}

func TestKeepAttachedCutsIgnoresPrompt(t *testing.T) {
	env := pipelinetest.New(t)
	parent := env.SeedVersion(t, parentSegments())
	pid := parent.ID

	run := render(t, env, domain.RunKindTimelineAttachment, domain.RunInput{
		SourceVersionID: &pid,
		Segments:        parentSegments(),
		Prompt:          "make it a hard cut",
		Resolution:      domain.ResolutionKeepAttachedCuts,
	})
	msg, content := env.Reply(t, run)
	ready := content.(domain.ProposalReady)
	if len(ready.AppliedAdjustments) != 0 || ready.Proposal.Segments[0].CrossfadeAfterSeconds != 2 {
		t.Fatalf("adjustments=%v segments=%+v", ready.AppliedAdjustments, ready.Proposal.Segments)
	}
	if !strings.Contains(msg.Text, "keep_attached_cuts") {
		t.Fatalf("reply text %q", msg.Text)
	}
}

func TestRejectsBadTimeline(t *testing.T) {
	env := pipelinetest.New(t)
	parent := env.SeedVersion(t, parentSegments())
	pid := parent.ID
	tests := []struct {
		name string
		in   domain.RunInput
	}{
		{"no segments", domain.RunInput{SourceVersionID: &pid}},
		{"unknown source", domain.RunInput{SourceVersionID: ptr(uuid.New()), Segments: parentSegments()}},
		{"missing source", domain.RunInput{Segments: parentSegments()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := render(t, env, domain.RunKindTimelineEdit, tt.in)
			if run.Status != domain.RunFailed {
				t.Fatalf("run status=%s", run.Status)
			}
		})
	}
}

func TestReplyTextTruncatesNote(t *testing.T) {
	note := strings.Repeat("n", 400)
	got := replyText(false, "", domain.Proposal{Segments: make([]domain.TimelineSegment, 3)}, nil, note)
	if !strings.HasSuffix(got, " Note: "+strings.Repeat("n", maxNoteInReply)) {
		t.Fatalf("reply %q", got)
	}
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }
