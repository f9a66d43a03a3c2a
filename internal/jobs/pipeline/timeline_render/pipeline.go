package timeline_render

import (
	"fmt"
	"strings"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/mixsteps"
	jobrt "github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/runs"
	"github.com/yungbote/intellimix-backend/internal/timeline"
)

const maxNoteInReply = 320

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	in := jc.Input()
	if in.SourceVersionID == nil {
		jc.Fail("validate", fmt.Errorf("missing source_version_id"))
		return nil
	}
	parent, err := p.repos.Versions.GetForThread(dbctx.Context{Ctx: jc.Ctx}, jc.Run.ThreadID, *in.SourceVersionID)
	if err != nil {
		jc.Fail("load_parent", err)
		return nil
	}

	jc.Progress("timeline", 15, "Validating timeline")
	segments, err := timeline.Sanitize(in.Segments, nil)
	if err != nil {
		jc.Fail("timeline", err)
		return nil
	}
	var applied []string
	attachment := jc.Run.Kind == domain.RunKindTimelineAttachment
	if attachment && in.Resolution != domain.ResolutionKeepAttachedCuts && strings.TrimSpace(in.Prompt) != "" {
		segments, applied = timeline.ApplyPromptAdjustments(segments, in.Prompt)
	}

	base := parent.Proposal.Data()
	plan := base
	plan.Segments = segments
	plan.MixingRationale = ""
	plan.TargetDurationSeconds = mixsteps.SegmentDurations(segments)
	changed := timeline.Diff(segments, base.Segments)

	jc.Progress("downloading", 35, "Resolving songs")
	out, err := mixsteps.Render(jc, p.renderer, mixsteps.RenderRequest(plan, in.Prompt))
	if err != nil {
		jc.Fail("render", err)
		return nil
	}
	jc.Progress("finalizing", 95, "Saving version")

	parentID := parent.ID
	version := mixsteps.NewVersion(mixsteps.VersionInput{
		Proposal:           plan,
		Output:             out,
		ParentVersionID:    &parentID,
		PlanDraftID:        parent.PlanDraftID,
		GuidedPlanning:     parent.Snapshot.Data().GuidedPlanning,
		ChangedSegmentIDs:  changed,
		AppliedAdjustments: applied,
	})
	return jc.Complete(runs.Completion{
		Text:    replyText(attachment, in.Resolution, plan, applied, in.Note),
		Content: mixsteps.ProposalReady(jc.Run.ThreadID, version, parent.PlanDraftID),
		Version: version,
	})
}

func replyText(attachment bool, resolution string, plan domain.Proposal, applied []string, note string) string {
	if plan.MixingRationale != "" {
		return plan.MixingRationale
	}
	if attachment {
		switch {
		case resolution != "":
		case len(applied) > 0:
			resolution = "prompt_adjusted"
		default:
			resolution = "as_attached"
		}
		return fmt.Sprintf("Attached timeline processed successfully with resolution '%s'.", resolution)
	}
	text := fmt.Sprintf("Timeline edits applied successfully with %d segments.", len(plan.Segments))
	if note = strings.TrimSpace(note); note != "" {
		text += " Note: " + mixsteps.Truncate(note, maxNoteInReply)
	}
	return text
}
