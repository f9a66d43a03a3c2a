package plan_execute

import (
	"fmt"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/mixsteps"
	jobrt "github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/runs"
	"github.com/yungbote/intellimix-backend/internal/timeline"
)

const (
	textPending  = "Please resolve these remaining constraints before rendering."
	textRendered = "Approved plan rendered successfully."
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	in := jc.Input()
	if in.DraftID == nil {
		jc.Fail("validate", fmt.Errorf("missing draft_id"))
		return nil
	}
	draft, err := p.repos.Drafts.GetForThread(dbctx.Context{Ctx: jc.Ctx}, jc.Run.ThreadID, *in.DraftID)
	if err != nil {
		jc.Fail("load_draft", err)
		return nil
	}
	if draft.Status != domain.DraftApproved {
		jc.Fail("validate", fmt.Errorf("plan draft is %s, not approved", draft.Status))
		return nil
	}
	prop := draft.Proposal.Data()
	if prop == nil {
		jc.Fail("validate", fmt.Errorf("approved plan draft has no proposal"))
		return nil
	}

	jc.Progress("validating", 20, "Checking plan constraints")
	pending := append([]string{}, draft.PendingClarifications...)
	pending = append(pending, planning.ValidatePlan(prop.ConstraintContract, prop.Songs(), prop.ProvisionalTimeline)...)
	if len(pending) > 0 {
		return p.reopen(jc, draft, pending)
	}

	jc.Progress("downloading", 35, "Resolving songs")
	plan := *prop
	segments, err := timeline.Sanitize(planning.RenderSegments(plan), nil)
	if err != nil {
		jc.Fail("timeline", err)
		return nil
	}
	plan.Segments = segments

	out, err := mixsteps.Render(jc, p.renderer, mixsteps.RenderRequest(plan, planning.SourcePrompt(draft.Prompt)))
	if err != nil {
		jc.Fail("render", err)
		return nil
	}
	jc.Progress("finalizing", 95, "Saving version")

	draftID := draft.ID
	version := mixsteps.NewVersion(mixsteps.VersionInput{
		Proposal:        plan,
		Output:          out,
		ParentVersionID: jc.Run.ParentVersionID,
		PlanDraftID:     &draftID,
		GuidedPlanning:  true,
	})
	text := plan.MixingRationale
	if text == "" {
		text = textRendered
	}
	return jc.Complete(runs.Completion{
		Text:    text,
		Content: mixsteps.ProposalReady(jc.Run.ThreadID, version, &draftID),
		Version: version,
		Finalize: func(dbc dbctx.Context, run *domain.Run, v *domain.Version) error {
			locked, err := p.repos.Drafts.LockByID(dbc, draftID)
			if err != nil {
				return err
			}
			runID, versionID := run.ID, v.ID
			locked.ExecutedRunID = &runID
			locked.ExecutedVersionID = &versionID
			return p.repos.SaveDraft(dbc, locked)
		},
	})
}

// reopen sends the approved draft back to collecting with the constraints
// the frozen proposal still breaks.
func (p *Pipeline) reopen(jc *jobrt.Context, draft *domain.PlanDraft, pending []string) error {
	content := domain.ClarificationQuestion{
		DraftID:        draft.ID,
		Question:       textPending,
		Clarifications: pending,
	}
	return jc.Complete(runs.Completion{
		Text:    textPending,
		Content: content,
		Finalize: func(dbc dbctx.Context, _ *domain.Run, _ *domain.Version) error {
			locked, err := p.repos.Drafts.LockByID(dbc, draft.ID)
			if err != nil {
				return err
			}
			p.machine.ReopenForClarification(locked, pending)
			return p.repos.SaveDraft(dbc, locked)
		},
	})
}
