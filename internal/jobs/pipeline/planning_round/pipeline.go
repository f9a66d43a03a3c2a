package planning_round

import (
	"errors"
	"fmt"
	"time"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/mixsteps"
	jobrt "github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

const (
	textQuestions     = "Before I render, I need a few confirmations so the first mix lands exactly how you want."
	textRevisionAsk   = "Noted. I need a little more detail before I can lock the final plan."
	textClarification = "I need one clarification to satisfy your exact constraints before finalizing the draft."
	textDraftReady    = "Plan draft is ready. Review songs, energy curve, and provisional timeline, then approve to render."
	textWaitingAI     = "Audio engineer is temporarily at capacity. I paused planning and will retry shortly."
	textSuperseded    = "This plan draft was replaced by a newer one, so I stopped working on it."

	labelWaitingAI = "Retrying AI capacity"
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
	dbc := dbctx.Context{Ctx: jc.Ctx}
	draft, err := p.repos.Drafts.GetForThread(dbc, jc.Run.ThreadID, *in.DraftID)
	if err != nil {
		jc.Fail("load_draft", err)
		return nil
	}
	if !draft.Active() {
		return jc.Complete(runs.Completion{Text: textSuperseded, Content: domain.Plain{Text: textSuperseded}})
	}

	jc.Progress("planning", 30, "Planning mix")
	res, err := p.planner.Round(jc.Ctx, draft, planning.RoundInput{
		Action:   in.Action,
		Answers:  in.Answers,
		Revision: revisionText(in),
	})
	if err != nil {
		if ue, ok := planning.IsUnavailable(err); ok {
			return p.wait(jc, draft, ue)
		}
		jc.Fail("planning", err)
		return nil
	}

	text, content := p.present(draft, in, res)
	err = jc.Complete(runs.Completion{
		Text:    text,
		Content: content,
		Finalize: func(dbc dbctx.Context, _ *domain.Run, _ *domain.Version) error {
			locked, err := p.repos.Drafts.LockByID(dbc, draft.ID)
			if err != nil {
				return err
			}
			if _, err := p.machine.ApplyRound(locked, res); err != nil {
				return err
			}
			return p.repos.SaveDraft(dbc, locked)
		},
	})
	if errors.Is(err, planning.ErrDraftNotActive) {
		return jc.Complete(runs.Completion{Text: textSuperseded, Content: domain.Plain{Text: textSuperseded}})
	}
	return err
}

func revisionText(in domain.RunInput) string {
	switch in.Action {
	case domain.ActionRevisePlan, domain.ActionFreeformRevision:
		return in.Prompt
	}
	return ""
}

func (p *Pipeline) maxRounds(d *domain.PlanDraft) int {
	if d.MaxRounds > 0 {
		return d.MaxRounds
	}
	return p.planner.Settings().MaxRounds
}

// present builds the assistant reply for the state the round moves the
// draft to.
func (p *Pipeline) present(d *domain.PlanDraft, in domain.RunInput, res planning.RoundResult) (string, domain.Content) {
	switch res.Outcome() {
	case planning.OutcomeDraftReady:
		return textDraftReady, domain.PlanningDraftReady{
			DraftID:           d.ID,
			RoundCount:        res.RoundCount,
			MaxRounds:         p.maxRounds(d),
			ConfidenceScore:   res.Confidence,
			Proposal:          *res.Proposal,
			Contract:          res.Contract,
			Violations:        append([]string{}, res.Violations...),
			RoundLimitReached: d.RoundLimitReached || res.RoundLimitReached,
		}
	case planning.OutcomeClarification:
		return textClarification, domain.ConstraintClarification{
			DraftID:        d.ID,
			Clarifications: res.PendingClarifications,
			Contract:       res.Contract,
		}
	default:
		revision := revisionText(in) != ""
		text := textQuestions
		if revision {
			text = textRevisionAsk
		}
		return text, domain.PlanningQuestions{
			DraftID:         d.ID,
			RoundCount:      res.RoundCount,
			MaxRounds:       p.maxRounds(d),
			ConfidenceScore: res.Confidence,
			RequiredSlots:   res.Slots,
			Contract:        res.Contract,
			Questions:       res.Questions,
			Revision:        revision,
		}
	}
}

// wait parks the run until the AI side has capacity again. Once every
// attempt is spent the run completes with the waiting payload so the user
// can retry by hand.
func (p *Pipeline) wait(jc *jobrt.Context, d *domain.PlanDraft, ue *planning.UnavailableError) error {
	delay := p.retryDelay(ue.RetryAfter, jc.Attempt)
	content := domain.PlanningWaitingAI{
		DraftID:           d.ID,
		RetryAfterSeconds: int(delay / time.Second),
		Reason:            mixsteps.Truncate(ue.Reason, 240),
		StatusLabel:       labelWaitingAI,
	}
	err := jc.Pause(runs.Progress{
		Stage:   "waiting_ai",
		Percent: 20,
		Label:   labelWaitingAI,
		Detail:  content.Reason,
		Content: content,
		Text:    textWaitingAI,
	}, delay, p.maxAttempts)
	if errors.Is(err, jobrt.ErrRetryLimit) {
		jc.Log.Warn("planning AI still unavailable; giving up", "draft_id", d.ID, "attempt", jc.Attempt)
		content.RetryAfterSeconds = 0
		return jc.Complete(runs.Completion{Text: textWaitingAI, Content: content})
	}
	return err
}

func (p *Pipeline) retryDelay(hint time.Duration, attempt int) time.Duration {
	d := hint
	if d <= 0 {
		d = p.minRetry << uint(min(attempt, 6))
	}
	if d < p.minRetry {
		d = p.minRetry
	}
	if d > p.maxRetry {
		d = p.maxRetry
	}
	return d
}
