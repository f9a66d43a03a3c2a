package mix_prompt

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/mixsteps"
	jobrt "github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/runs"
	"github.com/yungbote/intellimix-backend/internal/timeline"
)

const (
	textCreated = "Mix draft created successfully."
	mixTitle    = "Mix Draft"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Run == nil {
		return nil
	}
	prompt := strings.TrimSpace(jc.Input().Prompt)
	if prompt == "" {
		jc.Fail("validate", fmt.Errorf("prompt is required"))
		return nil
	}

	jc.Progress("planning", 15, "Planning mix")
	var (
		plan     domain.Proposal
		parent   *domain.Version
		changed  []string
		adjusted []string
		err      error
	)
	if jc.Run.Mode == domain.ModeRefineLast && jc.Run.ParentVersionID != nil {
		parent, err = p.repos.Versions.GetForThread(dbctx.Context{Ctx: jc.Ctx}, jc.Run.ThreadID, *jc.Run.ParentVersionID)
		if err != nil {
			jc.Fail("load_parent", err)
			return nil
		}
	}
	if parent != nil && len(planning.ParseSongList(prompt)) == 0 && len(parent.Proposal.Data().Segments) > 0 {
		plan, changed, adjusted = refine(parent.Proposal.Data(), prompt)
	} else {
		plan, err = p.fresh(jc.Ctx, prompt)
		if err != nil {
			jc.Fail("planning", err)
			return nil
		}
	}
	if plan.Segments, err = timeline.Sanitize(plan.Segments, nil); err != nil {
		jc.Fail("timeline", err)
		return nil
	}

	jc.Progress("downloading", 35, "Resolving songs")
	out, err := mixsteps.Render(jc, p.renderer, mixsteps.RenderRequest(plan, prompt))
	if err != nil {
		jc.Fail("render", err)
		return nil
	}
	jc.Progress("finalizing", 95, "Saving version")

	version := mixsteps.NewVersion(mixsteps.VersionInput{
		Proposal:           plan,
		Output:             out,
		ParentVersionID:    jc.Run.ParentVersionID,
		ChangedSegmentIDs:  changed,
		AppliedAdjustments: adjusted,
	})
	text := plan.MixingRationale
	if text == "" {
		text = textCreated
	}
	return jc.Complete(runs.Completion{
		Text:    text,
		Content: mixsteps.ProposalReady(jc.Run.ThreadID, version, nil),
		Version: version,
	})
}

// refine applies prompt-level tweaks to the parent's timeline and keeps the
// rest of its plan.
func refine(parent domain.Proposal, prompt string) (domain.Proposal, []string, []string) {
	base := parent.Segments
	segments, applied := timeline.ApplyPromptAdjustments(base, prompt)
	plan := parent
	plan.Segments = segments
	plan.MixingRationale = ""
	if len(applied) > 0 {
		plan.Summary = "Refined: " + strings.Join(applied, "; ")
	}
	return plan, timeline.Diff(segments, base), applied
}

// fresh plans a mix from the prompt alone. Songs come from an explicit list
// in the prompt, else from the suggester.
func (p *Pipeline) fresh(ctx context.Context, prompt string) (domain.Proposal, error) {
	songs := planning.ParseSongList(prompt)
	source := domain.SourceExplicit
	if len(songs) == 0 && p.suggester != nil {
		artist, count := planning.ArtistAndCount(prompt, p.settings.DefaultSuggestionCount)
		suggested, err := p.suggester.SuggestSongs(ctx, prompt, artist, count)
		if err != nil {
			p.log.Warn("song suggestion failed; planning without songs", "error", err)
		}
		songs, source = planning.NormalizeSongs(suggested), domain.SourceSuggested
	}
	if len(songs) == 0 {
		source = domain.SourceNone
	}
	slots, _ := planning.ResolveSlots(planning.SlotInput{Prompt: prompt, Songs: songs, SongsSource: source})
	contract := planning.ExtractContract(prompt, songs, nil)
	if !contract.Empty() {
		if constrained, _ := planning.ApplySongConstraints(songs, contract, nil); len(constrained) > 0 {
			planning.SetSongs(slots, constrained, domain.SourceConstraintContract, 0.86)
		}
	}
	plan := planning.BuildProposal(planning.ProposalInput{Prompt: prompt, Slots: slots, Contract: contract})
	plan.Title = mixTitle
	plan.Summary = fmt.Sprintf("%s mix for %s.", plan.EnergyCurve, strings.ToLower(plan.UseCase))
	plan.Segments = planning.RenderSegments(plan)
	if len(plan.Segments) == 0 {
		return plan, fmt.Errorf("could not lay out a timeline for this prompt")
	}
	return plan, nil
}
