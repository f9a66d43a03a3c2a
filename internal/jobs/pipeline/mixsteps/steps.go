package mixsteps

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/engine"
	jobrt "github.com/yungbote/intellimix-backend/internal/jobs/runtime"
)

const FailurePrefix = "Mix generation failed: "

// Render runs the engine and forwards its stages as run progress.
func Render(jc *jobrt.Context, r engine.Renderer, req engine.RenderRequest) (domain.FinalOutput, error) {
	req.RunID = jc.Run.ID
	req.ThreadID = jc.Run.ThreadID
	jc.Progress("rendering", 50, "Rendering mix")
	return r.Render(jc.Ctx, req, func(stage string, pct int) {
		jc.Progress(stage, pct, stageLabel(stage))
	})
}

func stageLabel(stage string) string {
	switch stage {
	case "rendering":
		return "Rendering mix"
	case "uploading":
		return "Uploading audio"
	case "downloading":
		return "Resolving songs"
	default:
		if stage == "" {
			return ""
		}
		return strings.ToUpper(stage[:1]) + strings.ReplaceAll(stage[1:], "_", " ")
	}
}

// VersionInput is what a rendered run records as its version.
type VersionInput struct {
	Proposal           domain.Proposal
	Output             domain.FinalOutput
	ParentVersionID    *uuid.UUID
	PlanDraftID        *uuid.UUID
	GuidedPlanning     bool
	ChangedSegmentIDs  []string
	AppliedAdjustments []string
}

// NewVersion builds the version row with a pre-assigned id so the completion
// payload can reference it before the row is written.
func NewVersion(in VersionInput) *domain.Version {
	return &domain.Version{
		ID:              uuid.New(),
		ParentVersionID: in.ParentVersionID,
		PlanDraftID:     in.PlanDraftID,
		Proposal:        datatypes.NewJSONType(in.Proposal),
		FinalOutput:     datatypes.NewJSONType(in.Output),
		Snapshot: datatypes.NewJSONType(domain.VersionSnapshot{
			Summary:                 in.Proposal.Summary,
			TargetDurationSeconds:   in.Proposal.TargetDurationSeconds,
			SegmentsCount:           len(in.Proposal.Segments),
			GuidedPlanning:          in.GuidedPlanning,
			PlanDraftID:             in.PlanDraftID,
			MinorAdjustmentsAllowed: in.Proposal.MinorAutoAdjustAllowed,
			ChangedSegmentIDs:       in.ChangedSegmentIDs,
			AppliedAdjustments:      in.AppliedAdjustments,
		}),
	}
}

// ProposalReady is the assistant payload for a freshly rendered version.
func ProposalReady(threadID uuid.UUID, v *domain.Version, draftID *uuid.UUID) domain.ProposalReady {
	snap := v.Snapshot.Data()
	return domain.ProposalReady{
		ThreadID:           threadID,
		VersionID:          v.ID,
		DraftID:            draftID,
		Proposal:           v.Proposal.Data(),
		FinalOutput:        v.FinalOutput.Data(),
		ChangedSegmentIDs:  snap.ChangedSegmentIDs,
		AppliedAdjustments: snap.AppliedAdjustments,
	}
}

// RenderRequest derives the engine request from a proposal.
func RenderRequest(p domain.Proposal, prompt string) engine.RenderRequest {
	return engine.RenderRequest{
		Title:                   p.Title,
		Prompt:                  prompt,
		TargetDurationSeconds:   p.TargetDurationSeconds,
		Songs:                   p.Songs(),
		Segments:                p.Segments,
		MinorAdjustmentsAllowed: p.MinorAutoAdjustAllowed,
	}
}

// Truncate cuts s to n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SegmentDurations reports the summed timeline length in seconds.
func SegmentDurations(segments []domain.TimelineSegment) int {
	var ms int64
	for i, s := range segments {
		ms += s.EndMS - s.StartMS
		if i < len(segments)-1 {
			ms -= int64(s.CrossfadeAfterSeconds * 1000)
		}
	}
	if ms < 0 {
		return 0
	}
	return int((ms + 500) / 1000)
}
