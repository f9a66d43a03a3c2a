package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

func queueItem(runID uuid.UUID) queue.Item { return queue.Item{RunID: runID} }

// routeSend picks the branch for a validated send. The first match wins:
// attachment, planning response, planning action, then plain content.
func (s *sessionService) routeSend(tx dbctx.Context, th *domain.Thread, userMsg *domain.Message, p *sendPlan) (*route, error) {
	switch {
	case p.attachment != nil:
		return s.routeAttachment(tx, th, p)
	case p.response != nil:
		return s.routeAnswers(tx, th, p.response.DraftID, p.response.Answers)
	case p.action != nil:
		return s.routeAction(tx, th, userMsg, p)
	case p.newDraft:
		return s.routeNewDraft(tx, th, userMsg, p.content, p.mode, true)
	}
	if d, err := s.activeDraft(tx, th); err != nil {
		return nil, err
	} else if d != nil && s.cfg.GuidedPlanning {
		return s.routeFreeform(tx, d, p.content)
	}
	return s.routeNewDraft(tx, th, userMsg, p.content, p.mode, false)
}

func (s *sessionService) routeAttachment(tx dbctx.Context, th *domain.Thread, p *sendPlan) (*route, error) {
	a := p.attachment
	v, err := s.repos.Versions.GetForThread(tx, th.ID, a.SourceVersionID)
	if err != nil {
		if errors.Is(err, mix.ErrNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	parent := v.ID
	text := p.content
	if text == "" {
		text = "Attached timeline"
	}
	return &route{
		text: text,
		content: domain.TimelineAttachmentRequest{
			Prompt:            p.content,
			SourceVersionID:   v.ID,
			Segments:          a.Segments,
			ChangedSegmentIDs: a.EditorMetadata.ChangedSegmentIDs,
			Resolution:        p.resolution,
		},
		run: runs.CreateInput{
			Kind:            domain.RunKindTimelineAttachment,
			Mode:            p.mode,
			ParentVersionID: &parent,
			PlaceholderText: "Processing attached timeline...",
			Input: domain.RunInput{
				Prompt:          p.content,
				SourceVersionID: &parent,
				Segments:        a.Segments,
				ChangedIDs:      a.EditorMetadata.ChangedSegmentIDs,
				Resolution:      p.resolution,
			},
		},
	}, nil
}

// lockDraft loads a draft of this thread under a row lock.
func (s *sessionService) lockDraft(tx dbctx.Context, threadID, draftID uuid.UUID) (*domain.PlanDraft, error) {
	d, err := s.repos.Drafts.LockByID(tx, draftID)
	if err != nil {
		if errors.Is(err, mix.ErrNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	if d.ThreadID != threadID {
		return nil, ErrDraftNotFound
	}
	return d, nil
}

func (s *sessionService) routeAnswers(tx dbctx.Context, th *domain.Thread, draftID uuid.UUID, answers []domain.Answer) (*route, error) {
	d, err := s.lockDraft(tx, th.ID, draftID)
	if err != nil {
		return nil, err
	}
	action := domain.ActionAnswer
	text := "Answered planning questions"
	if planning.IsRegenerateOnly(answers) || len(answers) == 0 {
		action = domain.ActionRegenerateSuggestions
		text = "Regenerate song suggestions"
		err = s.machine.RegenerateSongSuggestions(d)
	} else {
		err = s.machine.SubmitAnswers(d, answers)
	}
	if err != nil {
		return nil, err
	}
	if err := s.repos.SaveDraft(tx, d); err != nil {
		return nil, err
	}
	r := s.revisionRoute(d, action, "", text, domain.PlanningAnswers{DraftID: d.ID, Answers: answers})
	r.run.Input.Answers = answers
	return r, nil
}

func (s *sessionService) routeAction(tx dbctx.Context, th *domain.Thread, userMsg *domain.Message, p *sendPlan) (*route, error) {
	a := p.action
	switch a.Action {
	case domain.ActionStartNewDraft:
		prompt := p.content
		if prompt == "" && a.DraftID != uuid.Nil {
			d, err := s.lockDraft(tx, th.ID, a.DraftID)
			if err != nil {
				return nil, err
			}
			prompt = planning.SourcePrompt(d.Prompt)
		}
		if prompt == "" {
			return nil, invalid("content", "is required to start a new draft")
		}
		return s.routeNewDraft(tx, th, userMsg, prompt, p.mode, true)
	case actionRegenerateSongs, planning.OptionRegenerateSuggestions:
		return s.routeAnswers(tx, th, a.DraftID, nil)
	}

	d, err := s.lockDraft(tx, th.ID, a.DraftID)
	if err != nil {
		return nil, err
	}
	switch a.Action {
	case domain.ActionApprovePlan:
		if err := s.machine.Approve(d); err != nil {
			return nil, err
		}
		if err := s.repos.SaveDraft(tx, d); err != nil {
			return nil, err
		}
		draftID := d.ID
		return &route{
			text:    "Approved plan",
			content: domain.PlanningApproval{DraftID: d.ID},
			run: runs.CreateInput{
				Kind:            domain.RunKindPlanningExecute,
				PlanDraftID:     &draftID,
				PlaceholderText: "Rendering your approved plan...",
				Input:           domain.RunInput{DraftID: &draftID, Action: domain.ActionApprovePlan},
			},
		}, nil
	default:
		prompt := strings.TrimSpace(a.RevisionPrompt)
		if prompt == "" {
			prompt = p.content
		}
		if err := s.machine.Revise(d, prompt); err != nil {
			return nil, err
		}
		if err := s.repos.SaveDraft(tx, d); err != nil {
			return nil, err
		}
		return s.revisionRoute(d, domain.ActionRevisePlan, prompt, prompt,
			domain.PlanningRevisionRequest{DraftID: d.ID, Prompt: prompt}), nil
	}
}

func (s *sessionService) routeFreeform(tx dbctx.Context, d *domain.PlanDraft, prompt string) (*route, error) {
	if err := s.machine.Revise(d, prompt); err != nil {
		return nil, err
	}
	if err := s.repos.SaveDraft(tx, d); err != nil {
		return nil, err
	}
	return s.revisionRoute(d, domain.ActionFreeformRevision, prompt, prompt,
		domain.PlanningFreeformRevision{DraftID: d.ID, Prompt: prompt}), nil
}

func (s *sessionService) revisionRoute(d *domain.PlanDraft, action, prompt, text string, content domain.Content) *route {
	draftID := d.ID
	return &route{
		text:    text,
		content: content,
		run: runs.CreateInput{
			Kind:            domain.RunKindPlanningRevision,
			PlanDraftID:     &draftID,
			PlaceholderText: "Updating your plan...",
			Input:           domain.RunInput{DraftID: &draftID, Action: action, Prompt: prompt},
		},
	}
}

// activeDraft returns the draft the thread points at, locked, or nil when the
// pointer is empty or stale.
func (s *sessionService) activeDraft(tx dbctx.Context, th *domain.Thread) (*domain.PlanDraft, error) {
	if th.ActivePlanningDraftID == nil {
		return nil, nil
	}
	d, err := s.lockDraft(tx, th.ID, *th.ActivePlanningDraftID)
	if errors.Is(err, ErrDraftNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !d.Active() {
		return nil, nil
	}
	return d, nil
}

// routeNewDraft supersedes every active draft and starts planning from
// prompt, or renders it directly when guided planning is off.
func (s *sessionService) routeNewDraft(tx dbctx.Context, th *domain.Thread, userMsg *domain.Message, prompt, mode string, targeted bool) (*route, error) {
	content := domain.PromptRequest{Prompt: prompt, Mode: mode}
	if !s.cfg.GuidedPlanning {
		in := runs.CreateInput{
			Kind:            domain.RunKindPrompt,
			Mode:            mode,
			PlaceholderText: "Building your mix...",
			Input:           domain.RunInput{Prompt: prompt},
		}
		if mode == domain.ModeRefineLast {
			latest, err := s.repos.Versions.Latest(tx, th.ID)
			if err != nil && !errors.Is(err, mix.ErrNotFound) {
				return nil, err
			}
			if latest != nil {
				parent := latest.ID
				in.ParentVersionID = &parent
			}
		}
		return &route{text: prompt, content: content, run: in}, nil
	}

	active, err := s.repos.Drafts.ListActiveByThread(tx, th.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range active {
		s.machine.Supersede(d)
		if err := s.repos.Drafts.Save(tx, d); err != nil {
			return nil, err
		}
	}
	d := &domain.PlanDraft{
		ID:              uuid.New(),
		ThreadID:        th.ID,
		UserID:          th.UserID,
		SourceMessageID: userMsg.ID,
		Status:          domain.DraftCollecting,
		Prompt:          prompt,
		MaxRounds:       s.cfg.MaxRounds,
	}
	if err := s.repos.Drafts.Create(tx, d); err != nil {
		return nil, err
	}
	if err := s.repos.SaveDraft(tx, d); err != nil {
		return nil, err
	}
	action := ""
	if targeted {
		action = domain.ActionStartNewDraft
	}
	draftID := d.ID
	return &route{
		text:    prompt,
		content: content,
		run: runs.CreateInput{
			Kind:            domain.RunKindPlanningIntake,
			Mode:            mode,
			PlanDraftID:     &draftID,
			PlaceholderText: "Reading your request...",
			Input:           domain.RunInput{Prompt: prompt, DraftID: &draftID, Action: action},
		},
	}, nil
}
