package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/runs"
	"github.com/yungbote/intellimix-backend/internal/timeline"
)

const maxIdempotencyKey = 128

// sendPlan is a validated send request.
type sendPlan struct {
	content    string
	mode       string
	newDraft   bool
	resolution string
	attachment *mixapi.Attachment
	response   *mixapi.PlanningResponse
	action     *mixapi.PlanningAction
}

// actionRegenerateSongs is the planning_action name clients send; the
// shorter regenerate_suggestions is accepted as well.
const actionRegenerateSongs = "regenerate_song_suggestions"

var planningActions = map[string]bool{
	domain.ActionApprovePlan:             true,
	domain.ActionRevisePlan:              true,
	domain.ActionStartNewDraft:           true,
	actionRegenerateSongs:                true,
	planning.OptionRegenerateSuggestions: true,
}

func validateSend(req mixapi.SendMessageRequest) (*sendPlan, error) {
	p := &sendPlan{
		content:    strings.TrimSpace(req.Content),
		mode:       strings.TrimSpace(req.Mode),
		resolution: strings.TrimSpace(req.TimelineResolution),
		response:   req.PlanningResponse,
		action:     req.PlanningAction,
	}
	if len([]rune(p.content)) > maxContentChars {
		return nil, invalid("content", "must be at most %d characters", maxContentChars)
	}
	switch p.mode {
	case "":
		p.mode = domain.ModeRefineLast
	case domain.ModeRefineLast, domain.ModeRestartFresh:
	default:
		return nil, invalid("mode", "must be %s or %s", domain.ModeRefineLast, domain.ModeRestartFresh)
	}
	switch strings.TrimSpace(req.PlanningTarget) {
	case "":
	case mixapi.PlanningTargetNewDraft:
		p.newDraft = true
	default:
		return nil, invalid("planning_target", "must be %s", mixapi.PlanningTargetNewDraft)
	}

	if len(req.Attachments) > 1 {
		return nil, invalid("attachments", "at most one attachment is supported")
	}
	if len(req.Attachments) == 1 {
		a := req.Attachments[0]
		if a.Type != mixapi.AttachmentTimelineSnapshot {
			return nil, invalid("attachments[0].type", "must be %s", mixapi.AttachmentTimelineSnapshot)
		}
		if a.SourceVersionID == uuid.Nil {
			return nil, invalid("attachments[0].source_version_id", "is required")
		}
		if err := timeline.Validate(a.Segments); err != nil {
			return nil, err
		}
		p.attachment = &a
	}
	if p.resolution != "" {
		if p.attachment == nil {
			return nil, invalid("timeline_resolution", "requires a timeline attachment")
		}
		if !domain.IsTimelineResolution(p.resolution) {
			return nil, invalid("timeline_resolution", "unknown resolution %q", p.resolution)
		}
	}

	branches := 0
	for _, set := range []bool{p.attachment != nil, p.response != nil, p.action != nil} {
		if set {
			branches++
		}
	}
	if branches > 1 {
		return nil, invalid("content", "attachments, planning_response and planning_action are mutually exclusive")
	}
	if p.response != nil {
		if p.response.DraftID == uuid.Nil {
			return nil, invalid("planning_response.draft_id", "is required")
		}
		if len(p.response.Answers) == 0 {
			return nil, invalid("planning_response.answers", "at least one answer is required")
		}
	}
	if p.action != nil {
		p.action.Action = strings.TrimSpace(p.action.Action)
		if !planningActions[p.action.Action] {
			return nil, invalid("planning_action.action", "unknown action %q", p.action.Action)
		}
		if p.action.Action != domain.ActionStartNewDraft && p.action.DraftID == uuid.Nil {
			return nil, invalid("planning_action.draft_id", "is required")
		}
		if p.action.Action == domain.ActionRevisePlan && strings.TrimSpace(p.action.RevisionPrompt) == "" && p.content == "" {
			return nil, invalid("planning_action.revision_prompt", "is required to revise a plan")
		}
	}
	if branches == 0 && p.content == "" {
		return nil, invalid("content", "is required")
	}
	return p, nil
}

func (s *sessionService) SendMessage(dbc dbctx.Context, threadID uuid.UUID, req mixapi.SendMessageRequest, idemKey string) (*Accepted, error) {
	idemKey = strings.TrimSpace(idemKey)
	if len(idemKey) > maxIdempotencyKey {
		return nil, invalid("Idempotency-Key", "must be at most %d characters", maxIdempotencyKey)
	}
	if _, _, err := s.ownedThread(dbc, threadID); err != nil {
		return nil, err
	}
	if prior, err := s.replay(dbc, threadID, idemKey); prior != nil || err != nil {
		return prior, err
	}
	plan, err := validateSend(req)
	if err != nil {
		return nil, err
	}
	return s.start(dbc, threadID, idemKey, func(tx dbctx.Context, th *domain.Thread, userMsg *domain.Message) (*route, error) {
		return s.routeSend(tx, th, userMsg, plan)
	})
}

// replay resolves an idempotency key to the send that already used it.
func (s *sessionService) replay(dbc dbctx.Context, threadID uuid.UUID, key string) (*Accepted, error) {
	if key == "" {
		return nil, nil
	}
	msg, err := s.repos.Messages.GetByIdempotencyKey(dbc, threadID, key)
	if err != nil || msg == nil {
		return nil, err
	}
	run, err := s.repos.Runs.GetByUserMessageID(dbc, msg.ID)
	if err != nil {
		return nil, err
	}
	placeholder, err := s.repos.Messages.GetByID(dbc, run.AssistantMessageID)
	if err != nil {
		return nil, err
	}
	s.log.Debug("idempotent replay", "thread_id", threadID, "run_id", run.ID)
	return &Accepted{UserMessage: msg, AssistantMessage: placeholder, Run: run, Replayed: true}, nil
}

// route is what a branch decided: the user message content and the run to
// create for it.
type route struct {
	text    string
	content domain.Content
	run     runs.CreateInput
}

type routeFunc func(tx dbctx.Context, th *domain.Thread, userMsg *domain.Message) (*route, error)

// start writes the user message, lets decide pick a route, creates the run
// and placeholder, commits, then queues and announces the run.
func (s *sessionService) start(dbc dbctx.Context, threadID uuid.UUID, idemKey string, decide routeFunc) (*Accepted, error) {
	userID, err := callerID(dbc)
	if err != nil {
		return nil, err
	}
	var (
		userMsg     *domain.Message
		run         *domain.Run
		placeholder *domain.Message
	)
	txErr := s.db.WithContext(dbc.Context()).Transaction(func(txx *gorm.DB) error {
		tx := dbctx.Context{Ctx: dbc.Context(), Tx: txx}
		th, err := s.repos.Threads.LockByID(tx, threadID)
		if err != nil {
			if errors.Is(err, mix.ErrNotFound) {
				return ErrThreadNotFound
			}
			return err
		}
		if th.UserID != userID {
			return ErrThreadNotFound
		}
		userMsg = &domain.Message{
			ID:             uuid.New(),
			ThreadID:       th.ID,
			UserID:         userID,
			Seq:            th.NextSeq + 1,
			Role:           domain.RoleUser,
			Status:         domain.MessageCompleted,
			IdempotencyKey: idemKey,
		}
		r, err := decide(tx, th, userMsg)
		if err != nil {
			return err
		}
		userMsg.Text = r.text
		userMsg.Content = domain.MustEncodeContent(r.content)
		if err := s.repos.Messages.Create(tx, userMsg); err != nil {
			return err
		}
		if err := s.repos.Threads.UpdateFields(tx, th.ID, map[string]interface{}{
			"next_seq":        userMsg.Seq,
			"last_message_at": userMsg.CreatedAt,
		}); err != nil {
			return err
		}
		in := r.run
		in.ThreadID = th.ID
		in.UserID = userID
		in.UserMessageID = userMsg.ID
		run, placeholder, err = s.runs.Create(tx, in)
		return err
	})
	if txErr != nil {
		if run != nil {
			s.runs.Discard(run.ID)
		}
		if idemKey != "" && mix.IsUniqueViolation(txErr) {
			if prior, err := s.replay(dbc, threadID, idemKey); prior != nil && err == nil {
				return prior, nil
			}
		}
		return nil, txErr
	}

	if err := s.queue.Enqueue(dbc.Context(), queueItem(run.ID)); err != nil {
		s.log.Error("enqueue run failed", "run_id", run.ID, "error", err)
		if snap, _, ferr := s.runs.Fail(dbc.Context(), run.ID, "Failed to enqueue run"); ferr == nil {
			failed := snap.Run
			run = &failed
		}
	} else {
		s.runs.Announce(dbc.Context(), run.ID)
	}
	s.log.Info("run accepted", "thread_id", threadID, "run_id", run.ID, "kind", run.Kind, "user_message_seq", userMsg.Seq)
	return &Accepted{UserMessage: userMsg, AssistantMessage: placeholder, Run: run}, nil
}
