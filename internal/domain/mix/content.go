package mix

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ContentKind string

// Assistant-side kinds.
const (
	KindPlain                   ContentKind = "plain"
	KindPlanningQuestions       ContentKind = "planning_questions"
	KindPlanningDraftReady      ContentKind = "planning_draft_ready"
	KindConstraintClarification ContentKind = "planning_constraint_clarification"
	KindClarificationQuestion   ContentKind = "clarification_question"
	KindProposalReady           ContentKind = "mix_proposal"
	KindPlanningWaitingAI       ContentKind = "planning_waiting_ai"
	KindError                   ContentKind = "error"
)

// User-side kinds.
const (
	KindPromptRequest             ContentKind = "prompt"
	KindPlanningAnswers           ContentKind = "planning_answers"
	KindPlanningApproval          ContentKind = "planning_approval"
	KindPlanningRevisionRequest   ContentKind = "planning_revision_request"
	KindPlanningFreeformRevision  ContentKind = "planning_freeform_revision"
	KindTimelineAttachmentRequest ContentKind = "timeline_attachment_request"
	KindTimelineEditRequest       ContentKind = "timeline_edit_request"
)

// Content is the closed set of structured message payloads. Branch on it with
// a type switch; DecodeContent is the only constructor from storage.
type Content interface {
	Kind() ContentKind
	sealed()
}

type Plain struct {
	Text string `json:"text,omitempty"`
}

type PlanningQuestions struct {
	DraftID           uuid.UUID  `json:"draft_id"`
	RoundCount        int        `json:"round_count"`
	MaxRounds         int        `json:"max_rounds"`
	ConfidenceScore   float64    `json:"confidence_score"`
	RequiredSlots     Slots      `json:"required_slots"`
	Contract          Contract   `json:"constraint_contract"`
	Questions         []Question `json:"questions"`
	Hint              string     `json:"hint,omitempty"`
	Revision          bool       `json:"revision,omitempty"`
	RoundLimitReached bool       `json:"round_limit_reached,omitempty"`
}

type PlanningDraftReady struct {
	DraftID           uuid.UUID `json:"draft_id"`
	RoundCount        int       `json:"round_count"`
	MaxRounds         int       `json:"max_rounds"`
	ConfidenceScore   float64   `json:"confidence_score"`
	Proposal          Proposal  `json:"proposal"`
	Contract          Contract  `json:"constraint_contract"`
	Violations        []string  `json:"violations"`
	RoundLimitReached bool      `json:"round_limit_reached,omitempty"`
}

type ConstraintClarification struct {
	DraftID         uuid.UUID  `json:"draft_id"`
	Clarifications  []string   `json:"clarifications"`
	Contract        Contract   `json:"constraint_contract"`
	Questions       []Question `json:"questions,omitempty"`
	ProposalPreview *Proposal  `json:"proposal_preview,omitempty"`
}

type ClarificationQuestion struct {
	DraftID        uuid.UUID `json:"draft_id"`
	Question       string    `json:"question"`
	Clarifications []string  `json:"clarifications"`
}

type ProposalReady struct {
	ThreadID           uuid.UUID   `json:"thread_id"`
	VersionID          uuid.UUID   `json:"version_id"`
	DraftID            *uuid.UUID  `json:"draft_id,omitempty"`
	Proposal           Proposal    `json:"proposal"`
	FinalOutput        FinalOutput `json:"final_output"`
	ChangedSegmentIDs  []string    `json:"changed_segment_ids,omitempty"`
	AppliedAdjustments []string    `json:"applied_adjustments,omitempty"`
}

type PlanningWaitingAI struct {
	DraftID           uuid.UUID `json:"draft_id"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	Reason            string    `json:"reason,omitempty"`
	StatusLabel       string    `json:"status_label"`
}

type ErrorContent struct {
	Error string `json:"error"`
}

type PromptRequest struct {
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

type PlanningAnswers struct {
	DraftID uuid.UUID `json:"draft_id"`
	Answers []Answer  `json:"answers"`
}

type PlanningApproval struct {
	DraftID uuid.UUID `json:"draft_id"`
}

type PlanningRevisionRequest struct {
	DraftID uuid.UUID `json:"draft_id"`
	Prompt  string    `json:"prompt"`
}

type PlanningFreeformRevision struct {
	DraftID uuid.UUID `json:"draft_id"`
	Prompt  string    `json:"prompt"`
}

type TimelineAttachmentRequest struct {
	Prompt            string            `json:"prompt,omitempty"`
	SourceVersionID   uuid.UUID         `json:"source_version_id"`
	Segments          []TimelineSegment `json:"segments"`
	ChangedSegmentIDs []string          `json:"changed_segment_ids,omitempty"`
	Resolution        string            `json:"timeline_resolution,omitempty"`
}

type TimelineEditRequest struct {
	SourceVersionID   uuid.UUID         `json:"source_version_id"`
	Segments          []TimelineSegment `json:"segments"`
	Note              string            `json:"note,omitempty"`
	ChangedSegmentIDs []string          `json:"changed_segment_ids,omitempty"`
}

func (Plain) Kind() ContentKind                     { return KindPlain }
func (PlanningQuestions) Kind() ContentKind         { return KindPlanningQuestions }
func (PlanningDraftReady) Kind() ContentKind        { return KindPlanningDraftReady }
func (ConstraintClarification) Kind() ContentKind   { return KindConstraintClarification }
func (ClarificationQuestion) Kind() ContentKind     { return KindClarificationQuestion }
func (ProposalReady) Kind() ContentKind             { return KindProposalReady }
func (PlanningWaitingAI) Kind() ContentKind         { return KindPlanningWaitingAI }
func (ErrorContent) Kind() ContentKind              { return KindError }
func (PromptRequest) Kind() ContentKind             { return KindPromptRequest }
func (PlanningAnswers) Kind() ContentKind           { return KindPlanningAnswers }
func (PlanningApproval) Kind() ContentKind          { return KindPlanningApproval }
func (PlanningRevisionRequest) Kind() ContentKind   { return KindPlanningRevisionRequest }
func (PlanningFreeformRevision) Kind() ContentKind  { return KindPlanningFreeformRevision }
func (TimelineAttachmentRequest) Kind() ContentKind { return KindTimelineAttachmentRequest }
func (TimelineEditRequest) Kind() ContentKind       { return KindTimelineEditRequest }

func (Plain) sealed()                     {}
func (PlanningQuestions) sealed()         {}
func (PlanningDraftReady) sealed()        {}
func (ConstraintClarification) sealed()   {}
func (ClarificationQuestion) sealed()     {}
func (ProposalReady) sealed()             {}
func (PlanningWaitingAI) sealed()         {}
func (ErrorContent) sealed()              {}
func (PromptRequest) sealed()             {}
func (PlanningAnswers) sealed()           {}
func (PlanningApproval) sealed()          {}
func (PlanningRevisionRequest) sealed()   {}
func (PlanningFreeformRevision) sealed()  {}
func (TimelineAttachmentRequest) sealed() {}
func (TimelineEditRequest) sealed()       {}

// EncodeContent serializes a payload with its "kind" discriminator.
func EncodeContent(c Content) (datatypes.JSON, error) {
	if c == nil {
		return datatypes.JSON(`{}`), nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(string(c.Kind()))
	fields["kind"] = kind
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

// MustEncodeContent is EncodeContent for payloads built from known types.
func MustEncodeContent(c Content) datatypes.JSON {
	out, err := EncodeContent(c)
	if err != nil {
		panic(fmt.Sprintf("encode %s content: %v", c.Kind(), err))
	}
	return out
}

func DecodeContent(raw []byte) (Content, error) {
	var head struct {
		Kind ContentKind `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode content kind: %w", err)
	}
	var c Content
	switch head.Kind {
	case KindPlain, "":
		c = &Plain{}
	case KindPlanningQuestions:
		c = &PlanningQuestions{}
	case KindPlanningDraftReady:
		c = &PlanningDraftReady{}
	case KindConstraintClarification:
		c = &ConstraintClarification{}
	case KindClarificationQuestion:
		c = &ClarificationQuestion{}
	case KindProposalReady:
		c = &ProposalReady{}
	case KindPlanningWaitingAI:
		c = &PlanningWaitingAI{}
	case KindError:
		c = &ErrorContent{}
	case KindPromptRequest:
		c = &PromptRequest{}
	case KindPlanningAnswers:
		c = &PlanningAnswers{}
	case KindPlanningApproval:
		c = &PlanningApproval{}
	case KindPlanningRevisionRequest:
		c = &PlanningRevisionRequest{}
	case KindPlanningFreeformRevision:
		c = &PlanningFreeformRevision{}
	case KindTimelineAttachmentRequest:
		c = &TimelineAttachmentRequest{}
	case KindTimelineEditRequest:
		c = &TimelineEditRequest{}
	default:
		return nil, fmt.Errorf("unknown content kind %q", head.Kind)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decode %s content: %w", head.Kind, err)
	}
	return deref(c), nil
}

func deref(c Content) Content {
	switch v := c.(type) {
	case *Plain:
		return *v
	case *PlanningQuestions:
		return *v
	case *PlanningDraftReady:
		return *v
	case *ConstraintClarification:
		return *v
	case *ClarificationQuestion:
		return *v
	case *ProposalReady:
		return *v
	case *PlanningWaitingAI:
		return *v
	case *ErrorContent:
		return *v
	case *PromptRequest:
		return *v
	case *PlanningAnswers:
		return *v
	case *PlanningApproval:
		return *v
	case *PlanningRevisionRequest:
		return *v
	case *PlanningFreeformRevision:
		return *v
	case *TimelineAttachmentRequest:
		return *v
	case *TimelineEditRequest:
		return *v
	default:
		return c
	}
}
