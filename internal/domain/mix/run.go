package mix

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

const (
	ModeRefineLast   = "refine_last"
	ModeRestartFresh = "restart_fresh"
)

// Run kinds. Each kind is dispatched to one pipeline handler.
const (
	RunKindPrompt             = "prompt"
	RunKindPlanningIntake     = "planning_intake"
	RunKindPlanningRevision   = "planning_revision"
	RunKindPlanningExecute    = "planning_execute"
	RunKindTimelineAttachment = "timeline_attachment"
	RunKindTimelineEdit       = "timeline_edit"
)

func IsTerminalRunStatus(status string) bool {
	return status == RunCompleted || status == RunFailed
}

// Run is one asynchronous execution tied to exactly one user message.
type Run struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index" json:"thread_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	UserMessageID      uuid.UUID  `gorm:"type:uuid;column:user_message_id;not null;index" json:"user_message_id"`
	AssistantMessageID uuid.UUID  `gorm:"type:uuid;column:assistant_message_id;not null;uniqueIndex" json:"assistant_message_id"`
	ParentVersionID    *uuid.UUID `gorm:"type:uuid;column:parent_version_id" json:"parent_version_id,omitempty"`
	PlanDraftID        *uuid.UUID `gorm:"type:uuid;column:plan_draft_id;index" json:"plan_draft_id,omitempty"`
	VersionID          *uuid.UUID `gorm:"type:uuid;column:version_id" json:"version_id,omitempty"`

	Kind   string `gorm:"column:run_kind;not null;index" json:"run_kind"`
	Mode   string `gorm:"column:mode;not null" json:"mode"`
	Status string `gorm:"column:status;not null;index" json:"status"`

	ProgressStage     string     `gorm:"column:progress_stage;not null;default:''" json:"progress_stage"`
	ProgressPercent   int        `gorm:"column:progress_percent;not null;default:0" json:"progress_percent"`
	ProgressLabel     string     `gorm:"column:progress_label;not null;default:''" json:"progress_label,omitempty"`
	ProgressDetail    string     `gorm:"column:progress_detail;type:text;not null;default:''" json:"progress_detail,omitempty"`
	ProgressUpdatedAt *time.Time `gorm:"column:progress_updated_at" json:"progress_updated_at,omitempty"`

	// Seq increments on every applied change so clients can order snapshots.
	Seq int64 `gorm:"column:seq;not null;default:0" json:"seq"`

	ErrorMessage string                       `gorm:"column:error_message;type:text;not null;default:''" json:"error_message,omitempty"`
	InputSummary datatypes.JSONType[RunInput] `gorm:"column:input_summary" json:"input_summary"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Run) TableName() string { return "mix_chat_run" }

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Run) Terminal() bool { return r != nil && IsTerminalRunStatus(r.Status) }

// RunInput is the request-side summary a handler needs to execute the run.
type RunInput struct {
	Prompt          string            `json:"prompt,omitempty"`
	DraftID         *uuid.UUID        `json:"draft_id,omitempty"`
	Action          string            `json:"action,omitempty"`
	Answers         []Answer          `json:"answers,omitempty"`
	SourceVersionID *uuid.UUID        `json:"source_version_id,omitempty"`
	Segments        []TimelineSegment `json:"segments,omitempty"`
	ChangedIDs      []string          `json:"changed_segment_ids,omitempty"`
	Note            string            `json:"note,omitempty"`
	Resolution      string            `json:"timeline_resolution,omitempty"`
	Attempt         int               `json:"attempt,omitempty"`
}

// Planning actions recorded in RunInput.Action.
const (
	ActionAnswer                = "answer"
	ActionRegenerateSuggestions = "regenerate_suggestions"
	ActionRevisePlan            = "revise_plan"
	ActionFreeformRevision      = "freeform_revision"
	ActionApprovePlan           = "approve_plan"
	ActionStartNewDraft         = "start_new_draft"
)

// Timeline resolutions a user can pick for an attached timeline.
const (
	ResolutionKeepAttachedCuts = "keep_attached_cuts"
	ResolutionReplanWithPrompt = "replan_with_prompt"
	ResolutionReplaceTimeline  = "replace_timeline"
)

func IsTimelineResolution(s string) bool {
	switch s {
	case ResolutionKeepAttachedCuts, ResolutionReplanWithPrompt, ResolutionReplaceTimeline:
		return true
	default:
		return false
	}
}
