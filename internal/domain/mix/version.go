package mix

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Version is an immutable render result. ParentVersionID links it into the
// thread's lineage.
type Version struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index" json:"thread_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	SourceMessageID    uuid.UUID  `gorm:"type:uuid;column:source_user_message_id;not null" json:"source_user_message_id"`
	AssistantMessageID uuid.UUID  `gorm:"type:uuid;column:assistant_message_id;not null" json:"assistant_message_id"`
	ParentVersionID    *uuid.UUID `gorm:"type:uuid;column:parent_version_id;index" json:"parent_version_id,omitempty"`
	PlanDraftID        *uuid.UUID `gorm:"type:uuid;column:plan_draft_id;index" json:"plan_draft_id,omitempty"`
	RunID              uuid.UUID  `gorm:"type:uuid;column:run_id;uniqueIndex" json:"run_id"`

	Proposal    datatypes.JSONType[Proposal]        `gorm:"column:proposal_json" json:"proposal"`
	FinalOutput datatypes.JSONType[FinalOutput]     `gorm:"column:final_output_json" json:"final_output"`
	Snapshot    datatypes.JSONType[VersionSnapshot] `gorm:"column:state_snapshot" json:"state_snapshot"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Version) TableName() string { return "mix_chat_version" }

func (v *Version) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type FinalOutput struct {
	MP3URL      string `json:"mp3_url,omitempty"`
	WAVURL      string `json:"wav_url,omitempty"`
	ManifestURL string `json:"manifest_url,omitempty"`
	JobID       string `json:"job_id,omitempty"`
}

type VersionSnapshot struct {
	Summary                 string     `json:"summary,omitempty"`
	TargetDurationSeconds   int        `json:"target_duration_seconds,omitempty"`
	SegmentsCount           int        `json:"segments_count"`
	GuidedPlanning          bool       `json:"guided_planning"`
	PlanDraftID             *uuid.UUID `json:"plan_draft_id,omitempty"`
	MinorAdjustmentsAllowed bool       `json:"minor_adjustments_allowed"`
	ChangedSegmentIDs       []string   `json:"changed_segment_ids,omitempty"`
	AppliedAdjustments      []string   `json:"applied_adjustments,omitempty"`
}
