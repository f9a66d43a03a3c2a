package mix

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DraftCollecting = "collecting"
	DraftReady      = "draft_ready"
	DraftApproved   = "approved"
	DraftSuperseded = "superseded"
)

// IsActiveDraftStatus reports whether a draft in this status is the thread's
// active negotiation.
func IsActiveDraftStatus(status string) bool {
	switch status {
	case DraftCollecting, DraftReady, DraftApproved:
		return true
	default:
		return false
	}
}

const AdjustmentPolicyMinorAllowed = "minor_auto_adjust_allowed"

type PlanDraft struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index" json:"thread_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	SourceMessageID uuid.UUID `gorm:"type:uuid;column:source_message_id;not null" json:"source_message_id"`
	Status          string    `gorm:"column:status;not null;index" json:"status"`
	Prompt          string    `gorm:"column:prompt;type:text;not null;default:''" json:"prompt"`

	RoundCount      int     `gorm:"column:round_count;not null;default:0" json:"round_count"`
	MaxRounds       int     `gorm:"column:max_rounds;not null;default:5" json:"max_rounds"`
	ConfidenceScore float64 `gorm:"column:confidence_score;not null;default:0" json:"confidence_score"`

	Slots                 datatypes.JSONType[Slots]     `gorm:"column:required_slots" json:"required_slots"`
	Questions             datatypes.JSONSlice[Question] `gorm:"column:questions" json:"questions"`
	Answers               datatypes.JSONType[Answers]   `gorm:"column:answers" json:"answers"`
	Proposal              datatypes.JSONType[*Proposal] `gorm:"column:proposal" json:"proposal,omitempty"`
	Contract              datatypes.JSONType[Contract]  `gorm:"column:constraint_contract" json:"constraint_contract"`
	Violations            datatypes.JSONSlice[string]   `gorm:"column:violations" json:"violations"`
	PendingClarifications datatypes.JSONSlice[string]   `gorm:"column:pending_clarifications" json:"pending_clarifications"`

	AdjustmentPolicy  string `gorm:"column:adjustment_policy;not null;default:'minor_auto_adjust_allowed'" json:"adjustment_policy"`
	RoundLimitReached bool   `gorm:"column:round_limit_reached;not null;default:false" json:"round_limit_reached"`

	ApprovedAt        *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	ExecutedRunID     *uuid.UUID `gorm:"type:uuid;column:executed_run_id" json:"executed_run_id,omitempty"`
	ExecutedVersionID *uuid.UUID `gorm:"type:uuid;column:executed_version_id" json:"executed_version_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (PlanDraft) TableName() string { return "mix_chat_plan_draft" }

func (d *PlanDraft) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.AdjustmentPolicy == "" {
		d.AdjustmentPolicy = AdjustmentPolicyMinorAllowed
	}
	return nil
}

func (d *PlanDraft) Active() bool { return d != nil && IsActiveDraftStatus(d.Status) }

// ResolvedSongs lists the songs the current proposal (or, before a proposal
// exists, the song slot) resolved to.
func (d *PlanDraft) ResolvedSongs() []string {
	if d == nil {
		return nil
	}
	if p := d.Proposal.Data(); p != nil && len(p.ResolvedSongs) > 0 {
		out := make([]string, 0, len(p.ResolvedSongs))
		for _, s := range p.ResolvedSongs {
			out = append(out, s.MatchedTrack)
		}
		return out
	}
	return d.Slots.Data()[SlotSongs].Songs
}
