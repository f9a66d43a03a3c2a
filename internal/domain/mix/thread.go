package mix

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Thread is one evolving mix project. It carries the pointer to the single
// active plan draft.
type Thread struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Title    string `gorm:"column:title;not null" json:"title"`
	Archived bool   `gorm:"column:archived;not null;default:false;index" json:"archived"`

	ActivePlanningDraftID *uuid.UUID `gorm:"type:uuid;column:active_planning_draft_id" json:"active_planning_draft_id,omitempty"`
	ActivePlanningStatus  *string    `gorm:"column:active_planning_status" json:"active_planning_status,omitempty"`

	NextSeq       int64     `gorm:"column:next_seq;not null;default:0" json:"next_seq"`
	LastMessageAt time.Time `gorm:"column:last_message_at;not null;index" json:"last_message_at"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Thread) TableName() string { return "mix_chat_thread" }

func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.LastMessageAt.IsZero() {
		t.LastMessageAt = time.Now().UTC()
	}
	return nil
}

const DefaultThreadTitle = "New Mix Chat"
