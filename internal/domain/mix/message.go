package mix

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	MessageQueued    = "queued"
	MessageRunning   = "running"
	MessageCompleted = "completed"
	MessageFailed    = "failed"
)

// Message is an append-only ledger entry. Only an assistant placeholder's
// status, text and content change after insert.
type Message struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_mix_chat_message_thread_seq,priority:1" json:"thread_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Seq int64 `gorm:"column:seq;not null;uniqueIndex:idx_mix_chat_message_thread_seq,priority:2" json:"seq"`

	Role   string `gorm:"column:role;not null;index" json:"role"`
	Status string `gorm:"column:status;not null;index" json:"status"`

	Text    string         `gorm:"column:content_text;type:text;not null;default:''" json:"content_text"`
	Content datatypes.JSON `gorm:"column:content_json" json:"content_json,omitempty"`

	IdempotencyKey string `gorm:"column:idempotency_key;not null;default:'';index" json:"-"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Message) TableName() string { return "mix_chat_message" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// DecodedContent returns the tagged payload, or nil when the message has none.
func (m *Message) DecodedContent() (Content, error) {
	if m == nil || len(m.Content) == 0 {
		return nil, nil
	}
	return DecodeContent(m.Content)
}

var messageStatusRank = map[string]int{
	MessageQueued:    0,
	MessageRunning:   1,
	MessageCompleted: 2,
	MessageFailed:    2,
}

// MessageStatusAdvances reports whether moving from -> to respects
// queued -> running -> {completed, failed}.
func MessageStatusAdvances(from, to string) bool {
	fr, ok := messageStatusRank[from]
	if !ok {
		return true
	}
	tr, ok := messageStatusRank[to]
	if !ok {
		return false
	}
	if fr == 2 {
		return false
	}
	return tr > fr
}
