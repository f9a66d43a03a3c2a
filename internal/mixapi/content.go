package mixapi

import (
	"encoding/json"
	"time"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

// ContentJSON carries a tagged content payload as raw JSON so it survives a
// round trip without knowing its kind up front.
type ContentJSON json.RawMessage

func (c ContentJSON) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

func (c *ContentJSON) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = nil
		return nil
	}
	*c = append((*c)[:0], b...)
	return nil
}

// Decode returns the typed payload, or nil when there is none.
func (c ContentJSON) Decode() (mix.Content, error) {
	if len(c) == 0 {
		return nil, nil
	}
	return mix.DecodeContent(c)
}

func NewMessageView(m *mix.Message) MessageView {
	if m == nil {
		return MessageView{}
	}
	return MessageView{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Seq:       m.Seq,
		Role:      m.Role,
		Status:    m.Status,
		Text:      m.Text,
		Content:   ContentJSON(m.Content),
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func NewMessageViews(ms []*mix.Message) []MessageView {
	out := make([]MessageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewMessageView(m))
	}
	return out
}

func NewDraftView(d *mix.PlanDraft) DraftView {
	songs := d.ResolvedSongs()
	if songs == nil {
		songs = []string{}
	}
	return DraftView{PlanDraft: *d, ResolvedSongs: songs}
}
