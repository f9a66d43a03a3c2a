// Package mixapi holds the JSON bodies of the /api/v1 mix chat endpoints.
// The gin handlers and the Go client both use them.
package mixapi

import (
	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
)

const (
	AttachmentTimelineSnapshot = "timeline_snapshot"
	PlanningTargetNewDraft     = "new_draft"
	IdempotencyHeader          = "Idempotency-Key"
)

type CreateThreadRequest struct {
	Title string `json:"title,omitempty"`
}

type UpdateThreadRequest struct {
	Title    *string `json:"title,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

type PlanningResponse struct {
	DraftID uuid.UUID    `json:"draft_id"`
	Answers []mix.Answer `json:"answers"`
}

type PlanningAction struct {
	DraftID        uuid.UUID `json:"draft_id"`
	Action         string    `json:"action"`
	RevisionPrompt string    `json:"revision_prompt,omitempty"`
}

type EditorMetadata struct {
	ChangedSegmentIDs []string `json:"changed_segment_ids,omitempty"`
}

type Attachment struct {
	Type            string                `json:"type"`
	SourceVersionID uuid.UUID             `json:"source_version_id"`
	Segments        []mix.TimelineSegment `json:"segments"`
	EditorMetadata  EditorMetadata        `json:"editor_metadata"`
}

// SendMessageRequest is the body of POST /mix-chats/:id/messages. Exactly
// one routing branch applies; see services.SessionService.SendMessage.
type SendMessageRequest struct {
	Content            string            `json:"content"`
	Mode               string            `json:"mode,omitempty"`
	PlanningTarget     string            `json:"planning_target,omitempty"`
	TimelineResolution string            `json:"timeline_resolution,omitempty"`
	PlanningResponse   *PlanningResponse `json:"planning_response,omitempty"`
	PlanningAction     *PlanningAction   `json:"planning_action,omitempty"`
	Attachments        []Attachment      `json:"attachments,omitempty"`
}

type EditRunRequest struct {
	Segments       []mix.TimelineSegment `json:"segments"`
	Note           string                `json:"note,omitempty"`
	EditorMetadata EditorMetadata        `json:"editor_metadata"`
}

// MessageView is a message with its content decoded.
type MessageView struct {
	ID        uuid.UUID   `json:"id"`
	ThreadID  uuid.UUID   `json:"thread_id"`
	Seq       int64       `json:"seq"`
	Role      string      `json:"role"`
	Status    string      `json:"status"`
	Text      string      `json:"content_text"`
	Content   ContentJSON `json:"content_json,omitempty"`
	CreatedAt string      `json:"created_at"`
}

type RunAccepted struct {
	UserMessage      MessageView `json:"user_message"`
	AssistantMessage MessageView `json:"assistant_message"`
	Run              mix.Run     `json:"run"`
	PollHintMS       int         `json:"poll_hint_ms"`
}

type RunResponse struct {
	Run        mix.Run `json:"run"`
	Terminal   bool    `json:"terminal"`
	PollHintMS int     `json:"poll_hint_ms"`
}

type ThreadResponse struct {
	Thread mix.Thread `json:"thread"`
}

type ThreadsResponse struct {
	Threads []mix.Thread `json:"threads"`
}

type MessagesResponse struct {
	Messages   []MessageView `json:"messages"`
	NextCursor *int64        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

type VersionsResponse struct {
	Versions []mix.Version `json:"versions"`
}

// DraftView adds the derived fields clients render next to a draft.
type DraftView struct {
	mix.PlanDraft
	ResolvedSongs []string `json:"resolved_songs"`
}

type DraftResponse struct {
	Draft DraftView `json:"draft"`
}
