package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/runs"
	"github.com/yungbote/intellimix-backend/internal/timeline"
)

const maxEditNote = 2000

func (s *sessionService) CreateEditRun(dbc dbctx.Context, threadID, versionID uuid.UUID, req mixapi.EditRunRequest, idemKey string) (*Accepted, error) {
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
	if err := timeline.Validate(req.Segments); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(req.Note)
	if len([]rune(note)) > maxEditNote {
		return nil, invalid("note", "must be at most %d characters", maxEditNote)
	}

	return s.start(dbc, threadID, idemKey, func(tx dbctx.Context, th *domain.Thread, _ *domain.Message) (*route, error) {
		v, err := s.repos.Versions.GetForThread(tx, th.ID, versionID)
		if err != nil {
			if errors.Is(err, mix.ErrNotFound) {
				return nil, ErrVersionNotFound
			}
			return nil, err
		}
		parent := v.ID
		text := note
		if text == "" {
			text = "Timeline edit"
		}
		changed := req.EditorMetadata.ChangedSegmentIDs
		return &route{
			text: text,
			content: domain.TimelineEditRequest{
				SourceVersionID:   parent,
				Segments:          req.Segments,
				Note:              note,
				ChangedSegmentIDs: changed,
			},
			run: runs.CreateInput{
				Kind:            domain.RunKindTimelineEdit,
				ParentVersionID: &parent,
				PlaceholderText: "Applying timeline edits...",
				Input: domain.RunInput{
					SourceVersionID: &parent,
					Segments:        req.Segments,
					Note:            note,
					ChangedIDs:      changed,
				},
			},
		}, nil
	})
}
