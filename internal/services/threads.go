package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

func (s *sessionService) CreateThread(dbc dbctx.Context, title string) (*domain.Thread, error) {
	userID, err := callerID(dbc)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultThreadTitle
	}
	if len([]rune(title)) > maxTitleChars {
		return nil, invalid("title", "must be at most %d characters", maxTitleChars)
	}
	th := &domain.Thread{UserID: userID, Title: title}
	if err := s.repos.Threads.Create(dbc, th); err != nil {
		return nil, err
	}
	s.log.Debug("thread created", "thread_id", th.ID, "user_id", userID)
	return th, nil
}

func (s *sessionService) ListThreads(dbc dbctx.Context, archived bool, limit, page int) ([]*domain.Thread, error) {
	userID, err := callerID(dbc)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}
	return s.repos.Threads.ListByUser(dbc, userID, archived, limit, (page-1)*limit)
}

func (s *sessionService) GetThread(dbc dbctx.Context, threadID uuid.UUID) (*domain.Thread, error) {
	th, _, err := s.ownedThread(dbc, threadID)
	return th, err
}

func (s *sessionService) UpdateThread(dbc dbctx.Context, threadID uuid.UUID, title *string, archived *bool) (*domain.Thread, error) {
	th, _, err := s.ownedThread(dbc, threadID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if title != nil {
		t := strings.TrimSpace(*title)
		if t == "" {
			return nil, invalid("title", "must not be empty")
		}
		if len([]rune(t)) > maxTitleChars {
			return nil, invalid("title", "must be at most %d characters", maxTitleChars)
		}
		updates["title"] = t
		th.Title = t
	}
	if archived != nil {
		updates["archived"] = *archived
		th.Archived = *archived
	}
	if len(updates) == 0 {
		return th, nil
	}
	if err := s.repos.Threads.UpdateFields(dbc, th.ID, updates); err != nil {
		return nil, err
	}
	return th, nil
}

func (s *sessionService) ListMessages(dbc dbctx.Context, threadID uuid.UUID, cursor int64, limit int) (*MessagePage, error) {
	if _, _, err := s.ownedThread(dbc, threadID); err != nil {
		return nil, err
	}
	if cursor < 0 {
		return nil, invalid("cursor", "must not be negative")
	}
	msgs, hasMore, err := s.repos.Messages.ListPage(dbc, threadID, cursor, limit)
	if err != nil {
		return nil, err
	}
	page := &MessagePage{Messages: msgs, HasMore: hasMore}
	if hasMore && len(msgs) > 0 {
		next := msgs[0].Seq
		page.NextCursor = &next
	}
	return page, nil
}

func (s *sessionService) ListVersions(dbc dbctx.Context, threadID uuid.UUID) ([]*domain.Version, error) {
	if _, _, err := s.ownedThread(dbc, threadID); err != nil {
		return nil, err
	}
	return s.repos.Versions.ListByThread(dbc, threadID)
}

func (s *sessionService) GetRun(dbc dbctx.Context, runID uuid.UUID) (runs.Snapshot, error) {
	userID, err := callerID(dbc)
	if err != nil {
		return runs.Snapshot{}, err
	}
	snap, err := s.runs.Get(dbc.Context(), runID)
	if err != nil {
		return runs.Snapshot{}, err
	}
	if snap.Run.UserID != userID {
		return runs.Snapshot{}, ErrRunNotFound
	}
	return snap, nil
}

func (s *sessionService) GetPlanDraft(dbc dbctx.Context, threadID, draftID uuid.UUID) (*domain.PlanDraft, error) {
	if _, _, err := s.ownedThread(dbc, threadID); err != nil {
		return nil, err
	}
	d, err := s.repos.Drafts.GetForThread(dbc, threadID, draftID)
	if err != nil {
		if errors.Is(err, mix.ErrNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return d, nil
}
