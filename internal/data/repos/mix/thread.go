package mix

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type ThreadRepo interface {
	Create(dbc dbctx.Context, t *mix.Thread) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.Thread, error)
	GetForUser(dbc dbctx.Context, id, userID uuid.UUID) (*mix.Thread, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, archived bool, limit, offset int) ([]*mix.Thread, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*mix.Thread, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// SetActiveDraft points the thread at draftID (nil clears it).
	SetActiveDraft(dbc dbctx.Context, id uuid.UUID, draftID *uuid.UUID, status string) error
}

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, log *logger.Logger) ThreadRepo {
	return &threadRepo{db: db, log: log.With("repo", "ThreadRepo")}
}

func (r *threadRepo) Create(dbc dbctx.Context, t *mix.Thread) error {
	if t == nil || t.UserID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	if t.Title == "" {
		t.Title = mix.DefaultThreadTitle
	}
	return dbc.DB(r.db).Create(t).Error
}

func (r *threadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.Thread, error) {
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	var out mix.Thread
	if err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *threadRepo) GetForUser(dbc dbctx.Context, id, userID uuid.UUID) (*mix.Thread, error) {
	if id == uuid.Nil || userID == uuid.Nil {
		return nil, ErrNotFound
	}
	var out mix.Thread
	if err := dbc.DB(r.db).Where("id = ? AND user_id = ?", id, userID).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *threadRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, archived bool, limit, offset int) ([]*mix.Thread, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []*mix.Thread
	if err := dbc.DB(r.db).
		Where("user_id = ? AND archived = ?", userID, archived).
		Order("last_message_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *threadRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*mix.Thread, error) {
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out mix.Thread
	if err := dbc.Tx.WithContext(dbc.Context()).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *threadRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return dbc.DB(r.db).Model(&mix.Thread{}).Where("id = ?", id).Updates(updates).Error
}

func (r *threadRepo) SetActiveDraft(dbc dbctx.Context, id uuid.UUID, draftID *uuid.UUID, status string) error {
	updates := map[string]interface{}{
		"active_planning_draft_id": draftID,
		"active_planning_status":   nil,
	}
	if draftID != nil && status != "" {
		updates["active_planning_status"] = status
	}
	return r.UpdateFields(dbc, id, updates)
}
