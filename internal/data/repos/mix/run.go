package mix

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type RunRepo interface {
	Create(dbc dbctx.Context, run *mix.Run) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.Run, error)
	GetByUserMessageID(dbc dbctx.Context, messageID uuid.UUID) (*mix.Run, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID, limit int) ([]*mix.Run, error)
	// ListUnfinished returns queued/running runs, oldest first. Used to
	// re-enqueue work after a restart.
	ListUnfinished(dbc dbctx.Context, limit int) ([]*mix.Run, error)
	UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, log *logger.Logger) RunRepo {
	return &runRepo{db: db, log: log.With("repo", "RunRepo")}
}

func (r *runRepo) Create(dbc dbctx.Context, run *mix.Run) error {
	if run == nil || run.ThreadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	if run.Status == "" {
		run.Status = mix.RunQueued
	}
	return dbc.DB(r.db).Create(run).Error
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.Run, error) {
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	var out mix.Run
	if err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *runRepo) GetByUserMessageID(dbc dbctx.Context, messageID uuid.UUID) (*mix.Run, error) {
	var out mix.Run
	if err := dbc.DB(r.db).Where("user_message_id = ?", messageID).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *runRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID, limit int) ([]*mix.Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*mix.Run
	if err := dbc.DB(r.db).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) ListUnfinished(dbc dbctx.Context, limit int) ([]*mix.Run, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []*mix.Run
	if err := dbc.DB(r.db).
		Where("status IN ?", []string{mix.RunQueued, mix.RunRunning}).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	res := dbc.DB(r.db).
		Model(&mix.Run{}).
		Where("id = ? AND status NOT IN ?", id, []string{mix.RunCompleted, mix.RunFailed}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
