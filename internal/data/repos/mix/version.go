package mix

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type VersionRepo interface {
	Create(dbc dbctx.Context, v *mix.Version) error
	GetForThread(dbc dbctx.Context, threadID, id uuid.UUID) (*mix.Version, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*mix.Version, error)
	Latest(dbc dbctx.Context, threadID uuid.UUID) (*mix.Version, error)
	GetByRunID(dbc dbctx.Context, runID uuid.UUID) (*mix.Version, error)
}

type versionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepo(db *gorm.DB, log *logger.Logger) VersionRepo {
	return &versionRepo{db: db, log: log.With("repo", "VersionRepo")}
}

func (r *versionRepo) Create(dbc dbctx.Context, v *mix.Version) error {
	if v == nil || v.ThreadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	return dbc.DB(r.db).Create(v).Error
}

func (r *versionRepo) GetForThread(dbc dbctx.Context, threadID, id uuid.UUID) (*mix.Version, error) {
	var out mix.Version
	if err := dbc.DB(r.db).Where("id = ? AND thread_id = ?", id, threadID).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *versionRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*mix.Version, error) {
	var out []*mix.Version
	if err := dbc.DB(r.db).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *versionRepo) Latest(dbc dbctx.Context, threadID uuid.UUID) (*mix.Version, error) {
	var out []*mix.Version
	if err := dbc.DB(r.db).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

func (r *versionRepo) GetByRunID(dbc dbctx.Context, runID uuid.UUID) (*mix.Version, error) {
	var out mix.Version
	if err := dbc.DB(r.db).Where("run_id = ?", runID).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}
