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

type PlanDraftRepo interface {
	Create(dbc dbctx.Context, d *mix.PlanDraft) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.PlanDraft, error)
	GetForThread(dbc dbctx.Context, threadID, id uuid.UUID) (*mix.PlanDraft, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*mix.PlanDraft, error)
	ListActiveByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*mix.PlanDraft, error)
	Save(dbc dbctx.Context, d *mix.PlanDraft) error
}

type planDraftRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanDraftRepo(db *gorm.DB, log *logger.Logger) PlanDraftRepo {
	return &planDraftRepo{db: db, log: log.With("repo", "PlanDraftRepo")}
}

func (r *planDraftRepo) Create(dbc dbctx.Context, d *mix.PlanDraft) error {
	if d == nil || d.ThreadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	if d.Status == "" {
		d.Status = mix.DraftCollecting
	}
	return dbc.DB(r.db).Create(d).Error
}

func (r *planDraftRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.PlanDraft, error) {
	var out mix.PlanDraft
	if err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *planDraftRepo) GetForThread(dbc dbctx.Context, threadID, id uuid.UUID) (*mix.PlanDraft, error) {
	var out mix.PlanDraft
	if err := dbc.DB(r.db).Where("id = ? AND thread_id = ?", id, threadID).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *planDraftRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*mix.PlanDraft, error) {
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out mix.PlanDraft
	if err := dbc.Tx.WithContext(dbc.Context()).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *planDraftRepo) ListActiveByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*mix.PlanDraft, error) {
	var out []*mix.PlanDraft
	if err := dbc.DB(r.db).
		Where("thread_id = ? AND status IN ?", threadID, []string{mix.DraftCollecting, mix.DraftReady, mix.DraftApproved}).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *planDraftRepo) Save(dbc dbctx.Context, d *mix.PlanDraft) error {
	if d == nil || d.ID == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	d.UpdatedAt = time.Now().UTC()
	return dbc.DB(r.db).Save(d).Error
}
