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

type MessageRepo interface {
	Create(dbc dbctx.Context, rows ...*mix.Message) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.Message, error)
	// GetByIdempotencyKey returns (nil, nil) when no user message carries key.
	GetByIdempotencyKey(dbc dbctx.Context, threadID uuid.UUID, key string) (*mix.Message, error)
	// ListPage returns up to limit messages with seq < beforeSeq (or the
	// newest when beforeSeq <= 0), oldest first.
	ListPage(dbc dbctx.Context, threadID uuid.UUID, beforeSeq int64, limit int) ([]*mix.Message, bool, error)
	ListSinceSeq(dbc dbctx.Context, threadID uuid.UUID, afterSeq int64, limit int) ([]*mix.Message, error)
	Count(dbc dbctx.Context, threadID uuid.UUID) (int64, error)
	// UpdateUnlessTerminal applies updates only while the message is queued or
	// running. It reports whether a row changed.
	UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, rows ...*mix.Message) error {
	if len(rows) == 0 {
		return nil
	}
	for _, m := range rows {
		if m.ThreadID == uuid.Nil {
			return fmt.Errorf("missing thread_id")
		}
	}
	return dbc.DB(r.db).Create(&rows).Error
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*mix.Message, error) {
	var out mix.Message
	if err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (r *messageRepo) GetByIdempotencyKey(dbc dbctx.Context, threadID uuid.UUID, key string) (*mix.Message, error) {
	if threadID == uuid.Nil || key == "" {
		return nil, nil
	}
	var out []*mix.Message
	if err := dbc.DB(r.db).
		Where("thread_id = ? AND role = ? AND idempotency_key = ?", threadID, mix.RoleUser, key).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *messageRepo) ListPage(dbc dbctx.Context, threadID uuid.UUID, beforeSeq int64, limit int) ([]*mix.Message, bool, error) {
	if threadID == uuid.Nil {
		return nil, false, fmt.Errorf("missing thread_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := dbc.DB(r.db).Where("thread_id = ?", threadID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}
	var out []*mix.Message
	if err := q.Order("seq DESC").Limit(limit + 1).Find(&out).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, hasMore, nil
}

func (r *messageRepo) ListSinceSeq(dbc dbctx.Context, threadID uuid.UUID, afterSeq int64, limit int) ([]*mix.Message, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var out []*mix.Message
	if err := dbc.DB(r.db).
		Where("thread_id = ? AND seq > ?", threadID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) Count(dbc dbctx.Context, threadID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&mix.Message{}).Where("thread_id = ?", threadID).Count(&n).Error
	return n, err
}

func (r *messageRepo) UpdateUnlessTerminal(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	res := dbc.DB(r.db).
		Model(&mix.Message{}).
		Where("id = ? AND status NOT IN ?", id, []string{mix.MessageCompleted, mix.MessageFailed}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
