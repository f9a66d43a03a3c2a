package mix

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

// Repos bundles the conversation store.
type Repos struct {
	Threads  ThreadRepo
	Messages MessageRepo
	Versions VersionRepo
	Runs     RunRepo
	Drafts   PlanDraftRepo
}

func NewRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Threads:  NewThreadRepo(db, log),
		Messages: NewMessageRepo(db, log),
		Versions: NewVersionRepo(db, log),
		Runs:     NewRunRepo(db, log),
		Drafts:   NewPlanDraftRepo(db, log),
	}
}

// SaveDraft persists a draft and mirrors its status onto the owning thread.
// A draft that is no longer active clears the thread pointer only when it
// is the one the thread points at.
func (r Repos) SaveDraft(dbc dbctx.Context, d *mix.PlanDraft) error {
	if err := r.Drafts.Save(dbc, d); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	if d.Active() {
		id := d.ID
		return r.Threads.SetActiveDraft(dbc, d.ThreadID, &id, d.Status)
	}
	th, err := r.Threads.GetByID(dbc, d.ThreadID)
	if err != nil {
		return err
	}
	if th.ActivePlanningDraftID != nil && *th.ActivePlanningDraftID == d.ID {
		return r.Threads.SetActiveDraft(dbc, d.ThreadID, nil, "")
	}
	return nil
}
