package plan_execute

import (
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/engine"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type Pipeline struct {
	db  *gorm.DB
	log *logger.Logger

	repos    mix.Repos
	machine  *planning.Machine
	renderer engine.Renderer
}

func New(db *gorm.DB, baseLog *logger.Logger, repos mix.Repos, machine *planning.Machine, renderer engine.Renderer) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", "plan_execute"),
		repos:    repos,
		machine:  machine,
		renderer: renderer,
	}
}

func (p *Pipeline) Kinds() []string { return []string{domain.RunKindPlanningExecute} }
