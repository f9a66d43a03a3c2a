package planning_round

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type Pipeline struct {
	db  *gorm.DB
	log *logger.Logger

	repos   mix.Repos
	planner *planning.Planner
	machine *planning.Machine

	maxAttempts int
	minRetry    time.Duration
	maxRetry    time.Duration
}

func New(db *gorm.DB, baseLog *logger.Logger, repos mix.Repos, planner *planning.Planner, machine *planning.Machine) *Pipeline {
	return &Pipeline{
		db:          db,
		log:         baseLog.With("job", "planning_round"),
		repos:       repos,
		planner:     planner,
		machine:     machine,
		maxAttempts: envutil.IntRange("PLANNING_AI_MAX_ATTEMPTS", 5, 1, 20),
		minRetry:    2 * time.Second,
		maxRetry:    120 * time.Second,
	}
}

func (p *Pipeline) Kinds() []string {
	return []string{domain.RunKindPlanningIntake, domain.RunKindPlanningRevision}
}
