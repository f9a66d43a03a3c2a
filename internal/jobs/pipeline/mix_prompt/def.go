package mix_prompt

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

	repos     mix.Repos
	renderer  engine.Renderer
	suggester planning.SongSuggester
	settings  planning.Settings
}

// New builds the direct prompt pipeline. suggester may be nil.
func New(db *gorm.DB, baseLog *logger.Logger, repos mix.Repos, renderer engine.Renderer, suggester planning.SongSuggester, settings planning.Settings) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", "mix_prompt"),
		repos:     repos,
		renderer:  renderer,
		suggester: suggester,
		settings:  settings,
	}
}

func (p *Pipeline) Kinds() []string { return []string{domain.RunKindPrompt} }
