package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/platform/ctxutil"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrThreadNotFound   = runs.ErrThreadNotFound
	ErrRunNotFound      = runs.ErrRunNotFound
	ErrVersionNotFound  = errors.New("version not found")
	ErrDraftNotFound    = errors.New("plan draft not found")
)

const (
	maxContentChars = 20000
	maxTitleChars   = 200
)

// SessionService owns every request-side operation on mix chats. Writes
// run in one transaction under the thread row lock; queueing and the first
// snapshot publish happen after commit.
type SessionService interface {
	CreateThread(dbc dbctx.Context, title string) (*domain.Thread, error)
	ListThreads(dbc dbctx.Context, archived bool, limit, page int) ([]*domain.Thread, error)
	GetThread(dbc dbctx.Context, threadID uuid.UUID) (*domain.Thread, error)
	UpdateThread(dbc dbctx.Context, threadID uuid.UUID, title *string, archived *bool) (*domain.Thread, error)

	// ListMessages pages backwards from cursor (a seq; 0 for the newest page).
	ListMessages(dbc dbctx.Context, threadID uuid.UUID, cursor int64, limit int) (*MessagePage, error)
	ListVersions(dbc dbctx.Context, threadID uuid.UUID) ([]*domain.Version, error)
	GetRun(dbc dbctx.Context, runID uuid.UUID) (runs.Snapshot, error)
	GetPlanDraft(dbc dbctx.Context, threadID, draftID uuid.UUID) (*domain.PlanDraft, error)

	// SendMessage records one user turn and starts the run it routes to.
	SendMessage(dbc dbctx.Context, threadID uuid.UUID, req mixapi.SendMessageRequest, idemKey string) (*Accepted, error)
	// CreateEditRun starts a timeline_edit run against a version.
	CreateEditRun(dbc dbctx.Context, threadID, versionID uuid.UUID, req mixapi.EditRunRequest, idemKey string) (*Accepted, error)

	PollHintMS() int
}

// Accepted is what a send returns: the user message, the assistant
// placeholder and the run. Replayed is set when the idempotency key matched
// an earlier send.
type Accepted struct {
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
	Run              *domain.Run
	Replayed         bool
}

type MessagePage struct {
	Messages   []*domain.Message
	NextCursor *int64
	HasMore    bool
}

type SessionConfig struct {
	GuidedPlanning bool
	PollHintMS     int
	MaxRounds      int
}

func SessionConfigFromEnv(settings planning.Settings) SessionConfig {
	return SessionConfig{
		GuidedPlanning: envutil.Bool("GUIDED_PLANNING_ENABLED", true),
		PollHintMS:     envutil.IntRange("RUN_POLL_HINT_MS", 2000, 250, 60000),
		MaxRounds:      settings.MaxRounds,
	}
}

type sessionService struct {
	db      *gorm.DB
	log     *logger.Logger
	repos   mix.Repos
	runs    *runs.Registry
	machine *planning.Machine
	queue   queue.Queue
	cfg     SessionConfig
}

func NewSessionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repos mix.Repos,
	registry *runs.Registry,
	machine *planning.Machine,
	q queue.Queue,
	cfg SessionConfig,
) SessionService {
	if cfg.PollHintMS <= 0 {
		cfg.PollHintMS = 2000
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	return &sessionService{
		db:      db,
		log:     baseLog.With("service", "SessionService"),
		repos:   repos,
		runs:    registry,
		machine: machine,
		queue:   q,
		cfg:     cfg,
	}
}

func (s *sessionService) PollHintMS() int { return s.cfg.PollHintMS }

func callerID(dbc dbctx.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(dbc.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return uuid.Nil, ErrNotAuthenticated
	}
	return rd.UserID, nil
}

// ownedThread loads a thread the caller owns. Another user's thread is
// reported as missing.
func (s *sessionService) ownedThread(dbc dbctx.Context, threadID uuid.UUID) (*domain.Thread, uuid.UUID, error) {
	userID, err := callerID(dbc)
	if err != nil {
		return nil, uuid.Nil, err
	}
	th, err := s.repos.Threads.GetForUser(dbc, threadID, userID)
	if err != nil {
		if errors.Is(err, mix.ErrNotFound) {
			return nil, userID, ErrThreadNotFound
		}
		return nil, userID, err
	}
	return th, userID, nil
}

func invalid(field, format string, args ...any) error {
	return &planning.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
