package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/intellimix-backend/internal/data/db"
	"github.com/yungbote/intellimix-backend/internal/data/repos/mix"
	"github.com/yungbote/intellimix-backend/internal/engine"
	httpserver "github.com/yungbote/intellimix-backend/internal/http"
	httpH "github.com/yungbote/intellimix-backend/internal/http/handlers"
	httpMW "github.com/yungbote/intellimix-backend/internal/http/middleware"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/mix_prompt"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/plan_execute"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/planning_round"
	"github.com/yungbote/intellimix-backend/internal/jobs/pipeline/timeline_render"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	"github.com/yungbote/intellimix-backend/internal/jobs/runtime"
	"github.com/yungbote/intellimix-backend/internal/jobs/worker"
	"github.com/yungbote/intellimix-backend/internal/observability"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/platform/openai"
	"github.com/yungbote/intellimix-backend/internal/platform/redisx"
	"github.com/yungbote/intellimix-backend/internal/realtime"
	"github.com/yungbote/intellimix-backend/internal/realtime/bus"
	"github.com/yungbote/intellimix-backend/internal/runs"
	"github.com/yungbote/intellimix-backend/internal/services"
)

// App owns every long-lived component of the API process: the HTTP server,
// the worker pool and the bus forwarder share one lifetime.
type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Metrics *observability.Metrics

	redis    *goredis.Client
	queue    queue.Queue
	bus      bus.Bus
	hub      *realtime.SSEHub
	worker   *worker.Worker
	server   *httpserver.Server
	otelStop func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Log: log, Cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	log, cfg := a.Log, a.Cfg

	a.otelStop = observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(cfg.ServiceName, cfg.LogMode))
	a.Metrics = observability.Init(log)

	gdb, err := db.Open(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.EnsureIndexes(gdb); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	a.DB = gdb

	if err := a.wireTransport(ctx); err != nil {
		return err
	}

	repos := mix.NewRepos(gdb, log)
	registry := runs.NewRegistry(gdb, log, repos, realtime.NewRunNotifier(log, a.hub, a.bus), a.Metrics)

	bank, err := planning.LoadQuestionBank()
	if err != nil {
		return fmt.Errorf("load question bank: %w", err)
	}
	var assistant planning.Assistant
	if oaCfg, ok := openai.ConfigFromEnv(); ok {
		client, err := openai.NewClient(log, oaCfg)
		if err != nil {
			return fmt.Errorf("init openai client: %w", err)
		}
		assistant = planning.NewLLMAssistant(client)
	} else {
		log.Warn("OPENAI_API_KEY not set; planning runs without song suggestions or revision parsing")
	}
	planner := planning.NewPlanner(log, cfg.Planning, bank, assistant)
	machine := planning.NewMachine()

	assets, err := resolveAssetStore(ctx, log)
	if err != nil {
		return err
	}
	renderer, err := engine.FromEnv(log, assets)
	if err != nil {
		return fmt.Errorf("init render engine: %w", err)
	}

	handlers := runtime.NewRegistry()
	for _, h := range []runtime.Handler{
		planning_round.New(gdb, log, repos, planner, machine),
		plan_execute.New(gdb, log, repos, machine, renderer),
		mix_prompt.New(gdb, log, repos, renderer, assistant, cfg.Planning),
		timeline_render.New(gdb, log, repos, renderer),
	} {
		if err := handlers.Register(h); err != nil {
			return fmt.Errorf("register run handler: %w", err)
		}
	}
	a.worker = worker.NewWorker(gdb, log, repos, registry, a.queue, handlers, a.Metrics)
	if err := a.recoverRuns(ctx, registry); err != nil {
		return err
	}

	auth, err := services.NewAuthService(log, cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	sessions := services.NewSessionService(gdb, log, repos, registry, machine, a.queue, cfg.Session)

	a.server = httpserver.NewServer(httpserver.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		Metrics:        a.Metrics,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, auth),
		MixChatHandler: httpH.NewMixChatHandler(log, sessions),
		RunHandler:     httpH.NewRunHandler(log, sessions, a.hub, a.Metrics, cfg.RunEventsMax),
		HealthHandler:  httpH.NewHealthHandler(gdb),
	})
	return nil
}

// recoverRuns re-registers runs left unfinished by a previous process. The
// redis queue still holds their items; the in-memory queue does not, so they
// are enqueued again. The worker skips runs that are already terminal.
func (a *App) recoverRuns(ctx context.Context, registry *runs.Registry) error {
	unfinished, err := registry.Recover(ctx)
	if err != nil {
		return err
	}
	if len(unfinished) == 0 {
		return nil
	}
	a.Log.Info("Recovered unfinished runs", "count", len(unfinished))
	if a.Cfg.UseRedis {
		return nil
	}
	for _, run := range unfinished {
		if err := a.queue.Enqueue(ctx, queue.Item{RunID: run.ID}); err != nil {
			return fmt.Errorf("requeue run %s: %w", run.ID, err)
		}
	}
	return nil
}

// wireTransport picks redis for the queue and the bus when REDIS_ADDR is
// set. Without it the process is a single instance.
func (a *App) wireTransport(ctx context.Context) error {
	log, cfg := a.Log, a.Cfg
	a.hub = realtime.NewSSEHub(log)
	if !cfg.UseRedis {
		log.Warn("REDIS_ADDR not set; using in-memory run queue and local SSE bus")
		a.queue = queue.NewMemory()
		a.bus = bus.NewLocal()
		return nil
	}
	rdb, err := redisx.Dial(ctx, log, cfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = rdb
	if a.queue, err = queue.NewRedis(log, rdb, cfg.QueueKey); err != nil {
		return fmt.Errorf("init run queue: %w", err)
	}
	if a.bus, err = bus.NewRedisBus(log, rdb, cfg.Channel); err != nil {
		return fmt.Errorf("init sse bus: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then waits for in-flight runs to reach
// a checkpoint.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.bus.StartForwarder(ctx, a.hub.Broadcast); err != nil {
		return fmt.Errorf("start sse forwarder: %w", err)
	}
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	if a.redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.redis)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.worker.Start(gctx)
		<-gctx.Done()
		a.worker.Wait()
		return nil
	})
	g.Go(func() error {
		return a.server.Run(gctx, ":"+a.Cfg.Port, a.Cfg.ShutdownTimeout)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelStop(ctx)
		cancel()
	}
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
