package app

import (
	"strings"
	"time"

	"github.com/yungbote/intellimix-backend/internal/data/db"
	"github.com/yungbote/intellimix-backend/internal/jobs/queue"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/redisx"
	"github.com/yungbote/intellimix-backend/internal/realtime/bus"
	"github.com/yungbote/intellimix-backend/internal/services"
)

type Config struct {
	Port            string
	LogMode         string
	ServiceName     string
	ShutdownTimeout time.Duration
	MetricsAddr     string
	RunEventsMax    time.Duration

	DB       db.Config
	Redis    redisx.Config
	UseRedis bool
	QueueKey string
	Channel  string

	Auth     services.AuthConfig
	Planning planning.Settings
	Session  services.SessionConfig
}

func LoadConfig() Config {
	redisCfg, useRedis := redisx.ConfigFromEnv()
	settings := planning.SettingsFromEnv()
	return Config{
		Port:            strings.TrimPrefix(envutil.String("PORT", "8080"), ":"),
		LogMode:         envutil.String("LOG_MODE", "development"),
		ServiceName:     envutil.String("OTEL_SERVICE_NAME", "intellimix"),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		MetricsAddr:     envutil.String("METRICS_ADDR", ":9090"),
		RunEventsMax:    time.Duration(envutil.IntRange("RUN_EVENTS_MAX_SECONDS", 300, 10, 3600)) * time.Second,

		DB:       db.ConfigFromEnv(),
		Redis:    redisCfg,
		UseRedis: useRedis,
		QueueKey: envutil.String("MIX_CHAT_QUEUE_KEY", queue.DefaultKey),
		Channel:  envutil.String("REDIS_CHANNEL", bus.DefaultChannel),

		Auth:     services.AuthConfigFromEnv(),
		Planning: settings,
		Session:  services.SessionConfigFromEnv(settings),
	}
}
