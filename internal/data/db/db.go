package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects the store. Postgres is the production driver; sqlite backs
// local development and the test suite.
type Config struct {
	Driver      string
	DSN         string
	SQLitePath  string
	MaxOpen     int
	MaxIdle     int
	LogLevel    gormLogger.LogLevel
	SlowQueries time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		Driver:      strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres)),
		DSN:         envutil.String("DATABASE_URL", ""),
		SQLitePath:  envutil.String("SQLITE_PATH", "intellimix.db"),
		MaxOpen:     envutil.Int("DB_MAX_OPEN_CONNS", 20),
		MaxIdle:     envutil.Int("DB_MAX_IDLE_CONNS", 5),
		LogLevel:    gormLogger.Warn,
		SlowQueries: time.Second,
	}
	if cfg.Driver == DriverPostgres && cfg.DSN == "" {
		cfg.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			envutil.String("POSTGRES_USER", "postgres"),
			os.Getenv("POSTGRES_PASSWORD"),
			envutil.String("POSTGRES_HOST", "localhost"),
			envutil.String("POSTGRES_PORT", "5432"),
			envutil.String("POSTGRES_NAME", "intellimix"),
			envutil.String("POSTGRES_SSLMODE", "disable"),
		)
	}
	return cfg
}

func Open(cfg Config, baseLog *logger.Logger) (*gorm.DB, error) {
	l := baseLog.With("service", "Database", "driver", cfg.Driver)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold:             cfg.SlowQueries,
				LogLevel:                  cfg.LogLevel,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		l.Error("Failed to open database", "error", err)
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpen)
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	l.Info("Database connected")
	return gdb, nil
}
