package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/intellimix-backend/internal/engine"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/gcp"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

const storageModeMemory = "memory"

var newAssetStoreWithConfig = gcp.NewAssetStoreWithConfig

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidConfig StorageBootstrapErrorCode = "invalid_config"
	StorageBootstrapErrorConnectFailed StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code  StorageBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageBootstrapError) Error() string {
	return fmt.Sprintf("asset storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error { return e.Cause }

// resolveAssetStore picks where render manifests live. The http engine keeps
// its own storage, so it gets none; OBJECT_STORAGE_MODE=memory is for local
// runs without a bucket.
func resolveAssetStore(ctx context.Context, log *logger.Logger) (gcp.AssetStore, error) {
	if strings.EqualFold(envutil.String("RENDER_ENGINE", engine.KindManifest), engine.KindHTTP) {
		return nil, nil
	}
	if strings.EqualFold(strings.TrimSpace(envutil.String("OBJECT_STORAGE_MODE", "")), storageModeMemory) {
		base := envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/assets")
		log.Warn("Using in-memory asset storage; renders do not survive a restart", "public_base_url", base)
		return engine.NewMemoryAssets(base), nil
	}

	cfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		err = classifyStorageError(cfg, err)
		log.Error("Asset storage selection failed", "mode", cfg.Mode, "error", err)
		return nil, err
	}
	store, err := newAssetStoreWithConfig(ctx, log, cfg)
	if err != nil {
		err = classifyStorageError(cfg, err)
		log.Error("Asset storage bootstrap failed", "mode", cfg.Mode, "bucket", cfg.Bucket, "error", err)
		return nil, err
	}
	return store, nil
}

func classifyStorageError(cfg gcp.ObjectStorageConfig, err error) error {
	code := StorageBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		code = StorageBootstrapErrorInvalidConfig
	}
	return &StorageBootstrapError{Code: code, Mode: string(cfg.Mode), Cause: err}
}
