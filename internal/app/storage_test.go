package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/intellimix-backend/internal/engine"
	"github.com/yungbote/intellimix-backend/internal/platform/gcp"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

func TestResolveAssetStoreHTTPEngineNeedsNone(t *testing.T) {
	t.Setenv("RENDER_ENGINE", "http")
	store, err := resolveAssetStore(context.Background(), logger.Nop())
	if err != nil || store != nil {
		t.Fatalf("store=%v err=%v", store, err)
	}
}

func TestResolveAssetStoreMemory(t *testing.T) {
	t.Setenv("RENDER_ENGINE", "manifest")
	t.Setenv("OBJECT_STORAGE_MODE", "memory")
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://assets.local")
	store, err := resolveAssetStore(context.Background(), logger.Nop())
	if err != nil {
		t.Fatalf("resolveAssetStore: %v", err)
	}
	if _, ok := store.(*engine.MemoryAssets); !ok {
		t.Fatalf("store %T", store)
	}
}

func TestResolveAssetStoreInvalidConfig(t *testing.T) {
	t.Setenv("RENDER_ENGINE", "manifest")
	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	t.Setenv("MIX_ASSET_BUCKET", "mixes")
	_, err := resolveAssetStore(context.Background(), logger.Nop())
	var be *StorageBootstrapError
	if !errors.As(err, &be) || be.Code != StorageBootstrapErrorInvalidConfig {
		t.Fatalf("err=%v", err)
	}
}

func TestResolveAssetStoreConnectFailed(t *testing.T) {
	t.Setenv("RENDER_ENGINE", "manifest")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("MIX_ASSET_BUCKET", "mixes")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	boom := errors.New("no credentials")
	prev := newAssetStoreWithConfig
	newAssetStoreWithConfig = func(context.Context, *logger.Logger, gcp.ObjectStorageConfig) (gcp.AssetStore, error) {
		return nil, boom
	}
	t.Cleanup(func() { newAssetStoreWithConfig = prev })

	_, err := resolveAssetStore(context.Background(), logger.Nop())
	var be *StorageBootstrapError
	if !errors.As(err, &be) || be.Code != StorageBootstrapErrorConnectFailed || !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
