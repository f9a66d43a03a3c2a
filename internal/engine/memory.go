package engine

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/yungbote/intellimix-backend/internal/platform/gcp"
)

// MemoryAssets is an in-process gcp.AssetStore for local runs and tests.
type MemoryAssets struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewMemoryAssets(baseURL string) *MemoryAssets {
	if baseURL == "" {
		baseURL = "memory://assets"
	}
	return &MemoryAssets{objects: map[string][]byte{}, baseURL: baseURL}
}

func (m *MemoryAssets) Put(_ context.Context, key string, body io.Reader) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryAssets) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	raw, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, gcp.ErrAssetNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (m *MemoryAssets) PublicURL(key string) string {
	return m.baseURL + "/" + key
}
