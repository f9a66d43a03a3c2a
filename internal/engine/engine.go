package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/platform/envutil"
	"github.com/yungbote/intellimix-backend/internal/platform/gcp"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

// RenderRequest is everything the generation engine needs to produce one
// mix. Segments are already sanitized.
type RenderRequest struct {
	RunID                   uuid.UUID             `json:"run_id"`
	ThreadID                uuid.UUID             `json:"thread_id"`
	Title                   string                `json:"title"`
	Prompt                  string                `json:"prompt"`
	TargetDurationSeconds   int                   `json:"target_duration_seconds"`
	Songs                   []string              `json:"songs"`
	Segments                []mix.TimelineSegment `json:"segments"`
	MinorAdjustmentsAllowed bool                  `json:"minor_adjustments_allowed"`
}

// ProgressFunc receives engine stages. Percentages are absolute run progress.
type ProgressFunc func(stage string, pct int)

type Renderer interface {
	Render(ctx context.Context, req RenderRequest, progress ProgressFunc) (mix.FinalOutput, error)
}

const (
	KindManifest = "manifest"
	KindHTTP     = "http"
)

// FromEnv selects the renderer named by RENDER_ENGINE.
func FromEnv(log *logger.Logger, assets gcp.AssetStore) (Renderer, error) {
	switch kind := strings.ToLower(envutil.String("RENDER_ENGINE", KindManifest)); kind {
	case KindManifest:
		if assets == nil {
			return nil, fmt.Errorf("manifest engine requires an asset store")
		}
		return NewManifestEngine(log, assets), nil
	case KindHTTP:
		base := envutil.String("ENGINE_BASE_URL", "")
		if base == "" {
			return nil, fmt.Errorf("RENDER_ENGINE=http requires ENGINE_BASE_URL")
		}
		return NewHTTPEngine(log, HTTPConfig{
			BaseURL:    base,
			Token:      envutil.String("ENGINE_API_TOKEN", ""),
			Timeout:    envutil.Duration("ENGINE_TIMEOUT", 0),
			MaxRetries: envutil.IntRange("ENGINE_MAX_RETRIES", 3, 0, 10),
		}), nil
	default:
		return nil, fmt.Errorf("unknown RENDER_ENGINE=%q", kind)
	}
}

func report(progress ProgressFunc, stage string, pct int) {
	if progress != nil {
		progress(stage, pct)
	}
}

func renderPrefix(req RenderRequest) string {
	return fmt.Sprintf("renders/%s/%s", req.ThreadID, req.RunID)
}
