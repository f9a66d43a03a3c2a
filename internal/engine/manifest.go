package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/platform/gcp"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

// Manifest is the render job document the audio renderer consumes. The
// renderer writes mix.mp3 and mix.wav next to it.
type Manifest struct {
	Version   int           `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	Request   RenderRequest `json:"request"`
	Outputs   struct {
		MP3 string `json:"mp3"`
		WAV string `json:"wav"`
	} `json:"outputs"`
}

type ManifestEngine struct {
	log    *logger.Logger
	assets gcp.AssetStore
	now    func() time.Time
}

func NewManifestEngine(log *logger.Logger, assets gcp.AssetStore) *ManifestEngine {
	return &ManifestEngine{
		log:    log.With("service", "ManifestEngine"),
		assets: assets,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *ManifestEngine) Render(ctx context.Context, req RenderRequest, progress ProgressFunc) (mix.FinalOutput, error) {
	if len(req.Segments) == 0 {
		return mix.FinalOutput{}, fmt.Errorf("render request has no segments")
	}
	prefix := renderPrefix(req)
	m := Manifest{Version: 1, CreatedAt: e.now(), Request: req}
	m.Outputs.MP3 = prefix + "/mix.mp3"
	m.Outputs.WAV = prefix + "/mix.wav"

	report(progress, "rendering", 70)
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return mix.FinalOutput{}, fmt.Errorf("encode manifest: %w", err)
	}
	key := prefix + "/manifest.json"
	if err := e.assets.Put(ctx, key, bytes.NewReader(raw)); err != nil {
		return mix.FinalOutput{}, fmt.Errorf("store manifest: %w", err)
	}
	report(progress, "uploading", 90)
	e.log.Info("render manifest stored", "run_id", req.RunID, "key", key, "segments", len(req.Segments))

	return mix.FinalOutput{
		MP3URL:      e.assets.PublicURL(m.Outputs.MP3),
		WAVURL:      e.assets.PublicURL(m.Outputs.WAV),
		ManifestURL: e.assets.PublicURL(key),
		JobID:       req.RunID.String(),
	}, nil
}
