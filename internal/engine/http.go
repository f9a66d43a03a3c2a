package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/pkg/httpx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type HTTPConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// HTTPEngine delegates rendering to a remote generation service.
type HTTPEngine struct {
	log    *logger.Logger
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPEngine(log *logger.Logger, cfg HTTPConfig) *HTTPEngine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPEngine{
		log:    log.With("service", "HTTPEngine"),
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type renderResponse struct {
	JobID       string `json:"job_id"`
	MP3URL      string `json:"mp3_url"`
	WAVURL      string `json:"wav_url"`
	ManifestURL string `json:"manifest_url"`
}

func (e *HTTPEngine) Render(ctx context.Context, req RenderRequest, progress ProgressFunc) (mix.FinalOutput, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return mix.FinalOutput{}, err
	}
	report(progress, "rendering", 70)
	policy := httpx.RetryPolicy{
		MaxRetries: e.cfg.MaxRetries,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			e.log.Warn("engine request retrying", "run_id", req.RunID, "attempt", attempt, "sleep", wait.String(), "error", err)
		},
	}
	raw, err := httpx.Do(ctx, e.client, policy, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/v1/renders", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		if e.cfg.Token != "" {
			r.Header.Set("Authorization", "Bearer "+e.cfg.Token)
		}
		return r, nil
	})
	if err != nil {
		return mix.FinalOutput{}, fmt.Errorf("engine render: %w", err)
	}
	var out renderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return mix.FinalOutput{}, fmt.Errorf("decode engine response: %w", err)
	}
	if out.MP3URL == "" && out.WAVURL == "" {
		return mix.FinalOutput{}, fmt.Errorf("engine returned no audio output")
	}
	report(progress, "uploading", 90)
	return mix.FinalOutput{
		MP3URL:      out.MP3URL,
		WAVURL:      out.WAVURL,
		ManifestURL: out.ManifestURL,
		JobID:       out.JobID,
	}, nil
}
