package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/pkg/httpx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the /api/v1 mix chat endpoints.
type Client struct {
	log  *logger.Logger
	cfg  Config
	hc   *http.Client
	base string
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("missing base url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		log:  log.With("service", "MixAPIClient"),
		cfg:  cfg,
		hc:   &http.Client{Timeout: cfg.Timeout},
		base: base + "/api/v1",
	}, nil
}

// APIError is a decoded error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (e *APIError) HTTPStatusCode() int { return e.Status }

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = raw
	}
	policy := httpx.RetryPolicy{
		MaxRetries: c.cfg.MaxRetries,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.log.Debug("api request retrying", "path", path, "attempt", attempt, "sleep", wait.String(), "error", err)
		},
	}
	// Only reads are retried; a retried POST could start a second run.
	if method != http.MethodGet {
		policy.MaxRetries = 0
	}
	raw, err := httpx.Do(ctx, c.hc, policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return decodeError(err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(err error) error {
	var se *httpx.StatusError
	if !errors.As(err, &se) {
		return err
	}
	var env struct {
		Error struct {
			Message string         `json:"message"`
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(se.Body), &env) != nil || env.Error.Message == "" {
		return &APIError{Status: se.StatusCode, Message: strings.TrimSpace(se.Body)}
	}
	return &APIError{
		Status:  se.StatusCode,
		Code:    env.Error.Code,
		Message: env.Error.Message,
		Details: env.Error.Details,
	}
}

func (c *Client) CreateThread(ctx context.Context, title string) (*mixapi.ThreadResponse, error) {
	var out mixapi.ThreadResponse
	if err := c.do(ctx, http.MethodPost, "/mix-chats", mixapi.CreateThreadRequest{Title: title}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListThreads(ctx context.Context, archived bool, limit, page int) (*mixapi.ThreadsResponse, error) {
	q := url.Values{}
	q.Set("archived", strconv.FormatBool(archived))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var out mixapi.ThreadsResponse
	if err := c.do(ctx, http.MethodGet, "/mix-chats?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts one user turn. idemKey may be empty.
func (c *Client) SendMessage(ctx context.Context, threadID uuid.UUID, req mixapi.SendMessageRequest, idemKey string) (*mixapi.RunAccepted, error) {
	var headers map[string]string
	if idemKey != "" {
		headers = map[string]string{mixapi.IdempotencyHeader: idemKey}
	}
	var out mixapi.RunAccepted
	if err := c.do(ctx, http.MethodPost, "/mix-chats/"+threadID.String()+"/messages", req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateEditRun(ctx context.Context, threadID, versionID uuid.UUID, req mixapi.EditRunRequest) (*mixapi.RunAccepted, error) {
	var out mixapi.RunAccepted
	path := fmt.Sprintf("/mix-chats/%s/versions/%s/edit-runs", threadID, versionID)
	if err := c.do(ctx, http.MethodPost, path, req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages pages backwards from cursor (0 for the newest page).
func (c *Client) ListMessages(ctx context.Context, threadID uuid.UUID, cursor int64, limit int) (*mixapi.MessagesResponse, error) {
	q := url.Values{}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/mix-chats/" + threadID.String() + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out mixapi.MessagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListVersions(ctx context.Context, threadID uuid.UUID) (*mixapi.VersionsResponse, error) {
	var out mixapi.VersionsResponse
	if err := c.do(ctx, http.MethodGet, "/mix-chats/"+threadID.String()+"/versions", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetDraft(ctx context.Context, threadID, draftID uuid.UUID) (*mixapi.DraftResponse, error) {
	var out mixapi.DraftResponse
	path := fmt.Sprintf("/mix-chats/%s/plan-drafts/%s", threadID, draftID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchRun returns the run with the server's poll hint.
func (c *Client) FetchRun(ctx context.Context, runID uuid.UUID) (*mixapi.RunResponse, error) {
	var out mixapi.RunResponse
	if err := c.do(ctx, http.MethodGet, "/mix-chat-runs/"+runID.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun implements delivery.PollTransport.
func (c *Client) GetRun(ctx context.Context, runID uuid.UUID) (runs.Snapshot, error) {
	out, err := c.FetchRun(ctx, runID)
	if err != nil {
		return runs.Snapshot{}, err
	}
	return runs.Snapshot{Run: out.Run, Terminal: out.Terminal}, nil
}

// EventsURL is the push stream endpoint for a run. EventSource-style clients
// cannot set headers, so the token travels in the query.
func (c *Client) EventsURL(runID uuid.UUID) string {
	u := c.base + "/mix-chat-runs/" + runID.String() + "/events"
	if c.cfg.Token != "" {
		u += "?token=" + url.QueryEscape(c.cfg.Token)
	}
	return u
}
