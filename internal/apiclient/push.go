package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/delivery"
	"github.com/yungbote/intellimix-backend/internal/realtime"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

// errStreamDone stops readSSE after stream_end.
var errStreamDone = errors.New("stream done")

// PushTransport reads the run events stream. It implements
// delivery.PushTransport.
type PushTransport struct {
	c *Client
	// hc has no overall timeout; the stream is bounded by ctx and the
	// server's max duration.
	hc *http.Client
}

func (c *Client) Push() *PushTransport {
	return &PushTransport{c: c, hc: &http.Client{}}
}

func (p *PushTransport) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan delivery.PushEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.c.EventsURL(runID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("events stream: http %d", resp.StatusCode)
	}

	out := make(chan delivery.PushEvent, 8)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		emit := func(ev delivery.PushEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		err := readSSE(resp.Body, func(event, data string) error {
			switch realtime.SSEEvent(event) {
			case realtime.SSEEventRunUpdate:
				var s runs.Snapshot
				if err := json.Unmarshal([]byte(data), &s); err != nil {
					return fmt.Errorf("decode run_update: %w", err)
				}
				if !emit(delivery.PushEvent{Kind: delivery.PushUpdate, Snapshot: s}) {
					return ctx.Err()
				}
			case realtime.SSEEventStreamEnd:
				emit(delivery.PushEvent{Kind: delivery.PushEnd})
				return errStreamDone
			}
			return nil
		})
		switch {
		case errors.Is(err, errStreamDone):
		case ctx.Err() != nil:
		case err != nil:
			emit(delivery.PushEvent{Kind: delivery.PushError, Err: err})
		default:
			emit(delivery.PushEvent{Kind: delivery.PushEnd})
		}
	}()
	return out, nil
}
