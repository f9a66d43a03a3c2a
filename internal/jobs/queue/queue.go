package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Item is one unit of work: a run to execute. Attempt counts the retries a
// handler scheduled for itself (waiting on AI capacity).
type Item struct {
	RunID   uuid.UUID `json:"run_id"`
	Attempt int       `json:"attempt,omitempty"`
}

// Queue hands run ids from the API to the workers.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	// EnqueueAfter makes item visible to Dequeue once delay has passed.
	EnqueueAfter(ctx context.Context, item Item, delay time.Duration) error
	// Dequeue blocks up to timeout. It returns (nil, nil) when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Item, error)
	Depth(ctx context.Context) (int64, error)
	Close() error
}

func encodeItem(it Item) (string, error) {
	raw, err := json.Marshal(it)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decodeItem accepts the JSON form and a bare run id.
func decodeItem(s string) (*Item, error) {
	if id, err := uuid.Parse(s); err == nil {
		return &Item{RunID: id}, nil
	}
	var it Item
	if err := json.Unmarshal([]byte(s), &it); err != nil {
		return nil, fmt.Errorf("decode queue item: %w", err)
	}
	if it.RunID == uuid.Nil {
		return nil, fmt.Errorf("decode queue item: missing run_id")
	}
	return &it, nil
}
