package apiclient

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/mixapi"
)

// Lists is the latest message page and version list of a thread.
type Lists struct {
	Messages mixapi.MessagesResponse
	Versions mixapi.VersionsResponse
}

// Refresher re-reads thread lists after a run goes terminal. It implements
// delivery.Refresher and keeps the last successful read per thread.
type Refresher struct {
	c     *Client
	limit int

	mu    sync.Mutex
	views map[uuid.UUID]Lists
}

func (c *Client) Refresher(limit int) *Refresher {
	if limit <= 0 {
		limit = 50
	}
	return &Refresher{c: c, limit: limit, views: map[uuid.UUID]Lists{}}
}

// Refresh reads both lists. Nothing is stored unless both reads succeed.
func (r *Refresher) Refresh(ctx context.Context, threadID uuid.UUID) error {
	msgs, err := r.c.ListMessages(ctx, threadID, 0, r.limit)
	if err != nil {
		return err
	}
	versions, err := r.c.ListVersions(ctx, threadID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.views[threadID] = Lists{Messages: *msgs, Versions: *versions}
	r.mu.Unlock()
	return nil
}

func (r *Refresher) Lists(threadID uuid.UUID) (Lists, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.views[threadID]
	return l, ok
}
