package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/platform/logger"
)

type SSEEvent string

const (
	SSEEventRunUpdate SSEEvent = "run_update"
	SSEEventStreamEnd SSEEvent = "stream_end"
)

// SSEMessage is one event for one channel. Data is pre-encoded JSON so the
// same bytes travel through the bus and onto the wire.
type SSEMessage struct {
	Channel string          `json:"channel"`
	Event   SSEEvent        `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RunChannel is the channel every snapshot of a run is published on.
func RunChannel(runID uuid.UUID) string { return "run:" + runID.String() }

const outboundBuffer = 32

type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	once     sync.Once
	Logger   *logger.Logger

	// overflow is closed once a message could not be buffered.
	overflow     chan struct{}
	overflowOnce sync.Once
}

type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*SSEClient]bool
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*SSEClient]bool),
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	id := uuid.New()
	return &SSEClient{
		ID:       id,
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, outboundBuffer),
		done:     make(chan struct{}),
		Logger:   hub.logger.With("client_id", id),
		overflow: make(chan struct{}),
	}
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	client.Channels[channel] = true

	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*SSEClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true

	hub.logger.Debug("SSE client subscribed", "client_id", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	delete(client.Channels, channel)
	hub.unsubscribeLocked(client, channel)
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range client.Channels {
		hub.unsubscribeLocked(client, ch)
	}
	client.Channels = make(map[string]bool)
}

func (hub *SSEHub) unsubscribeLocked(client *SSEClient, channel string) {
	if subMap, ok := hub.subscriptions[channel]; ok {
		delete(subMap, client)
		if len(subMap) == 0 {
			delete(hub.subscriptions, channel)
		}
	}
}

// Subscribers reports how many clients listen on channel.
func (hub *SSEHub) Subscribers(channel string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.subscriptions[channel])
}

// Broadcast delivers msg to every client on its channel without blocking. A
// client whose buffer is full is marked overflowed and its stream ends with
// stream_end, since the dropped message may have been the terminal one.
func (hub *SSEHub) Broadcast(msg SSEMessage) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if msg.Channel == "" {
		return
	}
	clientsMap, ok := hub.subscriptions[msg.Channel]
	if !ok {
		return
	}
	for c := range clientsMap {
		select {
		case c.Outbound <- msg:
		default:
			hub.logger.Warn("SSE outbound buffer full; ending stream", "client_id", c.ID, "channel", msg.Channel)
			c.overflowOnce.Do(func() { close(c.overflow) })
		}
	}
}

// StreamOptions controls one event stream.
type StreamOptions struct {
	// First is written before any live message.
	First []SSEMessage
	// Accept decides whether a live message is written and whether it ends
	// the stream. Nil accepts everything.
	Accept      func(SSEMessage) (send, last bool)
	MaxDuration time.Duration
	Heartbeat   time.Duration
}

// Stream writes messages for client until the request ends, the client is
// closed or overflows, Accept reports a last message or MaxDuration elapses. Every exit
// other than a dropped connection writes stream_end.
func (hub *SSEHub) Stream(w http.ResponseWriter, r *http.Request, client *SSEClient, opts StreamOptions) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	ctx := r.Context()

	for _, msg := range opts.First {
		send, last := accept(opts.Accept, msg)
		if send {
			hub.write(w, msg)
		}
		if last {
			hub.end(w, msg.Channel)
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	heartbeat := time.NewTicker(opts.Heartbeat)
	defer heartbeat.Stop()
	var deadline <-chan time.Time
	if opts.MaxDuration > 0 {
		timer := time.NewTimer(opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("SSE client context done", "client_id", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-client.overflow:
			hub.end(w, "")
			flusher.Flush()
			return
		case <-deadline:
			hub.end(w, "")
			flusher.Flush()
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			send, last := accept(opts.Accept, msg)
			if send {
				hub.write(w, msg)
			}
			if last {
				hub.end(w, msg.Channel)
			}
			flusher.Flush()
			if last {
				return
			}
		}
	}
}

func accept(fn func(SSEMessage) (bool, bool), msg SSEMessage) (bool, bool) {
	if fn == nil {
		return true, false
	}
	return fn(msg)
}

func (hub *SSEHub) write(w http.ResponseWriter, msg SSEMessage) {
	data := msg.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
}

func (hub *SSEHub) end(w http.ResponseWriter, channel string) {
	raw, _ := json.Marshal(map[string]string{"channel": channel})
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", SSEEventStreamEnd, raw)
}

// CloseClient unsubscribes client and closes its outbound channel. It is
// safe to call more than once.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	client.once.Do(func() {
		close(client.done)
		hub.RemoveClient(client)
		// Broadcast holds the read lock while sending, so after RemoveClient
		// no sender can still reach this channel.
		close(client.Outbound)
	})
}
