package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	domain "github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func snapshot(id uuid.UUID, seq int64, status string) runs.Snapshot {
	run := domain.Run{ID: id, Seq: seq, Status: status}
	return runs.Snapshot{Run: run, Terminal: run.Terminal()}
}

func TestSSEHubReconnectAndOrdering(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := RunChannel(uuid.New())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	first := SSEMessage{Channel: channel, Event: SSEEventRunUpdate, Data: json.RawMessage(`{"seq":1}`)}
	second := SSEMessage{Channel: channel, Event: SSEEventRunUpdate, Data: json.RawMessage(`{"seq":2}`)}
	hub.Broadcast(first)
	hub.Broadcast(second)

	if got := recvMessage(t, clientA.Outbound, time.Second); string(got.Data) != `{"seq":1}` {
		t.Fatalf("first message %s", got.Data)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); string(got.Data) != `{"seq":2}` {
		t.Fatalf("second message %s", got.Data)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after close = %d", n)
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventRunUpdate, Data: json.RawMessage(`{"seq":3}`)})
	if got := recvMessage(t, clientB.Outbound, time.Second); string(got.Data) != `{"seq":3}` {
		t.Fatalf("reconnect message %s", got.Data)
	}
}

func TestSSEHubIgnoresOtherChannels(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "run:a")
	hub.RemoveChannel(client, "run:a")
	hub.AddChannel(client, "run:b")

	hub.Broadcast(SSEMessage{Channel: "run:a", Event: SSEEventRunUpdate})
	hub.Broadcast(SSEMessage{Channel: "", Event: SSEEventRunUpdate})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unexpected message %+v", msg)
	default:
	}
}

func TestStreamEndsOnTerminalFirstMessage(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	id := uuid.New()
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, RunChannel(id))
	defer hub.CloseClient(client)

	first, err := RunMessage(snapshot(id, 4, domain.RunCompleted))
	if err != nil {
		t.Fatalf("RunMessage: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/events", nil)
	hub.Stream(rec, req, client, StreamOptions{First: []SSEMessage{first}, Accept: terminalAccept})

	body := rec.Body.String()
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(body, "event: run_update\n") || !strings.Contains(body, "event: stream_end\n") {
		t.Fatalf("body %q", body)
	}
}

func TestStreamDeliversLiveUpdatesUntilTerminal(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	id := uuid.New()
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, RunChannel(id))
	defer hub.CloseClient(client)
	n := NewRunNotifier(logger.Nop(), hub, nil)

	first, _ := RunMessage(snapshot(id, 1, domain.RunQueued))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest("GET", "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	n.PublishRun(ctx, snapshot(id, 2, domain.RunRunning))
	n.PublishRun(ctx, snapshot(id, 3, domain.RunCompleted))
	n.PublishRun(ctx, snapshot(uuid.New(), 9, domain.RunRunning))
	hub.Stream(rec, req, client, StreamOptions{First: []SSEMessage{first}, Accept: terminalAccept})

	body := rec.Body.String()
	if got := strings.Count(body, "event: run_update"); got != 3 {
		t.Fatalf("run_update events = %d, body %q", got, body)
	}
	if !strings.HasSuffix(body, "\n\n") || !strings.Contains(body, "event: stream_end") {
		t.Fatalf("body %q", body)
	}
}

func TestStreamStopsAtMaxDuration(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient(uuid.New())
	defer hub.CloseClient(client)
	rec := httptest.NewRecorder()
	hub.Stream(rec, httptest.NewRequest("GET", "/events", nil), client, StreamOptions{MaxDuration: 20 * time.Millisecond})
	if !strings.Contains(rec.Body.String(), "event: stream_end") {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestStreamEndsWhenClientOverflows(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	runID := uuid.New()
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, RunChannel(runID))
	defer hub.CloseClient(client)

	for seq := int64(1); seq <= outboundBuffer+1; seq++ {
		msg, err := RunMessage(snapshot(runID, seq, domain.RunRunning))
		if err != nil {
			t.Fatalf("RunMessage: %v", err)
		}
		hub.Broadcast(msg)
	}
	terminal, _ := RunMessage(snapshot(runID, outboundBuffer+2, domain.RunCompleted))
	hub.Broadcast(terminal)

	rec := httptest.NewRecorder()
	started := time.Now()
	hub.Stream(rec, httptest.NewRequest("GET", "/events", nil), client, StreamOptions{
		Accept:      terminalAccept,
		MaxDuration: 5 * time.Second,
	})
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("stream ran %s; overflow should end it", elapsed)
	}
	if !strings.Contains(rec.Body.String(), "event: stream_end") {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func terminalAccept(msg SSEMessage) (bool, bool) {
	s, ok := DecodeRun(msg)
	if !ok {
		return false, false
	}
	return true, s.Terminal
}
