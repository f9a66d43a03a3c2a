package realtime

import (
	"context"
	"encoding/json"

	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/runs"
)

// Publisher is the subset of a bus the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// RunNotifier turns registry snapshots into run_update messages. With a bus
// the message reaches every instance through the bus forwarder; without one
// it goes straight to the local hub.
type RunNotifier struct {
	log *logger.Logger
	hub *SSEHub
	bus Publisher
}

func NewRunNotifier(log *logger.Logger, hub *SSEHub, bus Publisher) *RunNotifier {
	return &RunNotifier{log: log.With("service", "RunNotifier"), hub: hub, bus: bus}
}

func (n *RunNotifier) PublishRun(ctx context.Context, s runs.Snapshot) {
	msg, err := RunMessage(s)
	if err != nil {
		n.log.Warn("encode run snapshot failed", "run_id", s.Run.ID, "error", err)
		return
	}
	if n.bus != nil {
		err := n.bus.Publish(context.WithoutCancel(ctx), msg)
		if err == nil {
			return
		}
		n.log.Warn("bus publish failed; delivering locally", "run_id", s.Run.ID, "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}

func RunMessage(s runs.Snapshot) (SSEMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return SSEMessage{}, err
	}
	return SSEMessage{Channel: RunChannel(s.Run.ID), Event: SSEEventRunUpdate, Data: raw}, nil
}

// DecodeRun reads the snapshot carried by a run_update message.
func DecodeRun(msg SSEMessage) (runs.Snapshot, bool) {
	if msg.Event != SSEEventRunUpdate || len(msg.Data) == 0 {
		return runs.Snapshot{}, false
	}
	var s runs.Snapshot
	if err := json.Unmarshal(msg.Data, &s); err != nil {
		return runs.Snapshot{}, false
	}
	return s, true
}
