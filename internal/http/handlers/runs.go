package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/intellimix-backend/internal/http/response"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/ctxutil"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/realtime"
	"github.com/yungbote/intellimix-backend/internal/services"
)

// StreamObserver counts open event streams.
type StreamObserver interface {
	SSEClientConnected()
	SSEClientDisconnected()
}

type RunHandler struct {
	log       *logger.Logger
	sessions  services.SessionService
	hub       *realtime.SSEHub
	observer  StreamObserver
	maxStream time.Duration
	heartbeat time.Duration
}

func NewRunHandler(log *logger.Logger, sessions services.SessionService, hub *realtime.SSEHub, observer StreamObserver, maxStream time.Duration) *RunHandler {
	if maxStream <= 0 {
		maxStream = 300 * time.Second
	}
	return &RunHandler{
		log:       log.With("handler", "RunHandler"),
		sessions:  sessions,
		hub:       hub,
		observer:  observer,
		maxStream: maxStream,
		heartbeat: 15 * time.Second,
	}
}

// GET /api/v1/mix-chat-runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID, ok := parseID(c, "id", "invalid_run_id")
	if !ok {
		return
	}
	snap, err := h.sessions.GetRun(dbctx.Context{Ctx: c.Request.Context()}, runID)
	if err != nil {
		respondErr(c, h.log, "get run", err)
		return
	}
	response.RespondOK(c, mixapi.RunResponse{Run: snap.Run, Terminal: snap.Terminal, PollHintMS: h.sessions.PollHintMS()})
}

// GET /api/v1/mix-chat-runs/:id/events?token=...
//
// The client subscribes before the snapshot is read so no update between
// the two is lost; anything at or below the last written seq is skipped.
func (h *RunHandler) Events(c *gin.Context) {
	runID, ok := parseID(c, "id", "invalid_run_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	client := h.hub.NewSSEClient(ctxutil.UserID(ctx))
	h.hub.AddChannel(client, realtime.RunChannel(runID))
	defer h.hub.CloseClient(client)

	snap, err := h.sessions.GetRun(dbctx.Context{Ctx: ctx}, runID)
	if err != nil {
		respondErr(c, h.log, "run events", err)
		return
	}
	first, err := realtime.RunMessage(snap)
	if err != nil {
		respondErr(c, h.log, "run events", err)
		return
	}
	if h.observer != nil {
		h.observer.SSEClientConnected()
		defer h.observer.SSEClientDisconnected()
	}

	var lastSeq int64
	h.hub.Stream(c.Writer, c.Request, client, realtime.StreamOptions{
		First: []realtime.SSEMessage{first},
		Accept: func(msg realtime.SSEMessage) (bool, bool) {
			s, ok := realtime.DecodeRun(msg)
			if !ok || s.Run.Seq <= lastSeq {
				return false, false
			}
			lastSeq = s.Run.Seq
			return true, s.Terminal
		},
		MaxDuration: h.maxStream,
		Heartbeat:   h.heartbeat,
	})
}
