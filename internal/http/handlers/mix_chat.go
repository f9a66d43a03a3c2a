package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/intellimix-backend/internal/domain/mix"
	"github.com/yungbote/intellimix-backend/internal/http/response"
	"github.com/yungbote/intellimix-backend/internal/mixapi"
	"github.com/yungbote/intellimix-backend/internal/pkg/dbctx"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/services"
)

type MixChatHandler struct {
	log      *logger.Logger
	sessions services.SessionService
}

func NewMixChatHandler(log *logger.Logger, sessions services.SessionService) *MixChatHandler {
	return &MixChatHandler{log: log.With("handler", "MixChatHandler"), sessions: sessions}
}

func parseID(c *gin.Context, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v := strings.TrimSpace(c.Query(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func derefThreads(ts []*mix.Thread) []mix.Thread {
	out := make([]mix.Thread, 0, len(ts))
	for _, t := range ts {
		out = append(out, *t)
	}
	return out
}

// POST /api/v1/mix-chats
func (h *MixChatHandler) CreateThread(c *gin.Context) {
	var req mixapi.CreateThreadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	th, err := h.sessions.CreateThread(dbctx.Context{Ctx: c.Request.Context()}, req.Title)
	if err != nil {
		respondErr(c, h.log, "create thread", err)
		return
	}
	response.RespondCreated(c, mixapi.ThreadResponse{Thread: *th})
}

// GET /api/v1/mix-chats?limit=20&page=1&archived=false
func (h *MixChatHandler) ListThreads(c *gin.Context) {
	archived, _ := strconv.ParseBool(c.DefaultQuery("archived", "false"))
	threads, err := h.sessions.ListThreads(
		dbctx.Context{Ctx: c.Request.Context()},
		archived,
		queryInt(c, "limit", 20),
		queryInt(c, "page", 1),
	)
	if err != nil {
		respondErr(c, h.log, "list threads", err)
		return
	}
	response.RespondOK(c, mixapi.ThreadsResponse{Threads: derefThreads(threads)})
}

// GET /api/v1/mix-chats/:id
func (h *MixChatHandler) GetThread(c *gin.Context) {
	threadID, ok := parseID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	th, err := h.sessions.GetThread(dbctx.Context{Ctx: c.Request.Context()}, threadID)
	if err != nil {
		respondErr(c, h.log, "get thread", err)
		return
	}
	response.RespondOK(c, mixapi.ThreadResponse{Thread: *th})
}

// PATCH /api/v1/mix-chats/:id
func (h *MixChatHandler) UpdateThread(c *gin.Context) {
	threadID, ok := parseID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	var req mixapi.UpdateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	th, err := h.sessions.UpdateThread(dbctx.Context{Ctx: c.Request.Context()}, threadID, req.Title, req.Archived)
	if err != nil {
		respondErr(c, h.log, "update thread", err)
		return
	}
	response.RespondOK(c, mixapi.ThreadResponse{Thread: *th})
}

func (h *MixChatHandler) accepted(c *gin.Context, acc *services.Accepted) {
	if acc.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	response.RespondAccepted(c, mixapi.RunAccepted{
		UserMessage:      mixapi.NewMessageView(acc.UserMessage),
		AssistantMessage: mixapi.NewMessageView(acc.AssistantMessage),
		Run:              *acc.Run,
		PollHintMS:       h.sessions.PollHintMS(),
	})
}

// POST /api/v1/mix-chats/:id/messages
func (h *MixChatHandler) SendMessage(c *gin.Context) {
	threadID, ok := parseID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	var req mixapi.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	acc, err := h.sessions.SendMessage(
		dbctx.Context{Ctx: c.Request.Context()},
		threadID,
		req,
		c.GetHeader(mixapi.IdempotencyHeader),
	)
	if err != nil {
		respondErr(c, h.log, "send message", err)
		return
	}
	h.accepted(c, acc)
}

// GET /api/v1/mix-chats/:id/messages?cursor=123&limit=50
func (h *MixChatHandler) ListMessages(c *gin.Context) {
	threadID, ok := parseID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	var cursor int64
	if v := strings.TrimSpace(c.Query("cursor")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_cursor", err)
			return
		}
		cursor = n
	}
	page, err := h.sessions.ListMessages(dbctx.Context{Ctx: c.Request.Context()}, threadID, cursor, queryInt(c, "limit", 50))
	if err != nil {
		respondErr(c, h.log, "list messages", err)
		return
	}
	response.RespondOK(c, mixapi.MessagesResponse{
		Messages:   mixapi.NewMessageViews(page.Messages),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// GET /api/v1/mix-chats/:id/versions
func (h *MixChatHandler) ListVersions(c *gin.Context) {
	threadID, ok := parseID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	versions, err := h.sessions.ListVersions(dbctx.Context{Ctx: c.Request.Context()}, threadID)
	if err != nil {
		respondErr(c, h.log, "list versions", err)
		return
	}
	out := make([]mix.Version, 0, len(versions))
	for _, v := range versions {
		out = append(out, *v)
	}
	response.RespondOK(c, mixapi.VersionsResponse{Versions: out})
}

// POST /api/v1/mix-chats/:id/versions/:version_id/edit-runs
func (h *MixChatHandler) CreateEditRun(c *gin.Context) {
	threadID, ok := parseID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	versionID, ok := parseID(c, "version_id", "invalid_version_id")
	if !ok {
		return
	}
	var req mixapi.EditRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	acc, err := h.sessions.CreateEditRun(
		dbctx.Context{Ctx: c.Request.Context()},
		threadID,
		versionID,
		req,
		c.GetHeader(mixapi.IdempotencyHeader),
	)
	if err != nil {
		respondErr(c, h.log, "create edit run", err)
		return
	}
	h.accepted(c, acc)
}

// GET /api/v1/mix-chats/:id/plan-drafts/:draft_id
func (h *MixChatHandler) GetPlanDraft(c *gin.Context) {
	threadID, ok := parseID(c, "id", "invalid_thread_id")
	if !ok {
		return
	}
	draftID, ok := parseID(c, "draft_id", "invalid_draft_id")
	if !ok {
		return
	}
	d, err := h.sessions.GetPlanDraft(dbctx.Context{Ctx: c.Request.Context()}, threadID, draftID)
	if err != nil {
		respondErr(c, h.log, "get plan draft", err)
		return
	}
	response.RespondOK(c, mixapi.DraftResponse{Draft: mixapi.NewDraftView(d)})
}
