package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/intellimix-backend/internal/http/response"
	"github.com/yungbote/intellimix-backend/internal/planning"
	"github.com/yungbote/intellimix-backend/internal/platform/apierr"
	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/services"
	"github.com/yungbote/intellimix-backend/internal/timeline"
)

var errInternal = errors.New("internal error")

// apiError maps service errors onto the wire taxonomy. Anything unmapped is
// a 500 whose cause stays in the logs.
func apiError(err error) *apierr.Error {
	if ae, ok := apierr.As(err); ok {
		return ae
	}
	var (
		ve *planning.ValidationError
		se *timeline.SegmentError
		cv *planning.ConstraintViolation
	)
	switch {
	case errors.As(err, &ve):
		return apierr.New(http.StatusBadRequest, "validation_error", err).
			WithDetails(map[string]any{"field": ve.Field})
	case errors.As(err, &se):
		return apierr.New(http.StatusBadRequest, "validation_error", err).
			WithDetails(map[string]any{"field": "segments", "index": se.Index})
	case errors.As(err, &cv):
		return apierr.New(http.StatusConflict, "constraint_violation", err).
			WithDetails(map[string]any{"violations": cv.Violations})
	case errors.Is(err, timeline.ErrNoSegments), errors.Is(err, timeline.ErrMinimumSegments):
		return apierr.New(http.StatusBadRequest, "minimum_segments", err)
	case errors.Is(err, planning.ErrDraftNotReady):
		return apierr.New(http.StatusConflict, "draft_not_ready", err)
	case errors.Is(err, planning.ErrDraftNotCollecting):
		return apierr.New(http.StatusConflict, "draft_not_collecting", err)
	case errors.Is(err, planning.ErrDraftNotActive):
		return apierr.New(http.StatusConflict, "draft_not_active", err)
	case errors.Is(err, services.ErrThreadNotFound):
		return apierr.New(http.StatusNotFound, "thread_not_found", err)
	case errors.Is(err, services.ErrRunNotFound):
		return apierr.New(http.StatusNotFound, "run_not_found", err)
	case errors.Is(err, services.ErrVersionNotFound):
		return apierr.New(http.StatusNotFound, "version_not_found", err)
	case errors.Is(err, services.ErrDraftNotFound):
		return apierr.New(http.StatusNotFound, "draft_not_found", err)
	case errors.Is(err, services.ErrNotAuthenticated), errors.Is(err, services.ErrInvalidToken):
		return apierr.New(http.StatusUnauthorized, "unauthorized", err)
	}
	return apierr.New(http.StatusInternalServerError, "internal_error", errInternal)
}

func respondErr(c *gin.Context, log *logger.Logger, op string, err error) {
	ae := apiError(err)
	if ae.Status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", err)
	}
	response.RespondAPIError(c, ae)
}
