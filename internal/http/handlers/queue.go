package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/corrowatch-backend/internal/data/repos"
	types "github.com/yungbote/corrowatch-backend/internal/domain"
	"github.com/yungbote/corrowatch-backend/internal/http/response"
	"github.com/yungbote/corrowatch-backend/internal/queue"
)

// EventQueue is the operator surface of the central queue.
type EventQueue interface {
	Peek(ctx context.Context, limit int) ([]*types.IngestionEvent, error)
	Stats(ctx context.Context) (repos.EventStats, error)
	Drain(ctx context.Context, limit int) (queue.DrainReport, error)
	DrainUntilEmpty(ctx context.Context, limit, maxRounds int) (queue.DrainReport, error)
	Requeue(ctx context.Context, ids []int64) (int64, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

type QueueHandler struct {
	queue     EventQueue
	maxRounds int
}

func NewQueueHandler(q EventQueue, maxRounds int) *QueueHandler {
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &QueueHandler{queue: q, maxRounds: maxRounds}
}

// GET /api/queue/peek?limit=
func (h *QueueHandler) Peek(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	events, err := h.queue.Peek(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, classify(err, "peek_failed"), "peek_failed")
		return
	}
	response.RespondOK(c, gin.H{"events": events})
}

// GET /api/queue/stats
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, classify(err, "stats_failed"), "stats_failed")
		return
	}
	response.RespondOK(c, stats)
}

type drainRequest struct {
	Limit      int  `json:"limit"`
	UntilEmpty bool `json:"until_empty"`
}

// POST /api/queue/drain
func (h *QueueHandler) Drain(c *gin.Context) {
	var req drainRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}
	var (
		rep queue.DrainReport
		err error
	)
	if req.UntilEmpty {
		rep, err = h.queue.DrainUntilEmpty(c.Request.Context(), req.Limit, h.maxRounds)
	} else {
		rep, err = h.queue.Drain(c.Request.Context(), req.Limit)
	}
	if err != nil {
		response.RespondAPIError(c, classify(err, "drain_failed"), "drain_failed")
		return
	}
	response.RespondOK(c, rep)
}

type requeueRequest struct {
	IDs []int64 `json:"ids"`
}

// POST /api/queue/requeue
func (h *QueueHandler) Requeue(c *gin.Context) {
	var req requeueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.IDs) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("ids is required"))
		return
	}
	n, err := h.queue.Requeue(c.Request.Context(), req.IDs)
	if err != nil {
		response.RespondAPIError(c, classify(err, "requeue_failed"), "requeue_failed")
		return
	}
	response.RespondOK(c, gin.H{"affected": n})
}

type cleanupRequest struct {
	OlderThan string `json:"older_than"`
}

// POST /api/queue/cleanup
func (h *QueueHandler) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil || olderThan < 0 {
		if err == nil {
			err = errors.New("older_than must not be negative")
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_older_than", err)
		return
	}
	n, err := h.queue.Cleanup(c.Request.Context(), olderThan)
	if err != nil {
		response.RespondAPIError(c, classify(err, "cleanup_failed"), "cleanup_failed")
		return
	}
	response.RespondOK(c, gin.H{"deleted": n})
}
