package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/corrowatch-backend/internal/platform/logger"
	"github.com/yungbote/corrowatch-backend/internal/realtime"
)

type NotificationHandler struct {
	log       *logger.Logger
	hub       *realtime.Hub
	heartbeat time.Duration
}

func NewNotificationHandler(log *logger.Logger, hub *realtime.Hub, heartbeat time.Duration) *NotificationHandler {
	return &NotificationHandler{
		log:       log.With("handler", "NotificationHandler"),
		hub:       hub,
		heartbeat: heartbeat,
	}
}

// GET /api/notifications/stream?channel=ingestion
func (h *NotificationHandler) Stream(c *gin.Context) {
	channel := strings.TrimSpace(c.DefaultQuery("channel", realtime.ChannelIngestion))
	if channel == "" {
		channel = realtime.ChannelIngestion
	}
	h.log.Debug("notification stream opened", "channel", channel, "remote", c.ClientIP())
	h.hub.ServeSSE(c.Writer, c.Request, channel, h.heartbeat)
	h.log.Debug("notification stream closed", "channel", channel)
}
