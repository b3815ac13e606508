package controller

import (
	"competenest/internal/notify"
	appErr "competenest/pkg/errors"
	"competenest/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventsController upgrades subscribers onto the progress hub.
type EventsController struct {
	hub *notify.Hub
}

// NewEventsController creates a new EventsController.
func NewEventsController(hub *notify.Hub) *EventsController {
	return &EventsController{hub: hub}
}

// Subscribe upgrades to websocket. The connection then joins topics by
// sending join frames: a submission id for evaluation progress, or the
// run id returned by the run endpoint.
func (h *EventsController) Subscribe(c *gin.Context) {
	if err := notify.ServeWs(h.hub, c.Writer, c.Request); err != nil {
		// The upgrader already wrote the HTTP error response.
		logger.Warn(c.Request.Context(), "websocket upgrade failed",
			zap.Error(appErr.Wrap(err, appErr.SubscribeFailed)))
	}
}
