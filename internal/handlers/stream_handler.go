package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/middleware"
)

// StreamHandler serves a live SSE feed of one tenant's cache sizes
// (secret count and key-map count), grounded on notification-hub's SSE
// handler (same monorepo). Unlike that handler there is no fan-out hub:
// each connection polls its own tenant's cache stats directly, since
// there is nothing to broadcast besides numbers that are already cheap
// to read.
type StreamHandler struct {
	logger   *logrus.Entry
	interval time.Duration
}

// NewStreamHandler builds a stream handler with a fixed tick interval.
func NewStreamHandler(logger *logrus.Entry) *StreamHandler {
	return &StreamHandler{logger: logger, interval: 2 * time.Second}
}

// Stream handles GET /stream: an SSE connection that emits this tenant's
// cache-size snapshot every tick until the client disconnects.
func (h *StreamHandler) Stream(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-ticker.C:
			stats := tenant.Cache.Stats()
			h.sendEvent(c, "cache_stats", gin.H{
				"tenant":       string(tenant.Fingerprint),
				"secret_count": stats.SecretCount,
				"keymap_count": stats.KeymapCount,
			})
		}
	}
}

func (h *StreamHandler) sendEvent(c *gin.Context, event string, data gin.H) {
	fmt.Fprintf(c.Writer, "event: %s\n", event)
	fmt.Fprintf(c.Writer, "data: {\"secret_count\":%d,\"keymap_count\":%d,\"tenant\":%q}\n\n",
		data["secret_count"], data["keymap_count"], data["tenant"])
	c.Writer.Flush()
}
