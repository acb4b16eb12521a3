package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/housekeeping"
)

// HousekeepingHandler exposes the auth-state cleanup sweep as an admin
// endpoint, for operators who don't want to wait for the next scheduled
// run.
type HousekeepingHandler struct {
	sweeper *housekeeping.Sweeper
	logger  *logrus.Entry
}

// NewHousekeepingHandler creates a new housekeeping handler.
func NewHousekeepingHandler(sweeper *housekeeping.Sweeper, logger *logrus.Entry) *HousekeepingHandler {
	return &HousekeepingHandler{sweeper: sweeper, logger: logger.WithField("handler", "housekeeping")}
}

// Sweep handles POST /admin/housekeeping/sweep.
func (h *HousekeepingHandler) Sweep(c *gin.Context) {
	h.logger.Info("starting on-demand housekeeping sweep")

	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("housekeeping sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}
