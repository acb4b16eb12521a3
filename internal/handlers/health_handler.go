package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/models"
)

// HealthHandler handles liveness reporting (spec §6 GET /healthcheck).
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a new health handler. db may be nil when the
// audit trail is disabled; liveness then reports healthy unconditionally.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthcheck handles GET /healthcheck.
func (h *HealthHandler) Healthcheck(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			checks["audit_db"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else if err := sqlDB.Ping(); err != nil {
			checks["audit_db"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks["audit_db"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now(),
	})
}
