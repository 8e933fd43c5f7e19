package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mrlokans/readalong/internal/database"
)

type HealthResponse struct {
	Status       string            `json:"status"`
	Time         string            `json:"time"`
	Version      string            `json:"version,omitempty"`
	PendingSyncs int64             `json:"pending_syncs"`
	Checks       map[string]string `json:"checks"`
}

// HealthController reports server liveness plus the sync-specific
// signal operators care about: how deep the offline queue is.
type HealthController struct {
	db      *database.Database
	pending PendingCounter
	version string
}

func NewHealthController(db *database.Database, pending PendingCounter, version string) *HealthController {
	return &HealthController{
		db:      db,
		pending: pending,
		version: version,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	// Check database connectivity
	if h.db != nil {
		sqlDB, err := h.db.DB.DB()
		if err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else if err := sqlDB.Ping(); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	// A growing queue is not an outage, only worth surfacing.
	var pendingCount int64
	if h.pending != nil {
		count, err := h.pending.CountPending()
		if err != nil {
			checks["pending_syncs"] = "error: " + err.Error()
		} else {
			pendingCount = count
			checks["pending_syncs"] = strconv.FormatInt(count, 10) + " queued"
		}
	}

	health := HealthResponse{
		Status:       status,
		Time:         time.Now().Format(time.RFC3339),
		Version:      h.version,
		PendingSyncs: pendingCount,
		Checks:       checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
