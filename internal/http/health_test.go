package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mrlokans/readalong/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHealthTestDB(t *testing.T) (*database.Database, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := "./test_health_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return db, cleanup
}

type fakePendingCounter struct {
	count int64
	err   error
}

func (f *fakePendingCounter) CountPending() (int64, error) {
	return f.count, f.err
}

func healthStatus(t *testing.T, controller *HealthController) (int, HealthResponse) {
	t.Helper()

	router := gin.New()
	router.GET("/health", controller.Status)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w.Code, response
}

func TestHealthController_Status(t *testing.T) {
	t.Run("reports healthy with queue depth", func(t *testing.T) {
		db, cleanup := setupHealthTestDB(t)
		defer cleanup()

		controller := NewHealthController(db, &fakePendingCounter{count: 3}, "1.0.0")
		code, response := healthStatus(t, controller)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "1.0.0", response.Version)
		assert.Equal(t, "ok", response.Checks["database"])
		assert.Equal(t, int64(3), response.PendingSyncs)
		assert.Equal(t, "3 queued", response.Checks["pending_syncs"])
		assert.NotEmpty(t, response.Time)
	})

	t.Run("missing database is not an outage", func(t *testing.T) {
		gin.SetMode(gin.TestMode)

		controller := NewHealthController(nil, nil, "1.0.0")
		code, response := healthStatus(t, controller)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "not configured", response.Checks["database"])
		_, ok := response.Checks["pending_syncs"]
		assert.False(t, ok)
	})

	t.Run("closed database connection is unhealthy", func(t *testing.T) {
		db, _ := setupHealthTestDB(t)
		defer os.Remove("./test_health_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db")
		db.Close()

		controller := NewHealthController(db, nil, "1.0.0")
		code, response := healthStatus(t, controller)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Contains(t, response.Checks["database"], "error")
	})

	t.Run("queue read failure stays healthy but is surfaced", func(t *testing.T) {
		db, cleanup := setupHealthTestDB(t)
		defer cleanup()

		counter := &fakePendingCounter{err: errors.New("table locked")}
		controller := NewHealthController(db, counter, "1.0.0")
		code, response := healthStatus(t, controller)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Contains(t, response.Checks["pending_syncs"], "error")
		assert.Equal(t, int64(0), response.PendingSyncs)
	})
}
