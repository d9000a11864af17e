package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BrokerChecker reports whether the message broker connection is alive.
type BrokerChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db     *gorm.DB
	broker BrokerChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, broker BrokerChecker) *HealthHandler {
	return &HealthHandler{db: db, broker: broker}
}

// Health returns basic health status
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "notify",
	})
}

// Livez returns liveness status
func (h *HealthHandler) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// Readyz returns readiness status
func (h *HealthHandler) Readyz(c *gin.Context) {
	status := "ready"
	httpStatus := http.StatusOK

	checks := make(map[string]string)

	// Check database
	sqlDB, err := h.db.DB()
	if err != nil {
		checks["database"] = "error: " + err.Error()
		status = "not ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := sqlDB.Ping(); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "not ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "connected"
	}

	// Check broker
	if h.broker != nil {
		if h.broker.IsConnected() {
			checks["broker"] = "connected"
		} else {
			checks["broker"] = "disconnected"
			status = "not ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
	})
}
