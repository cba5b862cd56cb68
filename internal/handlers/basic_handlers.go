package handlers

import (
	"net/http"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/db"

	"github.com/gin-gonic/gin"
)

// PingHandler GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// HealthCheckHandler GET /health
func HealthCheckHandler(c *gin.Context) {
	dbStatus := "healthy"
	if sqlDB, err := db.DB.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "unhealthy"
	}

	status := http.StatusOK
	if dbStatus != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   dbStatus,
		"service":  "object-sync-for-salesforce",
		"database": dbStatus,
	})
}
