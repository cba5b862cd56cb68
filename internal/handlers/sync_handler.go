package handlers

import (
	"net/http"
	"strconv"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/repository"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SyncHandler exposes manual sync triggers, the sync event history, and
// the live activity feed WebSocket.
type SyncHandler struct {
	push   *services.PushService
	pull   *services.PullService
	events repository.SyncEventRepository
	feed   *services.ActivityFeedService
	logger *logrus.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(
	push *services.PushService,
	pull *services.PullService,
	events repository.SyncEventRepository,
	feed *services.ActivityFeedService,
	logger *logrus.Logger,
) *SyncHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &SyncHandler{
		push:   push,
		pull:   pull,
		events: events,
		feed:   feed,
		logger: logger,
	}
}

type pushRequest struct {
	WordpressObject string `json:"wordpress_object" binding:"required"`
	WordpressID     string `json:"wordpress_id" binding:"required"`
	Delete          bool   `json:"delete"`
}

type pullRequest struct {
	SalesforceObject string `json:"salesforce_object"`
	SalesforceID     string `json:"salesforce_id"`
}

// TriggerPush handles POST /admin/sync/push, pushing one WordPress entity
// to Salesforce immediately.
func (h *SyncHandler) TriggerPush(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "wordpress_object and wordpress_id are required",
		})
		return
	}

	if req.Delete {
		event, err := h.push.PushDelete(c.Request.Context(), req.WordpressObject, req.WordpressID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error":   err.Error(),
				"event":   event,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"event":   event,
		})
		return
	}

	events, err := h.push.PushObject(c.Request.Context(), req.WordpressObject, req.WordpressID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
			"events":  events,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  events,
	})
}

// TriggerPull handles POST /admin/sync/pull. With a salesforce_id it pulls
// that one record; without, it runs a modified-since pull across all
// active fieldmaps.
func (h *SyncHandler) TriggerPull(c *gin.Context) {
	var req pullRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
		})
		return
	}

	if req.SalesforceID != "" {
		if req.SalesforceObject == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "salesforce_object is required with salesforce_id",
			})
			return
		}
		event, err := h.pull.PullObject(c.Request.Context(), req.SalesforceObject, req.SalesforceID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error":   err.Error(),
				"event":   event,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"event":   event,
		})
		return
	}

	if err := h.pull.PullModified(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Pull completed",
	})
}

// ListEvents handles GET /admin/sync/events.
func (h *SyncHandler) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	var (
		events []*models.SyncEvent
		err    error
	)
	if raw := c.Query("fieldmap_id"); raw != "" {
		fieldmapID, parseErr := strconv.ParseUint(raw, 10, 32)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid fieldmap_id",
			})
			return
		}
		events, err = h.events.ListByFieldmap(c.Request.Context(), uint(fieldmapID), limit)
	} else {
		events, err = h.events.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list sync events",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    events,
	})
}

// EventStats handles GET /admin/sync/events/stats.
func (h *SyncHandler) EventStats(c *gin.Context) {
	stats := make(map[string]int64)
	for _, status := range []models.SyncEventStatus{
		models.SyncEventStatusSuccess,
		models.SyncEventStatusError,
		models.SyncEventStatusSkipped,
	} {
		count, err := h.events.CountByStatus(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Failed to count sync events",
			})
			return
		}
		stats[string(status)] = count
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// ActivityFeed handles GET /admin/sync/feed, upgrading to a WebSocket that
// streams sync events as they complete.
func (h *SyncHandler) ActivityFeed(c *gin.Context) {
	h.feed.HandleWebSocket(c.Writer, c.Request)
}
