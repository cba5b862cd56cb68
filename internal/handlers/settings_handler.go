package handlers

import (
	"errors"
	"net/http"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/clients"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsHandler serves plugin-level settings and the Salesforce
// connection status probe.
type SettingsHandler struct {
	settings   repository.SettingRepository
	salesforce *clients.SalesforceClient
	logger     *logrus.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings repository.SettingRepository, salesforce *clients.SalesforceClient, logger *logrus.Logger) *SettingsHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &SettingsHandler{
		settings:   settings,
		salesforce: salesforce,
		logger:     logger,
	}
}

type updateSettingRequest struct {
	Value       string `json:"value" binding:"required"`
	Description string `json:"description"`
	UpdatedBy   string `json:"updated_by"`
}

// ListSettings handles GET /admin/settings.
func (h *SettingsHandler) ListSettings(c *gin.Context) {
	settings, err := h.settings.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list settings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    settings,
	})
}

// GetSetting handles GET /admin/settings/:key.
func (h *SettingsHandler) GetSetting(c *gin.Context) {
	setting, err := h.settings.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Setting not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to load setting",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    setting,
	})
}

// UpdateSetting handles PUT /admin/settings/:key.
func (h *SettingsHandler) UpdateSetting(c *gin.Context) {
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "value is required",
		})
		return
	}

	setting := &models.Setting{
		Key:         c.Param("key"),
		Value:       req.Value,
		Description: req.Description,
		UpdatedBy:   req.UpdatedBy,
	}
	if err := h.settings.Upsert(c.Request.Context(), setting); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to save setting",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"key":        setting.Key,
		"updated_by": setting.UpdatedBy,
	}).Info("Setting updated")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    setting,
	})
}

// SalesforceStatus handles GET /admin/salesforce/status. It authenticates
// against Salesforce and lists the available API versions.
func (h *SettingsHandler) SalesforceStatus(c *gin.Context) {
	versions, err := h.salesforce.GetVersions()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"versions": versions,
	})
}

// DescribeSalesforceObject handles GET /admin/salesforce/describe/:object.
// Used by the fieldmap form to list mappable Salesforce fields.
func (h *SettingsHandler) DescribeSalesforceObject(c *gin.Context) {
	describe, err := h.salesforce.Describe(c.Param("object"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    describe,
	})
}
