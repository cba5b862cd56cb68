package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/dto"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/repository"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MappingsHandler serves the admin mapping surface: form submissions that
// end in a redirect, read endpoints for rendering lists and detail pages,
// and transient recovery for re-rendering a failed form.
type MappingsHandler struct {
	forms      *services.FormService
	fieldmaps  repository.FieldmapRepository
	objectMaps repository.ObjectMapRepository
	logger     *logrus.Logger
}

// NewMappingsHandler creates a new MappingsHandler.
func NewMappingsHandler(
	forms *services.FormService,
	fieldmaps repository.FieldmapRepository,
	objectMaps repository.ObjectMapRepository,
	logger *logrus.Logger,
) *MappingsHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &MappingsHandler{
		forms:      forms,
		fieldmaps:  fieldmaps,
		objectMaps: objectMaps,
		logger:     logger,
	}
}

// SubmitFieldmapForm handles POST /admin/fieldmaps/submit. The outcome is
// always a redirect: to the success URL, or to the error URL carrying a
// transient token (or the failed id, for deletes).
func (h *MappingsHandler) SubmitFieldmapForm(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid form data",
		})
		return
	}

	sub := dto.ParseFieldmapSubmission(c.Request.PostForm)
	decision := h.forms.Submit(c.Request.Context(), sub)
	h.redirect(c, sub, decision)
}

// SubmitObjectMapForm handles POST /admin/object-maps/submit.
func (h *MappingsHandler) SubmitObjectMapForm(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid form data",
		})
		return
	}

	sub := dto.ParseObjectMapSubmission(c.Request.PostForm)
	decision := h.forms.Submit(c.Request.Context(), sub)
	h.redirect(c, sub, decision)
}

func (h *MappingsHandler) redirect(c *gin.Context, sub dto.Submission, decision dto.RedirectDecision) {
	outcome := "success"
	if decision.Stashed {
		outcome = "stashed"
	} else if decision.Location != sub.RedirectSuccess {
		outcome = "error"
	}

	h.logger.WithFields(logrus.Fields{
		"entity":   sub.Entity,
		"method":   sub.Method,
		"outcome":  outcome,
		"location": decision.Location,
	}).Info("Form submission handled")

	c.Redirect(http.StatusSeeOther, decision.Location)
}

// RecoverTransient handles GET /admin/transients/:token, returning the
// stashed payload so the admin form can be re-rendered with prior input.
func (h *MappingsHandler) RecoverTransient(c *gin.Context) {
	token := c.Param("token")
	payload, err := h.forms.RecoverPayload(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Transient not found or expired",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to load transient",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"payload": payload,
	})
}

// ListFieldmaps handles GET /admin/fieldmaps.
func (h *MappingsHandler) ListFieldmaps(c *gin.Context) {
	offset, limit := pagination(c)
	fieldmaps, total, err := h.fieldmaps.List(c.Request.Context(), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list fieldmaps",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    fieldmaps,
		"total":   total,
	})
}

// GetFieldmap handles GET /admin/fieldmaps/:id.
func (h *MappingsHandler) GetFieldmap(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid id",
		})
		return
	}

	fieldmap, err := h.fieldmaps.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Fieldmap not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to load fieldmap",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    fieldmap,
	})
}

// ListObjectMaps handles GET /admin/object-maps.
func (h *MappingsHandler) ListObjectMaps(c *gin.Context) {
	offset, limit := pagination(c)
	objectMaps, total, err := h.objectMaps.List(c.Request.Context(), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list object maps",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    objectMaps,
		"total":   total,
	})
}

// GetObjectMap handles GET /admin/object-maps/:id.
func (h *MappingsHandler) GetObjectMap(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid id",
		})
		return
	}

	objectMap, err := h.objectMaps.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Object map not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to load object map",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    objectMap,
	})
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}

func pagination(c *gin.Context) (offset, limit int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
