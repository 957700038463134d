package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/galleria/backend/internal/middleware"
	"github.com/galleria/backend/internal/models"
	"github.com/galleria/backend/internal/services"
)

type PhotoHandler struct {
	photoService *services.PhotoService
}

func NewPhotoHandler(photoService *services.PhotoService) *PhotoHandler {
	return &PhotoHandler{photoService: photoService}
}

// respondError maps the service error taxonomy onto HTTP status codes.
// Internal causes are logged, never echoed.
func respondError(c *gin.Context, err error) {
	var validation *services.ValidationError
	var capacity *services.CapacityError
	var processing *services.ProcessingError
	var storage *services.StorageError
	var consistency *services.ConsistencyError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "validation_failed",
			"problems": validation.Problems,
			"warnings": validation.Warnings,
		})
	case errors.As(err, &capacity):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "photo_limit_reached",
			"message": capacity.Error(),
		})
	case errors.As(err, &processing):
		log.Printf("processing error: %v", processing.Err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "processing_failed",
			"message": "the image could not be processed, please try again",
		})
	case errors.As(err, &storage):
		log.Printf("storage error: %v", storage.Err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "temporary storage failure, please retry",
		})
	case errors.As(err, &consistency):
		log.Printf("consistency error: %v", consistency.Err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "conflict",
			"message": "concurrent update conflict, please retry",
		})
	case errors.Is(err, services.ErrTransitionNotAllowed):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "transition_not_allowed",
			"message": err.Error(),
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func photoResponse(photo *models.Photo) gin.H {
	return gin.H{
		"id":                photo.ID,
		"original_filename": photo.OriginalFilename,
		"width":             photo.Width,
		"height":            photo.Height,
		"size_bytes":        photo.SizeBytes,
		"display_order":     photo.DisplayOrder,
		"is_primary":        photo.IsPrimary,
		"moderation_status": photo.ModerationStatus,
		"quality_score":     photo.QualityScore,
		"created_at":        photo.CreatedAt,
		"updated_at":        photo.UpdatedAt,
	}
}

// Upload handles a photo upload.
// POST /photos
// Multipart form: file (required), display_order (optional), is_primary (optional)
func (h *PhotoHandler) Upload(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	opts := services.UploadOptions{}
	if v := c.PostForm("display_order"); v != "" {
		if order, err := strconv.Atoi(v); err == nil && order > 0 {
			opts.DisplayOrder = order
		}
	}
	if v := c.PostForm("is_primary"); v != "" {
		opts.IsPrimary, _ = strconv.ParseBool(v)
	}

	result, err := h.photoService.Upload(c.Request.Context(), ownerID, data, header.Filename, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	response := photoResponse(result.Photo)
	response["locators"] = result.Locators
	response["warnings"] = result.Warnings
	c.JSON(http.StatusCreated, response)
}

// List returns the owner's gallery.
// GET /photos
func (h *PhotoHandler) List(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	gallery, err := h.photoService.List(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	photos := make([]gin.H, 0, len(gallery.Photos))
	for i := range gallery.Photos {
		photos = append(photos, photoResponse(&gallery.Photos[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"photos":      photos,
		"has_primary": gallery.HasPrimary,
		"total_bytes": gallery.TotalBytes,
	})
}

// Get returns one photo.
// GET /photos/:id
func (h *PhotoHandler) Get(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	photo, err := h.photoService.Get(c.Request.Context(), photoID, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, photoResponse(photo))
}

// Update changes photo metadata.
// PATCH /photos/:id
func (h *PhotoHandler) Update(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	var upd services.PhotoUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	photo, err := h.photoService.Update(c.Request.Context(), photoID, ownerID, upd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, photoResponse(photo))
}

// Delete soft-deletes a photo.
// DELETE /photos/:id
func (h *PhotoHandler) Delete(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	ok, err = h.photoService.Delete(c.Request.Context(), photoID, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SetPrimary makes a photo the owner's primary.
// POST /photos/:id/primary
func (h *PhotoHandler) SetPrimary(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	ok, err = h.photoService.SetPrimary(c.Request.Context(), photoID, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Reorder applies a batch of display-order assignments.
// PUT /photos/order
func (h *PhotoHandler) Reorder(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body struct {
		Orders []services.OrderAssignment `json:"orders"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.photoService.Reorder(c.Request.Context(), ownerID, body.Orders); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stream serves one tier's raw bytes with conditional-request support.
// GET /photos/:id/file/:tier
func (h *PhotoHandler) Stream(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	tier := models.Tier(c.Param("tier"))
	result, notModified, err := h.photoService.Stream(c.Request.Context(), photoID, tier, c.GetHeader("If-None-Match"))
	if err != nil {
		respondError(c, err)
		return
	}
	if notModified {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("ETag", result.ETag)
	c.Header("Content-Disposition", `inline; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
