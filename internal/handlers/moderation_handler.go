package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/galleria/backend/internal/middleware"
	"github.com/galleria/backend/internal/models"
	"github.com/galleria/backend/internal/services"
)

// ModerationHandler exposes the review queue to trusted callers. Role
// enforcement happens outside this service; the routes are only mounted in a
// trusted router group.
type ModerationHandler struct {
	photoService *services.PhotoService
}

func NewModerationHandler(photoService *services.PhotoService) *ModerationHandler {
	return &ModerationHandler{photoService: photoService}
}

// List pages through photos in one moderation state.
// GET /moderation/photos?status=pending_review&page=1&page_size=20
func (h *ModerationHandler) List(c *gin.Context) {
	status := models.ModerationStatus(c.DefaultQuery("status", string(models.StatusPendingReview)))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	photos, total, err := h.photoService.ListForModeration(c.Request.Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(photos))
	for i := range photos {
		item := photoResponse(&photos[i])
		item["owner_id"] = photos[i].OwnerID
		item["moderation_notes"] = photos[i].ModerationNotes
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"photos":    items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Update overwrites a photo's moderation status.
// PUT /moderation/photos/:id
func (h *ModerationHandler) Update(c *gin.Context) {
	actorID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	var body struct {
		Status models.ModerationStatus `json:"status" binding:"required"`
		Notes  string                  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !body.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	ok, err = h.photoService.Moderate(c.Request.Context(), photoID, body.Status, body.Notes, actorID.String())
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

// History returns a photo's moderation transition log.
// GET /moderation/photos/:id/history
func (h *ModerationHandler) History(c *gin.Context) {
	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	entries, err := h.photoService.ModerationHistory(c.Request.Context(), photoID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
