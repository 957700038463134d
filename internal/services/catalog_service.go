package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/galleria/backend/internal/models"
)

// ModerationPolicy restricts which moderation transitions an update may
// perform. A nil Allowed table permits everything, which matches the current
// product behavior (re-review and appeals can move any status to any other).
type ModerationPolicy struct {
	Allowed map[models.ModerationStatus][]models.ModerationStatus
}

func (p *ModerationPolicy) Allows(from, to models.ModerationStatus) bool {
	if p == nil || p.Allowed == nil {
		return true
	}
	for _, next := range p.Allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderAssignment maps one photo to a new display order slot.
type OrderAssignment struct {
	PhotoID uuid.UUID `json:"photo_id"`
	Order   int       `json:"order"`
}

// PhotoUpdate carries the owner-editable metadata fields. Nil means leave
// unchanged.
type PhotoUpdate struct {
	DisplayOrder *int `json:"display_order"`
}

// CatalogService is the metadata repository for photos. All owner-facing
// reads filter out soft-deleted rows; the display-order and primary-flag
// invariants are enforced inside single transactions.
type CatalogService struct {
	db     *gorm.DB
	policy *ModerationPolicy
}

func NewCatalogService(db *gorm.DB, policy *ModerationPolicy) *CatalogService {
	return &CatalogService{db: db, policy: policy}
}

func activePhotos(tx *gorm.DB, ownerID uuid.UUID) *gorm.DB {
	return tx.Model(&models.Photo{}).Where("owner_id = ? AND is_deleted = ?", ownerID, false)
}

// transactRetry runs fn in a transaction and retries exactly once on
// failure. Concurrent primary/order updates for the same owner can trip the
// database's serialization checks; a single retry resolves the benign case,
// anything else surfaces as a ConsistencyError.
func (s *CatalogService) transactRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if retryErr := s.db.WithContext(ctx).Transaction(fn); retryErr == nil {
		return nil
	}
	return &ConsistencyError{Err: err}
}

// Create inserts a photo, assigning the next display order slot for the
// owner when none was requested. A photo arriving with the primary flag set
// clears every other active primary in the same transaction, so the
// at-most-one-primary invariant holds even against a concurrent SetPrimary.
func (s *CatalogService) Create(ctx context.Context, photo *models.Photo) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if photo.DisplayOrder <= 0 {
			var maxOrder int
			row := activePhotos(tx, photo.OwnerID).Select("COALESCE(MAX(display_order), 0)").Row()
			if err := row.Scan(&maxOrder); err != nil {
				return fmt.Errorf("failed to compute display order: %w", err)
			}
			photo.DisplayOrder = maxOrder + 1
		}
		if photo.IsPrimary {
			if err := activePhotos(tx, photo.OwnerID).Where("is_primary = ?", true).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(photo).Error
	})
}

// GetByID returns one active photo owned by ownerID. Missing and foreign
// photos are both ErrNotFound.
func (s *CatalogService) GetByID(ctx context.Context, photoID, ownerID uuid.UUID) (*models.Photo, error) {
	var photo models.Photo
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ? AND is_deleted = ?", photoID, ownerID, false).
		First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &photo, nil
}

// GetActiveByID looks a photo up without an owner check, for serving tier
// content.
func (s *CatalogService) GetActiveByID(ctx context.Context, photoID uuid.UUID) (*models.Photo, error) {
	var photo models.Photo
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", photoID, false).
		First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &photo, nil
}

// ListByOwner returns the owner's active photos in ascending display order.
func (s *CatalogService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Photo, error) {
	var photos []models.Photo
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_deleted = ?", ownerID, false).
		Order("display_order ASC").
		Find(&photos).Error
	return photos, err
}

// CountActive returns the number of active photos for the owner.
func (s *CatalogService) CountActive(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	err := activePhotos(s.db.WithContext(ctx), ownerID).Count(&count).Error
	return count, err
}

// ListByStatus returns a page of active photos in the given moderation
// state, newest first, plus the total count. For the review queue.
func (s *CatalogService) ListByStatus(ctx context.Context, status models.ModerationStatus, limit, offset int) ([]models.Photo, int64, error) {
	var photos []models.Photo
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Photo{}).
		Where("moderation_status = ? AND is_deleted = ?", status, false)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&photos).Error
	return photos, total, err
}

// SetPrimary makes the target the owner's single primary photo: every other
// active photo is cleared first, inside one transaction. Returns false when
// the target is missing, deleted or owned by someone else.
func (s *CatalogService) SetPrimary(ctx context.Context, photoID, ownerID uuid.UUID) (bool, error) {
	var ok bool
	err := s.transactRetry(ctx, func(tx *gorm.DB) error {
		ok = false
		var photo models.Photo
		if err := tx.Where("id = ? AND owner_id = ? AND is_deleted = ?", photoID, ownerID, false).
			First(&photo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := activePhotos(tx, ownerID).Where("id <> ?", photoID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Photo{}).Where("id = ?", photoID).
			Update("is_primary", true).Error; err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

// Delete soft-deletes a photo. When the victim was primary, the remaining
// active photo with the lowest display order is promoted in the same
// transaction; no promotion happens when the gallery is now empty. Returns
// false for missing/foreign photos.
func (s *CatalogService) Delete(ctx context.Context, photoID, ownerID uuid.UUID) (bool, error) {
	var ok bool
	err := s.transactRetry(ctx, func(tx *gorm.DB) error {
		ok = false
		var photo models.Photo
		if err := tx.Where("id = ? AND owner_id = ? AND is_deleted = ?", photoID, ownerID, false).
			First(&photo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Photo{}).Where("id = ?", photoID).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"deleted_at": &now,
				"is_primary": false,
			}).Error; err != nil {
			return err
		}

		if photo.IsPrimary {
			var next models.Photo
			err := tx.Where("owner_id = ? AND is_deleted = ?", ownerID, false).
				Order("display_order ASC").
				First(&next).Error
			if err == nil {
				if err := tx.Model(&models.Photo{}).Where("id = ?", next.ID).
					Update("is_primary", true).Error; err != nil {
					return err
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		ok = true
		return nil
	})
	return ok, err
}

// Reorder applies a batch of display-order assignments atomically. Entries
// referencing unknown or foreign photos are skipped, not errored.
func (s *CatalogService) Reorder(ctx context.Context, ownerID uuid.UUID, assignments []OrderAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return s.transactRetry(ctx, func(tx *gorm.DB) error {
		for _, a := range assignments {
			if a.Order <= 0 {
				continue
			}
			if err := activePhotos(tx, ownerID).Where("id = ?", a.PhotoID).
				Update("display_order", a.Order).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Update applies owner-editable metadata changes. Returns the refreshed
// photo, or ErrNotFound.
func (s *CatalogService) Update(ctx context.Context, photoID, ownerID uuid.UUID, upd PhotoUpdate) (*models.Photo, error) {
	photo, err := s.GetByID(ctx, photoID, ownerID)
	if err != nil {
		return nil, err
	}
	if upd.DisplayOrder != nil && *upd.DisplayOrder > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Photo{}).Where("id = ?", photo.ID).
			Update("display_order", *upd.DisplayOrder).Error; err != nil {
			return nil, err
		}
		photo.DisplayOrder = *upd.DisplayOrder
	}
	return photo, nil
}

// UpdateModerationStatus overwrites the moderation state, bumps ModeratedAt
// and appends a ModerationLog row in the same transaction. Returns false for
// a missing photo, and ErrTransitionNotAllowed when the configured policy
// forbids the transition.
func (s *CatalogService) UpdateModerationStatus(ctx context.Context, photoID uuid.UUID, status models.ModerationStatus, notes, actor string) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("invalid moderation status %q", status)
	}

	var ok, denied bool
	err := s.transactRetry(ctx, func(tx *gorm.DB) error {
		ok, denied = false, false
		var photo models.Photo
		if err := tx.Where("id = ? AND is_deleted = ?", photoID, false).First(&photo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if !s.policy.Allows(photo.ModerationStatus, status) {
			denied = true
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Photo{}).Where("id = ?", photoID).
			Updates(map[string]interface{}{
				"moderation_status": status,
				"moderation_notes":  notes,
				"moderated_at":      &now,
			}).Error; err != nil {
			return err
		}

		entry := models.ModerationLog{
			PhotoID:        photoID,
			PreviousStatus: photo.ModerationStatus,
			NewStatus:      status,
			Actor:          actor,
			Reason:         notes,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if denied {
		return false, ErrTransitionNotAllowed
	}
	return ok, nil
}

// ModerationHistory returns the append-only transition log for a photo,
// oldest first. Works for soft-deleted photos too, for audits.
func (s *CatalogService) ModerationHistory(ctx context.Context, photoID uuid.UUID) ([]models.ModerationLog, error) {
	var entries []models.ModerationLog
	err := s.db.WithContext(ctx).
		Where("photo_id = ?", photoID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// TotalActiveBytes sums the stored full-tier sizes of the owner's active
// photos.
func (s *CatalogService) TotalActiveBytes(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var total int64
	row := activePhotos(s.db.WithContext(ctx), ownerID).
		Select("COALESCE(SUM(size_bytes), 0)").Row()
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
