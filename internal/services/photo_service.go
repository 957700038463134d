package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/galleria/backend/internal/config"
	"github.com/galleria/backend/internal/models"
)

// saga collects compensating actions for completed pipeline steps. On
// failure the recorded undos run in reverse order, restoring the state from
// before the first step.
type saga struct {
	undos []func()
}

func (s *saga) add(undo func()) {
	s.undos = append(s.undos, undo)
}

func (s *saga) compensate() {
	for i := len(s.undos) - 1; i >= 0; i-- {
		s.undos[i]()
	}
}

// UploadOptions carries the caller's hints for a new photo.
type UploadOptions struct {
	DisplayOrder int  // 0 = append at the end
	IsPrimary    bool // make this the owner's primary photo
}

// UploadResult is returned on a successful upload.
type UploadResult struct {
	Photo    *models.Photo
	Locators map[models.Tier]string
	Warnings []string
}

// Gallery is an owner's active photo list with aggregates.
type Gallery struct {
	Photos     []models.Photo
	HasPrimary bool
	TotalBytes int64
}

// StreamResult is one tier's raw content ready for serving.
type StreamResult struct {
	Data        []byte
	ContentType string
	Filename    string
	ETag        string
}

// PhotoService orchestrates the intake pipeline: validation, transform,
// tiered storage with compensation, and the catalog commit. It also fronts
// the catalog's read/update operations for the API layer.
type PhotoService struct {
	cfg         *config.Config
	validator   *ValidatorService
	transformer *TransformService
	store       ArtifactStore
	catalog     *CatalogService

	// bounds concurrent decode/encode work; large images are memory-hungry
	transformSem chan struct{}
}

func NewPhotoService(cfg *config.Config, validator *ValidatorService, transformer *TransformService, store ArtifactStore, catalog *CatalogService) *PhotoService {
	sem := cfg.UploadMaxConcurrent
	if sem <= 0 {
		sem = 1
	}
	return &PhotoService{
		cfg:          cfg,
		validator:    validator,
		transformer:  transformer,
		store:        store,
		catalog:      catalog,
		transformSem: make(chan struct{}, sem),
	}
}

// Upload runs the full intake pipeline. Cheap gates run first (capacity,
// validation), then the CPU-bound transform, then one artifact write per
// rendition with compensation, and finally the catalog insert. Cancellation
// at any point compensates exactly like a failure at that step.
func (s *PhotoService) Upload(ctx context.Context, ownerID uuid.UUID, data []byte, filename string, opts UploadOptions) (*UploadResult, error) {
	count, err := s.catalog.CountActive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check photo count: %w", err)
	}
	if count >= int64(s.cfg.MaxPhotosPerUser) {
		return nil, &CapacityError{Limit: s.cfg.MaxPhotosPerUser}
	}

	validation, err := s.validator.ValidateUpload(data, filename)
	if err != nil {
		return nil, err
	}

	processed, err := s.transform(ctx, data, validation.Format)
	if err != nil {
		return nil, err
	}

	storedName := NewStoredName(processed.Extension)
	locators := make(map[models.Tier]string, len(models.Tiers))
	for _, tier := range models.Tiers {
		locators[tier] = ObjectKey(ownerID, storedName, tier)
	}

	comp := &saga{}
	fail := func(cause error) error {
		comp.compensate()
		return cause
	}

	tiers := []struct {
		tier models.Tier
		data []byte
	}{
		{models.TierFull, processed.Full},
		{models.TierMedium, processed.Medium},
		{models.TierThumbnail, processed.Thumbnail},
		{models.TierBlurred, processed.Blurred},
	}
	for _, t := range tiers {
		if err := ctx.Err(); err != nil {
			return nil, fail(err)
		}
		locator := locators[t.tier]
		if _, err := s.store.Store(ctx, locator, t.data); err != nil {
			return nil, fail(&StorageError{Op: fmt.Sprintf("write %s tier", t.tier), Err: err})
		}
		comp.add(func() { s.deleteArtifact(locator) })
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}

	score := processed.QualityScore
	status := models.StatusPendingReview
	if score >= s.cfg.AutoApproveScore {
		status = models.StatusAutoApproved
	}

	hash := sha256.Sum256(data)
	photo := &models.Photo{
		OwnerID:          ownerID,
		OriginalFilename: filepath.Base(filename),
		StoredName:       storedName,
		Extension:        processed.Extension,
		SizeBytes:        int64(len(processed.Full)),
		ContentHash:      hex.EncodeToString(hash[:]),
		Width:            processed.FullWidth,
		Height:           processed.FullHeight,
		DisplayOrder:     opts.DisplayOrder,
		IsPrimary:        opts.IsPrimary,
		ModerationStatus: status,
		QualityScore:     &score,
	}

	if err := s.catalog.Create(ctx, photo); err != nil {
		// an artifact with no catalog row is an orphan
		return nil, fail(fmt.Errorf("failed to create photo record: %w", err))
	}

	return &UploadResult{
		Photo:    photo,
		Locators: locators,
		Warnings: validation.Warnings,
	}, nil
}

// transform runs the CPU-bound decode/resize/encode under the bounded
// worker semaphore.
func (s *PhotoService) transform(ctx context.Context, data []byte, format string) (*ProcessedImage, error) {
	select {
	case s.transformSem <- struct{}{}:
		defer func() { <-s.transformSem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.transformer.Process(data, format)
}

// deleteArtifact is the compensation step for one stored tier. Runs on a
// fresh context: a cancelled upload must still clean up after itself.
func (s *PhotoService) deleteArtifact(locator string) {
	if err := s.store.Delete(context.Background(), locator); err != nil {
		log.Printf("compensating delete failed for %s: %v", locator, err)
	}
}

// List returns an owner's gallery with aggregates.
func (s *PhotoService) List(ctx context.Context, ownerID uuid.UUID) (*Gallery, error) {
	photos, err := s.catalog.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	gallery := &Gallery{Photos: photos}
	for _, p := range photos {
		gallery.TotalBytes += p.SizeBytes
		if p.IsPrimary {
			gallery.HasPrimary = true
		}
	}
	return gallery, nil
}

// Get returns one of the owner's photos.
func (s *PhotoService) Get(ctx context.Context, photoID, ownerID uuid.UUID) (*models.Photo, error) {
	return s.catalog.GetByID(ctx, photoID, ownerID)
}

// Update applies metadata changes to one of the owner's photos.
func (s *PhotoService) Update(ctx context.Context, photoID, ownerID uuid.UUID, upd PhotoUpdate) (*models.Photo, error) {
	return s.catalog.Update(ctx, photoID, ownerID, upd)
}

// SetPrimary makes the photo the owner's primary.
func (s *PhotoService) SetPrimary(ctx context.Context, photoID, ownerID uuid.UUID) (bool, error) {
	return s.catalog.SetPrimary(ctx, photoID, ownerID)
}

// Reorder applies a batch of display-order assignments.
func (s *PhotoService) Reorder(ctx context.Context, ownerID uuid.UUID, assignments []OrderAssignment) error {
	return s.catalog.Reorder(ctx, ownerID, assignments)
}

// Delete soft-deletes the photo and then removes its stored renditions from
// the artifact store. Artifact removal is best-effort: a failed delete is
// logged and left for a cleanup job, it never rolls back the logical delete.
func (s *PhotoService) Delete(ctx context.Context, photoID, ownerID uuid.UUID) (bool, error) {
	photo, err := s.catalog.GetByID(ctx, photoID, ownerID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}

	ok, err := s.catalog.Delete(ctx, photoID, ownerID)
	if err != nil || !ok {
		return ok, err
	}

	for _, tier := range models.Tiers {
		s.deleteArtifact(ObjectKey(photo.OwnerID, photo.StoredName, tier))
	}
	return true, nil
}

// Stream loads one tier's bytes for serving. A missing catalog row and a
// missing artifact both come back as ErrNotFound. When ifNoneMatch equals
// the current freshness token, (nil, true, nil) is returned instead of the
// content.
func (s *PhotoService) Stream(ctx context.Context, photoID uuid.UUID, tier models.Tier, ifNoneMatch string) (*StreamResult, bool, error) {
	if !tier.Valid() {
		return nil, false, ErrNotFound
	}

	photo, err := s.catalog.GetActiveByID(ctx, photoID)
	if err != nil {
		return nil, false, err
	}

	etag := streamETag(photo, tier)
	if ifNoneMatch != "" && ifNoneMatch == etag {
		return nil, true, nil
	}

	data, err := s.store.Read(ctx, ObjectKey(photo.OwnerID, photo.StoredName, tier))
	if err != nil {
		if err == ErrNotFound {
			return nil, false, ErrNotFound
		}
		return nil, false, &StorageError{Op: "read " + string(tier) + " tier", Err: err}
	}

	return &StreamResult{
		Data:        data,
		ContentType: ContentTypeByExtension(photo.Extension),
		Filename:    photo.TierName(tier),
		ETag:        etag,
	}, false, nil
}

func streamETag(photo *models.Photo, tier models.Tier) string {
	return fmt.Sprintf(`"%s-%s-%d"`, photo.ID, tier, photo.UpdatedAt.UTC().Unix())
}

// ListForModeration pages through active photos in one moderation state.
func (s *PhotoService) ListForModeration(ctx context.Context, status models.ModerationStatus, limit, offset int) ([]models.Photo, int64, error) {
	return s.catalog.ListByStatus(ctx, status, limit, offset)
}

// Moderate overwrites a photo's moderation status.
func (s *PhotoService) Moderate(ctx context.Context, photoID uuid.UUID, status models.ModerationStatus, notes, actor string) (bool, error) {
	return s.catalog.UpdateModerationStatus(ctx, photoID, status, notes, actor)
}

// ModerationHistory returns a photo's transition log.
func (s *PhotoService) ModerationHistory(ctx context.Context, photoID uuid.UUID) ([]models.ModerationLog, error) {
	return s.catalog.ModerationHistory(ctx, photoID)
}

// ContentTypeByExtension maps a stored extension to its MIME type.
func ContentTypeByExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".webp":
		return "image/webp"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
