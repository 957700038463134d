package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModerationStatus is the review state of a photo. New photos start as
// AutoApproved or PendingReview depending on their quality score; Approved
// and Rejected are only reachable through a moderation update.
type ModerationStatus string

const (
	StatusAutoApproved  ModerationStatus = "auto_approved"
	StatusPendingReview ModerationStatus = "pending_review"
	StatusApproved      ModerationStatus = "approved"
	StatusRejected      ModerationStatus = "rejected"
)

func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusAutoApproved, StatusPendingReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Tier is one of the derived renditions of a photo. Blurred is the privacy
// rendition: same size as medium, heavily blurred, for viewers who may know a
// photo exists without seeing it.
type Tier string

const (
	TierFull      Tier = "full"
	TierMedium    Tier = "medium"
	TierThumbnail Tier = "thumbnail"
	TierBlurred   Tier = "blurred"
)

// Tiers lists every rendition stored per photo.
var Tiers = []Tier{TierFull, TierMedium, TierThumbnail, TierBlurred}

func (t Tier) Valid() bool {
	switch t {
	case TierFull, TierMedium, TierThumbnail, TierBlurred:
		return true
	}
	return false
}

// Suffix returns the filename suffix for the tier. The full tier is stored
// under the base name itself.
func (t Tier) Suffix() string {
	switch t {
	case TierMedium:
		return "_medium"
	case TierThumbnail:
		return "_thumb"
	case TierBlurred:
		return "_blurred"
	default:
		return ""
	}
}

// TierFileName derives a tier-specific filename from the stored base name by
// inserting the tier suffix before the extension.
func TierFileName(storedName string, tier Tier) string {
	suffix := tier.Suffix()
	if suffix == "" {
		return storedName
	}
	ext := path.Ext(storedName)
	return strings.TrimSuffix(storedName, ext) + suffix + ext
}

// Photo is one uploaded image with its derived tiers and gallery metadata.
// Binary artifacts live in the artifact store under the owner's namespace;
// the catalog row references them through StoredName.
type Photo struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_photos_owner_order,priority:1;index:idx_photos_owner_primary,priority:1" json:"owner_id"`

	OriginalFilename string `gorm:"size:255" json:"original_filename"`
	StoredName       string `gorm:"size:255;not null;uniqueIndex" json:"stored_name"`
	Extension        string `gorm:"size:16" json:"extension"`
	SizeBytes        int64  `json:"size_bytes"`
	ContentHash      string `gorm:"size:64;index" json:"content_hash,omitempty"`

	// Dimensions of the stored full-size tier, always > 0.
	Width  int `gorm:"not null" json:"width"`
	Height int `gorm:"not null" json:"height"`

	DisplayOrder int  `gorm:"not null;index:idx_photos_owner_order,priority:2" json:"display_order"`
	IsPrimary    bool `gorm:"default:false;index:idx_photos_owner_primary,priority:2" json:"is_primary"`

	IsDeleted bool       `gorm:"default:false;index:idx_photos_owner_order,priority:3;index:idx_photos_owner_primary,priority:3" json:"-"`
	DeletedAt *time.Time `json:"-"`

	ModerationStatus ModerationStatus `gorm:"size:32;not null;index:idx_photos_status_created,priority:1" json:"moderation_status"`
	ModerationNotes  string           `gorm:"size:1000" json:"moderation_notes,omitempty"`
	QualityScore     *int             `json:"quality_score,omitempty"`
	ModeratedAt      *time.Time       `json:"moderated_at,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_photos_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Photo) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TierName returns the stored filename of one of the photo's tiers.
func (p *Photo) TierName(tier Tier) string {
	return TierFileName(p.StoredName, tier)
}

// ModerationLog records one moderation transition. Append-only, removed only
// when the photo itself is hard-deleted.
type ModerationLog struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	PhotoID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"photo_id"`
	PreviousStatus ModerationStatus `gorm:"size:32" json:"previous_status"`
	NewStatus      ModerationStatus `gorm:"size:32" json:"new_status"`
	Actor          string           `gorm:"size:255" json:"actor"`
	Reason         string           `gorm:"size:1000" json:"reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`

	Photo Photo `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE" json:"-"`
}

func (m *ModerationLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
