package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/galleria/backend/internal/config"
	"github.com/galleria/backend/internal/models"
)

// testConfig returns a config with the production defaults for limits and
// tier bounds, pointed at a per-test storage root.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LocalAssetsPath:     t.TempDir(),
		UploadMaxImageSize:  10 * 1024 * 1024,
		MinImageDimension:   100,
		VeryLargeDimension:  4000,
		MaxPhotosPerUser:    6,
		UploadMaxConcurrent: 3,
		FullMaxDimension:    800,
		FullMaxPixels:       1_000_000,
		FullMinDimension:    200,
		MediumSize:          400,
		ThumbnailSize:       150,
		BlurSigma:           12,
		JPEGQuality:         90,
		WebPQuality:         90,
		AutoApproveScore:    70,
	}
}

// testDB opens an isolated in-memory database and migrates the schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// gradient fills an image with per-pixel variation so JPEG output has
// realistic entropy.
func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: uint8(((x + y) * 255) / (width + height)),
				A: 255,
			})
		}
	}
	return img
}

func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(width, height), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(width, height)); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// countPrimaries returns the number of active primary photos for an owner.
func countPrimaries(t *testing.T, db *gorm.DB, ownerID interface{}) int64 {
	t.Helper()
	var count int64
	err := db.Model(&models.Photo{}).
		Where("owner_id = ? AND is_primary = ? AND is_deleted = ?", ownerID, true, false).
		Count(&count).Error
	assertNoError(t, err)
	return count
}
