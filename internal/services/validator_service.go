package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/galleria/backend/internal/config"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// ValidationResult describes an accepted upload: the detected format, the
// original pixel dimensions and any non-fatal warnings.
type ValidationResult struct {
	Format   string // "jpeg" | "png" | "gif" | "webp"
	Width    int
	Height   int
	Warnings []string
}

// ValidatorService inspects raw upload bytes before any expensive work.
// Pure: it never mutates its input and has no side effects.
type ValidatorService struct {
	cfg *config.Config
}

func NewValidatorService(cfg *config.Config) *ValidatorService {
	return &ValidatorService{cfg: cfg}
}

// ValidateUpload checks size, extension, decodability and minimum dimensions.
// Oversized payloads are rejected before any decode attempt. Returns a
// *ValidationError on rejection.
func (s *ValidatorService) ValidateUpload(data []byte, filename string) (*ValidationResult, error) {
	if int64(len(data)) > s.cfg.UploadMaxImageSize {
		return nil, &ValidationError{Problems: []string{
			fmt.Sprintf("file too large: %d bytes (max %d)", len(data), s.cfg.UploadMaxImageSize),
		}}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, &ValidationError{Problems: []string{
			fmt.Sprintf("unsupported file extension %q (allowed: jpg, jpeg, png, webp)", ext),
		}}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Problems: []string{
			"content is not a decodable image",
		}}
	}

	// Warnings are computed before the dimension gate so that a rejection
	// still carries everything noticed about the upload.
	var warnings []string

	if cfg.Width > s.cfg.VeryLargeDimension || cfg.Height > s.cfg.VeryLargeDimension {
		warnings = append(warnings,
			fmt.Sprintf("very large image (%dx%d), will be downsized", cfg.Width, cfg.Height))
	}

	if cfg.Height > 0 {
		ratio := float64(cfg.Width) / float64(cfg.Height)
		if ratio > 3.0 || ratio < 1.0/3.0 {
			warnings = append(warnings,
				fmt.Sprintf("extreme aspect ratio %.2f", ratio))
		}
	}

	if !formatMatchesExtension(format, ext) {
		warnings = append(warnings,
			fmt.Sprintf("detected format %q does not match extension %q", format, ext))
	}

	if cfg.Width < s.cfg.MinImageDimension || cfg.Height < s.cfg.MinImageDimension {
		return nil, &ValidationError{
			Problems: []string{
				fmt.Sprintf("dimensions too small: %dx%d (minimum %d px on each axis)",
					cfg.Width, cfg.Height, s.cfg.MinImageDimension),
			},
			Warnings: warnings,
		}
	}

	return &ValidationResult{Format: format, Width: cfg.Width, Height: cfg.Height, Warnings: warnings}, nil
}

func formatMatchesExtension(format, ext string) bool {
	switch format {
	case "jpeg":
		return ext == ".jpg" || ext == ".jpeg"
	case "png":
		return ext == ".png"
	case "webp":
		return ext == ".webp"
	default:
		return false
	}
}
