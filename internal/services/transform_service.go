package services

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/galleria/backend/internal/config"
)

// ProcessedImage holds the encoded renditions of an upload plus everything
// the catalog needs to describe them. Medium and thumbnail are derived from
// the processed full tier, never from the original; blurred is the privacy
// rendition derived from the medium tier.
type ProcessedImage struct {
	Full      []byte
	Medium    []byte
	Thumbnail []byte
	Blurred   []byte

	FullWidth, FullHeight           int
	MediumWidth, MediumHeight       int
	ThumbnailWidth, ThumbnailHeight int

	OutputFormat string // "jpeg" | "png" | "webp"
	Extension    string // ".jpg" | ".png" | ".webp"
	Resized      bool   // whether the full tier required downscaling
	QualityScore int
}

// TransformService decodes a validated image, derives the display tiers and
// the blurred privacy rendition, and scores the result. Any decode/encode
// failure aborts the whole transform; no partial buffers are ever returned.
type TransformService struct {
	cfg    *config.Config
	scorer Scorer
}

func NewTransformService(cfg *config.Config, scorer Scorer) *TransformService {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return &TransformService{cfg: cfg, scorer: scorer}
}

// Process produces the full, medium, thumbnail and blurred renditions from a
// decodable image. srcFormat is the format detected by the validator.
func (s *TransformService) Process(data []byte, srcFormat string) (*ProcessedImage, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ProcessingError{Err: fmt.Errorf("decode: %w", err)}
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, &ProcessingError{Err: fmt.Errorf("decoded image has empty bounds")}
	}

	targetW, targetH, resized := s.targetSize(width, height)

	full := src
	if resized {
		full = imaging.Resize(src, targetW, targetH, imaging.Lanczos)
	}

	// Medium and thumbnail come from the already-processed full tier. Fit
	// never upscales beyond its source. The blurred privacy rendition is the
	// medium tier put through a strong gaussian blur.
	medium := imaging.Fit(full, s.cfg.MediumSize, s.cfg.MediumSize, imaging.Lanczos)
	thumb := imaging.Fit(full, s.cfg.ThumbnailSize, s.cfg.ThumbnailSize, imaging.Lanczos)
	blurred := imaging.Blur(medium, s.cfg.BlurSigma)

	outFormat, ext := outputFormat(srcFormat)

	fullBytes, err := s.encode(full, outFormat)
	if err != nil {
		return nil, &ProcessingError{Err: fmt.Errorf("encode full tier: %w", err)}
	}
	mediumBytes, err := s.encode(medium, outFormat)
	if err != nil {
		return nil, &ProcessingError{Err: fmt.Errorf("encode medium tier: %w", err)}
	}
	thumbBytes, err := s.encode(thumb, outFormat)
	if err != nil {
		return nil, &ProcessingError{Err: fmt.Errorf("encode thumbnail tier: %w", err)}
	}
	blurredBytes, err := s.encode(blurred, outFormat)
	if err != nil {
		return nil, &ProcessingError{Err: fmt.Errorf("encode blurred rendition: %w", err)}
	}

	fb, mb, tb := full.Bounds(), medium.Bounds(), thumb.Bounds()
	result := &ProcessedImage{
		Full:            fullBytes,
		Medium:          mediumBytes,
		Thumbnail:       thumbBytes,
		Blurred:         blurredBytes,
		FullWidth:       fb.Dx(),
		FullHeight:      fb.Dy(),
		MediumWidth:     mb.Dx(),
		MediumHeight:    mb.Dy(),
		ThumbnailWidth:  tb.Dx(),
		ThumbnailHeight: tb.Dy(),
		OutputFormat:    outFormat,
		Extension:       ext,
		Resized:         resized,
	}

	result.QualityScore = s.scorer.Score(ScoreInput{
		Width:        result.FullWidth,
		Height:       result.FullHeight,
		SizeBytes:    len(fullBytes),
		SourceFormat: srcFormat,
	})

	return result, nil
}

// targetSize computes the full-tier dimensions. Originals that fit within
// both the long-edge bound and the pixel-count bound keep their size; larger
// images scale down uniformly, with a minimum-dimension floor re-applied
// afterwards so aggressive pixel budgets cannot produce unusably small
// output. The floor only ever claws back downscaling: the result never
// exceeds the original on either axis, so extreme-aspect inputs come back at
// original size rather than upscaled.
func (s *TransformService) targetSize(width, height int) (int, int, bool) {
	maxDim := s.cfg.FullMaxDimension
	maxPixels := s.cfg.FullMaxPixels
	minDim := s.cfg.FullMinDimension

	longEdge := width
	if height > longEdge {
		longEdge = height
	}
	if longEdge <= maxDim && width*height <= maxPixels {
		return width, height, false
	}

	scale := math.Min(float64(maxDim)/float64(width), float64(maxDim)/float64(height))
	pixelScale := math.Sqrt(float64(maxPixels) / float64(width*height))
	if pixelScale < scale {
		scale = pixelScale
	}

	newW := int(math.Round(float64(width) * scale))
	newH := int(math.Round(float64(height) * scale))

	if newW < minDim || newH < minDim {
		up := math.Max(float64(minDim)/float64(newW), float64(minDim)/float64(newH))
		maxUp := math.Min(float64(width)/float64(newW), float64(height)/float64(newH))
		if up > maxUp {
			up = maxUp
		}
		newW = int(math.Round(float64(newW) * up))
		newH = int(math.Round(float64(newH) * up))
	}

	if newW > width {
		newW = width
	}
	if newH > height {
		newH = height
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	if newW == width && newH == height {
		return width, height, false
	}
	return newW, newH, true
}

// outputFormat normalizes the source format: PNG keeps its transparency,
// WebP stays WebP, everything else becomes JPEG.
func outputFormat(srcFormat string) (format, ext string) {
	switch srcFormat {
	case "png":
		return "png", ".png"
	case "webp":
		return "webp", ".webp"
	default:
		return "jpeg", ".jpg"
	}
}

func (s *TransformService) encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
			return nil, err
		}
	case "webp":
		return s.encodeWebP(img)
	default:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.cfg.JPEGQuality)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// encodeWebP shells out to the cwebp CLI tool (no CGO required). The image
// is staged as a lossless PNG in a temp directory, converted in best-quality
// mode, and read back.
func (s *TransformService) encodeWebP(img image.Image) ([]byte, error) {
	dir, err := os.MkdirTemp("", "webp-encode-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	name := uuid.New().String()
	pngPath := filepath.Join(dir, name+".png")
	webpPath := filepath.Join(dir, name+".webp")

	if err := imaging.Save(imaging.Clone(img), pngPath); err != nil {
		return nil, fmt.Errorf("stage png for cwebp: %w", err)
	}

	// -m 6 = slowest/best compression method
	cmd := exec.Command("cwebp", "-q", fmt.Sprintf("%d", s.cfg.WebPQuality), "-m", "6", "-quiet", pngPath, "-o", webpPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("cwebp conversion failed: %w, output: %s", err, string(output))
	}

	return os.ReadFile(webpPath)
}
