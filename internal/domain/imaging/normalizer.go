// Package imaging canonicalizes inbound images entirely in memory: decode
// validation, a deterministic centered crop to a target aspect policy, and
// re-encoding to JPEG.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagevault/internal/config"
)

// Normalizer crops to an orientation-aware target aspect ratio and encodes
// to the canonical output format. It is a pure function of its inputs.
type Normalizer struct {
	landscapeRatio float64
	portraitRatio  float64
	quality        int
}

// NewNormalizer parses the configured aspect policies.
func NewNormalizer(cfg *config.Config) (*Normalizer, error) {
	landscape, err := ParseAspect(cfg.LandscapeAspect)
	if err != nil {
		return nil, fmt.Errorf("parse IMAGE_LANDSCAPE_ASPECT: %w", err)
	}
	portrait, err := ParseAspect(cfg.PortraitAspect)
	if err != nil {
		return nil, fmt.Errorf("parse IMAGE_PORTRAIT_ASPECT: %w", err)
	}
	return &Normalizer{
		landscapeRatio: landscape,
		portraitRatio:  portrait,
		quality:        cfg.JPEGQuality,
	}, nil
}

// ParseAspect converts a "W:H" string into a width/height ratio.
func ParseAspect(value string) (float64, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("aspect ratio %q must look like 16:9", value)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, fmt.Errorf("aspect ratio %q has invalid width", value)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, fmt.Errorf("aspect ratio %q has invalid height", value)
	}
	return float64(w) / float64(h), nil
}

// Validate fails when the bytes do not decode as a well-formed image.
func (n *Normalizer) Validate(data []byte) error {
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}

// Normalize decodes, crops and re-encodes to canonical JPEG bytes.
func (n *Normalizer) Normalize(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return n.Encode(n.Crop(img))
}

// Crop applies the centered crop policy. Landscape and square inputs keep
// their height and shed width toward the landscape target ratio; portrait
// inputs keep their width and shed height toward the portrait target. An
// input already tighter than its target is returned at original dimensions.
func (n *Normalizer) Crop(img image.Image) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var newWidth, newHeight int
	if width >= height {
		newHeight = height
		newWidth = int(float64(height) * n.landscapeRatio)
		if newWidth > width {
			newWidth = width
		}
	} else {
		newWidth = width
		newHeight = int(float64(width) / n.portraitRatio)
		if newHeight > height {
			newHeight = height
		}
	}

	if newWidth == width && newHeight == height {
		return img
	}

	left := bounds.Min.X + (width-newWidth)/2
	top := bounds.Min.Y + (height-newHeight)/2
	rect := image.Rect(left, top, left+newWidth, top+newHeight)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	// Formats without SubImage support get copied through an RGBA buffer.
	out := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			out.Set(x, y, img.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return out
}

// Encode writes the canonical lossy output format.
func (n *Normalizer) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
