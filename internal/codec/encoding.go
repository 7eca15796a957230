package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
)

// Encoding is one output format variant. It owns the mapping from the
// abstract quality scale onto its native encoder parameter, so search code
// never branches on the format.
type Encoding interface {
	Format() Format
	// NativeParam maps quality in [minQuality, maxQuality] onto the
	// encoder's own parameter range.
	NativeParam(quality, minQuality, maxQuality int) int
	// Encode produces the encoded bytes for img at the native parameter.
	Encode(img image.Image, native int) ([]byte, error)
}

// DefaultPNGLevels orders zlib effort from most to least compression. Index
// 0 is used at the quality floor, the last entry at the ceiling. PNG is
// lossless, so the table stops at BestSpeed: storing uncompressed only
// inflates the output.
var DefaultPNGLevels = []png.CompressionLevel{
	png.BestCompression,
	png.DefaultCompression,
	png.BestSpeed,
}

type jpegEncoding struct{}

func (jpegEncoding) Format() Format { return FormatJPEG }

func (jpegEncoding) NativeParam(quality, _, _ int) int {
	return clamp(quality, 1, 100)
}

func (jpegEncoding) Encode(img image.Image, native int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(clamp(native, 1, 100))); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

type pngEncoding struct {
	levels []png.CompressionLevel
}

func (pngEncoding) Format() Format { return FormatPNG }

func (e pngEncoding) NativeParam(quality, minQuality, maxQuality int) int {
	nativeMax := len(e.levels) - 1
	if nativeMax <= 0 {
		return 0
	}
	if maxQuality <= minQuality {
		return nativeMax
	}
	q := clamp(quality, minQuality, maxQuality)
	ratio := float64(q-minQuality) / float64(maxQuality-minQuality)
	return int(math.Round(ratio * float64(nativeMax)))
}

func (e pngEncoding) Encode(img image.Image, native int) ([]byte, error) {
	if len(e.levels) == 0 {
		return nil, fmt.Errorf("png encode: no compression levels configured")
	}
	level := e.levels[clamp(native, 0, len(e.levels)-1)]
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(level)); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten composites a non-opaque image onto white. JPEG has no alpha.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
