// Package codec adapts github.com/disintegration/imaging to the small
// decode/encode/resize surface the compression engine consumes.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// ErrEmptyInput is returned by Decode for a zero-length buffer.
var ErrEmptyInput = errors.New("empty image data")

// Resampler names the interpolation used by Resize.
type Resampler string

const (
	ResamplerLanczos    Resampler = "lanczos"
	ResamplerCatmullRom Resampler = "catmullrom"
)

// ParseResampler validates a configured resampler name.
func ParseResampler(name string) (Resampler, error) {
	switch r := Resampler(strings.ToLower(strings.TrimSpace(name))); r {
	case "", ResamplerLanczos:
		return ResamplerLanczos, nil
	case ResamplerCatmullRom:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resampler: %s (valid: lanczos, catmullrom)", name)
	}
}

// Source is a decoded input image together with what is known about the
// bytes it came from.
type Source struct {
	Image  image.Image
	Format Format
	Width  int
	Height int
	// Size is the byte length of the encoded input.
	Size int64
}

// Options configures an ImagingCodec.
type Options struct {
	Resampler  Resampler
	AutoOrient bool
	// PNGLevels overrides DefaultPNGLevels when non-empty.
	PNGLevels []png.CompressionLevel
}

// ImagingCodec is the default codec backed by imaging and x/image.
type ImagingCodec struct {
	resampler  Resampler
	autoOrient bool
	encodings  map[Format]Encoding
}

// NewImagingCodec creates a codec with the given options.
func NewImagingCodec(opts Options) *ImagingCodec {
	levels := opts.PNGLevels
	if len(levels) == 0 {
		levels = DefaultPNGLevels
	}
	resampler := opts.Resampler
	if resampler == "" {
		resampler = ResamplerLanczos
	}
	return &ImagingCodec{
		resampler:  resampler,
		autoOrient: opts.AutoOrient,
		encodings: map[Format]Encoding{
			FormatJPEG: jpegEncoding{},
			FormatPNG:  pngEncoding{levels: levels},
		},
	}
}

// Decode parses an encoded image, detects its format and, when enabled,
// applies the EXIF orientation of JPEG sources. Width and Height are the
// upright dimensions.
func (c *ImagingCodec) Decode(data []byte) (*Source, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(c.autoOrient))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	b := img.Bounds()
	return &Source{
		Image:  img,
		Format: FormatFromName(name),
		Width:  b.Dx(),
		Height: b.Dy(),
		Size:   int64(len(data)),
	}, nil
}

// DetectFormat reports the output format matching an encoded buffer
// without decoding pixels.
func (c *ImagingCodec) DetectFormat(data []byte) (Format, error) {
	if len(data) == 0 {
		return FormatUnknown, ErrEmptyInput
	}
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return FormatUnknown, fmt.Errorf("decode config: %w", err)
	}
	return FormatFromName(name), nil
}

// Encoding returns the encoding variant for f.
func (c *ImagingCodec) Encoding(f Format) (Encoding, error) {
	enc, ok := c.encodings[f]
	if !ok {
		return nil, fmt.Errorf("no encoding for format %s", f)
	}
	return enc, nil
}

// Resize scales img to exactly width x height.
func (c *ImagingCodec) Resize(img image.Image, width, height int) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("resize: nil image")
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("resize: invalid dimensions %dx%d", width, height)
	}
	switch c.resampler {
	case ResamplerCatmullRom:
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		return dst, nil
	default:
		return imaging.Resize(img, width, height, imaging.Lanczos), nil
	}
}
