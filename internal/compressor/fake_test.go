package compressor

import (
	"errors"
	"image"
	"image/color"
	"io"

	"github.com/sirupsen/logrus"

	"imagecompress-go/internal/codec"
)

// blankImage reports dimensions without allocating pixels.
type blankImage struct{ w, h int }

func (b blankImage) ColorModel() color.Model { return color.GrayModel }
func (b blankImage) Bounds() image.Rectangle { return image.Rect(0, 0, b.w, b.h) }
func (b blankImage) At(x, y int) color.Color { return color.Gray{} }

type encodeCall struct {
	width, height, native int
}

type sizeFunc func(w, h, native int) int

// affineSize grows linearly with pixel count and quality. Its constants put
// a 4000x3000 image at 200 KB exactly at scale 0.6, quality 85.
func affineSize(w, h, q int) int {
	return int(int64(w) * int64(h) * int64(q+200) / 6020)
}

// fakeCodec is a scripted codec whose encoded size is a pure function of
// dimensions and native parameter.
type fakeCodec struct {
	size    sizeFunc
	failAt  int
	encodes []encodeCall
	resizes []image.Point
	formats []codec.Format
}

func newFakeCodec(size sizeFunc) *fakeCodec {
	return &fakeCodec{size: size}
}

func (f *fakeCodec) Encoding(fm codec.Format) (codec.Encoding, error) {
	if fm == codec.FormatUnknown {
		return nil, errors.New("unknown format")
	}
	f.formats = append(f.formats, fm)
	return &fakeEncoding{codec: f, format: fm}, nil
}

func (f *fakeCodec) Resize(img image.Image, width, height int) (image.Image, error) {
	f.resizes = append(f.resizes, image.Pt(width, height))
	return blankImage{w: width, h: height}, nil
}

type fakeEncoding struct {
	codec  *fakeCodec
	format codec.Format
}

func (e *fakeEncoding) Format() codec.Format { return e.format }

func (e *fakeEncoding) NativeParam(quality, _, _ int) int { return quality }

func (e *fakeEncoding) Encode(img image.Image, native int) ([]byte, error) {
	b := img.Bounds()
	e.codec.encodes = append(e.codec.encodes, encodeCall{b.Dx(), b.Dy(), native})
	if e.codec.failAt != 0 && native == e.codec.failAt {
		return nil, errors.New("encoder exploded")
	}
	data := make([]byte, e.codec.size(b.Dx(), b.Dy(), native))
	for i := range data {
		data[i] = byte(native + i)
	}
	return data, nil
}

func source(w, h int, sizeKB float64, f codec.Format) *codec.Source {
	return &codec.Source{
		Image:  blankImage{w: w, h: h},
		Format: f,
		Width:  w,
		Height: h,
		Size:   int64(sizeKB * 1024),
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
