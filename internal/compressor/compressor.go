package compressor

import (
	"fmt"
	"image"
	"math"
	"strings"

	"imagecompress-go/internal/codec"
)

const (
	DefaultMinQuality = 25
	DefaultMaxQuality = 95
)

// OutputFormat is the encoding requested by the caller.
type OutputFormat string

const (
	OutputOriginal OutputFormat = "original"
	OutputJPEG     OutputFormat = "jpg"
	OutputPNG      OutputFormat = "png"
)

// ParseOutputFormat accepts "original", "jpg", "jpeg" and "png" in any case.
// An empty string means original.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original":
		return OutputOriginal, nil
	case "jpg", "jpeg":
		return OutputJPEG, nil
	case "png":
		return OutputPNG, nil
	default:
		return "", NewUnsupportedFormatError(s)
	}
}

// Resolve returns the concrete format to encode, mapping original onto the
// detected source format.
func (o OutputFormat) Resolve(source codec.Format) (codec.Format, error) {
	switch o {
	case OutputJPEG:
		return codec.FormatJPEG, nil
	case OutputPNG:
		return codec.FormatPNG, nil
	case OutputOriginal, "":
		if source == codec.FormatUnknown {
			return codec.FormatUnknown, NewUnsupportedFormatError(source.String())
		}
		return source, nil
	default:
		return codec.FormatUnknown, NewUnsupportedFormatError(string(o))
	}
}

// TargetBytesFromKB converts a kilobyte target into whole bytes.
func TargetBytesFromKB(kb float64) int64 {
	return int64(math.Floor(kb * 1024))
}

// Request is the immutable input of one compression.
type Request struct {
	Source      *codec.Source
	TargetBytes int64
	Format      OutputFormat
	// MinQuality and MaxQuality bound the abstract quality scale. Both zero
	// selects DefaultMinQuality and DefaultMaxQuality.
	MinQuality int
	MaxQuality int
}

func (r Request) withDefaults() Request {
	if r.MinQuality == 0 && r.MaxQuality == 0 {
		r.MinQuality = DefaultMinQuality
		r.MaxQuality = DefaultMaxQuality
	}
	return r
}

// Validate rejects requests that can never be searched. Checks run in the
// order decode, target, bounds.
func (r Request) Validate() error {
	if r.Source == nil || r.Source.Image == nil || r.Source.Size <= 0 {
		return NewDecodeError(errMissingSource)
	}
	if r.TargetBytes <= 0 {
		return NewInvalidTargetError(r.TargetBytes)
	}
	if r.MinQuality <= 0 || r.MaxQuality > 100 || r.MinQuality > r.MaxQuality {
		return NewInvalidBoundsError(r.MinQuality, r.MaxQuality)
	}
	return nil
}

// Candidate is one measured trial point.
type Candidate struct {
	Quality int
	Scale   float64
	Width   int
	Height  int
	Data    []byte
	// Met reports whether len(Data) fits the target.
	Met bool
}

// Size returns the encoded byte length.
func (c Candidate) Size() int {
	return len(c.Data)
}

// Result is the final outcome of compressing one image.
type Result struct {
	Quality        int
	Scale          float64
	Width          int
	Height         int
	Format         codec.Format
	Data           []byte
	SizeKB         float64
	TargetKB       float64
	MetTarget      bool
	OriginalSizeKB float64
	OriginalWidth  int
	OriginalHeight int
	// EncodeCalls counts codec encode invocations spent on this image.
	EncodeCalls int
	// LadderSteps counts reduced resolutions tried; zero when full
	// resolution met the target.
	LadderSteps int
}

// ScaleFactor returns Scale rounded to one decimal place for reporting.
func (r *Result) ScaleFactor() float64 {
	return math.Round(r.Scale*10) / 10
}

// Resolution formats the final dimensions as WxH.
func (r *Result) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// OriginalResolution formats the source dimensions as WxH.
func (r *Result) OriginalResolution() string {
	return fmt.Sprintf("%dx%d", r.OriginalWidth, r.OriginalHeight)
}

// Codec is the encode/resize capability the engine drives.
type Codec interface {
	Encoding(f codec.Format) (codec.Encoding, error)
	Resize(img image.Image, width, height int) (image.Image, error)
}

// Compressor defines the interface for size-targeted compression.
type Compressor interface {
	// Compress finds the highest quality, largest resolution encoding of the
	// request's source that fits its target size.
	Compress(req Request) (*Result, error)
}
