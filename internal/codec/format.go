package codec

import "strings"

// Format is a concrete output encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
)

// String returns the canonical upper-case name of the format.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "JPEG"
	case FormatPNG:
		return "PNG"
	default:
		return "Unknown"
	}
}

// Extension returns the file extension written for outputs of this format.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	default:
		return ""
	}
}

// FormatFromName maps a decoder name reported by image.DecodeConfig onto an
// output format. Only PNG keeps its own encoding; every other raster source
// is re-encoded as JPEG.
func FormatFromName(name string) Format {
	switch strings.ToLower(name) {
	case "":
		return FormatUnknown
	case "png":
		return FormatPNG
	default:
		return FormatJPEG
	}
}
