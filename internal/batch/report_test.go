package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"imagecompress-go/internal/codec"
	"imagecompress-go/internal/compressor"
)

func TestNewReportSuccess(t *testing.T) {
	e := Entry{
		Success: true,
		Result: &compressor.Result{
			Quality:        85,
			Scale:          0.6000000001,
			Width:          2400,
			Height:         1800,
			Format:         codec.FormatJPEG,
			SizeKB:         199.72656,
			MetTarget:      true,
			OriginalSizeKB: 1500.004,
			OriginalWidth:  4000,
			OriginalHeight: 3000,
		},
	}

	r := NewReport(e, "photo.jpg", "Photo.JPG")
	assert.Equal(t, "photo.jpg", r.Filename)
	assert.Equal(t, "Photo.JPG", r.OriginalFilename)
	assert.True(t, r.Success)
	assert.Equal(t, 199.73, r.FinalSizeKB)
	assert.Equal(t, 1500.0, r.OriginalSizeKB)
	assert.Equal(t, "2400x1800", r.FinalResolution)
	assert.Equal(t, "4000x3000", r.OriginalResolution)
	assert.Equal(t, 0.6, r.ScaleFactor)
	assert.Equal(t, 85, r.QualityUsed)
	assert.Equal(t, "JPEG", r.OutputFormat)
	assert.True(t, r.MetTarget)
	assert.Empty(t, r.Error)
}

func TestNewReportFailure(t *testing.T) {
	r := NewReport(Entry{Error: errors.New("bad data")}, "x.png", "x.png")
	assert.False(t, r.Success)
	assert.Equal(t, "bad data", r.Error)
	assert.Zero(t, r.QualityUsed)
}
