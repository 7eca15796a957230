package batch

import (
	"math"
)

// Report is the serializable per-image record returned to clients.
type Report struct {
	Filename           string  `json:"filename"`
	OriginalFilename   string  `json:"original_filename"`
	Success            bool    `json:"success"`
	Error              string  `json:"error,omitempty"`
	OriginalSizeKB     float64 `json:"original_size_kb,omitempty"`
	OriginalResolution string  `json:"original_resolution,omitempty"`
	FinalSizeKB        float64 `json:"final_size_kb,omitempty"`
	FinalResolution    string  `json:"final_resolution,omitempty"`
	QualityUsed        int     `json:"quality_used,omitempty"`
	ScaleFactor        float64 `json:"scale_factor,omitempty"`
	OutputFormat       string  `json:"output_format,omitempty"`
	MetTarget          bool    `json:"met_target"`
}

// NewReport builds the client record for e. filename is the name the output
// was stored under, originalFilename the name it was uploaded with.
func NewReport(e Entry, filename, originalFilename string) Report {
	r := Report{
		Filename:         filename,
		OriginalFilename: originalFilename,
		Success:          e.Success,
	}
	if e.Error != nil {
		r.Error = e.Error.Error()
	}
	if res := e.Result; res != nil {
		r.OriginalSizeKB = round2(res.OriginalSizeKB)
		r.OriginalResolution = res.OriginalResolution()
		r.FinalSizeKB = round2(res.SizeKB)
		r.FinalResolution = res.Resolution()
		r.QualityUsed = res.Quality
		r.ScaleFactor = res.ScaleFactor()
		r.OutputFormat = res.Format.String()
		r.MetTarget = res.MetTarget
	}
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
