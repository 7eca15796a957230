package statistics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all counters for one compression batch.
type Statistics struct {
	ImagesFound        int64
	ImagesProcessed    int64
	ImagesCompressed   int64
	TargetsMet         int64
	BestEffort         int64
	ImagesFailed       int64
	ImagesNotScheduled int64

	BytesIn     int64
	BytesOut    int64
	EncodeCalls int64
	LadderSteps int64

	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	ImagesPerSecond float64

	Errors []StatError

	mutex sync.RWMutex

	FormatStats map[string]int64
}

// StatError represents an error that occurred while compressing an image.
type StatError struct {
	Image     string
	Operation string
	Error     string
	Timestamp time.Time
}

// Snapshot is a point-in-time copy of the counters, safe to serialize.
type Snapshot struct {
	ImagesFound        int64   `json:"images_found"`
	ImagesProcessed    int64   `json:"images_processed"`
	ImagesCompressed   int64   `json:"images_compressed"`
	TargetsMet         int64   `json:"targets_met"`
	BestEffort         int64   `json:"best_effort"`
	ImagesFailed       int64   `json:"images_failed"`
	ImagesNotScheduled int64   `json:"images_not_scheduled"`
	BytesIn            int64   `json:"bytes_in"`
	BytesOut           int64   `json:"bytes_out"`
	EncodeCalls        int64   `json:"encode_calls"`
	SavedPercent       float64 `json:"saved_percent"`
	DurationMillis     int64   `json:"duration_ms"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:   time.Now(),
		FormatStats: make(map[string]int64),
		Errors:      make([]StatError, 0),
	}
}

// IncrementImagesFound increases the count of submitted images by 1.
func (s *Statistics) IncrementImagesFound() {
	atomic.AddInt64(&s.ImagesFound, 1)
}

// IncrementImagesFailed increases the count of failed images by 1.
func (s *Statistics) IncrementImagesFailed() {
	atomic.AddInt64(&s.ImagesProcessed, 1)
	atomic.AddInt64(&s.ImagesFailed, 1)
}

// IncrementImagesNotScheduled records an image abandoned before it started.
func (s *Statistics) IncrementImagesNotScheduled() {
	atomic.AddInt64(&s.ImagesNotScheduled, 1)
}

// RecordCompressed records one successful compression.
func (s *Statistics) RecordCompressed(format string, bytesIn, bytesOut int64, metTarget bool, encodeCalls, ladderSteps int) {
	atomic.AddInt64(&s.ImagesProcessed, 1)
	atomic.AddInt64(&s.ImagesCompressed, 1)
	if metTarget {
		atomic.AddInt64(&s.TargetsMet, 1)
	} else {
		atomic.AddInt64(&s.BestEffort, 1)
	}
	atomic.AddInt64(&s.BytesIn, bytesIn)
	atomic.AddInt64(&s.BytesOut, bytesOut)
	atomic.AddInt64(&s.EncodeCalls, int64(encodeCalls))
	atomic.AddInt64(&s.LadderSteps, int64(ladderSteps))

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FormatStats[format]++
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(image, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		Image:     image,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.ImagesProcessed)
	if s.Duration.Seconds() > 0 {
		s.ImagesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// SavedPercent returns how much smaller the outputs are than the inputs.
func (s *Statistics) SavedPercent() float64 {
	in := atomic.LoadInt64(&s.BytesIn)
	out := atomic.LoadInt64(&s.BytesOut)
	if in == 0 {
		return 0
	}
	return float64(in-out) * 100 / float64(in)
}

// Snapshot copies the counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	duration := s.Duration
	s.mutex.RUnlock()

	return Snapshot{
		ImagesFound:        atomic.LoadInt64(&s.ImagesFound),
		ImagesProcessed:    atomic.LoadInt64(&s.ImagesProcessed),
		ImagesCompressed:   atomic.LoadInt64(&s.ImagesCompressed),
		TargetsMet:         atomic.LoadInt64(&s.TargetsMet),
		BestEffort:         atomic.LoadInt64(&s.BestEffort),
		ImagesFailed:       atomic.LoadInt64(&s.ImagesFailed),
		ImagesNotScheduled: atomic.LoadInt64(&s.ImagesNotScheduled),
		BytesIn:            atomic.LoadInt64(&s.BytesIn),
		BytesOut:           atomic.LoadInt64(&s.BytesOut),
		EncodeCalls:        atomic.LoadInt64(&s.EncodeCalls),
		SavedPercent:       s.SavedPercent(),
		DurationMillis:     duration.Milliseconds(),
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	perSecond := s.ImagesPerSecond
	s.mutex.RUnlock()

	return fmt.Sprintf(`Image Compression Summary:

Images:
		Submitted: %d
		Processed: %d
		Compressed: %d
		Target Met: %d
		Best Effort: %d
		Failed: %d
		Not Scheduled: %d

Size:
		Input: %s
		Output: %s
		Saved: %.1f%%

Search:
		Encode Calls: %d
		Ladder Steps: %d

Performance:
		Duration: %v
		Images/Second: %.2f`,
		atomic.LoadInt64(&s.ImagesFound),
		atomic.LoadInt64(&s.ImagesProcessed),
		atomic.LoadInt64(&s.ImagesCompressed),
		atomic.LoadInt64(&s.TargetsMet),
		atomic.LoadInt64(&s.BestEffort),
		atomic.LoadInt64(&s.ImagesFailed),
		atomic.LoadInt64(&s.ImagesNotScheduled),
		formatBytes(atomic.LoadInt64(&s.BytesIn)),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.SavedPercent(),
		atomic.LoadInt64(&s.EncodeCalls),
		atomic.LoadInt64(&s.LadderSteps),
		duration,
		perSecond)
}

// GetFormatBreakdown returns a formatted breakdown of output formats.
func (s *Statistics) GetFormatBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FormatStats) == 0 {
		return "No format statistics available"
	}

	formats := make([]string, 0, len(s.FormatStats))
	for f := range s.FormatStats {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	result := "Output Formats:\n"
	for _, f := range formats {
		result += fmt.Sprintf("  %s: %d\n", f, s.FormatStats[f])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.Image,
			err.Error)
	}
	return result
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
