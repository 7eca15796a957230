// Package batch applies the compression engine to every image of an upload,
// isolating failures and preserving submission order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"imagecompress-go/internal/codec"
	"imagecompress-go/internal/compressor"
	"imagecompress-go/internal/logger"
	"imagecompress-go/internal/statistics"
)

// ErrNotScheduled marks images abandoned because the batch context ended
// before a worker picked them up.
var ErrNotScheduled = errors.New("image not scheduled")

// Item is one submitted image.
type Item struct {
	Name string
	Data []byte
}

// Options are the compression settings shared by every image in a batch.
type Options struct {
	TargetKB   float64
	Format     compressor.OutputFormat
	MinQuality int
	MaxQuality int
}

// Entry is the outcome for one Item. Index is its submission position.
type Entry struct {
	Index      int
	Name       string
	Success    bool
	Error      error
	Result     *compressor.Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// Decoder turns uploaded bytes into a decoded source image.
type Decoder interface {
	Decode(data []byte) (*codec.Source, error)
}

// ProgressFunc is called once per finished entry. It may be called from
// several workers at once.
type ProgressFunc func(entry Entry, completed, total int)

// Config configures a Runner.
type Config struct {
	// Workers bounds concurrent compressions; zero means runtime.NumCPU().
	Workers int
	// AllowExtension reports whether a lower-cased file extension may be
	// compressed. Nil accepts every name.
	AllowExtension func(ext string) bool
	OnEntry        ProgressFunc
}

// Runner is the batch runner.
type Runner struct {
	decoder  Decoder
	engine   compressor.Compressor
	log      *logrus.Logger
	workers  int
	allowExt func(ext string) bool
	onEntry  ProgressFunc
}

// NewRunner creates a Runner.
func NewRunner(decoder Decoder, engine compressor.Compressor, log *logrus.Logger, cfg Config) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{
		decoder:  decoder,
		engine:   engine,
		log:      log,
		workers:  workers,
		allowExt: cfg.AllowExtension,
		onEntry:  cfg.OnEntry,
	}
}

// Run compresses every item and returns one entry per item in submission
// order. Once ctx is done, workers stop picking up new items; images already
// being searched run to completion.
func (r *Runner) Run(ctx context.Context, items []Item, opts Options) ([]Entry, *statistics.Statistics) {
	stats := statistics.NewStatistics()
	if len(items) == 0 {
		stats.Finalize()
		return nil, stats
	}

	type result struct {
		index int
		entry Entry
	}

	jobs := make(chan int, len(items))
	results := make(chan result, len(items))
	total := len(items)
	var completed int64

	numWorkers := min(r.workers, total)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				var e Entry
				if err := ctx.Err(); err != nil {
					e = r.notScheduled(i, items[i], err, stats)
				} else {
					e = r.processOne(i, items[i], opts, stats)
				}
				if r.onEntry != nil {
					r.onEntry(e, int(atomic.AddInt64(&completed, 1)), total)
				}
				results <- result{index: i, entry: e}
			}
		}()
	}

	for i := range items {
		stats.IncrementImagesFound()
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	entries := make([]Entry, total)
	for res := range results {
		entries[res.index] = res.entry
	}

	stats.Finalize()
	return entries, stats
}

func (r *Runner) notScheduled(index int, item Item, cause error, stats *statistics.Statistics) Entry {
	now := time.Now()
	err := fmt.Errorf("%w: %v", ErrNotScheduled, cause)
	stats.IncrementImagesNotScheduled()
	stats.AddError(item.Name, "schedule", err.Error())
	logger.WithImage(r.log, item.Name).Warn("Batch ended before image was scheduled")
	return Entry{Index: index, Name: item.Name, Error: err, StartedAt: now, FinishedAt: now}
}

// processOne compresses a single item and returns its entry.
func (r *Runner) processOne(index int, item Item, opts Options, stats *statistics.Statistics) Entry {
	e := Entry{Index: index, Name: item.Name, StartedAt: time.Now()}
	log := logger.WithImage(r.log, item.Name)

	fail := func(operation string, err error) Entry {
		e.Error = err
		e.FinishedAt = time.Now()
		stats.IncrementImagesFailed()
		stats.AddError(item.Name, operation, err.Error())
		log.WithField("operation", operation).Errorf("Failed to compress: %v", err)
		return e
	}

	if r.allowExt != nil {
		ext := strings.ToLower(filepath.Ext(item.Name))
		if !r.allowExt(ext) {
			return fail("validate", compressor.NewUnsupportedFormatError(fmt.Sprintf("extension %q", ext)))
		}
	}

	src, err := r.decoder.Decode(item.Data)
	if err != nil {
		return fail("decode", compressor.NewDecodeError(err))
	}

	res, err := r.engine.Compress(compressor.Request{
		Source:      src,
		TargetBytes: compressor.TargetBytesFromKB(opts.TargetKB),
		Format:      opts.Format,
		MinQuality:  opts.MinQuality,
		MaxQuality:  opts.MaxQuality,
	})
	if err != nil {
		return fail("compress", err)
	}

	e.Success = true
	e.Result = res
	e.FinishedAt = time.Now()
	stats.RecordCompressed(res.Format.String(), src.Size, int64(len(res.Data)), res.MetTarget, res.EncodeCalls, res.LadderSteps)

	log.WithFields(logrus.Fields{
		"quality":    res.Quality,
		"scale":      res.ScaleFactor(),
		"met_target": res.MetTarget,
	}).Infof("Compressed %.2fKB -> %.2fKB", res.OriginalSizeKB, res.SizeKB)
	return e
}
