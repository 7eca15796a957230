package compressor

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Options tunes the search.
type Options struct {
	// FloorFirst encodes the quality floor before binary searching a
	// resolution, so an unreachable resolution costs a single encode.
	FloorFirst bool
}

// Engine is the default Compressor.
type Engine struct {
	codec Codec
	log   *logrus.Logger
	opts  Options
}

// NewEngine creates an Engine driving c. A nil logger discards output.
func NewEngine(c Codec, log *logrus.Logger, opts Options) *Engine {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Engine{codec: c, log: log, opts: opts}
}

// Compress runs the quality search at full resolution and falls back to the
// resolution ladder when it misses.
func (e *Engine) Compress(req Request) (*Result, error) {
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	format, err := req.Format.Resolve(req.Source.Format)
	if err != nil {
		return nil, err
	}
	enc, err := e.codec.Encoding(format)
	if err != nil {
		return nil, NewUnsupportedFormatError(format.String())
	}

	log := e.log.WithFields(logrus.Fields{
		"operation":    "compress",
		"format":       format.String(),
		"target_bytes": req.TargetBytes,
	})

	s := &qualitySearch{
		enc:        enc,
		target:     req.TargetBytes,
		minQ:       req.MinQuality,
		maxQ:       req.MaxQuality,
		floorFirst: e.opts.FloorFirst,
	}

	best, err := s.run(req.Source.Image, 1.0)
	if err != nil {
		return nil, NewCodecError(err)
	}

	steps := 0
	if !best.Met {
		log.WithField("floor_bytes", best.Size()).Debug("Full resolution misses target, descending")
		best, steps, err = e.descend(req, s, log)
		if err != nil {
			return nil, NewCodecError(err)
		}
	}

	res := &Result{
		Quality:        best.Quality,
		Scale:          best.Scale,
		Width:          best.Width,
		Height:         best.Height,
		Format:         format,
		Data:           best.Data,
		SizeKB:         float64(best.Size()) / 1024,
		TargetKB:       float64(req.TargetBytes) / 1024,
		MetTarget:      best.Met,
		OriginalSizeKB: float64(req.Source.Size) / 1024,
		OriginalWidth:  req.Source.Width,
		OriginalHeight: req.Source.Height,
		EncodeCalls:    s.calls,
		LadderSteps:    steps,
	}

	log.WithFields(logrus.Fields{
		"quality":      res.Quality,
		"scale":        res.ScaleFactor(),
		"bytes":        best.Size(),
		"met_target":   res.MetTarget,
		"encode_calls": res.EncodeCalls,
	}).Debug("Compression finished")

	return res, nil
}
