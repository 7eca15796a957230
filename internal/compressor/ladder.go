package compressor

import (
	"math"

	"github.com/sirupsen/logrus"
)

const ladderSteps = 9

// LadderScales returns the reduced resolutions tried after full resolution
// misses the target: 0.9 down to 0.1.
func LadderScales() []float64 {
	scales := make([]float64, 0, ladderSteps)
	for i := ladderSteps; i >= 1; i-- {
		scales = append(scales, float64(i)/10)
	}
	return scales
}

// ScaledDimensions applies scale to width and height, rounding to the
// nearest pixel and never going below one.
func ScaledDimensions(width, height int, scale float64) (int, int) {
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// descend walks the ladder and stops at the first scale that meets the
// target. When none does, the floor-quality encoding of the smallest scale
// is returned unmet.
func (e *Engine) descend(req Request, s *qualitySearch, log *logrus.Entry) (Candidate, int, error) {
	var last Candidate
	steps := 0
	for _, scale := range LadderScales() {
		steps++
		w, h := ScaledDimensions(req.Source.Width, req.Source.Height, scale)
		img, err := e.codec.Resize(req.Source.Image, w, h)
		if err != nil {
			return Candidate{}, steps, err
		}

		c, err := s.run(img, scale)
		if err != nil {
			return Candidate{}, steps, err
		}
		log.WithFields(logrus.Fields{
			"scale":   scale,
			"width":   w,
			"height":  h,
			"quality": c.Quality,
			"bytes":   c.Size(),
			"met":     c.Met,
		}).Debug("Ladder step")

		if c.Met {
			return c, steps, nil
		}
		last = c
	}
	return last, steps, nil
}
