package compressor

import (
	"image"

	"imagecompress-go/internal/codec"
)

// qualitySearch binary-searches the abstract quality scale at one
// resolution. A single value is reused across the ladder so calls
// accumulates over the whole image.
type qualitySearch struct {
	enc        codec.Encoding
	target     int64
	minQ       int
	maxQ       int
	floorFirst bool
	calls      int
}

func (s *qualitySearch) attempt(img image.Image, scale float64, quality int) (Candidate, error) {
	s.calls++
	data, err := s.enc.Encode(img, s.enc.NativeParam(quality, s.minQ, s.maxQ))
	if err != nil {
		return Candidate{}, err
	}
	b := img.Bounds()
	return Candidate{
		Quality: quality,
		Scale:   scale,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Data:    data,
		Met:     int64(len(data)) <= s.target,
	}, nil
}

// run returns the best met candidate seen across every attempt. When nothing
// fits it returns the unmet candidate encoded at the quality floor.
func (s *qualitySearch) run(img image.Image, scale float64) (Candidate, error) {
	var best, floor *Candidate
	lo, hi := s.minQ, s.maxQ

	if s.floorFirst {
		c, err := s.attempt(img, scale, s.minQ)
		if err != nil {
			return Candidate{}, err
		}
		if !c.Met {
			return c, nil
		}
		floor, best = &c, &c
		lo = s.minQ + 1
	}

	for lo <= hi {
		mid := (lo + hi) / 2
		c, err := s.attempt(img, scale, mid)
		if err != nil {
			return Candidate{}, err
		}
		if mid == s.minQ {
			floor = &c
		}
		if c.Met {
			if best == nil || better(c, *best) {
				best = &c
			}
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if best != nil {
		return *best, nil
	}
	if floor == nil {
		// Unreachable with an unmet search, which always narrows to minQ.
		c, err := s.attempt(img, scale, s.minQ)
		if err != nil {
			return Candidate{}, err
		}
		return c, nil
	}
	return *floor, nil
}

// better prefers higher quality, then the smaller encoding.
func better(c, best Candidate) bool {
	if c.Quality != best.Quality {
		return c.Quality > best.Quality
	}
	return c.Size() < best.Size()
}
