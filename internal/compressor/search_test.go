package compressor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagecompress-go/internal/codec"
)

func newSearch(t *testing.T, fc *fakeCodec, target int64, floorFirst bool) *qualitySearch {
	t.Helper()
	enc, err := fc.Encoding(codec.FormatJPEG)
	require.NoError(t, err)
	return &qualitySearch{enc: enc, target: target, minQ: 25, maxQ: 95, floorFirst: floorFirst}
}

func TestSearchFindsHighestQualityUnderTarget(t *testing.T) {
	for _, floorFirst := range []bool{false, true} {
		fc := newFakeCodec(func(w, h, q int) int { return q * 100 })
		s := newSearch(t, fc, 7000, floorFirst)

		c, err := s.run(blankImage{10, 10}, 1.0)
		require.NoError(t, err)
		assert.True(t, c.Met)
		assert.Equal(t, 70, c.Quality)
		assert.Equal(t, 7000, c.Size())
	}
}

func TestSearchConvergesWithinSevenEncodes(t *testing.T) {
	for target := int64(2400); target <= 9600; target += 100 {
		fc := newFakeCodec(func(w, h, q int) int { return q * 100 })
		s := newSearch(t, fc, target, false)
		_, err := s.run(blankImage{10, 10}, 1.0)
		require.NoError(t, err)
		assert.LessOrEqual(t, s.calls, 7, "target %d", target)
	}
}

func TestSearchUnmetCarriesFloorCandidate(t *testing.T) {
	for _, floorFirst := range []bool{false, true} {
		fc := newFakeCodec(func(w, h, q int) int { return q * 100 })
		s := newSearch(t, fc, 100, floorFirst)

		c, err := s.run(blankImage{10, 10}, 0.5)
		require.NoError(t, err)
		assert.False(t, c.Met)
		assert.Equal(t, 25, c.Quality)
		assert.Equal(t, 2500, c.Size())
		assert.Equal(t, 0.5, c.Scale)
	}
}

func TestSearchFloorFirstShortCircuits(t *testing.T) {
	fc := newFakeCodec(func(w, h, q int) int { return q * 100 })
	s := newSearch(t, fc, 100, true)

	_, err := s.run(blankImage{10, 10}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.calls)
}

func TestSearchKeepsBestAcrossNonMonotonicQualities(t *testing.T) {
	// Only quality 60 and 87 fit, everything else overshoots.
	fits := map[int]bool{60: true, 87: true}
	fc := newFakeCodec(func(w, h, q int) int {
		if fits[q] {
			return 500
		}
		return 5000
	})
	s := newSearch(t, fc, 1000, false)

	c, err := s.run(blankImage{10, 10}, 1.0)
	require.NoError(t, err)
	assert.True(t, c.Met)
	assert.True(t, fits[c.Quality], "returned quality %d was never a hit", c.Quality)
	assert.LessOrEqual(t, int64(c.Size()), int64(1000))
}

func TestSearchMonotonicFakeIsMonotonic(t *testing.T) {
	// A met quality implies every lower quality meets too.
	const target = int64(204800)
	w, h := 2400, 1800
	met := false
	for q := 95; q >= 25; q-- {
		fits := int64(affineSize(w, h, q)) <= target
		if met {
			assert.True(t, fits, "quality %d", q)
		}
		met = met || fits
	}
	assert.True(t, met)
}

func TestBetterPrefersQualityThenSize(t *testing.T) {
	a := Candidate{Quality: 50, Data: make([]byte, 10)}
	b := Candidate{Quality: 40, Data: make([]byte, 5)}
	c := Candidate{Quality: 50, Data: make([]byte, 8)}

	assert.True(t, better(a, b))
	assert.False(t, better(b, a))
	assert.True(t, better(c, a))
}
