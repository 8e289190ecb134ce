package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// segmentImage draws a 3x3 block, a 1x3 bar, a single pixel and a
// diagonal pair, all at 150, over noise of 100 ± 1.
func segmentImage(t *testing.T) *Image {
	t.Helper()
	img := noiseImage(t, 32, 32, 100, 2)
	for y := 5; y <= 7; y++ {
		for x := 5; x <= 7; x++ {
			img.Set(x, y, 150)
		}
	}
	for x := 10; x <= 12; x++ {
		img.Set(x, 25, 150)
	}
	img.Set(15, 15, 150)
	img.Set(20, 20, 150)
	img.Set(21, 21, 150)
	return img
}

func TestDetectSources(t *testing.T) {
	img := segmentImage(t)

	seg, err := DetectSources(img, 5, 2, SegmentOptions{Clip: DefaultClipOptions()})
	require.NoError(t, err)
	assert.Greater(t, seg.Level, 100.0)
	assert.Less(t, seg.Level, 105.0)

	require.Len(t, seg.Segments, 2)

	block := seg.Segments[0]
	assert.Equal(t, 1, block.Label)
	assert.Equal(t, 9, block.Area)
	assert.Equal(t, Bounds{X1: 5, Y1: 5, X2: 7, Y2: 7}, block.Bounds)
	assert.InDelta(t, 1350, block.Flux, 1e-9)
	assert.Equal(t, Point{X: 5, Y: 5}, block.Peak)

	bar := seg.Segments[1]
	assert.Equal(t, 2, bar.Label)
	assert.Equal(t, 3, bar.Area)
	assert.Equal(t, Bounds{X1: 10, Y1: 25, X2: 12, Y2: 25}, bar.Bounds)

	assert.Equal(t, 1, seg.LabelAt(6, 6))
	assert.Equal(t, 2, seg.LabelAt(11, 25))
	// Below npixels, and diagonal neighbours are not 4-connected.
	assert.Equal(t, 0, seg.LabelAt(15, 15))
	assert.Equal(t, 0, seg.LabelAt(20, 20))
	assert.Equal(t, 0, seg.LabelAt(-1, 3))
}

func TestDetectSourcesSinglePixels(t *testing.T) {
	img := segmentImage(t)

	seg, err := DetectSources(img, 5, 1, SegmentOptions{})
	require.NoError(t, err)
	// Block, single pixel, two diagonal pixels, bar, in raster order.
	require.Len(t, seg.Segments, 5)
	areas := make([]int, 0, 5)
	for i, s := range seg.Segments {
		assert.Equal(t, i+1, s.Label)
		areas = append(areas, s.Area)
	}
	assert.Equal(t, []int{9, 1, 1, 1, 3}, areas)
}

func TestDetectSourcesFiltered(t *testing.T) {
	img := segmentImage(t)

	seg, err := DetectSources(img, 5, 4, SegmentOptions{FilterSigma: 1})
	require.NoError(t, err)
	require.NotEmpty(t, seg.Segments)
	assert.Equal(t, 1, seg.LabelAt(6, 6))
	assert.GreaterOrEqual(t, seg.Segments[0].Area, 9)
}

func TestDetectSourcesInvalid(t *testing.T) {
	img := NewImage(8, 8)
	_, err := DetectSources(img, 3, 0, SegmentOptions{})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = DetectSources(img, 3, 1, SegmentOptions{FilterSigma: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = DetectSources(img, 3, 1, SegmentOptions{FilterSigma: 1e7})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = DetectSources(nil, 3, 1, SegmentOptions{})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSmoothingKernelNormalised(t *testing.T) {
	w, size := smoothingKernel(1.5)
	assert.Equal(t, 13, size)
	var sum float64
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-12)
}

func TestDetectSourcesMaskedBackground(t *testing.T) {
	img, mask := halfBrightImage(t)
	for y := 14; y <= 16; y++ {
		for x := 24; x <= 26; x++ {
			img.Set(x, y, 150)
		}
	}

	seg, err := DetectSources(img, 5, 5, SegmentOptions{Clip: DefaultClipOptions()})
	require.NoError(t, err)
	assert.Greater(t, seg.Level, 500.0)
	assert.Equal(t, 0, seg.LabelAt(25, 15))

	seg, err = DetectSources(img, 5, 5, SegmentOptions{Clip: DefaultClipOptions().WithMask(mask)})
	require.NoError(t, err)
	assert.Less(t, seg.Level, 105.0)
	// The masked half still segments; only the level ignores it.
	require.Len(t, seg.Segments, 2)
	assert.Equal(t, 2, seg.LabelAt(25, 15))
	assert.Equal(t, 9, seg.Segments[1].Area)
}
