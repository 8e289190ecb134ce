package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmaClippedStats(t *testing.T) {
	tests := []struct {
		name       string
		values     []float64
		opts       ClipOptions
		mean       float64
		median     float64
		std        float64
		kept       int
		iterations int
	}{
		{
			name:       "outlier removed",
			values:     []float64{9, 10, 11, 10, 9, 10, 11, 10, 9, 10, 11, 10, 1000},
			opts:       DefaultClipOptions(),
			mean:       10,
			median:     10,
			std:        math.Sqrt(0.5),
			kept:       12,
			iterations: 2,
		},
		{
			name:       "until convergence",
			values:     []float64{9, 10, 11, 10, 9, 10, 11, 10, 9, 10, 11, 10, 1000},
			opts:       ClipOptions{Sigma: 3},
			mean:       10,
			median:     10,
			std:        math.Sqrt(0.5),
			kept:       12,
			iterations: 2,
		},
		{
			name:       "small sample keeps outlier",
			values:     []float64{1, 2, 3, 4, 5, 100},
			opts:       DefaultClipOptions(),
			mean:       115.0 / 6,
			median:     3.5,
			std:        36.17281053805775,
			kept:       6,
			iterations: 1,
		},
		{
			name:       "constant",
			values:     []float64{5, 5, 5, 5},
			opts:       DefaultClipOptions(),
			mean:       5,
			median:     5,
			std:        0,
			kept:       4,
			iterations: 1,
		},
		{
			name:       "NaN ignored",
			values:     []float64{math.NaN(), 2, 4},
			opts:       ClipOptions{},
			mean:       3,
			median:     3,
			std:        1,
			kept:       2,
			iterations: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SigmaClippedStats(tt.values, tt.opts)
			require.NoError(t, err)
			assert.InDelta(t, tt.mean, s.Mean, 1e-12)
			assert.InDelta(t, tt.median, s.Median, 1e-12)
			assert.InDelta(t, tt.std, s.StdDev, 1e-12)
			assert.Equal(t, tt.kept, s.Kept)
			assert.Equal(t, tt.iterations, s.Iterations)
			assert.Equal(t, len(tt.values), s.Total)
		})
	}
}

func TestSigmaClippedStatsDoesNotModifyInput(t *testing.T) {
	values := []float64{3, 1, 2, 1000, 2, 1, 3, 2, 1, 2, 3, 2}
	orig := append([]float64(nil), values...)
	_, err := SigmaClippedStats(values, DefaultClipOptions())
	require.NoError(t, err)
	assert.Equal(t, orig, values)
}

func TestSigmaClippedStatsInvalid(t *testing.T) {
	_, err := SigmaClippedStats(nil, DefaultClipOptions())
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = SigmaClippedStats([]float64{math.NaN()}, DefaultClipOptions())
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = SigmaClippedStats([]float64{1}, ClipOptions{Sigma: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = SigmaClippedStats([]float64{1}, ClipOptions{MaxIters: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBackgroundStats(t *testing.T) {
	img := noiseImage(t, 40, 40, 100, 2)
	img.Set(20, 20, 5000)

	s, err := BackgroundStats(img, DefaultClipOptions())
	require.NoError(t, err)
	assert.InDelta(t, 100, s.Mean, 0.1)
	assert.InDelta(t, 2/math.Sqrt(12), s.StdDev, 0.05)
	assert.Less(t, s.Kept, s.Total)
}

func TestSigmaClippedStatsMask(t *testing.T) {
	// Half the values are a bright region clipping alone cannot remove.
	values := make([]float64, 0, 40)
	mask := make([]bool, 0, 40)
	for i := 0; i < 20; i++ {
		values = append(values, 10)
		mask = append(mask, false)
	}
	for i := 0; i < 20; i++ {
		values = append(values, 500)
		mask = append(mask, true)
	}

	s, err := SigmaClippedStats(values, DefaultClipOptions())
	require.NoError(t, err)
	assert.InDelta(t, 255, s.Mean, 1e-12)
	assert.Equal(t, 0, s.Masked)

	tests := []struct {
		name string
		opts ClipOptions
		mean float64
		kept int
	}{
		{"mask", DefaultClipOptions().WithMask(mask), 10, 20},
		{"mask value", DefaultClipOptions().WithMaskValue(500), 10, 20},
		{"mask wins over mask value", DefaultClipOptions().WithMaskValue(500).WithMask(make([]bool, 40)), 255, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SigmaClippedStats(values, tt.opts)
			require.NoError(t, err)
			assert.InDelta(t, tt.mean, s.Mean, 1e-12)
			assert.Equal(t, tt.kept, s.Kept)
			assert.Equal(t, 40-tt.kept, s.Masked)
			assert.Equal(t, 40, s.Total)
		})
	}
}

func TestSigmaClippedStatsMaskInvalid(t *testing.T) {
	values := []float64{1, 2, 3}

	_, err := SigmaClippedStats(values, DefaultClipOptions().WithMask([]bool{true}))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = SigmaClippedStats(values, DefaultClipOptions().WithMask([]bool{true, true, true}))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = SigmaClippedStats(values, DefaultClipOptions().WithMaskValue(math.NaN()))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

// halfBrightImage is 100 ± 0.5 noise with the left half raised to 1000
// and the mask that covers that half.
func halfBrightImage(t *testing.T) (*Image, []bool) {
	t.Helper()
	img := noiseImage(t, 32, 32, 100, 1)
	mask := make([]bool, len(img.Pix))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, 1000)
			mask[y*img.Width+x] = true
		}
	}
	return img, mask
}

func TestBackgroundStatsMask(t *testing.T) {
	img, mask := halfBrightImage(t)

	s, err := BackgroundStats(img, DefaultClipOptions().WithMask(mask))
	require.NoError(t, err)
	assert.InDelta(t, 100, s.Mean, 0.1)
	assert.Equal(t, 512, s.Masked)

	_, err = BackgroundStats(img, DefaultClipOptions().WithMask(mask[:10]))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDefaultClipOptions(t *testing.T) {
	opts := DefaultClipOptions()
	assert.Equal(t, 3.0, opts.Sigma)
	assert.Zero(t, opts.MaxIters, "default clipping runs to convergence")
	assert.Nil(t, opts.Mask)
	assert.Nil(t, opts.MaskValue)
}
