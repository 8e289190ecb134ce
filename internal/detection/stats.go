package detection

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ClipOptions controls SigmaClippedStats.
type ClipOptions struct {
	// Sigma is the clipping half-width in population standard deviations
	// around the median. 0 uses 3.
	Sigma float64 `json:"sigma"`

	// MaxIters bounds the clipping passes. 0 iterates until no value is
	// clipped.
	MaxIters int `json:"max_iters"`

	// Mask excludes values whose entry is true. When set it must have one
	// entry per value.
	Mask []bool `json:"-"`

	// MaskValue excludes values equal to it, such as a camera's blank
	// level. Ignored when Mask is set.
	MaskValue *float64 `json:"mask_value,omitempty"`
}

// WithMaskValue returns a copy of o that excludes values equal to v.
func (o ClipOptions) WithMaskValue(v float64) ClipOptions {
	o.MaskValue = &v
	return o
}

// WithMask returns a copy of o that excludes values where mask is true.
func (o ClipOptions) WithMask(mask []bool) ClipOptions {
	o.Mask = mask
	return o
}

// DefaultClipOptions returns 3σ clipping repeated until convergence.
func DefaultClipOptions() ClipOptions {
	return ClipOptions{Sigma: 3}
}

// Stats summarises the values that survived clipping.
type Stats struct {
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	StdDev     float64 `json:"std"`
	Iterations int     `json:"iterations"`
	Kept       int     `json:"kept"`
	Masked     int     `json:"masked"`
	Total      int     `json:"total"`
}

// SigmaClippedStats estimates background level and noise robustly.
//
// NaN values and values excluded by Mask or MaskValue are ignored and
// counted in Masked. Each pass computes the median and population
// standard deviation of the surviving values and discards values more
// than Sigma deviations from the median. Clipping stops when a pass
// removes nothing or MaxIters passes have run.
func SigmaClippedStats(values []float64, opts ClipOptions) (Stats, error) {
	if opts.Sigma == 0 {
		opts.Sigma = 3
	}
	if !(opts.Sigma > 0) {
		return Stats{}, invalidf("clip sigma must be > 0, got %g", opts.Sigma)
	}
	if opts.MaxIters < 0 {
		return Stats{}, invalidf("max iterations must be >= 0, got %d", opts.MaxIters)
	}

	if opts.Mask != nil && len(opts.Mask) != len(values) {
		return Stats{}, invalidf("mask has %d entries for %d values", len(opts.Mask), len(values))
	}
	if opts.MaskValue != nil && math.IsNaN(*opts.MaskValue) {
		return Stats{}, invalidf("mask value is NaN")
	}

	kept := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if opts.Mask != nil {
			if opts.Mask[i] {
				continue
			}
		} else if opts.MaskValue != nil && v == *opts.MaskValue {
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		return Stats{}, invalidf("no unmasked finite values to compute statistics from")
	}
	masked := len(values) - len(kept)

	iters := 0
	for opts.MaxIters == 0 || iters < opts.MaxIters {
		med := median(append([]float64(nil), kept...))
		_, std := stat.PopMeanStdDev(kept, nil)
		limit := opts.Sigma * std

		next := kept[:0:0]
		for _, v := range kept {
			if math.Abs(v-med) <= limit {
				next = append(next, v)
			}
		}
		iters++
		if len(next) == len(kept) || len(next) == 0 {
			break
		}
		kept = next
	}

	mean, std := stat.PopMeanStdDev(kept, nil)
	return Stats{
		Mean:       mean,
		Median:     median(append([]float64(nil), kept...)),
		StdDev:     std,
		Iterations: iters,
		Kept:       len(kept),
		Masked:     masked,
		Total:      len(values),
	}, nil
}

// BackgroundStats runs SigmaClippedStats over every pixel of img. A Mask
// in opts is indexed like img.Pix.
func BackgroundStats(img *Image, opts ClipOptions) (Stats, error) {
	if err := img.validate(); err != nil {
		return Stats{}, err
	}
	return SigmaClippedStats(img.Pix, opts)
}
