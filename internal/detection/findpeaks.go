package detection

import (
	"math"
	"sort"
)

// Peak is a local maximum of the raw image.
type Peak struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Value float64 `json:"value"`
}

// PeakOptions controls FindPeaks.
type PeakOptions struct {
	// MinDistance is the half-width of the comparison square. 0 uses 5.
	MinDistance int `json:"min_distance"`

	// ExcludeBorder drops pixels closer than MinDistance to the edge.
	// When false, comparison squares are clipped to the image instead.
	ExcludeBorder bool `json:"exclude_border"`

	// MaxPeaks keeps only the brightest peaks when > 0.
	MaxPeaks int `json:"max_peaks"`

	// Clip controls the background statistics behind the level.
	Clip ClipOptions `json:"clip"`
}

// DefaultPeakOptions returns MinDistance 5 with border exclusion and 3σ
// clipping.
func DefaultPeakOptions() PeakOptions {
	return PeakOptions{
		MinDistance:   5,
		ExcludeBorder: true,
		Clip:          DefaultClipOptions(),
	}
}

// PeakResult is the output of FindPeaks.
type PeakResult struct {
	Peaks      []Peak  `json:"peaks"`
	Level      float64 `json:"level"`
	Background Stats   `json:"background"`
}

// FindPeaks finds pixels brighter than snr noise deviations above the
// sigma-clipped background mean that are also the maximum of the
// (2·MinDistance+1)² square around them.
//
// Unlike FindLocalMaxima no filtering happens and ties are not broken: every
// pixel of a flat-topped peak is returned. Peaks come back in scan order;
// when MaxPeaks trims the list they come back brightest first, ties kept in
// scan order.
//
// A mask in opts.Clip only removes pixels from the background statistics;
// masked pixels can still be peaks.
func FindPeaks(img *Image, snr float64, opts PeakOptions) (*PeakResult, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(snr) {
		return nil, invalidf("snr threshold is NaN")
	}
	if opts.MinDistance == 0 {
		opts.MinDistance = 5
	}
	if opts.MinDistance < 0 {
		return nil, invalidf("min distance must be >= 1, got %d", opts.MinDistance)
	}
	if opts.MaxPeaks < 0 {
		return nil, invalidf("max peaks must be >= 0, got %d", opts.MaxPeaks)
	}

	bg, err := BackgroundStats(img, opts.Clip)
	if err != nil {
		return nil, err
	}
	level := bg.Mean + snr*bg.StdDev

	d := opts.MinDistance
	x0, y0, x1, y1 := 0, 0, img.Width, img.Height
	if opts.ExcludeBorder {
		x0, y0, x1, y1 = d, d, img.Width-d, img.Height-d
	}

	peaks := make([]Peak, 0)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			v := img.Pix[y*img.Width+x]
			if !(v > level) {
				continue
			}
			if isPlateauMax(img, x, y, d, v) {
				peaks = append(peaks, Peak{X: x, Y: y, Value: v})
			}
		}
	}

	if opts.MaxPeaks > 0 && len(peaks) > opts.MaxPeaks {
		sort.SliceStable(peaks, func(i, j int) bool {
			return peaks[i].Value > peaks[j].Value
		})
		peaks = peaks[:opts.MaxPeaks]
	}

	return &PeakResult{Peaks: peaks, Level: level, Background: bg}, nil
}

// isPlateauMax reports whether no pixel in the square around (x, y),
// clipped to the image, exceeds v.
func isPlateauMax(img *Image, x, y, d int, v float64) bool {
	ylo, yhi := clamp(y-d, 0, img.Height-1), clamp(y+d, 0, img.Height-1)
	xlo, xhi := clamp(x-d, 0, img.Width-1), clamp(x+d, 0, img.Width-1)
	for ny := ylo; ny <= yhi; ny++ {
		row := img.Pix[ny*img.Width : (ny+1)*img.Width]
		for nx := xlo; nx <= xhi; nx++ {
			if row[nx] > v {
				return false
			}
		}
	}
	return true
}
