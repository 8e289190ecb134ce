package detection

import (
	"math"
)

// Bounds represents a rectangular bounding box in pixel coordinates.
//
// (X1, Y1) is the top-left corner and (X2, Y2) the bottom-right corner,
// both inclusive.
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// SegmentOptions controls DetectSources.
type SegmentOptions struct {
	// FilterSigma smooths the image with a sum-normalised Gaussian of this
	// standard deviation before thresholding. 0 disables smoothing.
	FilterSigma float64 `json:"filter_sigma"`

	// Clip controls the background statistics behind the level.
	Clip ClipOptions `json:"clip"`
}

// Segment describes one connected source region.
type Segment struct {
	// Label is the segment's value in Segmentation.Labels (1-based).
	Label int `json:"label"`

	// Area is the number of pixels in the segment.
	Area int `json:"area"`

	Bounds Bounds `json:"bounds"`

	// Flux is the sum of the raw pixel values in the segment.
	Flux float64 `json:"flux"`

	// Peak is the brightest raw pixel of the segment.
	Peak      Point   `json:"peak"`
	PeakValue float64 `json:"peak_value"`
}

// Segmentation is the output of DetectSources.
type Segmentation struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Labels holds one entry per pixel, row-major: 0 for background,
	// otherwise the 1-based segment label.
	Labels []int `json:"-"`

	Segments   []Segment `json:"segments"`
	Level      float64   `json:"level"`
	Background Stats     `json:"background"`
}

// LabelAt returns the segment label at (x, y), 0 for background or
// out-of-bounds coordinates.
func (s *Segmentation) LabelAt(x, y int) int {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return 0
	}
	return s.Labels[y*s.Width+x]
}

// DetectSources labels connected regions of at least npixels pixels that
// lie at or above mean + snr·std of the sigma-clipped background.
//
// # Algorithm
//
//  1. Background: sigma-clipped mean and standard deviation of img.
//  2. Optional smoothing with a Gaussian of FilterSigma (truncated at 4σ,
//     replicated edges).
//  3. Threshold: pixel >= level.
//  4. Labelling: 4-connected components found in raster order with an
//     iterative flood fill.
//  5. Components smaller than npixels are discarded and the survivors
//     relabelled 1..n in discovery order.
//
// A mask in opts.Clip only affects step 1.
func DetectSources(img *Image, snr float64, npixels int, opts SegmentOptions) (*Segmentation, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	if npixels <= 0 {
		return nil, invalidf("npixels must be a positive integer, got %d", npixels)
	}
	if math.IsNaN(snr) {
		return nil, invalidf("snr threshold is NaN")
	}
	if opts.FilterSigma < 0 || math.IsNaN(opts.FilterSigma) {
		return nil, invalidf("filter sigma must be >= 0, got %g", opts.FilterSigma)
	}
	if 4*opts.FilterSigma > MaxKernelRadius {
		return nil, invalidf("filter sigma %g exceeds %g", opts.FilterSigma, float64(MaxKernelRadius)/4)
	}

	bg, err := BackgroundStats(img, opts.Clip)
	if err != nil {
		return nil, err
	}
	level := bg.Mean + snr*bg.StdDev

	smooth := img
	if opts.FilterSigma > 0 {
		weights, size := smoothingKernel(opts.FilterSigma)
		smooth = correlateDirect(img, weights, size, EdgeReplicate)
	}

	width, height := img.Width, img.Height
	mask := make([]bool, width*height)
	for i, v := range smooth.Pix {
		mask[i] = v >= level
	}

	seg := &Segmentation{
		Width:      width,
		Height:     height,
		Labels:     make([]int, width*height),
		Segments:   make([]Segment, 0),
		Level:      level,
		Background: bg,
	}

	visited := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if !mask[i] || visited[i] {
				continue
			}
			region := floodFill(mask, visited, x, y, width, height)
			if len(region) < npixels {
				continue
			}
			label := len(seg.Segments) + 1
			seg.Segments = append(seg.Segments, describeSegment(img, seg.Labels, region, label))
		}
	}
	return seg, nil
}

// floodFill collects the 4-connected region of set mask pixels containing
// (startX, startY), marking each as visited.
//
// Uses an explicit stack rather than recursion so large regions cannot
// overflow the goroutine stack.
func floodFill(mask, visited []bool, startX, startY, width, height int) []Point {
	region := make([]Point, 0)
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		i := p.Y*width + p.X
		if visited[i] || !mask[i] {
			continue
		}

		visited[i] = true
		region = append(region, p)

		stack = append(stack,
			Point{X: p.X + 1, Y: p.Y},
			Point{X: p.X - 1, Y: p.Y},
			Point{X: p.X, Y: p.Y + 1},
			Point{X: p.X, Y: p.Y - 1},
		)
	}
	return region
}

func describeSegment(img *Image, labels []int, region []Point, label int) Segment {
	s := Segment{
		Label:     label,
		Area:      len(region),
		Bounds:    Bounds{X1: img.Width, Y1: img.Height, X2: -1, Y2: -1},
		PeakValue: math.Inf(-1),
	}
	for _, p := range region {
		labels[p.Y*img.Width+p.X] = label
		v := img.Pix[p.Y*img.Width+p.X]
		s.Flux += v
		if v > s.PeakValue || (v == s.PeakValue && (p.Y < s.Peak.Y || (p.Y == s.Peak.Y && p.X < s.Peak.X))) {
			s.PeakValue = v
			s.Peak = p
		}
		if p.X < s.Bounds.X1 {
			s.Bounds.X1 = p.X
		}
		if p.X > s.Bounds.X2 {
			s.Bounds.X2 = p.X
		}
		if p.Y < s.Bounds.Y1 {
			s.Bounds.Y1 = p.Y
		}
		if p.Y > s.Bounds.Y2 {
			s.Bounds.Y2 = p.Y
		}
	}
	return s
}

// smoothingKernel returns a sum-normalised Gaussian truncated at 4σ.
func smoothingKernel(sigma float64) ([]float64, int) {
	r := int(4*sigma + 0.5)
	if r < 1 {
		r = 1
	}
	size := 2*r + 1
	weights := make([]float64, size*size)
	var sum float64
	for j := -r; j <= r; j++ {
		for i := -r; i <= r; i++ {
			g := math.Exp(-float64(i*i+j*j) / (2 * sigma * sigma))
			weights[(j+r)*size+i+r] = g
			sum += g
		}
	}
	for k := range weights {
		weights[k] /= sum
	}
	return weights, size
}
