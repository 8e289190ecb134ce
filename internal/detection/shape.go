package detection

import (
	"fmt"
	"math"
)

// Band is an inclusive [Min, Max] acceptance interval.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether Min <= v <= Max.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Band) validate(name string) error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) {
		return invalidf("%s band has NaN bound", name)
	}
	if b.Min > b.Max {
		return invalidf("%s band min %g > max %g", name, b.Min, b.Max)
	}
	return nil
}

func (b Band) String() string {
	return fmt.Sprintf("[%g, %g]", b.Min, b.Max)
}

// Shape holds the three DAOFIND-style shape statistics of a candidate.
type Shape struct {
	// Sharpness is (centre - mean of the rest of the window) / response.
	// A matched Gaussian scores roughly 0.5-0.7, a single hot pixel well
	// above 1, and a broad smooth feature near 0.
	Sharpness float64 `json:"sharpness"`

	// Roundness1 compares 1-D Gaussian amplitude fits to the window's
	// column and row marginals: 2(hx-hy)/(hx+hy). Negative means elongated
	// along x, positive along y.
	Roundness1 float64 `json:"roundness1"`

	// Roundness2 is -2e/(d+f) from the least-squares quadric
	// a + bx + cy + dx² + exy + fy². Positive means elongated along the
	// x=y diagonal, negative along x=-y.
	Roundness2 float64 `json:"roundness2"`
}

// MeasureShape computes the shape statistics of c from the raw image.
//
// The window has half-size halfSize and must lie inside img; c.Cutout is
// used when it already holds that window. The second return value is false
// when the candidate is degenerate: the window crosses the edge, the
// response is zero, the marginal fits have no positive amplitude, or the
// window has no peaked curvature.
func MeasureShape(img *Image, c Candidate, sigma float64, halfSize int) (Shape, bool) {
	side := 2*halfSize + 1
	w := c.Cutout
	if len(w) != side*side {
		var ok bool
		w, ok = img.Window(c.X, c.Y, halfSize)
		if !ok {
			return Shape{}, false
		}
	}
	if halfSize < 1 || c.Response == 0 || !(sigma > 0) {
		return Shape{}, false
	}

	sharp := sharpness(w, halfSize, c.Response)

	round1, ok := marginalRoundness(w, halfSize, sigma)
	if !ok {
		return Shape{}, false
	}
	round2, ok := quadricRoundness(w, halfSize)
	if !ok {
		return Shape{}, false
	}

	return Shape{Sharpness: sharp, Roundness1: round1, Roundness2: round2}, true
}

func sharpness(w []float64, hs int, response float64) float64 {
	side := 2*hs + 1
	centre := w[hs*side+hs]
	var sum float64
	for _, v := range w {
		sum += v
	}
	mean := (sum - centre) / float64(len(w)-1)
	return (centre - mean) / response
}

// marginalRoundness fits a zero-mean 1-D Gaussian profile of width sigma to
// the column sums (px) and row sums (py) of the window by least squares.
func marginalRoundness(w []float64, hs int, sigma float64) (float64, bool) {
	side := 2*hs + 1
	g := make([]float64, side)
	var gsum float64
	for k := -hs; k <= hs; k++ {
		g[k+hs] = math.Exp(-float64(k*k) / (2 * sigma * sigma))
		gsum += g[k+hs]
	}
	gmean := gsum / float64(side)
	var gden float64
	for k := range g {
		g[k] -= gmean
		gden += g[k] * g[k]
	}
	if !(gden > 0) {
		return 0, false
	}

	px := make([]float64, side)
	py := make([]float64, side)
	for j := 0; j < side; j++ {
		for i := 0; i < side; i++ {
			v := w[j*side+i]
			px[i] += v
			py[j] += v
		}
	}

	var hx, hy float64
	for k := 0; k < side; k++ {
		hx += px[k] * g[k]
		hy += py[k] * g[k]
	}
	hx /= gden
	hy /= gden
	if hx+hy <= 0 {
		return 0, false
	}
	return 2 * (hx - hy) / (hx + hy), true
}

// quadricRoundness fits z = a + bx + cy + dx² + exy + fy² over the window.
//
// On a symmetric grid the normal equations decouple: e and d+f have closed
// forms and the linear terms drop out.
func quadricRoundness(w []float64, hs int) (float64, bool) {
	side := 2*hs + 1
	n := float64(side * side)
	var s2, s4, s22 float64
	var z0, zx, zy, zxy float64
	for j := -hs; j <= hs; j++ {
		for i := -hs; i <= hs; i++ {
			z := w[(j+hs)*side+i+hs]
			u, v := float64(i), float64(j)
			s2 += u * u
			s4 += u * u * u * u
			s22 += u * u * v * v
			z0 += z
			zx += z * u * u
			zy += z * v * v
			zxy += z * u * v
		}
	}
	if s22 == 0 {
		return 0, false
	}
	e := zxy / s22
	den := s4 + s22 - 2*s2*s2/n
	if den == 0 {
		return 0, false
	}
	curvature := (zx + zy - 2*s2*z0/n) / den
	if curvature >= 0 {
		return 0, false
	}
	return -2 * e / curvature, true
}

// classify returns the first band the shape falls outside of, or
// rejectNone.
func classify(s Shape, cfg Config) rejectReason {
	switch {
	case !cfg.Sharpness.Contains(s.Sharpness):
		return rejectSharpness
	case !cfg.Roundness1.Contains(s.Roundness1):
		return rejectRoundness1
	case !cfg.Roundness2.Contains(s.Roundness2):
		return rejectRoundness2
	}
	return rejectNone
}
