package detection

import "math"

// DefaultSigmaRadius is the kernel half-width, in units of sigma, used when
// the kernel size is derived from the width. The derived radius is never
// smaller than 2 pixels.
const DefaultSigmaRadius = 1.5

// MaxKernelRadius bounds kernel half-widths, derived or explicit.
const MaxKernelRadius = 1 << 12

// Kernel is a square, odd-sized Gaussian matched filter.
//
// Gaussian holds the profile with its centre weight normalised to 1.
// Filter holds the flux-scale corrected weights
//
//	Filter = (Gaussian - mean(Gaussian)) / (sum(Gaussian²) - sum(Gaussian)²/n)
//
// which sum to zero. Correlating an image with Filter gives, at each pixel,
// the least-squares amplitude of a Gaussian of width Sigma sitting on a
// constant background, so the response is expressed in image units and is
// blind to flat sky.
type Kernel struct {
	Sigma    float64
	Size     int
	Radius   int
	Gaussian []float64
	Filter   []float64

	// RelErr is 1/sqrt(denominator) of the filter normalisation; it scales
	// per-pixel noise into response noise.
	RelErr float64
}

// NewKernel builds a matched filter for the given width (standard deviation).
//
// A size of 0 derives the size from sigma using DefaultSigmaRadius. An
// explicit size must be odd, at least 3 and at most 2·MaxKernelRadius+1.
func NewKernel(sigma float64, size int) (*Kernel, error) {
	return NewKernelRadius(sigma, DefaultSigmaRadius, size)
}

// NewKernelRadius is NewKernel with an explicit sigma radius for the derived
// size.
func NewKernelRadius(sigma, sigmaRadius float64, size int) (*Kernel, error) {
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma <= 0 {
		return nil, invalidf("kernel width must be > 0, got %g", sigma)
	}
	if size == 0 {
		if math.IsNaN(sigmaRadius) || sigmaRadius <= 0 {
			return nil, invalidf("sigma radius must be > 0, got %g", sigmaRadius)
		}
		radius := math.Max(2, sigmaRadius*sigma)
		if radius > MaxKernelRadius {
			return nil, invalidf("derived kernel radius %g is too large", radius)
		}
		size = 2*int(radius) + 1
	}
	if size < 3 || size%2 == 0 {
		return nil, invalidf("kernel size must be odd and >= 3, got %d", size)
	}
	if size > 2*MaxKernelRadius+1 {
		return nil, invalidf("kernel size %d exceeds %d", size, 2*MaxKernelRadius+1)
	}

	r := size / 2
	n := size * size
	gauss := make([]float64, n)
	var sum, sumSq float64
	for j := -r; j <= r; j++ {
		for i := -r; i <= r; i++ {
			g := math.Exp(-float64(i*i+j*j) / (2 * sigma * sigma))
			gauss[(j+r)*size+i+r] = g
			sum += g
			sumSq += g * g
		}
	}

	mean := sum / float64(n)
	denom := sumSq - sum*sum/float64(n)
	if !(denom > 0) {
		return nil, invalidf("kernel of width %g and size %d has no contrast", sigma, size)
	}

	filter := make([]float64, n)
	for k, g := range gauss {
		filter[k] = (g - mean) / denom
	}

	return &Kernel{
		Sigma:    sigma,
		Size:     size,
		Radius:   r,
		Gaussian: gauss,
		Filter:   filter,
		RelErr:   1 / math.Sqrt(denom),
	}, nil
}

// Rows returns the filter weights as a slice of rows.
func (k *Kernel) Rows() [][]float64 {
	rows := make([][]float64, k.Size)
	for j := range rows {
		rows[j] = append([]float64(nil), k.Filter[j*k.Size:(j+1)*k.Size]...)
	}
	return rows
}

// FWHMToSigma converts a full width at half maximum to a Gaussian standard
// deviation.
func FWHMToSigma(fwhm float64) float64 {
	return fwhm / (2 * math.Sqrt(2*math.Ln2))
}
