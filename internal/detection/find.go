package detection

import "math"

// Config holds every tunable of a detection run. The zero value is not
// useful; start from DefaultConfig and adjust with the With methods, which
// return modified copies.
type Config struct {
	// Sharpness, Roundness1 and Roundness2 are the inclusive acceptance
	// bands of the shape statistics.
	Sharpness  Band `json:"sharpness"`
	Roundness1 Band `json:"roundness1"`
	Roundness2 Band `json:"roundness2"`

	// KernelSize overrides the derived kernel width. 0 derives it from
	// sigma and SigmaRadius; otherwise it must be odd and >= 3.
	KernelSize int `json:"kernel_size"`

	// SigmaRadius is the kernel half-width in sigmas when KernelSize is 0.
	SigmaRadius float64 `json:"sigma_radius"`

	// NeighborhoodSize is the odd width of the raw-pixel window used for
	// shape statistics. 0 uses the kernel size.
	NeighborhoodSize int `json:"neighborhood_size"`

	// SearchRadius is the local-maximum half-width. 0 uses the kernel
	// radius.
	SearchRadius int `json:"search_radius"`

	// PhotometryRadius is the half-width of the sky/flux box. 0 uses
	// max(ceil(4σ), kernel radius+1).
	PhotometryRadius int `json:"photometry_radius"`

	// MaxSources keeps only the brightest rows when > 0.
	MaxSources int `json:"max_sources"`

	Edge   EdgeMode `json:"edge"`
	Method Method   `json:"method"`
}

// DefaultConfig returns the DAOFIND defaults: sharpness in [0.2, 1.0],
// both roundness statistics in [-1, 1], a kernel 1.5σ in radius, zero
// padding and automatic choice of correlation method.
func DefaultConfig() Config {
	return Config{
		Sharpness:   Band{Min: 0.2, Max: 1.0},
		Roundness1:  Band{Min: -1, Max: 1},
		Roundness2:  Band{Min: -1, Max: 1},
		SigmaRadius: DefaultSigmaRadius,
		Edge:        EdgeZero,
		Method:      MethodAuto,
	}
}

// WithSharpness sets the sharpness band.
func (c Config) WithSharpness(min, max float64) Config {
	c.Sharpness = Band{Min: min, Max: max}
	return c
}

// WithRoundness1 sets the marginal-fit roundness band.
func (c Config) WithRoundness1(min, max float64) Config {
	c.Roundness1 = Band{Min: min, Max: max}
	return c
}

// WithRoundness2 sets the quadric-fit roundness band.
func (c Config) WithRoundness2(min, max float64) Config {
	c.Roundness2 = Band{Min: min, Max: max}
	return c
}

// WithRoundness sets both roundness bands.
func (c Config) WithRoundness(min, max float64) Config {
	return c.WithRoundness1(min, max).WithRoundness2(min, max)
}

func (c Config) WithKernelSize(size int) Config {
	c.KernelSize = size
	return c
}

func (c Config) WithSigmaRadius(r float64) Config {
	c.SigmaRadius = r
	return c
}

func (c Config) WithNeighborhoodSize(size int) Config {
	c.NeighborhoodSize = size
	return c
}

func (c Config) WithSearchRadius(r int) Config {
	c.SearchRadius = r
	return c
}

func (c Config) WithPhotometryRadius(r int) Config {
	c.PhotometryRadius = r
	return c
}

func (c Config) WithMaxSources(n int) Config {
	c.MaxSources = n
	return c
}

func (c Config) WithEdge(e EdgeMode) Config {
	c.Edge = e
	return c
}

func (c Config) WithMethod(m Method) Config {
	c.Method = m
	return c
}

// Validate checks the configuration without building a kernel.
func (c Config) Validate() error {
	if err := c.Sharpness.validate("sharpness"); err != nil {
		return err
	}
	if err := c.Roundness1.validate("roundness1"); err != nil {
		return err
	}
	if err := c.Roundness2.validate("roundness2"); err != nil {
		return err
	}
	if c.KernelSize < 0 {
		return invalidf("kernel size must be >= 0, got %d", c.KernelSize)
	}
	if c.NeighborhoodSize != 0 && (c.NeighborhoodSize < 3 || c.NeighborhoodSize%2 == 0) {
		return invalidf("neighborhood size must be odd and >= 3, got %d", c.NeighborhoodSize)
	}
	if c.SearchRadius < 0 {
		return invalidf("search radius must be >= 0, got %d", c.SearchRadius)
	}
	if c.PhotometryRadius < 0 {
		return invalidf("photometry radius must be >= 0, got %d", c.PhotometryRadius)
	}
	if c.MaxSources < 0 {
		return invalidf("max sources must be >= 0, got %d", c.MaxSources)
	}
	if c.Edge != EdgeZero && c.Edge != EdgeReplicate {
		return invalidf("unknown edge mode %d", int(c.Edge))
	}
	if c.Method < MethodAuto || c.Method > MethodFFT {
		return invalidf("unknown correlation method %d", int(c.Method))
	}
	return nil
}

// Finder runs the detection pipeline with a fixed threshold, width and
// configuration. The kernel is built once in NewFinder. A Finder holds no
// mutable state and is safe for concurrent use.
type Finder struct {
	threshold  float64
	kernel     *Kernel
	cfg        Config
	halfSize   int
	search     int
	photRadius int
}

// NewFinder validates the parameters and builds the matched filter.
//
// Parameters:
//   - threshold: minimum filter response (image units) for a candidate.
//   - sigma: Gaussian standard deviation of the sources, in pixels.
//   - cfg: bands, sizes and correlation options.
//
// Every validation failure wraps ErrInvalidParameter.
func NewFinder(threshold, sigma float64, cfg Config) (*Finder, error) {
	if math.IsNaN(threshold) {
		return nil, invalidf("threshold is NaN")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sigmaRadius := cfg.SigmaRadius
	if sigmaRadius == 0 {
		sigmaRadius = DefaultSigmaRadius
	}
	k, err := NewKernelRadius(sigma, sigmaRadius, cfg.KernelSize)
	if err != nil {
		return nil, err
	}

	f := &Finder{
		threshold:  threshold,
		kernel:     k,
		cfg:        cfg,
		halfSize:   k.Radius,
		search:     k.Radius,
		photRadius: PhotometryRadius(k),
	}
	if cfg.NeighborhoodSize > 0 {
		f.halfSize = cfg.NeighborhoodSize / 2
	}
	if cfg.SearchRadius > 0 {
		f.search = cfg.SearchRadius
	}
	if cfg.PhotometryRadius > 0 {
		f.photRadius = cfg.PhotometryRadius
	}
	return f, nil
}

// Kernel returns the matched filter. Callers must not modify it.
func (f *Finder) Kernel() *Kernel {
	return f.kernel
}

// Threshold returns the response threshold.
func (f *Finder) Threshold() float64 {
	return f.threshold
}

// Config returns the configuration the Finder was built with.
func (f *Finder) Config() Config {
	return f.cfg
}

// Find runs the pipeline on img.
//
// # Pipeline
//
//  1. Correlate img with the matched filter (see Correlate).
//  2. Extract local maxima of the response above the threshold.
//  3. Measure sharpness and both roundness statistics on the raw window;
//     drop degenerate candidates and those outside a band.
//  4. Build rows: ring-median sky, sky-subtracted box flux, magnitude.
//
// An image with no qualifying source yields an empty table, not an error.
// Dropped candidates are counted in ResultTable.Rejected.
func (f *Finder) Find(img *Image) (*ResultTable, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}

	resp, err := Correlate(img, f.kernel, CorrelateOptions{Edge: f.cfg.Edge, Method: f.cfg.Method})
	if err != nil {
		return nil, err
	}

	var rejected Rejections
	measured := make([]Measured, 0)
	for _, c := range FindLocalMaxima(resp, f.threshold, f.search) {
		cutout, ok := img.Window(c.X, c.Y, f.halfSize)
		if !ok {
			rejected.add(rejectDegenerate)
			continue
		}
		c.Cutout = cutout

		shape, ok := MeasureShape(img, c, f.kernel.Sigma, f.halfSize)
		if !ok {
			rejected.add(rejectDegenerate)
			continue
		}
		if reason := classify(shape, f.cfg); reason != rejectNone {
			rejected.add(reason)
			continue
		}
		measured = append(measured, Measured{Candidate: c, Shape: shape})
	}

	table := BuildTable(img, measured, f.photRadius, f.cfg.MaxSources)
	table.Rejected.Degenerate += rejected.Degenerate
	table.Rejected.Sharpness += rejected.Sharpness
	table.Rejected.Roundness1 += rejected.Roundness1
	table.Rejected.Roundness2 += rejected.Roundness2
	return table, nil
}

// Find validates its arguments, builds a Finder and runs it once on img.
func Find(img *Image, threshold, sigma float64, cfg Config) (*ResultTable, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	f, err := NewFinder(threshold, sigma, cfg)
	if err != nil {
		return nil, err
	}
	return f.Find(img)
}
