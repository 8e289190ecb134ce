package detection

import (
	"fmt"
	"strings"
)

// EdgeMode selects how the correlation treats pixels outside the image.
type EdgeMode int

const (
	// EdgeZero treats pixels outside the image as 0.
	EdgeZero EdgeMode = iota
	// EdgeReplicate clamps coordinates to the nearest border pixel.
	EdgeReplicate
)

func (e EdgeMode) String() string {
	switch e {
	case EdgeZero:
		return "zero"
	case EdgeReplicate:
		return "replicate"
	default:
		return fmt.Sprintf("EdgeMode(%d)", int(e))
	}
}

// ParseEdgeMode parses "zero" or "replicate". The empty string selects
// EdgeZero.
func ParseEdgeMode(s string) (EdgeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero", "constant":
		return EdgeZero, nil
	case "replicate", "nearest", "clamp":
		return EdgeReplicate, nil
	default:
		return EdgeZero, invalidf("unknown edge mode %q (want zero or replicate)", s)
	}
}

// Method selects the correlation algorithm.
type Method int

const (
	// MethodAuto uses direct correlation for kernels up to
	// DirectKernelLimit pixels wide and the FFT above that.
	MethodAuto Method = iota
	// MethodDirect always uses the O(N·K²) sliding window.
	MethodDirect
	// MethodFFT always uses frequency-domain correlation.
	MethodFFT
)

// DirectKernelLimit is the widest kernel MethodAuto correlates directly.
const DirectKernelLimit = 15

func (m Method) String() string {
	switch m {
	case MethodAuto:
		return "auto"
	case MethodDirect:
		return "direct"
	case MethodFFT:
		return "fft"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod parses "auto", "direct" or "fft". The empty string selects
// MethodAuto.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MethodAuto, nil
	case "direct":
		return MethodDirect, nil
	case "fft":
		return MethodFFT, nil
	default:
		return MethodAuto, invalidf("unknown correlation method %q (want auto, direct or fft)", s)
	}
}

// CorrelateOptions controls Correlate.
type CorrelateOptions struct {
	Edge   EdgeMode
	Method Method
}

// Correlate produces the matched-filter response of img to k.
//
// The output has the same shape as img. Each output pixel is
//
//	resp(x, y) = Σ_j Σ_i img(x+i, y+j) · Filter(i, j)
//
// with i, j running over [-Radius, Radius]. The kernel is not mirrored; the
// Gaussian filter is symmetric so this equals convolution. Out-of-image
// pixels follow opts.Edge.
//
// Both methods agree to floating-point tolerance; the choice only affects
// speed.
func Correlate(img *Image, k *Kernel, opts CorrelateOptions) (*Image, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	if k == nil {
		return nil, invalidf("kernel is nil")
	}
	if opts.Edge != EdgeZero && opts.Edge != EdgeReplicate {
		return nil, invalidf("unknown edge mode %d", int(opts.Edge))
	}

	switch opts.Method {
	case MethodAuto:
		if k.Size <= DirectKernelLimit {
			return correlateDirect(img, k.Filter, k.Size, opts.Edge), nil
		}
		return correlateFFT(img, k.Filter, k.Size, opts.Edge), nil
	case MethodDirect:
		return correlateDirect(img, k.Filter, k.Size, opts.Edge), nil
	case MethodFFT:
		return correlateFFT(img, k.Filter, k.Size, opts.Edge), nil
	default:
		return nil, invalidf("unknown correlation method %d", int(opts.Method))
	}
}

// correlateDirect slides a size x size weight window over the image.
// EdgeReplicate reads clamped coordinates; EdgeZero skips them.
func correlateDirect(img *Image, weights []float64, size int, edge EdgeMode) *Image {
	r := size / 2
	width, height := img.Width, img.Height
	out := NewImage(width, height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for j := -r; j <= r; j++ {
				py := y + j
				if py < 0 || py >= height {
					if edge == EdgeZero {
						continue
					}
					py = clamp(py, 0, height-1)
				}
				row := img.Pix[py*width : (py+1)*width]
				wrow := weights[(j+r)*size : (j+r+1)*size]
				for i := -r; i <= r; i++ {
					px := x + i
					if px < 0 || px >= width {
						if edge == EdgeZero {
							continue
						}
						px = clamp(px, 0, width-1)
					}
					sum += row[px] * wrow[i+r]
				}
			}
			out.Pix[y*width+x] = sum
		}
	}
	return out
}

// padReplicate returns img grown by r pixels on every side, the border
// filled with clamped copies of the edge pixels.
func padReplicate(img *Image, r int) *Image {
	out := NewImage(img.Width+2*r, img.Height+2*r)
	for y := 0; y < out.Height; y++ {
		sy := clamp(y-r, 0, img.Height-1)
		for x := 0; x < out.Width; x++ {
			sx := clamp(x-r, 0, img.Width-1)
			out.Pix[y*out.Width+x] = img.Pix[sy*img.Width+sx]
		}
	}
	return out
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
