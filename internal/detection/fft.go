package detection

import "gonum.org/v1/gonum/dsp/fourier"

// correlateFFT computes the same response as correlateDirect in the
// frequency domain.
//
// The image (padded by replication first for EdgeReplicate) and the
// flipped kernel are zero-padded to power-of-two sides of at least
// side+2r, which makes the circular convolution equal to the linear one.
// The response for pixel (x, y) is then read at (x+off+r, y+off+r) where
// off is the replication margin.
func correlateFFT(img *Image, weights []float64, size int, edge EdgeMode) *Image {
	r := size / 2
	src, off := img, 0
	if edge == EdgeReplicate {
		src, off = padReplicate(img, r), r
	}

	pw := nextPow2(src.Width + 2*r)
	ph := nextPow2(src.Height + 2*r)
	plan := newPlan2D(pw, ph)

	a := make([]complex128, pw*ph)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			a[y*pw+x] = complex(src.Pix[y*src.Width+x], 0)
		}
	}
	b := make([]complex128, pw*ph)
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			b[j*pw+i] = complex(weights[(size-1-j)*size+(size-1-i)], 0)
		}
	}

	plan.forward(a)
	plan.forward(b)
	for i := range a {
		a[i] *= b[i]
	}
	plan.inverse(a)

	out := NewImage(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		base := (y + off + r) * pw
		for x := 0; x < img.Width; x++ {
			out.Pix[y*img.Width+x] = real(a[base+x+off+r])
		}
	}
	return out
}

// plan2D runs separable 2-D transforms over a row-major pw x ph grid.
type plan2D struct {
	pw, ph   int
	rows     *fourier.CmplxFFT
	cols     *fourier.CmplxFFT
	rowBuf   []complex128
	colBuf   []complex128
	colOut   []complex128
	invScale float64
}

func newPlan2D(pw, ph int) *plan2D {
	rows := fourier.NewCmplxFFT(pw)
	cols := fourier.NewCmplxFFT(ph)
	return &plan2D{
		pw:       pw,
		ph:       ph,
		rows:     rows,
		cols:     cols,
		rowBuf:   make([]complex128, pw),
		colBuf:   make([]complex128, ph),
		colOut:   make([]complex128, ph),
		invScale: 1 / (roundTripGain(rows, pw) * roundTripGain(cols, ph)),
	}
}

// roundTripGain measures the factor Sequence(Coefficients(x)) applies to x,
// so the inverse can be normalised without relying on the library's scaling
// convention.
func roundTripGain(f *fourier.CmplxFFT, n int) float64 {
	impulse := make([]complex128, n)
	impulse[0] = 1
	coeff := f.Coefficients(nil, impulse)
	seq := f.Sequence(nil, coeff)
	return real(seq[0])
}

func (p *plan2D) forward(data []complex128) {
	p.apply(data, p.rows.Coefficients, p.cols.Coefficients)
}

func (p *plan2D) inverse(data []complex128) {
	p.apply(data, p.rows.Sequence, p.cols.Sequence)
	for i := range data {
		data[i] *= complex(p.invScale, 0)
	}
}

func (p *plan2D) apply(data []complex128, rowFn, colFn func(dst, src []complex128) []complex128) {
	for y := 0; y < p.ph; y++ {
		row := data[y*p.pw : (y+1)*p.pw]
		copy(p.rowBuf, row)
		rowFn(row, p.rowBuf)
	}
	for x := 0; x < p.pw; x++ {
		for y := 0; y < p.ph; y++ {
			p.colBuf[y] = data[y*p.pw+x]
		}
		colFn(p.colOut, p.colBuf)
		for y := 0; y < p.ph; y++ {
			data[y*p.pw+x] = p.colOut[y]
		}
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
