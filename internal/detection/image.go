package detection

import "math"

// Image is a 2-D array of floating-point intensities stored row-major.
//
// The pipeline treats an Image as immutable input. Pixel (x, y) lives at
// Pix[y*Width+x]; X increases rightward and Y increases downward.
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// NewImage allocates a zero-filled image.
func NewImage(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

// FromRows copies a slice of rows into a new Image.
//
// All rows must have the same, non-zero length. A ragged or empty input
// returns ErrInvalidParameter.
func FromRows(rows [][]float64) (*Image, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, invalidf("image must have at least one row and one column")
	}
	width := len(rows[0])
	img := NewImage(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, invalidf("row %d has %d columns, want %d", y, len(row), width)
		}
		copy(img.Pix[y*width:], row)
	}
	return img, nil
}

// At returns the value at (x, y). The caller must ensure the coordinates are
// inside the image.
func (m *Image) At(x, y int) float64 {
	return m.Pix[y*m.Width+x]
}

// Set stores v at (x, y).
func (m *Image) Set(x, y int, v float64) {
	m.Pix[y*m.Width+x] = v
}

// In reports whether (x, y) lies inside the image.
func (m *Image) In(x, y int) bool {
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

// Window copies the (2r+1)x(2r+1) square centred on (cx, cy) in row-major
// order. It returns false, without reading any pixel, when the square would
// extend past the image edge.
func (m *Image) Window(cx, cy, r int) ([]float64, bool) {
	if r < 0 || cx-r < 0 || cy-r < 0 || cx+r >= m.Width || cy+r >= m.Height {
		return nil, false
	}
	side := 2*r + 1
	out := make([]float64, 0, side*side)
	for y := cy - r; y <= cy+r; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		out = append(out, row[cx-r:cx+r+1]...)
	}
	return out, true
}

// SubImage copies the region [x1,x2) x [y1,y2) into a new Image.
func (m *Image) SubImage(x1, y1, x2, y2 int) (*Image, error) {
	if x1 < 0 || y1 < 0 || x2 > m.Width || y2 > m.Height {
		return nil, invalidf("region (%d,%d)-(%d,%d) outside image bounds (0,0)-(%d,%d)",
			x1, y1, x2, y2, m.Width, m.Height)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, invalidf("region requires x1 < x2 and y1 < y2")
	}
	out := NewImage(x2-x1, y2-y1)
	for y := y1; y < y2; y++ {
		copy(out.Pix[(y-y1)*out.Width:], m.Pix[y*m.Width+x1:y*m.Width+x2])
	}
	return out, nil
}

// Offset returns a copy of the image with v added to every pixel.
func (m *Image) Offset(v float64) *Image {
	out := NewImage(m.Width, m.Height)
	for i, p := range m.Pix {
		out.Pix[i] = p + v
	}
	return out
}

// Max returns the largest pixel value, or -Inf for an empty image.
func (m *Image) Max() float64 {
	max := math.Inf(-1)
	for _, p := range m.Pix {
		if p > max {
			max = p
		}
	}
	return max
}

func (m *Image) validate() error {
	if m == nil {
		return invalidf("image is nil")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return invalidf("image is empty (%dx%d)", m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height {
		return invalidf("image has %d pixels, want %dx%d", len(m.Pix), m.Width, m.Height)
	}
	return nil
}
