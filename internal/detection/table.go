package detection

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
)

// Columns is the fixed column order of a rendered ResultTable.
var Columns = []string{"id", "xcen", "ycen", "sharp", "round1", "round2", "npix", "sky", "peak", "flux", "mag"}

// Detection is one accepted source.
type Detection struct {
	// ID numbers rows from 1 in scan order.
	ID int `json:"id"`

	// XCen, YCen are the integer peak pixel of the filter response.
	XCen float64 `json:"xcen"`
	YCen float64 `json:"ycen"`

	Sharpness  float64 `json:"sharp"`
	Roundness1 float64 `json:"round1"`
	Roundness2 float64 `json:"round2"`

	// NPix is the number of pixels in the photometry box.
	NPix int `json:"npix"`

	// Sky is the median of the photometry box's outer ring.
	Sky float64 `json:"sky"`

	// Peak is the centre pixel minus Sky. Always > 0.
	Peak float64 `json:"peak"`

	// Flux is the sky-subtracted sum over the photometry box, which is
	// wider than the shape window. For an isolated Gaussian of amplitude A
	// it approaches the volume 2πσ²A as the box grows.
	Flux float64 `json:"flux"`

	// Mag is -2.5·log10(Flux), nil when Flux <= 0.
	Mag *float64 `json:"mag"`
}

// ResultTable is the ordered output of a detection run.
type ResultTable struct {
	Rows     []Detection `json:"rows"`
	Rejected Rejections  `json:"rejected"`
}

// Len returns the number of rows.
func (t *ResultTable) Len() int {
	return len(t.Rows)
}

// Measured is a candidate that passed the shape bands.
type Measured struct {
	Candidate
	Shape
}

// PhotometryRadius returns the default photometry box half-size for a
// kernel: max(ceil(4σ), radius+1).
func PhotometryRadius(k *Kernel) int {
	hp := int(math.Ceil(4 * k.Sigma))
	if hp < k.Radius+1 {
		hp = k.Radius + 1
	}
	return hp
}

// BuildTable turns shape-accepted candidates into rows.
//
// For each candidate a (2hp+1)² box centred on the peak pixel is read from
// img. The sky is the median of the box's outer ring (pixels at Chebyshev
// distance hp), the flux is the box sum minus sky·npix and the magnitude is
// -2.5·log10(flux). Candidates whose box leaves the image, or whose peak is
// not above the sky, are counted as degenerate and dropped.
//
// When maxSources > 0 only the maxSources rows with the largest flux are
// kept, still in scan order. IDs are assigned last so they stay contiguous.
func BuildTable(img *Image, measured []Measured, hp, maxSources int) *ResultTable {
	table := &ResultTable{Rows: make([]Detection, 0, len(measured))}
	if hp < 1 {
		table.Rejected.Degenerate += len(measured)
		return table
	}

	for _, m := range measured {
		box, ok := img.Window(m.X, m.Y, hp)
		if !ok {
			table.Rejected.add(rejectDegenerate)
			continue
		}
		sky := ringMedian(box, hp)
		side := 2*hp + 1
		peak := box[hp*side+hp] - sky
		if !(peak > 0) {
			table.Rejected.add(rejectDegenerate)
			continue
		}

		var total float64
		for _, v := range box {
			total += v
		}
		npix := side * side
		flux := total - sky*float64(npix)

		table.Rows = append(table.Rows, Detection{
			XCen:       float64(m.X),
			YCen:       float64(m.Y),
			Sharpness:  m.Sharpness,
			Roundness1: m.Roundness1,
			Roundness2: m.Roundness2,
			NPix:       npix,
			Sky:        sky,
			Peak:       peak,
			Flux:       flux,
			Mag:        magnitude(flux),
		})
	}

	if maxSources > 0 && len(table.Rows) > maxSources {
		table.Rows = brightest(table.Rows, maxSources)
	}
	for i := range table.Rows {
		table.Rows[i].ID = i + 1
	}
	return table
}

func magnitude(flux float64) *float64 {
	if !(flux > 0) {
		return nil
	}
	m := -2.5 * math.Log10(flux)
	return &m
}

// ringMedian returns the median of the pixels on the border of a square
// box of half-size hp. An even count averages the two middle values.
func ringMedian(box []float64, hp int) float64 {
	side := 2*hp + 1
	ring := make([]float64, 0, 8*hp)
	for j := 0; j < side; j++ {
		for i := 0; i < side; i++ {
			if j == 0 || j == side-1 || i == 0 || i == side-1 {
				ring = append(ring, box[j*side+i])
			}
		}
	}
	return median(ring)
}

// median sorts values in place.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// brightest keeps the n highest-flux rows and restores scan order.
func brightest(rows []Detection, n int) []Detection {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return rows[idx[a]].Flux > rows[idx[b]].Flux
	})
	keep := idx[:n]
	sort.Ints(keep)

	out := make([]Detection, 0, n)
	for _, i := range keep {
		out = append(out, rows[i])
	}
	return out
}

// WriteText renders the table as whitespace-aligned columns with a header
// line. A missing magnitude prints as "--".
func (t *ResultTable) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, name := range Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, name)
	}
	fmt.Fprintln(tw, "\t")

	for _, d := range t.Rows {
		mag := "--"
		if d.Mag != nil {
			mag = fmt.Sprintf("%.4f", *d.Mag)
		}
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.4f\t%.4f\t%.4f\t%d\t%.4f\t%.4f\t%.4f\t%s\t\n",
			d.ID, d.XCen, d.YCen, d.Sharpness, d.Roundness1, d.Roundness2,
			d.NPix, d.Sky, d.Peak, d.Flux, mag)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write result table: %w", err)
	}
	return nil
}

// Text returns WriteText's output as a string.
func (t *ResultTable) Text() string {
	var sb strings.Builder
	_ = t.WriteText(&sb)
	return sb.String()
}
