package detection

// Candidate is a local maximum of the filter response awaiting shape tests.
type Candidate struct {
	X        int
	Y        int
	Response float64

	// Cutout is the raw-image window around (X, Y), row-major, filled in by
	// the pipeline before shape measurement. Nil when the window would
	// cross the image edge.
	Cutout []float64
}

// FindLocalMaxima returns the pixels of resp that exceed threshold and are
// not exceeded anywhere in the (2*radius+1)² square around them.
//
// Pixels whose square would leave the image are never candidates; nothing
// outside the image is compared. When two pixels in the same square share
// the maximum value, the one earlier in row-major order wins and the later
// one is suppressed. Results are in row-major scan order. An empty slice is
// returned, never an error, when nothing qualifies.
func FindLocalMaxima(resp *Image, threshold float64, radius int) []Candidate {
	candidates := make([]Candidate, 0)
	if resp == nil || radius < 0 {
		return candidates
	}
	width, height := resp.Width, resp.Height

	for y := radius; y < height-radius; y++ {
		for x := radius; x < width-radius; x++ {
			v := resp.Pix[y*width+x]
			if !(v > threshold) {
				continue
			}
			if isLocalMax(resp, x, y, radius, v) {
				candidates = append(candidates, Candidate{X: x, Y: y, Response: v})
			}
		}
	}
	return candidates
}

func isLocalMax(resp *Image, x, y, radius int, v float64) bool {
	width := resp.Width
	for dy := -radius; dy <= radius; dy++ {
		row := resp.Pix[(y+dy)*width : (y+dy+1)*width]
		for dx := -radius; dx <= radius; dx++ {
			if dy == 0 && dx == 0 {
				continue
			}
			n := row[x+dx]
			if n > v {
				return false
			}
			// An equal neighbour seen earlier in the scan keeps the peak.
			if n == v && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}
