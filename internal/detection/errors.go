package detection

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is returned (wrapped) when a detection input fails
// validation: non-positive width, malformed bands, bad kernel or window
// sizes, or an empty or ragged image. Test for it with errors.Is.
var ErrInvalidParameter = errors.New("invalid parameter")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// rejectReason classifies why a candidate was dropped after extraction.
// Rejections are counted, never returned as errors.
type rejectReason int

const (
	rejectNone rejectReason = iota
	rejectDegenerate
	rejectSharpness
	rejectRoundness1
	rejectRoundness2
)

// Rejections counts candidates dropped by the shape discriminator and the
// table builder, keyed by cause.
type Rejections struct {
	// Degenerate counts candidates with a zero denominator in one of the
	// shape ratios, a window crossing the image edge, or a non-positive
	// background-subtracted peak.
	Degenerate int `json:"degenerate"`
	Sharpness  int `json:"sharpness"`
	Roundness1 int `json:"roundness1"`
	Roundness2 int `json:"roundness2"`
}

func (r *Rejections) add(reason rejectReason) {
	switch reason {
	case rejectDegenerate:
		r.Degenerate++
	case rejectSharpness:
		r.Sharpness++
	case rejectRoundness1:
		r.Roundness1++
	case rejectRoundness2:
		r.Roundness2++
	}
}

// Total returns the number of rejected candidates.
func (r Rejections) Total() int {
	return r.Degenerate + r.Sharpness + r.Roundness1 + r.Roundness2
}
