package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/starfind-mcp/internal/detection"
)

// MaxPreviewSide bounds the width and height of a preview and the marker
// radius, in output pixels.
const MaxPreviewSide = 8192

// AnnotateOptions controls Annotate.
type AnnotateOptions struct {
	// Gamma brightens faint sky when < 1. 0 or 1 leaves tones unchanged.
	Gamma float64

	// Scale resizes the preview before markers are drawn. 0 means 1.
	Scale float64

	// Radius is the marker circle radius in output pixels. 0 uses 6.
	Radius int

	// GridSpacing draws a coordinate grid every GridSpacing source pixels
	// when > 0.
	GridSpacing int

	// BrightColor and FaintColor are the hex endpoints of the marker
	// colour ramp, assigned by magnitude. Empty strings use gold and
	// sky blue.
	BrightColor string
	FaintColor  string

	// Labels draws each row's ID next to its marker.
	Labels bool
}

// AnnotateResult contains the annotated preview.
type AnnotateResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Markers     int    `json:"markers"`
}

// Annotate renders a grayscale preview of img with a circle (and optional
// ID label) at each detection.
//
// Detection coordinates are in img's coordinate space (relative to its
// Bounds().Min). Marker colour blends in HCL space from BrightColor for
// the lowest magnitude to FaintColor for the highest; rows without a
// magnitude use FaintColor.
//
// # Pipeline
//
//  1. Grayscale conversion (disintegration/imaging)
//  2. Optional gamma stretch (bild/adjust)
//  3. Optional resize with Lanczos resampling
//  4. Grid lines, markers and labels drawn on an RGBA canvas
//  5. PNG encoding, returned as base64
func Annotate(img image.Image, rows []detection.Detection, opts AnnotateOptions) (*AnnotateResult, error) {
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("scale must be > 0, got %g", scale)
	}
	radius := opts.Radius
	if radius <= 0 {
		radius = 6
	}
	if radius > MaxPreviewSide {
		return nil, fmt.Errorf("marker radius %d exceeds %d", radius, MaxPreviewSide)
	}

	bright, err := colorful.Hex(defaultString(opts.BrightColor, "#ffd700"))
	if err != nil {
		return nil, fmt.Errorf("invalid bright color: %w", err)
	}
	faint, err := colorful.Hex(defaultString(opts.FaintColor, "#00bfff"))
	if err != nil {
		return nil, fmt.Errorf("invalid faint color: %w", err)
	}

	var base image.Image = imaging.Grayscale(img)
	if opts.Gamma > 0 && opts.Gamma != 1 {
		base = adjust.Gamma(base, opts.Gamma)
	}
	if scale != 1 {
		fw := float64(img.Bounds().Dx()) * scale
		fh := float64(img.Bounds().Dy()) * scale
		if fw > MaxPreviewSide || fh > MaxPreviewSide {
			return nil, fmt.Errorf("scale %g gives a %.0fx%.0f preview, larger than %d per side", scale, fw, fh, MaxPreviewSide)
		}
		w, h := int(fw), int(fh)
		if w < 1 || h < 1 {
			return nil, fmt.Errorf("scale %g produces an empty image", scale)
		}
		base = imaging.Resize(base, w, h, imaging.Lanczos)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, base.Bounds().Dx(), base.Bounds().Dy()))
	draw.Draw(canvas, canvas.Bounds(), base, base.Bounds().Min, draw.Src)

	if opts.GridSpacing > 0 {
		drawGrid(canvas, opts.GridSpacing, scale, color.RGBA{255, 0, 0, 255})
	}

	minMag, maxMag := magnitudeRange(rows)
	for _, d := range rows {
		t := 1.0
		if d.Mag != nil && maxMag > minMag {
			t = (*d.Mag - minMag) / (maxMag - minMag)
		} else if d.Mag != nil {
			t = 0
		}
		marker := bright.BlendHcl(faint, t).Clamped()

		cx := int(d.XCen*scale + scale/2)
		cy := int(d.YCen*scale + scale/2)
		drawCircle(canvas, cx, cy, radius, marker)
		if opts.Labels {
			drawLabel(canvas, cx+radius+2, cy-radius, strconv.Itoa(d.ID), marker)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}

	return &AnnotateResult{
		Width:       canvas.Bounds().Dx(),
		Height:      canvas.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
		Markers:     len(rows),
	}, nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func magnitudeRange(rows []detection.Detection) (float64, float64) {
	first := true
	var lo, hi float64
	for _, d := range rows {
		if d.Mag == nil {
			continue
		}
		if first || *d.Mag < lo {
			lo = *d.Mag
		}
		if first || *d.Mag > hi {
			hi = *d.Mag
		}
		first = false
	}
	return lo, hi
}

// drawGrid draws lines every spacing source pixels.
func drawGrid(img *image.RGBA, spacing int, scale float64, c color.RGBA) {
	bounds := img.Bounds()
	step := float64(spacing) * scale
	if step < 1 {
		return
	}
	for fx := step; int(fx) < bounds.Dx(); fx += step {
		x := int(fx)
		for y := 0; y < bounds.Dy(); y++ {
			img.Set(x, y, c)
		}
	}
	for fy := step; int(fy) < bounds.Dy(); fy += step {
		y := int(fy)
		for x := 0; x < bounds.Dx(); x++ {
			img.Set(x, y, c)
		}
	}
}

// drawCircle draws a circle outline using the midpoint algorithm. Pixels
// outside the image are skipped.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.Color) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		if err <= 0 {
			y++
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

// drawLabel draws text with its top-left corner at (x, y) using the 7x13
// basic font.
func drawLabel(img *image.RGBA, x, y int, text string, c color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + face.Ascent)},
	}
	d.DrawString(text)
}
