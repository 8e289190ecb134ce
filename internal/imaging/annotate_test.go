package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/ironsheep/starfind-mcp/internal/detection"
)

func decodeAnnotation(t *testing.T, res *AnnotateResult) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(res.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	return img
}

func mag(v float64) *float64 { return &v }

func TestAnnotate_Markers(t *testing.T) {
	frame := starFrame(64, 64, 100, 32, 32, 3000, 2)
	rows := []detection.Detection{
		{ID: 1, XCen: 32, YCen: 32, Mag: mag(-8)},
		{ID: 2, XCen: 10, YCen: 10, Mag: mag(-5)},
		{ID: 3, XCen: 50, YCen: 12},
	}

	res, err := Annotate(frame, rows, AnnotateOptions{Radius: 5, Labels: true})
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if res.Width != 64 || res.Height != 64 {
		t.Errorf("size = %dx%d, want 64x64", res.Width, res.Height)
	}
	if res.Markers != 3 {
		t.Errorf("Markers = %d, want 3", res.Markers)
	}
	if res.MimeType != "image/png" {
		t.Errorf("MimeType = %s", res.MimeType)
	}

	img := decodeAnnotation(t, res)
	// Rightmost point of the circle around the brightest star is gold.
	r, g, b, _ := img.At(32+5, 32).RGBA()
	if r>>8 < 200 || g>>8 < 150 || b>>8 > 100 {
		t.Errorf("bright marker colour = (%d,%d,%d), want gold", r>>8, g>>8, b>>8)
	}
	// Sky inside the faint marker stays gray.
	r, g, b, _ = img.At(10, 10).RGBA()
	if r != g || g != b {
		t.Errorf("marker centre should be untouched gray, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestAnnotate_Scale(t *testing.T) {
	frame := starFrame(40, 30, 100, 20, 15, 1000, 1.5)
	res, err := Annotate(frame, nil, AnnotateOptions{Scale: 2, Gamma: 0.5, GridSpacing: 10})
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if res.Width != 80 || res.Height != 60 {
		t.Errorf("size = %dx%d, want 80x60", res.Width, res.Height)
	}
	img := decodeAnnotation(t, res)
	if img.Bounds().Dx() != 80 {
		t.Errorf("decoded width = %d, want 80", img.Bounds().Dx())
	}
	// Grid line at source x=10 lands on output x=20.
	r, g, _, _ := img.At(20, 3).RGBA()
	if r <= g {
		t.Errorf("expected a red grid line at x=20, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestAnnotate_InvalidOptions(t *testing.T) {
	frame := starFrame(16, 16, 0, 8, 8, 100, 1)

	if _, err := Annotate(frame, nil, AnnotateOptions{BrightColor: "not-a-colour"}); err == nil {
		t.Error("Annotate should reject an invalid bright colour")
	}
	if _, err := Annotate(frame, nil, AnnotateOptions{FaintColor: "#12"}); err == nil {
		t.Error("Annotate should reject an invalid faint colour")
	}
	if _, err := Annotate(frame, nil, AnnotateOptions{Scale: -1}); err == nil {
		t.Error("Annotate should reject a negative scale")
	}
	if _, err := Annotate(frame, nil, AnnotateOptions{Scale: 0.01}); err == nil {
		t.Error("Annotate should reject a scale that empties the image")
	}
	if _, err := Annotate(frame, nil, AnnotateOptions{Scale: math.NaN()}); err == nil {
		t.Error("Annotate should reject a NaN scale")
	}
	if _, err := Annotate(frame, nil, AnnotateOptions{Scale: 1e9}); err == nil {
		t.Error("Annotate should reject a scale past MaxPreviewSide")
	}
	if _, err := Annotate(frame, nil, AnnotateOptions{Radius: MaxPreviewSide + 1}); err == nil {
		t.Error("Annotate should reject a marker radius past MaxPreviewSide")
	}
}

func TestMagnitudeRange(t *testing.T) {
	rows := []detection.Detection{{Mag: mag(-3)}, {}, {Mag: mag(-7)}, {Mag: mag(-4)}}
	lo, hi := magnitudeRange(rows)
	if lo != -7 || hi != -3 {
		t.Errorf("range = [%v, %v], want [-7, -3]", lo, hi)
	}
}
