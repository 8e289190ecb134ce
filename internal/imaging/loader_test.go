package imaging

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/tiff"
)

// starFrame builds a 16-bit frame with a flat sky and one Gaussian star.
func starFrame(width, height, sky int, cx, cy, amplitude, sigma float64) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			v := float64(sky) + amplitude*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v + 0.5)})
		}
	}
	return img
}

// writeFrame encodes img into dir/name as PNG or TIFF depending on the
// extension and returns the path.
func writeFrame(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	switch filepath.Ext(name) {
	case ".tif", ".tiff", ".TIF":
		err = tiff.Encode(f, img, nil)
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
	return path
}

func TestNewImageCache(t *testing.T) {
	cache := NewImageCache()
	if cache == nil {
		t.Fatal("NewImageCache returned nil")
	}
	if cache.Len() != 0 {
		t.Fatalf("new cache has %d entries, want 0", cache.Len())
	}
}

func TestImageCache_Load(t *testing.T) {
	cache := NewImageCache()
	path := writeFrame(t, t.TempDir(), "frame.png", starFrame(64, 48, 1000, 20, 20, 5000, 2))

	img1, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	bounds := img1.Bounds()
	if bounds.Dx() != 64 || bounds.Dy() != 48 {
		t.Errorf("unexpected dimensions: got %dx%d, want 64x48", bounds.Dx(), bounds.Dy())
	}

	img2, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if img1 != img2 {
		t.Error("second Load did not return cached image")
	}
	if cache.Len() != 1 {
		t.Errorf("cache has %d entries, want 1", cache.Len())
	}
}

func TestImageCache_LoadTIFF(t *testing.T) {
	cache := NewImageCache()
	path := writeFrame(t, t.TempDir(), "frame.tiff", starFrame(32, 32, 500, 16, 16, 20000, 1.5))

	img, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	g, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("decoded %T, want *image.Gray16", img)
	}
	if got := g.Gray16At(16, 16).Y; got != 20500 {
		t.Errorf("peak pixel = %d, want 20500", got)
	}
}

func TestImageCache_Load_NonExistent(t *testing.T) {
	cache := NewImageCache()
	if _, err := cache.Load("/nonexistent/path/to/frame.png"); err == nil {
		t.Error("Load should fail for non-existent file")
	}
}

func TestImageCache_Load_InvalidImage(t *testing.T) {
	cache := NewImageCache()
	path := filepath.Join(t.TempDir(), "invalid.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := cache.Load(path); err == nil {
		t.Error("Load should fail for invalid image data")
	}
}

func TestImageCache_ClearAndEvict(t *testing.T) {
	cache := NewImageCache()
	dir := t.TempDir()
	a := writeFrame(t, dir, "a.png", starFrame(16, 16, 10, 8, 8, 100, 1))
	b := writeFrame(t, dir, "b.png", starFrame(16, 16, 10, 8, 8, 100, 1))

	for _, p := range []string{a, b} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	}
	if cache.Len() != 2 {
		t.Fatalf("cache has %d entries, want 2", cache.Len())
	}

	cache.Evict(a)
	cache.mu.RLock()
	_, exists := cache.frames[a]
	cache.mu.RUnlock()
	if exists {
		t.Error("Evict did not remove image from cache")
	}

	// Evicting an unknown path is a no-op.
	cache.Evict("/nonexistent/path")

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Clear did not empty cache: %d images remain", cache.Len())
	}
}

func TestImageCache_ConcurrentAccess(t *testing.T) {
	cache := NewImageCache()
	path := writeFrame(t, t.TempDir(), "frame.png", starFrame(32, 32, 100, 16, 16, 1000, 2))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := LoadGrid(cache, path); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent LoadGrid error: %v", err)
	}
}

func TestLoadImageInfo(t *testing.T) {
	cache := NewImageCache()
	path := writeFrame(t, t.TempDir(), "frame.TIF", starFrame(40, 30, 100, 10, 10, 1000, 2))

	info, err := LoadImageInfo(cache, path)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}
	if info.Width != 40 || info.Height != 30 {
		t.Errorf("dimensions: got %dx%d, want 40x30", info.Width, info.Height)
	}
	if info.Format != "tiff" {
		t.Errorf("Format: got %s, want tiff", info.Format)
	}
	if info.BitDepth != 16 {
		t.Errorf("BitDepth: got %d, want 16", info.BitDepth)
	}
	if !info.Grayscale {
		t.Error("Grayscale should be true for a Gray16 frame")
	}
	if info.HasAlpha {
		t.Error("HasAlpha should be false for a Gray16 frame")
	}
	if info.FileSizeBytes <= 0 {
		t.Error("FileSizeBytes should be positive")
	}
	if info.MaxValue != 1100 || info.Saturated {
		t.Errorf("MaxValue = %v saturated=%v, want 1100 unsaturated", info.MaxValue, info.Saturated)
	}
}

func TestLoadImageInfo_Saturated(t *testing.T) {
	cache := NewImageCache()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(3, 3, color.Gray{Y: 255})
	path := writeFrame(t, t.TempDir(), "hot.png", img)

	info, err := LoadImageInfo(cache, path)
	if err != nil {
		t.Fatalf("LoadImageInfo failed: %v", err)
	}
	if info.BitDepth != 8 || !info.Grayscale {
		t.Errorf("got depth %d grayscale %v, want 8-bit grayscale", info.BitDepth, info.Grayscale)
	}
	if info.MaxValue != MaxADU || !info.Saturated {
		t.Errorf("MaxValue = %v saturated=%v, want %d saturated", info.MaxValue, info.Saturated, MaxADU)
	}
}

func TestLoadImageInfo_FormatFromDecoder(t *testing.T) {
	cache := NewImageCache()
	dir := t.TempDir()

	// Every file is a PNG; the extension must not change the reported format.
	for _, ext := range []string{".png", ".PNG", ".tif", ".xyz"} {
		t.Run(ext, func(t *testing.T) {
			path := writeFrame(t, dir, "format"+ext, image.NewGray(image.Rect(0, 0, 10, 10)))
			if ext == ".tif" {
				// writeFrame picked the TIFF encoder for this name.
				info, err := LoadImageInfo(cache, path)
				if err != nil {
					t.Fatalf("LoadImageInfo failed: %v", err)
				}
				if info.Format != "tiff" {
					t.Errorf("Format: got %s, want tiff", info.Format)
				}
				return
			}
			info, err := LoadImageInfo(cache, path)
			if err != nil {
				t.Fatalf("LoadImageInfo failed: %v", err)
			}
			if info.Format != "png" {
				t.Errorf("Format for %s: got %s, want png", ext, info.Format)
			}
		})
	}
}

func TestLoadGrid_Shared(t *testing.T) {
	cache := NewImageCache()
	path := writeFrame(t, t.TempDir(), "frame.png", starFrame(24, 24, 200, 12, 12, 800, 1.5))

	g1, err := LoadGrid(cache, path)
	if err != nil {
		t.Fatalf("LoadGrid failed: %v", err)
	}
	g2, err := LoadGrid(cache, path)
	if err != nil {
		t.Fatalf("second LoadGrid failed: %v", err)
	}
	if g1 != g2 {
		t.Error("LoadGrid should return the cached grid")
	}
	if got := g1.At(12, 12); got != 1000 {
		t.Errorf("peak = %v, want 1000", got)
	}

	cache.Evict(path)
	g3, err := LoadGrid(cache, path)
	if err != nil {
		t.Fatalf("LoadGrid after Evict failed: %v", err)
	}
	if g3 == g1 {
		t.Error("Evict should drop the cached grid")
	}
}

func TestLoadImageInfo_NonExistent(t *testing.T) {
	cache := NewImageCache()
	if _, err := LoadImageInfo(cache, "/nonexistent/frame.png"); err == nil {
		t.Error("LoadImageInfo should fail for non-existent file")
	}
}

func TestGetDimensions(t *testing.T) {
	cache := NewImageCache()
	path := writeFrame(t, t.TempDir(), "frame.png", starFrame(300, 200, 0, 50, 50, 100, 2))

	dims, err := GetDimensions(cache, path)
	if err != nil {
		t.Fatalf("GetDimensions failed: %v", err)
	}
	if dims.Width != 300 || dims.Height != 200 {
		t.Errorf("dimensions: got %dx%d, want 300x200", dims.Width, dims.Height)
	}

	if _, err := GetDimensions(cache, "/nonexistent/frame.png"); err == nil {
		t.Error("GetDimensions should fail for non-existent file")
	}
}
