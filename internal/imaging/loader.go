package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	_ "golang.org/x/image/tiff" // Register TIFF format decoder

	"github.com/ironsheep/starfind-mcp/internal/detection"
)

// frame is one decoded file. The luminance grid is built on first use and
// shared read-only by every caller after that.
type frame struct {
	img    image.Image
	format string
	size   int64

	once sync.Once
	grid *detection.Image
}

// ImageCache keeps decoded frames and their detection grids keyed by path.
//
// A frame is read and decoded once; repeated detection runs with different
// widths, thresholds or regions reuse both the decoded image and its grid.
// Grids handed out by the cache must not be modified; every stage of the
// detection pipeline returns new images instead of writing to its input.
//
// ImageCache is safe for concurrent use. Entries stay until Evict or Clear.
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	grid, err := imaging.LoadGrid(cache, "/frames/m13_001.tif")
//	if err != nil {
//	    return err
//	}
//	finder.Find(grid)
type ImageCache struct {
	mu     sync.RWMutex
	frames map[string]*frame
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		frames: make(map[string]*frame),
	}
}

// Load returns the decoded image for path, reading it from disk on first use.
//
// Supported formats are PNG, JPEG, GIF and TIFF. Paths are used as given, so
// a relative and an absolute path to one file are separate entries.
func (c *ImageCache) Load(path string) (image.Image, error) {
	f, err := c.frame(path)
	if err != nil {
		return nil, err
	}
	return f.img, nil
}

func (c *ImageCache) frame(path string) (*frame, error) {
	c.mu.RLock()
	f, ok := c.frames[path]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat frame: %w", err)
	}
	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have decoded the same path meanwhile; keep the
	// first entry so every caller sees one grid.
	if existing, ok := c.frames[path]; ok {
		return existing, nil
	}
	f = &frame{img: img, format: format, size: st.Size()}
	c.frames[path] = f
	return f, nil
}

// Clear drops every cached frame.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[string]*frame)
	c.mu.Unlock()
}

// Evict drops one frame. Unknown paths are ignored.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.frames, path)
	c.mu.Unlock()
}

// Len returns the number of cached frames.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// ImageInfo describes a frame as the detection pipeline sees it.
type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Format is the decoder that read the file ("png", "jpeg", "gif" or
	// "tiff"), regardless of the file extension.
	Format string `json:"format"`

	// BitDepth is 16 for 16-bit frames and 8 otherwise. ToGrid scales 8-bit
	// data by 257, so thresholds are in 16-bit units either way.
	BitDepth int `json:"bit_depth"`

	// Grayscale is true for single-channel frames (*image.Gray, *image.Gray16).
	Grayscale bool `json:"grayscale"`

	HasAlpha      bool  `json:"has_alpha"`
	FileSizeBytes int64 `json:"file_size_bytes"`

	// MaxValue is the brightest pixel in grid units; MaxADU means the frame
	// is saturated somewhere.
	MaxValue  float64 `json:"max_value"`
	Saturated bool    `json:"saturated"`
}

// LoadImageInfo loads path into the cache and describes it.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	f, err := cache.frame(path)
	if err != nil {
		return nil, err
	}

	bounds := f.img.Bounds()
	info := &ImageInfo{
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        f.format,
		BitDepth:      8,
		FileSizeBytes: f.size,
	}
	switch f.img.(type) {
	case *image.RGBA, *image.NRGBA:
		info.HasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		info.HasAlpha = true
		info.BitDepth = 16
	case *image.Gray16:
		info.BitDepth = 16
		info.Grayscale = true
	case *image.Gray:
		info.Grayscale = true
	}

	info.MaxValue = f.luminance().Max()
	info.Saturated = info.MaxValue >= MaxADU
	return info, nil
}

// DimensionsResult is the width and height of a frame.
type DimensionsResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GetDimensions returns the size of a frame without building its grid.
func GetDimensions(cache *ImageCache, path string) (*DimensionsResult, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &DimensionsResult{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
