package imaging

import (
	"image"
	"image/color"

	"github.com/ironsheep/starfind-mcp/internal/detection"
)

// MaxADU is the largest pixel value ToGrid produces.
const MaxADU = 65535

// ToGrid converts an image into a detection grid of 16-bit luminance values.
//
// Every pixel goes through color.Gray16Model, so 8-bit and colour images
// are scaled into the same 0..65535 range as native 16-bit frames. The grid
// origin is the image's Bounds().Min; grid (0,0) is the top-left pixel.
//
// # Fast Paths
//
// *image.Gray16 and *image.Gray are read directly from their pixel slices.
// Other types fall back to the colour model conversion per pixel.
func ToGrid(img image.Image) *detection.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	grid := detection.NewImage(width, height)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := src.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)
				grid.Pix[y*width+x] = float64(uint16(src.Pix[i])<<8 | uint16(src.Pix[i+1]))
			}
		}
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := src.Pix[src.PixOffset(x+bounds.Min.X, y+bounds.Min.Y)]
				grid.Pix[y*width+x] = float64(uint16(v) * 0x101)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.Gray16Model.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.Gray16)
				grid.Pix[y*width+x] = float64(g.Y)
			}
		}
	}
	return grid
}

// LoadGrid loads path through the cache and returns its luminance grid.
//
// The grid is converted once per cached frame and shared; callers must
// treat it as read-only.
func LoadGrid(cache *ImageCache, path string) (*detection.Image, error) {
	f, err := cache.frame(path)
	if err != nil {
		return nil, err
	}
	return f.luminance(), nil
}

func (f *frame) luminance() *detection.Image {
	f.once.Do(func() {
		f.grid = ToGrid(f.img)
	})
	return f.grid
}

// FromGrid renders a grid back into a 16-bit grayscale image, clamping
// values to 0..MaxADU. Used for synthetic frames and previews.
func FromGrid(grid *detection.Image) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, grid.Width, grid.Height))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			v := grid.Pix[y*grid.Width+x]
			switch {
			case v < 0:
				v = 0
			case v > MaxADU:
				v = MaxADU
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v + 0.5)})
		}
	}
	return img
}
