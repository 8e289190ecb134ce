// Package imaging loads frames from disk and converts them to and from the
// float grids used by the detection package.
//
// Frames are decoded with the standard image decoders plus TIFF from
// golang.org/x/image, which covers the 16-bit grayscale output of most
// camera capture software. Decoded frames and their grids are cached by
// path; cached grids are shared and must be treated as read-only.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner. For
// regions, (x1,y1) is inclusive and (x2,y2) exclusive. Grids produced by
// ToGrid are always rebased so their origin is (0,0).
//
// # Units
//
// ToGrid reports values on a 16-bit scale (0 to MaxADU). 8-bit sources
// are expanded by 257 so that white maps to MaxADU in either case.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The remaining functions are
// stateless.
//
// # Previews
//
// Annotate renders a PNG preview with circles at detected positions. It
// is meant for visual checks and does not affect measurements.
package imaging
