// Package detection finds stellar point sources in 2-D float images.
//
// The core is a DAOFIND-style pipeline that runs strictly forward:
//
//  1. Kernel: a Gaussian matched filter of the expected source width,
//     rescaled so its response is the least-squares source amplitude.
//  2. Correlation: the image is correlated with the filter (direct or FFT).
//  3. Extraction: local maxima of the response above a threshold.
//  4. Shape: sharpness and two roundness statistics measured on the raw
//     pixels reject hot pixels, cosmic rays and elongated features.
//  5. Table: sky, peak, flux and magnitude for each accepted source.
//
// Find and Finder run the whole pipeline; each stage is also exported for
// callers that need only part of it.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Units
//
// Pixel values are in whatever unit the caller supplies. Thresholds,
// responses, sky, peak and flux are in the same unit; the filter
// normalisation makes a matched source's response equal its amplitude.
//
// # Errors
//
// Parameter problems wrap ErrInvalidParameter and are reported before any
// computation. Candidates that cannot be measured (window crosses the
// edge, zero denominators) are dropped and counted in
// ResultTable.Rejected. An image with no sources gives an empty table.
//
// # Concurrency
//
// Every function is pure over its inputs. A Finder is immutable after
// NewFinder and may be shared; FindBatch fans a batch out across
// goroutines.
//
// # Other Detectors
//
// FindPeaks returns raw-image local maxima above a sigma-clipped noise
// level, and DetectSources labels connected above-threshold regions.
// Both share SigmaClippedStats for the background estimate.
package detection
