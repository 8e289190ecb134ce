// Package server implements the MCP (Model Context Protocol) server for star
// detection tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the detection
// pipeline through the MCP protocol, so that MCP clients can measure stars
// in astronomical frames without handling pixels themselves.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// The same tools are reachable over HTTP through the transport package,
// which calls Server.CallTool directly.
//
// # Available Tools
//
// Frame Information:
//   - image_load: Load a frame and get its metadata
//   - image_dimensions: Get width and height
//
// Star Detection:
//   - star_background: Sigma-clipped background statistics
//   - star_kernel: Matched filter weights for a star width
//   - star_find: Matched-filter detection with shape cuts and photometry
//   - star_find_batch: star_find over several frames concurrently
//   - star_find_peaks: Thresholded local maxima without shape cuts
//   - star_detect_sources: Connected-pixel segmentation
//
// Previews:
//   - star_annotate: PNG preview with a marker at each detected star
//
// # Coordinates and Units
//
// Frames are converted to 16-bit luminance (0-65535). Tools that accept a
// region search only that part of the frame but report positions in
// full-frame coordinates. star_annotate is the exception: its preview is
// the region itself.
//
// # Error Handling
//
// Tool failures are returned as JSON-RPC error responses:
//   - -32602: arguments that fail decoding or validation, or detection
//     parameters rejected by the pipeline
//   - -32000: any other failure, such as a missing or undecodable file or
//     a panic recovered from a tool handler
//
// The data field carries the Go error string.
//
// # Usage
//
//	cfg, _ := config.Load()
//	log, _ := logger.New(cfg.Log)
//	srv := server.New(cfg, log)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
