package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var namedRegions = []string{
	"full", "top-left", "top-right", "bottom-left", "bottom-right",
	"top-half", "bottom-half", "left-half", "right-half", "center",
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typ,
		"description": description,
	}
}

func regionProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Rectangle to search; (x1,y1) inclusive, (x2,y2) exclusive. Overrides named_region.",
		"properties": map[string]interface{}{
			"x1": map[string]interface{}{"type": "integer"},
			"y1": map[string]interface{}{"type": "integer"},
			"x2": map[string]interface{}{"type": "integer"},
			"y2": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"x1", "y1", "x2", "y2"},
	}
}

// frameProperties describe a frame path and an optional region of it.
func frameProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": prop("string", "Absolute path to the frame (PNG, JPEG, GIF or TIFF; 16-bit grayscale preferred)"),
		"region": regionProp(),
		"named_region": map[string]interface{}{
			"type":        "string",
			"enum":        namedRegions,
			"description": "Named part of the frame to search. Default full",
		},
	}
}

func clipProperties() map[string]interface{} {
	return map[string]interface{}{
		"clip_sigma": prop("number", "Sigma-clipping limit for background statistics. Default from server config (3)"),
		"max_iters":  prop("integer", "Maximum clipping iterations; 0 iterates to convergence. Default 0"),
		"mask_val":   prop("number", "Pixel value, in 16-bit units, left out of the background statistics (for example a blank or padding level)"),
	}
}

// findProperties describe the detection parameters shared by star_find,
// star_find_batch and star_annotate.
func findProperties() map[string]interface{} {
	return map[string]interface{}{
		"sigma":               prop("number", "Gaussian standard deviation of the stars in pixels. Give sigma or fwhm"),
		"fwhm":                prop("number", "Full width at half maximum of the stars in pixels. Give sigma or fwhm"),
		"threshold":           prop("number", "Minimum matched-filter response in pixel units. Default nsigma times the background standard deviation"),
		"nsigma":              prop("number", "Threshold in background standard deviations when threshold is omitted. Default from server config (5)"),
		"sharp_lo":            prop("number", "Lower sharpness bound. Default 0.2"),
		"sharp_hi":            prop("number", "Upper sharpness bound. Default 1.0"),
		"round_lo":            prop("number", "Lower bound for both roundness statistics. Default -1"),
		"round_hi":            prop("number", "Upper bound for both roundness statistics. Default 1"),
		"round2_lo":           prop("number", "Lower bound for the second roundness statistic only"),
		"round2_hi":           prop("number", "Upper bound for the second roundness statistic only"),
		"kernel_size":         prop("integer", "Odd filter size in pixels. Default derived from sigma"),
		"sigma_radius":        prop("number", "Filter half-width in sigmas when kernel_size is omitted. Default 1.5"),
		"neighborhood_size":   prop("integer", "Odd window size for shape statistics. Default kernel size"),
		"search_radius":       prop("integer", "Local-maximum search radius. Default kernel radius"),
		"photometry_radius":   prop("integer", "Half-size of the flux box. Default max(ceil(4 sigma), radius+1)"),
		"max_sources":         prop("integer", "Keep only the N brightest rows (0 keeps all)"),
		"edge":                map[string]interface{}{"type": "string", "enum": []string{"zero", "replicate"}, "description": "Correlation edge handling. Default zero"},
		"method":              map[string]interface{}{"type": "string", "enum": []string{"auto", "direct", "fft"}, "description": "Correlation algorithm. Default auto"},
		"subtract_background": map[string]interface{}{"type": "boolean", "description": "Subtract the clipped background median before detection. Default true", "default": true},
	}
}

func merge(groups ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, g := range groups {
		for k, v := range g {
			out[k] = v
		}
	}
	return out
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Frame Information
		{
			Name:        "image_load",
			Description: "Load a frame and return its dimensions, format, bit depth and whether it is grayscale. The frame stays cached for later calls.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": prop("string", "Absolute path to the image file"),
			}, "path"),
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": prop("string", "Absolute path to the image file"),
			}, "path"),
		},

		// Star Detection
		{
			Name:        "star_background",
			Description: "Sigma-clipped background statistics (mean, median, standard deviation) of a frame or region, in 16-bit pixel units.",
			InputSchema: objectSchema(merge(frameProperties(), clipProperties()), "path"),
		},
		{
			Name:        "star_kernel",
			Description: "Build the zero-sum Gaussian matched filter for a star width and return its weights, Gaussian profile and noise scale.",
			InputSchema: objectSchema(map[string]interface{}{
				"sigma":        prop("number", "Gaussian standard deviation in pixels. Give sigma or fwhm"),
				"fwhm":         prop("number", "Full width at half maximum in pixels. Give sigma or fwhm"),
				"size":         prop("integer", "Odd kernel size. Default derived from sigma"),
				"sigma_radius": prop("number", "Half-width in sigmas when size is omitted. Default 1.5"),
			}),
		},
		{
			Name:        "star_find",
			Description: "Detect point sources with a Gaussian matched filter, local maxima and sharpness/roundness cuts. Returns one row per star (centroid, sharp, round1, round2, npix, sky, peak, flux, mag) in full-frame coordinates, rejection counts and a text table.",
			InputSchema: objectSchema(merge(frameProperties(), clipProperties(), findProperties(), map[string]interface{}{
				"table": map[string]interface{}{"type": "boolean", "description": "Include the fixed-width text table. Default true", "default": true},
			}), "path"),
		},
		{
			Name:        "star_find_batch",
			Description: "Run star_find with one set of parameters over several frames concurrently. Without a threshold, all frames are cut at nsigma times the noisiest frame's background standard deviation.",
			InputSchema: objectSchema(merge(clipProperties(), findProperties(), map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Absolute paths to the frames",
				},
				"region": regionProp(),
				"named_region": map[string]interface{}{
					"type":        "string",
					"enum":        namedRegions,
					"description": "Named part of every frame to search. Default full",
				},
				"workers": prop("integer", "Maximum frames processed at once. Default from server config"),
			}), "paths"),
		},
		{
			Name:        "star_find_peaks",
			Description: "Find local maxima above the clipped background mean + snr times its standard deviation, without shape filtering. Plateaus return every pixel.",
			InputSchema: objectSchema(merge(frameProperties(), clipProperties(), map[string]interface{}{
				"snr":            prop("number", "Signal-to-noise level above the background. Default from server config (5)"),
				"min_distance":   prop("integer", "Half-width of the maximum filter. Default 5"),
				"exclude_border": map[string]interface{}{"type": "boolean", "description": "Skip peaks within min_distance of the edge. Default true", "default": true},
				"max_peaks":      prop("integer", "Return only the N brightest peaks (0 keeps all)"),
			}), "path"),
		},
		{
			Name:        "star_detect_sources",
			Description: "Segment the frame into 4-connected groups of pixels at or above the clipped background mean + snr times its standard deviation, keeping groups of at least npixels. Returns area, bounds, flux and peak per source.",
			InputSchema: objectSchema(merge(frameProperties(), clipProperties(), map[string]interface{}{
				"snr":          prop("number", "Signal-to-noise level above the background. Default from server config (5)"),
				"npixels":      prop("integer", "Minimum connected pixels per source. Default 5"),
				"filter_sigma": prop("number", "Gaussian smoothing before thresholding, in pixels (0 disables)"),
			}), "path"),
		},

		// Previews
		{
			Name:        "star_annotate",
			Description: "Run star_find and return a base64 PNG preview of the searched region with a circle and ID at each star, coloured from bright to faint by magnitude.",
			InputSchema: objectSchema(merge(frameProperties(), clipProperties(), findProperties(), map[string]interface{}{
				"gamma":        prop("number", "Gamma applied to the preview; values below 1 lift faint sky. Default 1"),
				"scale":        prop("number", "Preview scale factor. Default 1"),
				"radius":       prop("integer", "Marker radius in preview pixels. Default 6"),
				"grid_spacing": prop("integer", "Draw a coordinate grid every N frame pixels (0 disables)"),
				"labels":       map[string]interface{}{"type": "boolean", "description": "Draw star IDs. Default true", "default": true},
				"bright_color": prop("string", "Hex colour for the brightest star. Default #ffd700"),
				"faint_color":  prop("string", "Hex colour for the faintest star. Default #00bfff"),
			}), "path"),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
