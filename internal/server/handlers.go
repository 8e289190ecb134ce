package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/ironsheep/starfind-mcp/internal/detection"
	"github.com/ironsheep/starfind-mcp/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "star_find").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Invalid arguments return code -32602; any other failure returns -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := codec.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.CallTool(context.Background(), params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, detection.ErrInvalidParameter) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// toolHandler runs one tool with raw JSON arguments.
type toolHandler func(ctx context.Context, args json.RawMessage) (interface{}, error)

func withoutContext(h func(json.RawMessage) (interface{}, error)) toolHandler {
	return func(_ context.Context, args json.RawMessage) (interface{}, error) {
		return h(args)
	}
}

// toolHandlers maps every name in GetToolDefinitions to its handler.
//
// Each tool handler:
//  1. Decodes and validates arguments
//  2. Applies default values for optional parameters
//  3. Loads frames from the cache as needed
//  4. Calls the appropriate detection/imaging function
//  5. Returns the result or error
func (s *Server) toolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		// Frame Information
		"image_load":       withoutContext(s.handleImageLoad),
		"image_dimensions": withoutContext(s.handleImageDimensions),

		// Star Detection
		"star_background":     withoutContext(s.handleStarBackground),
		"star_kernel":         withoutContext(s.handleStarKernel),
		"star_find":           withoutContext(s.handleStarFind),
		"star_find_batch":     s.handleStarFindBatch,
		"star_find_peaks":     withoutContext(s.handleStarFindPeaks),
		"star_detect_sources": withoutContext(s.handleStarDetectSources),

		// Previews
		"star_annotate": withoutContext(s.handleStarAnnotate),
	}
}

// executeTool dispatches to the named tool's handler.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	h, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return h(ctx, args)
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	e := &MCPError{
		Code:    code,
		Message: message,
	}
	if data != "" {
		e.Data = data
	}
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   e,
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := codec.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals args into dst and validates its struct tags. Both
// failures wrap detection.ErrInvalidParameter.
func (s *Server) decodeArgs(args json.RawMessage, dst interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := codec.Unmarshal(args, dst); err != nil {
		return fmt.Errorf("%w: %v", detection.ErrInvalidParameter, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", detection.ErrInvalidParameter, err)
	}
	return nil
}

// === Frame Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Shared argument groups ===

// frameArgs selects a frame and an optional part of it. Region wins over
// NamedRegion when both are given.
type frameArgs struct {
	Path        string          `json:"path" validate:"required"`
	Region      *imaging.Region `json:"region"`
	NamedRegion string          `json:"named_region" validate:"omitempty,oneof=full top-left top-right bottom-left bottom-right top-half bottom-half left-half right-half center"`
}

// loadFrame loads the frame and crops it. Region errors wrap
// detection.ErrInvalidParameter; load errors do not.
func (s *Server) loadFrame(a frameArgs) (*detection.Image, imaging.Region, error) {
	grid, err := imaging.LoadGrid(s.cache, a.Path)
	if err != nil {
		return nil, imaging.Region{}, err
	}

	var r imaging.Region
	if a.Region != nil {
		r = *a.Region
	} else {
		r, err = imaging.NamedRegion(a.NamedRegion, grid.Width, grid.Height)
		if err != nil {
			return nil, imaging.Region{}, fmt.Errorf("%w: %v", detection.ErrInvalidParameter, err)
		}
	}
	if r == (imaging.Region{X2: grid.Width, Y2: grid.Height}) {
		return grid, r, nil
	}

	sub, err := imaging.CropGrid(grid, r)
	if err != nil {
		return nil, imaging.Region{}, fmt.Errorf("%w: %v", detection.ErrInvalidParameter, err)
	}
	return sub, r, nil
}

// clipArgs overrides the configured background clipping.
type clipArgs struct {
	ClipSigma *float64 `json:"clip_sigma" validate:"omitempty,gt=0"`
	MaxIters  *int     `json:"max_iters" validate:"omitempty,gte=0"`
	MaskVal   *float64 `json:"mask_val"`
}

func (s *Server) clipOptions(a clipArgs) detection.ClipOptions {
	opts := s.cfg.ClipOptions()
	if a.ClipSigma != nil {
		opts.Sigma = *a.ClipSigma
	}
	if a.MaxIters != nil {
		opts.MaxIters = *a.MaxIters
	}
	if a.MaskVal != nil {
		opts = opts.WithMaskValue(*a.MaskVal)
	}
	return opts
}

// widthArgs gives the source width as sigma or FWHM, in pixels.
type widthArgs struct {
	Sigma *float64 `json:"sigma" validate:"omitempty,gt=0"`
	FWHM  *float64 `json:"fwhm" validate:"omitempty,gt=0"`
}

func (a widthArgs) sigma() (float64, error) {
	switch {
	case a.Sigma != nil && a.FWHM != nil:
		return 0, fmt.Errorf("%w: give sigma or fwhm, not both", detection.ErrInvalidParameter)
	case a.Sigma != nil:
		return *a.Sigma, nil
	case a.FWHM != nil:
		return detection.FWHMToSigma(*a.FWHM), nil
	default:
		return 0, fmt.Errorf("%w: sigma or fwhm is required", detection.ErrInvalidParameter)
	}
}

// findArgs holds the detection parameters shared by star_find,
// star_find_batch and star_annotate.
type findArgs struct {
	widthArgs
	clipArgs

	// Threshold is the response threshold. When absent it is NSigma times
	// the clipped background standard deviation.
	Threshold *float64 `json:"threshold"`
	NSigma    *float64 `json:"nsigma" validate:"omitempty,gt=0"`

	SharpLo  *float64 `json:"sharp_lo"`
	SharpHi  *float64 `json:"sharp_hi"`
	RoundLo  *float64 `json:"round_lo"`
	RoundHi  *float64 `json:"round_hi"`
	Round2Lo *float64 `json:"round2_lo"`
	Round2Hi *float64 `json:"round2_hi"`

	KernelSize       int     `json:"kernel_size" validate:"gte=0"`
	SigmaRadius      float64 `json:"sigma_radius" validate:"gte=0"`
	NeighborhoodSize int     `json:"neighborhood_size" validate:"gte=0"`
	SearchRadius     int     `json:"search_radius" validate:"gte=0"`
	PhotometryRadius int     `json:"photometry_radius" validate:"gte=0"`
	MaxSources       int     `json:"max_sources" validate:"gte=0"`
	Edge             string  `json:"edge"`
	Method           string  `json:"method"`

	// SubtractBackground removes the clipped median before detection.
	// Defaults to true.
	SubtractBackground *bool `json:"subtract_background"`
}

func (a findArgs) subtract() bool {
	return a.SubtractBackground == nil || *a.SubtractBackground
}

// detectionConfig merges the arguments over the configured defaults.
func (s *Server) detectionConfig(a findArgs) (detection.Config, error) {
	cfg := s.cfg.Detection()

	sharp := cfg.Sharpness
	override(&sharp.Min, a.SharpLo)
	override(&sharp.Max, a.SharpHi)
	round1 := cfg.Roundness1
	override(&round1.Min, a.RoundLo)
	override(&round1.Max, a.RoundHi)
	round2 := cfg.Roundness2
	override(&round2.Min, a.RoundLo)
	override(&round2.Max, a.RoundHi)
	override(&round2.Min, a.Round2Lo)
	override(&round2.Max, a.Round2Hi)

	edge, err := detection.ParseEdgeMode(a.Edge)
	if err != nil {
		return cfg, err
	}
	method, err := detection.ParseMethod(a.Method)
	if err != nil {
		return cfg, err
	}

	return cfg.
		WithSharpness(sharp.Min, sharp.Max).
		WithRoundness1(round1.Min, round1.Max).
		WithRoundness2(round2.Min, round2.Max).
		WithKernelSize(a.KernelSize).
		WithSigmaRadius(a.SigmaRadius).
		WithNeighborhoodSize(a.NeighborhoodSize).
		WithSearchRadius(a.SearchRadius).
		WithPhotometryRadius(a.PhotometryRadius).
		WithMaxSources(a.MaxSources).
		WithEdge(edge).
		WithMethod(method), nil
}

func override(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func (s *Server) nsigma(a findArgs) float64 {
	if a.NSigma != nil {
		return *a.NSigma
	}
	return s.cfg.NSigma
}

// prepared is a frame ready for Finder.Find.
type prepared struct {
	grid       *detection.Image
	region     imaging.Region
	background detection.Stats
}

// prepare measures the background and optionally subtracts its median.
func (s *Server) prepare(grid *detection.Image, region imaging.Region, a findArgs) (*prepared, error) {
	stats, err := detection.BackgroundStats(grid, s.clipOptions(a.clipArgs))
	if err != nil {
		return nil, err
	}
	if a.subtract() {
		grid = grid.Offset(-stats.Median)
	}
	return &prepared{grid: grid, region: region, background: stats}, nil
}

// === Star Detection Handlers ===

type starBackgroundArgs struct {
	frameArgs
	clipArgs
}

type starBackgroundResult struct {
	Region imaging.Region `json:"region"`
	detection.Stats
}

func (s *Server) handleStarBackground(args json.RawMessage) (interface{}, error) {
	var a starBackgroundArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	grid, region, err := s.loadFrame(a.frameArgs)
	if err != nil {
		return nil, err
	}
	stats, err := detection.BackgroundStats(grid, s.clipOptions(a.clipArgs))
	if err != nil {
		return nil, err
	}
	return &starBackgroundResult{Region: region, Stats: stats}, nil
}

type starKernelArgs struct {
	widthArgs
	Size        int     `json:"size" validate:"gte=0"`
	SigmaRadius float64 `json:"sigma_radius" validate:"gte=0"`
}

type starKernelResult struct {
	Sigma   float64     `json:"sigma"`
	Size    int         `json:"size"`
	Radius  int         `json:"radius"`
	RelErr  float64     `json:"rel_err"`
	Filter  [][]float64 `json:"filter"`
	Profile [][]float64 `json:"profile"`
}

func (s *Server) handleStarKernel(args json.RawMessage) (interface{}, error) {
	var a starKernelArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sigma, err := a.sigma()
	if err != nil {
		return nil, err
	}
	radius := a.SigmaRadius
	if radius == 0 {
		radius = detection.DefaultSigmaRadius
	}
	k, err := detection.NewKernelRadius(sigma, radius, a.Size)
	if err != nil {
		return nil, err
	}

	profile := make([][]float64, k.Size)
	for j := range profile {
		profile[j] = append([]float64(nil), k.Gaussian[j*k.Size:(j+1)*k.Size]...)
	}
	return &starKernelResult{
		Sigma:   k.Sigma,
		Size:    k.Size,
		Radius:  k.Radius,
		RelErr:  k.RelErr,
		Filter:  k.Rows(),
		Profile: profile,
	}, nil
}

type starFindArgs struct {
	frameArgs
	findArgs

	// Table adds the fixed-width text rendering. Defaults to true.
	Table *bool `json:"table"`
}

// StarFindResult is the star_find output. Row positions are in full-frame
// coordinates even when a region was searched.
type StarFindResult struct {
	Path                 string                `json:"path,omitempty"`
	Region               imaging.Region        `json:"region"`
	Sigma                float64               `json:"sigma"`
	Threshold            float64               `json:"threshold"`
	Background           detection.Stats       `json:"background"`
	BackgroundSubtracted bool                  `json:"background_subtracted"`
	Count                int                   `json:"count"`
	Rows                 []detection.Detection `json:"rows"`
	Rejected             detection.Rejections  `json:"rejected"`
	Table                string                `json:"table,omitempty"`
}

func (s *Server) handleStarFind(args json.RawMessage) (interface{}, error) {
	var a starFindArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	res, _, err := s.findOne(a.frameArgs, a.findArgs)
	if err != nil {
		return nil, err
	}
	if a.Table == nil || *a.Table {
		res.Table = (&detection.ResultTable{Rows: res.Rows}).Text()
	}
	return res, nil
}

// findOne runs detection on one frame. It also returns the uncropped-origin
// table (positions relative to the region) for previews.
func (s *Server) findOne(fa frameArgs, a findArgs) (*StarFindResult, *detection.ResultTable, error) {
	sigma, err := a.sigma()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.detectionConfig(a)
	if err != nil {
		return nil, nil, err
	}
	grid, region, err := s.loadFrame(fa)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.prepare(grid, region, a)
	if err != nil {
		return nil, nil, err
	}

	threshold := s.nsigma(a) * p.background.StdDev
	if a.Threshold != nil {
		threshold = *a.Threshold
	}
	finder, err := detection.NewFinder(threshold, sigma, cfg)
	if err != nil {
		return nil, nil, err
	}
	table, err := finder.Find(p.grid)
	if err != nil {
		return nil, nil, err
	}
	return s.findResult(fa.Path, finder, p, table, a.subtract()), table, nil
}

func (s *Server) findResult(path string, f *detection.Finder, p *prepared, table *detection.ResultTable, subtracted bool) *StarFindResult {
	rows := make([]detection.Detection, len(table.Rows))
	for i, d := range table.Rows {
		d.XCen += float64(p.region.X1)
		d.YCen += float64(p.region.Y1)
		rows[i] = d
	}
	return &StarFindResult{
		Path:                 path,
		Region:               p.region,
		Sigma:                f.Kernel().Sigma,
		Threshold:            f.Threshold(),
		Background:           p.background,
		BackgroundSubtracted: subtracted,
		Count:                len(rows),
		Rows:                 rows,
		Rejected:             table.Rejected,
	}
}

type starFindBatchArgs struct {
	Paths       []string        `json:"paths" validate:"required,min=1,dive,required"`
	Region      *imaging.Region `json:"region"`
	NamedRegion string          `json:"named_region" validate:"omitempty,oneof=full top-left top-right bottom-left bottom-right top-half bottom-half left-half right-half center"`
	findArgs

	// Workers bounds concurrent frames. 0 uses the configured value.
	Workers int `json:"workers" validate:"gte=0"`
}

type starFindBatchResult struct {
	Threshold float64           `json:"threshold"`
	Frames    []*StarFindResult `json:"frames"`
	Total     int               `json:"total"`
}

// handleStarFindBatch runs one Finder over several frames. Without an
// explicit threshold it uses NSigma times the noisiest frame's background
// standard deviation so that every frame is cut at the same level.
func (s *Server) handleStarFindBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a starFindBatchArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sigma, err := a.sigma()
	if err != nil {
		return nil, err
	}
	cfg, err := s.detectionConfig(a.findArgs)
	if err != nil {
		return nil, err
	}

	frames := make([]*prepared, len(a.Paths))
	grids := make([]*detection.Image, len(a.Paths))
	noise := 0.0
	for i, path := range a.Paths {
		grid, region, err := s.loadFrame(frameArgs{Path: path, Region: a.Region, NamedRegion: a.NamedRegion})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		p, err := s.prepare(grid, region, a.findArgs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		frames[i] = p
		grids[i] = p.grid
		noise = math.Max(noise, p.background.StdDev)
	}

	threshold := s.nsigma(a.findArgs) * noise
	if a.Threshold != nil {
		threshold = *a.Threshold
	}
	finder, err := detection.NewFinder(threshold, sigma, cfg)
	if err != nil {
		return nil, err
	}

	workers := a.Workers
	if workers == 0 {
		workers = s.cfg.Workers
	}
	tables, err := finder.FindBatch(ctx, grids, workers)
	if err != nil {
		return nil, err
	}

	out := &starFindBatchResult{Threshold: threshold, Frames: make([]*StarFindResult, len(tables))}
	for i, table := range tables {
		out.Frames[i] = s.findResult(a.Paths[i], finder, frames[i], table, a.subtract())
		out.Total += out.Frames[i].Count
	}
	return out, nil
}

type starFindPeaksArgs struct {
	frameArgs
	clipArgs
	SNR           *float64 `json:"snr" validate:"omitempty,gt=0"`
	MinDistance   *int     `json:"min_distance" validate:"omitempty,gte=0"`
	ExcludeBorder *bool    `json:"exclude_border"`
	MaxPeaks      int      `json:"max_peaks" validate:"gte=0"`
}

type starFindPeaksResult struct {
	Region imaging.Region `json:"region"`
	Count  int            `json:"count"`
	*detection.PeakResult
}

func (s *Server) handleStarFindPeaks(args json.RawMessage) (interface{}, error) {
	var a starFindPeaksArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	grid, region, err := s.loadFrame(a.frameArgs)
	if err != nil {
		return nil, err
	}

	opts := detection.DefaultPeakOptions()
	opts.Clip = s.clipOptions(a.clipArgs)
	if a.MinDistance != nil {
		opts.MinDistance = *a.MinDistance
	}
	if a.ExcludeBorder != nil {
		opts.ExcludeBorder = *a.ExcludeBorder
	}
	opts.MaxPeaks = a.MaxPeaks
	snr := s.cfg.NSigma
	if a.SNR != nil {
		snr = *a.SNR
	}

	res, err := detection.FindPeaks(grid, snr, opts)
	if err != nil {
		return nil, err
	}
	for i := range res.Peaks {
		res.Peaks[i].X += region.X1
		res.Peaks[i].Y += region.Y1
	}
	return &starFindPeaksResult{Region: region, Count: len(res.Peaks), PeakResult: res}, nil
}

type starDetectSourcesArgs struct {
	frameArgs
	clipArgs
	SNR         *float64 `json:"snr" validate:"omitempty,gt=0"`
	NPixels     int      `json:"npixels" validate:"gte=0"`
	FilterSigma float64  `json:"filter_sigma" validate:"gte=0"`
}

type starDetectSourcesResult struct {
	Region imaging.Region `json:"region"`
	Count  int            `json:"count"`
	*detection.Segmentation
}

func (s *Server) handleStarDetectSources(args json.RawMessage) (interface{}, error) {
	var a starDetectSourcesArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.NPixels == 0 {
		a.NPixels = 5
	}
	grid, region, err := s.loadFrame(a.frameArgs)
	if err != nil {
		return nil, err
	}
	snr := s.cfg.NSigma
	if a.SNR != nil {
		snr = *a.SNR
	}

	seg, err := detection.DetectSources(grid, snr, a.NPixels, detection.SegmentOptions{
		FilterSigma: a.FilterSigma,
		Clip:        s.clipOptions(a.clipArgs),
	})
	if err != nil {
		return nil, err
	}
	for i := range seg.Segments {
		sg := &seg.Segments[i]
		sg.Bounds.X1 += region.X1
		sg.Bounds.X2 += region.X1
		sg.Bounds.Y1 += region.Y1
		sg.Bounds.Y2 += region.Y1
		sg.Peak.X += region.X1
		sg.Peak.Y += region.Y1
	}
	return &starDetectSourcesResult{Region: region, Count: len(seg.Segments), Segmentation: seg}, nil
}

// === Preview Handlers ===

type starAnnotateArgs struct {
	frameArgs
	findArgs
	Gamma       float64 `json:"gamma" validate:"gte=0"`
	Scale       float64 `json:"scale" validate:"gte=0"`
	Radius      int     `json:"radius" validate:"gte=0"`
	GridSpacing int     `json:"grid_spacing" validate:"gte=0"`
	Labels      *bool   `json:"labels"`
	BrightColor string  `json:"bright_color"`
	FaintColor  string  `json:"faint_color"`
}

type starAnnotateResult struct {
	*imaging.AnnotateResult
	Region    imaging.Region `json:"region"`
	Count     int            `json:"count"`
	Threshold float64        `json:"threshold"`
}

// handleStarAnnotate detects stars and draws them on a preview of the
// searched region.
func (s *Server) handleStarAnnotate(args json.RawMessage) (interface{}, error) {
	var a starAnnotateArgs
	if err := s.decodeArgs(args, &a); err != nil {
		return nil, err
	}
	res, table, err := s.findOne(a.frameArgs, a.findArgs)
	if err != nil {
		return nil, err
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	crop, err := imaging.CropImage(img, res.Region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detection.ErrInvalidParameter, err)
	}

	preview, err := imaging.Annotate(crop, table.Rows, imaging.AnnotateOptions{
		Gamma:       a.Gamma,
		Scale:       a.Scale,
		Radius:      a.Radius,
		GridSpacing: a.GridSpacing,
		BrightColor: a.BrightColor,
		FaintColor:  a.FaintColor,
		Labels:      a.Labels == nil || *a.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detection.ErrInvalidParameter, err)
	}
	return &starAnnotateResult{
		AnnotateResult: preview,
		Region:         res.Region,
		Count:          res.Count,
		Threshold:      res.Threshold,
	}, nil
}
