package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/starfind-mcp/internal/config"
	"github.com/ironsheep/starfind-mcp/internal/imaging"
	"github.com/ironsheep/starfind-mcp/internal/logger"
)

// Name and Version identify the server in the initialize handshake.
const (
	Name    = "starfind-mcp"
	Version = "0.1.0"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolFailed     = -32000
)

var (
	// ErrUnknownTool is returned by CallTool for names not in GetToolDefinitions.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolPanic wraps a panic recovered from a tool handler.
	ErrToolPanic = errors.New("tool panicked")
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Server handles MCP protocol communication
type Server struct {
	cache    *imaging.ImageCache
	cfg      *config.Config
	log      *logrus.Logger
	validate *validator.Validate
	tools    map[string]toolHandler
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a server. A nil cfg uses config.Default and a nil log
// discards output.
func New(cfg *config.Config, log *logrus.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		cache:    imaging.NewImageCache(),
		cfg:      cfg,
		log:      log,
		validate: validator.New(),
	}
	s.tools = s.toolHandlers()
	return s
}

// Run serves MCP on stdin and stdout until stdin is closed.
func (s *Server) Run() error {
	return s.Serve(os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per line from r and writes responses to
// w. Notifications produce no output.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	encoder := codec.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := codec.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Warn("failed to parse request")
			if err := encoder.Encode(s.errorResponse(nil, codeParseError, "Parse error", err.Error())); err != nil {
				s.log.WithError(err).Error("failed to encode response")
			}
			continue
		}

		resp := s.handleRequest(&req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.log.WithError(err).Error("failed to encode response")
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return s.errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    Name,
				"version": Version,
			},
		},
	}
}

// CallTool runs a tool by name with raw JSON arguments. It is the
// transport-neutral entry used by both the stdio loop and HTTP.
//
// Argument decoding and validation failures wrap
// detection.ErrInvalidParameter; unknown names wrap ErrUnknownTool.
func (s *Server) CallTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	entry, _ := logger.WithCallID(s.log, logger.Fields{"tool": name})
	entry.Debug("tool call")

	start := time.Now()
	result, err := s.safeExecute(ctx, name, args)
	elapsed := time.Since(start)
	if err != nil {
		entry.WithError(err).WithField("elapsed", elapsed).Warn("tool failed")
		return nil, err
	}
	entry.WithField("elapsed", elapsed).Info("tool done")
	return result, nil
}

// safeExecute runs executeTool and turns a panic into an error, so one bad
// call cannot take down the stdio loop.
func (s *Server) safeExecute(ctx context.Context, name string, args json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"tool":  name,
				"stack": string(debug.Stack()),
			}).Error("tool panicked")
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrToolPanic, name, r)
		}
	}()
	return s.executeTool(ctx, name, args)
}
