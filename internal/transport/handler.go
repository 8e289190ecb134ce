// Package transport exposes the MCP tools over HTTP with gin.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/starfind-mcp/internal/detection"
	"github.com/ironsheep/starfind-mcp/internal/server"
)

// DefaultMaxBodyBytes limits tool argument bodies.
const DefaultMaxBodyBytes = 1 << 20

// ToolCaller runs a tool by name. *server.Server implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewHandler builds the router:
//
//	GET  /health       liveness and version
//	GET  /tools        tool definitions
//	POST /tools/:name  run a tool; the body is its arguments object
func NewHandler(tools ToolCaller, log *logrus.Logger, maxBodyBytes int64) http.Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(log),
		requestSizeLimiter(maxBodyBytes),
	)

	r.GET("/health", healthCheck)
	r.GET("/tools", listTools)
	r.POST("/tools/:name", callTool(tools, log))

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"name":    server.Name,
		"version": server.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func listTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": server.GetToolDefinitions()})
}

func callTool(tools ToolCaller, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		body, err := c.GetRawData()
		if err != nil {
			respondError(c, log, statusFor(err), "failed to read request body", err)
			return
		}
		if len(body) == 0 {
			body = []byte("{}")
		}
		if !json.Valid(body) {
			respondError(c, log, http.StatusBadRequest, "invalid request format", errors.New("body is not valid JSON"))
			return
		}

		result, err := tools.CallTool(c.Request.Context(), name, body)
		if err != nil {
			respondError(c, log, statusFor(err), "tool "+name+" failed", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, detection.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, server.ErrUnknownTool):
		return http.StatusNotFound
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
			"ip":      c.ClientIP(),
		}).Debug("http request")
	}
}

func respondError(c *gin.Context, log *logrus.Logger, code int, message string, err error) {
	log.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
	}).Warn("request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
