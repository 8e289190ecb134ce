package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ironsheep/starfind-mcp/internal/config"
	"github.com/ironsheep/starfind-mcp/internal/logger"
)

func TestNew(t *testing.T) {
	s := New(nil, nil)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.cache == nil || s.cfg == nil || s.log == nil || s.validate == nil {
		t.Fatal("New() did not initialize all dependencies")
	}
	if *s.cfg != *config.Default() {
		t.Errorf("default config = %+v, want config.Default()", s.cfg)
	}
	for _, tool := range GetToolDefinitions() {
		if _, ok := s.tools[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}

	cfg := &config.Config{NSigma: 7, ClipSigma: 2, Workers: 4}
	s = New(cfg, logger.Discard())
	if s.cfg != cfg {
		t.Error("New() should keep the given config")
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			"test-1",
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := codec.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := New(nil, nil)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != 1 {
		t.Errorf("ID: got %v, want 1", resp.ID)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != Name {
		t.Errorf("serverInfo.name: got %v, want %s", info["name"], Name)
	}
}

func TestHandleRequest_Ping(t *testing.T) {
	s := New(nil, nil)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: "ping-1", Method: "ping"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != "ping-1" {
		t.Errorf("ID: got %v, want ping-1", resp.ID)
	}
}

func TestHandleRequest_ToolsList(t *testing.T) {
	s := New(nil, nil)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	result := resp.Result.(map[string]interface{})
	tools, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatalf("tools has type %T", result["tools"])
	}
	if len(tools) != len(GetToolDefinitions()) {
		t.Errorf("got %d tools, want %d", len(tools), len(GetToolDefinitions()))
	}
}

func TestHandleRequest_Notification(t *testing.T) {
	s := New(nil, nil)
	if resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", Method: "notifications/initialized"}); resp != nil {
		t.Errorf("notification should produce no response, got %+v", resp)
	}
}

func TestHandleRequest_UnknownMethod(t *testing.T) {
	s := New(nil, nil)
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 7, Method: "resources/list"})

	if resp == nil || resp.Error == nil {
		t.Fatalf("expected an error response, got %+v", resp)
	}
	if resp.Error.Code != codeMethodNotFound {
		t.Errorf("Code: got %d, want %d", resp.Error.Code, codeMethodNotFound)
	}
	if resp.Error.Data != nil {
		t.Errorf("Data should be omitted, got %v", resp.Error.Data)
	}
}

func TestServe(t *testing.T) {
	s := New(nil, nil)
	path := twoStars(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"star_find","arguments":{"path":"` + path + `","sigma":2,"threshold":500}}}`,
	}, "\n")

	var out bytes.Buffer
	if err := s.Serve(strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	var responses []map[string]interface{}
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("invalid response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, r)
	}

	// initialize, parse error, tools/call; the notification and blank line
	// produce nothing.
	if len(responses) != 3 {
		t.Fatalf("got %d responses, want 3", len(responses))
	}
	if responses[0]["id"] != float64(1) {
		t.Errorf("first response id = %v", responses[0]["id"])
	}
	parseErr := responses[1]["error"].(map[string]interface{})
	if parseErr["code"] != float64(codeParseError) {
		t.Errorf("parse error code = %v", parseErr["code"])
	}
	if responses[2]["error"] != nil {
		t.Fatalf("tools/call failed: %v", responses[2]["error"])
	}
	content := responses[2]["result"].(map[string]interface{})["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	var res StarFindResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("failed to decode star_find result: %v", err)
	}
	if res.Count != 2 {
		t.Errorf("star_find over stdio found %d sources, want 2", res.Count)
	}
}

func TestCallTool_RecoversPanic(t *testing.T) {
	s := New(nil, nil)
	s.tools["explode"] = func(context.Context, json.RawMessage) (interface{}, error) {
		var grid []float64
		return grid[3], nil
	}

	if _, err := s.CallTool(context.Background(), "explode", nil); !errors.Is(err, ErrToolPanic) {
		t.Fatalf("CallTool error = %v, want ErrToolPanic", err)
	}

	// The stdio loop answers the failed call and keeps serving.
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n")
	var out bytes.Buffer
	if err := s.Serve(strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d responses, want 2: %q", len(lines), out.String())
	}
	var first, second MCPResponse
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid first response: %v", err)
	}
	if first.Error == nil || first.Error.Code != codeToolFailed {
		t.Errorf("panicking call: got %+v, want code %d", first.Error, codeToolFailed)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("invalid second response: %v", err)
	}
	if second.Error != nil || second.ID != float64(2) {
		t.Errorf("ping after panic: got %+v", second)
	}
}
