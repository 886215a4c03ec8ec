// Package router maps JSON-RPC requests onto the MCP methods served by the
// sandbox: initialize, tools/list and tools/call.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"mcp-sandbox-server/pkg/mcp"
	"mcp-sandbox-server/pkg/tool"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "Local Filesystem Server"
	ServerVersion   = "1.1.0"
)

// Catalog executes tools by name. *tool.Registry implements it.
type Catalog interface {
	Catalog() []*sdkmcp.Tool
	Call(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Router is stateless; one instance serves every connection.
type Router struct {
	tools Catalog
}

func New(tools Catalog) *Router {
	return &Router{tools: tools}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// InitializeResult is the handshake payload, also served by the HTTP probe.
func InitializeResult() *sdkmcp.InitializeResult {
	return &sdkmcp.InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    &sdkmcp.ServerCapabilities{Tools: &sdkmcp.ToolCapabilities{}},
		ServerInfo:      &sdkmcp.Implementation{Name: ServerName, Version: ServerVersion},
	}
}

// Handle answers one request. It always returns a response carrying the
// request id.
func (r *Router) Handle(ctx context.Context, req *mcp.Request) *mcp.Response {
	switch req.Method {
	case mcp.MethodInitialize:
		return mcp.NewResult(req.ID, InitializeResult())
	case mcp.MethodToolsList:
		return mcp.NewResult(req.ID, &sdkmcp.ListToolsResult{Tools: r.tools.Catalog()})
	case mcp.MethodToolsCall:
		return r.callTool(ctx, req)
	default:
		return mcp.NewErrorResponse(req.ID, mcp.CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (r *Router) callTool(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params callParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return mcp.NewErrorResponse(req.ID, mcp.CodeInvalidRequest, "Invalid params: "+err.Error())
		}
	}
	if params.Name == "" {
		return mcp.NewErrorResponse(req.ID, mcp.CodeInvalidRequest, "Invalid params: 'name' is required")
	}
	if args := bytes.TrimSpace(params.Arguments); len(args) > 0 && args[0] != '{' && string(args) != "null" {
		return mcp.NewErrorResponse(req.ID, mcp.CodeInvalidRequest, "Invalid params: 'arguments' must be an object")
	}

	slog.Info("Calling tool", "tool", params.Name)
	result, err := r.tools.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, tool.ErrUnknownTool) {
			return mcp.NewErrorResponse(req.ID, mcp.CodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name))
		}
		slog.Warn("Tool failed", "tool", params.Name, "error", err)
		return mcp.NewErrorResponse(req.ID, mcp.CodeToolExecution, err.Error())
	}

	text, err := encodeResult(result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.CodeInternal, "failed to encode tool result: "+err.Error())
	}
	return mcp.NewResult(req.ID, &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
	})
}

func encodeResult(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
